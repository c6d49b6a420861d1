// Package tui is a terminal editor for template designs
package tui

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/dynodocs/template-engine/internal/editor"
	"github.com/dynodocs/template-engine/pkg/designformat"
)

const (
	sidebarWidth = 30
	// canvas origin on screen: sidebar, its border, content padding
	canvasLeft = sidebarWidth + 1 + 2
	canvasTop  = 1
	bottomRows = 2
)

type mode int

const (
	modeNav mode = iota
	modePrompt
)

type field int

const (
	fieldContent field = iota
	fieldColor
	fieldWidth
	fieldHeight
)

func (f field) String() string {
	return [...]string{"Text", "Color", "Width", "Height"}[f]
}

// Messages
type noticeMsg editor.Notice
type saveDoneMsg struct{ err error }

// App is the Bubble Tea model for one editor session
type App struct {
	ctx     context.Context
	session *editor.Session
	tracker *editor.Tracker
	title   string

	width, height int
	cols          int // canvas columns
	top           int // first visible canvas row
	ready         bool
	quitting      bool
	confirmQuit   bool

	mode  mode
	field field
	input textinput.Model

	// keyboard drags move a virtual pointer one cell per key press
	pointerX, pointerY float64

	notice *editor.Notice
	status string
}

// New creates the model. Pointer events from the mouse go through tracker,
// which must be the tracker the session was opened with.
func New(ctx context.Context, s *editor.Session, tracker *editor.Tracker, title string) *App {
	input := textinput.New()
	input.CharLimit = 2000
	input.Prompt = "> "
	input.PromptStyle = PromptStyle

	return &App{
		ctx:     ctx,
		session: s,
		tracker: tracker,
		title:   title,
		input:   input,
		cols:    maxCanvasCols,
	}
}

// Run starts the program and closes the session when it exits
func (a *App) Run() error {
	defer a.session.Close()
	p := tea.NewProgram(a,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(a.ctx),
	)
	_, err := p.Run()
	return err
}

// Init starts listening for session notices
func (a *App) Init() tea.Cmd {
	return waitNotice(a.session.Notices())
}

func waitNotice(ch <-chan editor.Notice) tea.Cmd {
	return func() tea.Msg {
		n, ok := <-ch
		if !ok {
			return nil
		}
		return noticeMsg(n)
	}
}

func (a *App) saveCmd() tea.Cmd {
	s, ctx := a.session, a.ctx
	return func() tea.Msg {
		return saveDoneMsg{err: s.Save(ctx)}
	}
}

// Update handles messages
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.ready = true
		a.resize()

	case noticeMsg:
		n := editor.Notice(msg)
		a.notice = &n
		a.status = ""
		return a, waitNotice(a.session.Notices())

	case saveDoneMsg:
		// success and failure arrive as notices; only local refusals show here
		switch {
		case errors.Is(msg.err, editor.ErrSaveInProgress):
			a.status = "save already in progress"
		case errors.Is(msg.err, editor.ErrClosed):
			a.status = "session closed"
		}

	case tea.KeyMsg:
		if a.mode == modePrompt {
			return a.updatePrompt(msg)
		}
		return a.updateNav(msg)

	case tea.MouseMsg:
		a.handleMouse(msg)
	}

	return a, nil
}

func (a *App) resize() {
	cols := a.width - canvasLeft - 2
	a.session.Resize(canvasWidth(cols))
	a.cols = int(math.Round(a.session.Tree().Width / cellW))
	a.input.Width = max(10, a.width-len(a.input.Prompt)-2)
}

func (a *App) updateNav(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	if key != "q" && key != "ctrl+c" {
		a.confirmQuit = false
	}
	if a.session.State() == editor.Dragging && !isArrow(key) {
		a.session.PointerUp()
		if key == "enter" || key == " " || key == "esc" {
			return a, nil
		}
	}

	switch key {
	case "ctrl+c", "q":
		if a.session.Dirty() && !a.confirmQuit {
			a.confirmQuit = true
			a.status = "unsaved changes, press q again to quit"
			return a, nil
		}
		a.quitting = true
		a.session.Close()
		return a, tea.Quit

	case "tab":
		a.cycle(1)
	case "shift+tab":
		a.cycle(-1)
	case "esc":
		a.session.ClearSelection()

	case "left":
		a.nudge(-1, 0)
	case "right":
		a.nudge(1, 0)
	case "up":
		a.nudge(0, -1)
	case "down":
		a.nudge(0, 1)
	case "shift+left":
		a.nudge(-5, 0)
	case "shift+right":
		a.nudge(5, 0)
	case "shift+up":
		a.nudge(0, -5)
	case "shift+down":
		a.nudge(0, 5)

	case "pgup":
		a.top = max(0, a.top-a.visibleRows()/2)
	case "pgdown":
		a.top = min(max(0, a.canvasRows()-a.visibleRows()), a.top+a.visibleRows()/2)

	case "e":
		return a, a.openPrompt(fieldContent)
	case "c":
		return a, a.openPrompt(fieldColor)
	case "w":
		return a, a.openPrompt(fieldWidth)
	case "h":
		return a, a.openPrompt(fieldHeight)

	case "ctrl+s":
		if a.session.State() == editor.Saving {
			a.status = "save already in progress"
			return a, nil
		}
		a.status = "saving..."
		return a, a.saveCmd()
	}

	return a, nil
}

func isArrow(key string) bool {
	switch strings.TrimPrefix(key, "shift+") {
	case "left", "right", "up", "down":
		return true
	}
	return false
}

func (a *App) cycle(step int) {
	n := a.session.Elements()
	if n == 0 {
		return
	}
	i, ok := a.session.Selected()
	switch {
	case !ok && step > 0:
		i = 0
	case !ok:
		i = n - 1
	default:
		i = ((i+step)%n + n) % n
	}
	a.session.Select(i)
}

// nudge drags the selection by (dc, dr) cells
func (a *App) nudge(dc, dr int) {
	i, ok := a.session.Selected()
	if !ok {
		a.status = "select an element first (tab)"
		return
	}
	if a.session.State() != editor.Dragging {
		a.pointerX, a.pointerY = 0, 0
		a.session.PointerDown(i, 0, 0)
	}
	a.pointerX += float64(dc) * cellW
	a.pointerY += float64(dr) * cellH
	a.session.PointerMove(a.pointerX, a.pointerY)
}

func (a *App) openPrompt(f field) tea.Cmd {
	fields, ok := a.session.Inspect()
	if !ok {
		a.status = "select an element first (tab)"
		return nil
	}

	var value string
	switch f {
	case fieldContent, fieldColor:
		if fields.Type != designformat.TypeText {
			a.status = "only text elements have text and color"
			return nil
		}
		value = fields.Content
		if f == fieldColor {
			value = fields.Color
		}
	case fieldWidth, fieldHeight:
		if fields.Type != designformat.TypeImage {
			a.status = "only image elements can be resized"
			return nil
		}
		value = fields.Width
		if f == fieldHeight {
			value = fields.Height
		}
	}

	a.mode = modePrompt
	a.field = f
	a.status = ""
	a.input.Placeholder = f.String()
	a.input.SetValue(strings.ReplaceAll(value, "\n", `\n`))
	return a.input.Focus()
}

func (a *App) closePrompt() {
	a.mode = modeNav
	a.input.Blur()
	a.input.SetValue("")
}

func (a *App) updatePrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		a.closePrompt()
		return a, nil
	case "enter":
		a.applyPrompt(a.input.Value())
		a.closePrompt()
		return a, nil
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	return a, cmd
}

func (a *App) applyPrompt(value string) {
	fields, ok := a.session.Inspect()
	if !ok {
		a.status = "selection lost"
		return
	}

	var err error
	switch a.field {
	case fieldContent:
		err = a.session.EditText(strings.ReplaceAll(value, `\n`, "\n"), fields.Color)
	case fieldColor:
		err = a.session.EditText(fields.Content, strings.TrimSpace(value))
	case fieldWidth:
		err = a.session.EditImageSize(value, "")
	case fieldHeight:
		err = a.session.EditImageSize("", value)
	}
	if err != nil {
		a.status = err.Error()
	}
}

func (a *App) handleMouse(msg tea.MouseMsg) {
	if a.mode == modePrompt {
		return
	}
	col := msg.X - canvasLeft
	row := msg.Y - canvasTop + a.top
	x, y := float64(col)*cellW, float64(row)*cellH

	switch msg.Action {
	case tea.MouseActionPress:
		if msg.Button != tea.MouseButtonLeft {
			return
		}
		if col < 0 || col >= a.cols || msg.Y >= a.height-bottomRows {
			return
		}
		i, ok := hit(project(a.session.Tree()), col, row)
		if !ok {
			a.session.ClearSelection()
			return
		}
		a.session.PointerDown(i, x, y)
	case tea.MouseActionMotion:
		a.tracker.Move(x, y)
	case tea.MouseActionRelease:
		a.tracker.Up()
	}
}

func (a *App) canvasRows() int {
	return int(math.Ceil(a.session.Tree().Height / cellH))
}

func (a *App) visibleRows() int {
	h := a.height - bottomRows - 2
	if a.mode == modePrompt {
		h--
	}
	return max(1, h)
}

// View renders the UI
func (a *App) View() string {
	if a.quitting {
		return "\n  Goodbye!\n\n"
	}
	if !a.ready {
		return "\n  Loading...\n"
	}

	contentHeight := max(1, a.height-bottomRows)
	sidebar := a.renderSidebar(contentHeight)
	content := a.renderCanvas(contentHeight)
	top := lipgloss.JoinHorizontal(lipgloss.Top, sidebar, content)

	var bottom string
	if a.mode == modePrompt {
		bottom = lipgloss.JoinVertical(lipgloss.Left,
			TextMuted.Render(a.field.String()+` (enter to apply, esc to cancel, \n for newline)`),
			a.input.View())
	} else {
		bottom = lipgloss.JoinVertical(lipgloss.Left, a.renderStatusBar(), a.renderHelp())
	}

	lines := strings.Split(lipgloss.JoinVertical(lipgloss.Left, top, bottom), "\n")
	for len(lines) < a.height {
		lines = append(lines, strings.Repeat(" ", a.width))
	}
	if len(lines) > a.height {
		lines = lines[:a.height]
	}
	return strings.Join(lines, "\n")
}

func (a *App) renderSidebar(height int) string {
	var lines []string
	lines = append(lines, LogoStyle.Render("DynoDocs"))
	if a.title != "" {
		lines = append(lines, TextMuted.Render(Truncate(a.title, sidebarWidth-2)))
	}
	lines = append(lines, "", TextMuted.Render(" ELEMENTS"), "")

	design := a.session.Design()
	selected, hasSel := a.session.Selected()
	if len(design.Pages) > 0 {
		for i, el := range design.Pages[0].Elements {
			text := fmt.Sprintf(" %2d %-6s %s", i, el.Type, elementSummary(el))
			text = Truncate(text, sidebarWidth-2)
			if pad := sidebarWidth - 2 - lipgloss.Width(text); pad > 0 {
				text += strings.Repeat(" ", pad)
			}
			if hasSel && i == selected {
				lines = append(lines, SidebarActiveStyle.Render(text))
			} else {
				lines = append(lines, SidebarItemStyle.Render(text))
			}
		}
	}

	if len(lines) > height-2 {
		lines = lines[:max(0, height-2)]
	}
	return SidebarStyle.Width(sidebarWidth).Height(height).Render(strings.Join(lines, "\n"))
}

func elementSummary(el designformat.Element) string {
	switch el.Type {
	case designformat.TypeText:
		return strings.ReplaceAll(el.Content, "\n", " ")
	case designformat.TypeImage:
		return el.Src
	case designformat.TypeShape:
		return el.Shape
	case designformat.TypePill:
		return el.Label
	}
	return ""
}

func (a *App) renderCanvas(height int) string {
	tree := a.session.Tree()
	rows := a.canvasRows()
	selected, ok := a.session.Selected()
	if !ok {
		selected = -1
	}
	grid := drawCanvas(project(tree), a.cols, rows, selected, a.session.State() == editor.Dragging)

	lines := strings.Split(grid, "\n")
	visible := a.visibleRows()
	a.top = min(a.top, max(0, len(lines)-visible))
	lines = lines[a.top:min(len(lines), a.top+visible)]

	return ContentStyle.Height(height).Render(strings.Join(lines, "\n"))
}

func (a *App) renderStatusBar() string {
	base := lipgloss.NewStyle().Background(BgCard).Foreground(colorTextNormal)
	seg := func(text string, fg, bg lipgloss.Color, bold bool) string {
		s := lipgloss.NewStyle().Foreground(fg).Background(bg).Padding(0, 1)
		if bold {
			s = s.Bold(true)
		}
		return s.Render(text)
	}
	pipe := base.Render(" | ")

	state := a.session.State()
	modeText, modeBg := "NAV", BgHover
	switch state {
	case editor.Dragging:
		modeText, modeBg = "DRAG", Warning
	case editor.Saving:
		modeText, modeBg = "SAVE", Secondary
	}
	left := seg(modeText, colorTextBright, modeBg, true) + pipe +
		seg(state.String(), colorTextBright, Primary, false) + pipe +
		seg(fmt.Sprintf("scale %.2f", a.session.Scale()), colorTextBright, BgHover, false) + pipe
	if a.session.Dirty() {
		left += seg("modified", colorTextBright, Warning, true) + pipe
	}

	msgText, msgFg, msgBg := "ready", colorTextNormal, BgCard
	switch {
	case a.status != "":
		msgText, msgFg, msgBg = a.status, colorTextBright, BgConsole
	case a.notice != nil && a.notice.Kind == editor.NoticeError:
		msgText, msgFg, msgBg = a.notice.Message, colorTextBright, Error
	case a.notice != nil:
		msgText, msgFg, msgBg = a.notice.Message, colorTextBright, Success
	}
	remaining := max(10, a.width-lipgloss.Width(left))
	line := left + seg(Truncate(msgText, remaining-2), msgFg, msgBg, false)
	return base.Width(a.width).Render(line)
}

func (a *App) renderHelp() string {
	return strings.Join([]string{
		RenderHelp("tab", "select"),
		RenderHelp("arrows", "move"),
		RenderHelp("e/c", "text/color"),
		RenderHelp("w/h", "size"),
		RenderHelp("ctrl+s", "save"),
		RenderHelp("q", "quit"),
	}, "  ")
}
