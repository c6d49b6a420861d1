package tui

import (
	"context"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dynodocs/template-engine/internal/editor"
	"github.com/dynodocs/template-engine/pkg/designformat"
)

const markup = `{"pages":[{"elements":[
  {"type":"text","x":10,"y":20,"content":"Hello","color":"#111111","fontSize":16},
  {"type":"image","x":100,"y":200,"width":120,"height":60,"src":"https://example.com/a.png"}
]}]}`

type recordingSaver struct {
	mu   sync.Mutex
	reqs []editor.SaveRequest
}

func (r *recordingSaver) Save(ctx context.Context, req editor.SaveRequest) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reqs = append(r.reqs, req)
	return editor.SavedMessage, nil
}

func newApp(t *testing.T) (*App, *recordingSaver) {
	t.Helper()
	saver := &recordingSaver{}
	tracker := editor.NewTracker()
	s := editor.Open(context.Background(), editor.Options{
		TemplateID:     "tpl-1",
		Markup:         markup,
		Saver:          saver,
		Tracker:        tracker,
		ContainerWidth: designformat.BaseWidth,
	})
	t.Cleanup(s.Close)

	a := New(context.Background(), s, tracker, "Flyer")
	a.Update(tea.WindowSizeMsg{Width: 120, Height: 50})
	return a, saver
}

func key(k tea.KeyType) tea.KeyMsg { return tea.KeyMsg{Type: k} }

func runes(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

func element(a *App, i int) designformat.Element {
	return a.session.Design().Pages[0].Elements[i]
}

func TestResize_ScalesSessionToCanvas(t *testing.T) {
	a, _ := newApp(t)
	assert.InDelta(t, canvasWidth(120-canvasLeft-2)/designformat.BaseWidth, a.session.Scale(), 1e-9)
	assert.Equal(t, 120-canvasLeft-2, a.cols)
}

func TestTab_CyclesSelection(t *testing.T) {
	a, _ := newApp(t)

	a.Update(key(tea.KeyTab))
	i, ok := a.session.Selected()
	require.True(t, ok)
	assert.Equal(t, 0, i)

	a.Update(key(tea.KeyTab))
	a.Update(key(tea.KeyTab))
	i, _ = a.session.Selected()
	assert.Equal(t, 0, i)

	a.Update(key(tea.KeyShiftTab))
	i, _ = a.session.Selected()
	assert.Equal(t, 1, i)

	a.Update(key(tea.KeyEsc))
	_, ok = a.session.Selected()
	assert.False(t, ok)
}

func TestArrows_DragSelection(t *testing.T) {
	a, _ := newApp(t)
	a.Update(key(tea.KeyTab))

	a.Update(key(tea.KeyRight))
	assert.Equal(t, editor.Dragging, a.session.State())
	a.Update(key(tea.KeyRight))
	a.Update(key(tea.KeyDown))

	el := element(a, 0)
	scale := a.session.Scale()
	assert.InDelta(t, 10+2*cellW/scale, el.X, 1e-9)
	assert.InDelta(t, 20+cellH/scale, el.Y, 1e-9)

	a.Update(key(tea.KeyEnter))
	assert.Equal(t, editor.ElementSelected, a.session.State())
	assert.True(t, a.session.Dirty())
}

func TestArrows_ClampAtOrigin(t *testing.T) {
	a, _ := newApp(t)
	a.Update(key(tea.KeyTab))
	for range 10 {
		a.Update(key(tea.KeyShiftLeft))
	}
	assert.Equal(t, 0.0, element(a, 0).X)
}

func TestArrows_WithoutSelection(t *testing.T) {
	a, _ := newApp(t)
	a.Update(key(tea.KeyRight))
	assert.Equal(t, editor.Idle, a.session.State())
	assert.NotEmpty(t, a.status)
}

func TestEditText(t *testing.T) {
	a, _ := newApp(t)
	a.Update(key(tea.KeyTab))

	a.Update(runes("e"))
	require.Equal(t, modePrompt, a.mode)
	assert.Equal(t, "Hello", a.input.Value())

	a.input.SetValue(`Line one\nLine two`)
	a.Update(key(tea.KeyEnter))
	assert.Equal(t, modeNav, a.mode)
	assert.Equal(t, "Line one\nLine two", element(a, 0).Content)
	assert.Equal(t, "#111111", element(a, 0).Color)

	a.Update(runes("c"))
	a.input.SetValue("#ff0000")
	a.Update(key(tea.KeyEnter))
	assert.Equal(t, "#ff0000", element(a, 0).Color)
}

func TestEditPrompt_EscCancels(t *testing.T) {
	a, _ := newApp(t)
	a.Update(key(tea.KeyTab))
	a.Update(runes("e"))
	a.input.SetValue("discarded")
	a.Update(key(tea.KeyEsc))
	assert.Equal(t, modeNav, a.mode)
	assert.Equal(t, "Hello", element(a, 0).Content)
}

func TestEditImageSize(t *testing.T) {
	a, _ := newApp(t)
	a.Update(key(tea.KeyShiftTab))

	a.Update(runes("w"))
	require.Equal(t, modePrompt, a.mode)
	assert.Equal(t, "120", a.input.Value())
	a.input.SetValue("250")
	a.Update(key(tea.KeyEnter))

	a.Update(runes("h"))
	a.input.SetValue("tall")
	a.Update(key(tea.KeyEnter))

	el := element(a, 1)
	assert.Equal(t, 250.0, *el.Width)
	assert.Equal(t, 60.0, *el.Height)
}

func TestEditPrompt_WrongElementType(t *testing.T) {
	a, _ := newApp(t)
	a.Update(key(tea.KeyTab))
	a.Update(runes("w"))
	assert.Equal(t, modeNav, a.mode)
	assert.Contains(t, a.status, "image")
}

func TestSave(t *testing.T) {
	a, saver := newApp(t)
	a.Update(key(tea.KeyTab))
	a.Update(runes("e"))
	a.input.SetValue("Saved text")
	a.Update(key(tea.KeyEnter))

	_, cmd := a.Update(key(tea.KeyCtrlS))
	require.NotNil(t, cmd)
	msg := cmd()
	done, ok := msg.(saveDoneMsg)
	require.True(t, ok)
	require.NoError(t, done.err)

	require.Len(t, saver.reqs, 1)
	assert.Equal(t, "tpl-1", saver.reqs[0].TemplateID)
	assert.Contains(t, saver.reqs[0].TemplateDesign, "Saved text")
	assert.False(t, a.session.Dirty())

	a.Update(msg)
	a.Update(a.Init()())
	require.NotNil(t, a.notice)
	assert.Equal(t, editor.NoticeSuccess, a.notice.Kind)
	assert.Equal(t, editor.SavedMessage, a.notice.Message)
}

func TestQuit_ConfirmsUnsavedChanges(t *testing.T) {
	a, _ := newApp(t)
	a.Update(key(tea.KeyTab))
	a.Update(key(tea.KeyRight))
	a.Update(key(tea.KeyEnter))

	_, cmd := a.Update(runes("q"))
	assert.Nil(t, cmd)
	assert.False(t, a.quitting)

	_, cmd = a.Update(runes("q"))
	require.NotNil(t, cmd)
	assert.True(t, a.quitting)
	assert.Equal(t, editor.Closed, a.session.State())
}

func TestMouse_PressDragRelease(t *testing.T) {
	a, _ := newApp(t)
	boxes := project(a.session.Tree())
	require.NotEmpty(t, boxes)
	img := boxes[1]
	require.Equal(t, 1, img.index)

	press := tea.MouseMsg{X: canvasLeft + img.col, Y: canvasTop + img.row, Action: tea.MouseActionPress, Button: tea.MouseButtonLeft}
	a.Update(press)
	assert.Equal(t, editor.Dragging, a.session.State())

	move := press
	move.Action = tea.MouseActionMotion
	move.X += 3
	a.Update(move)
	a.Update(tea.MouseMsg{X: move.X, Y: move.Y, Action: tea.MouseActionRelease, Button: tea.MouseButtonLeft})

	assert.Equal(t, editor.ElementSelected, a.session.State())
	assert.InDelta(t, 100+3*cellW/a.session.Scale(), element(a, 1).X, 1e-9)
}

func TestMouse_PressOnEmptyPageClearsSelection(t *testing.T) {
	a, _ := newApp(t)
	a.Update(key(tea.KeyTab))
	a.Update(tea.MouseMsg{X: canvasLeft + a.cols - 1, Y: canvasTop + 40, Action: tea.MouseActionPress, Button: tea.MouseButtonLeft})
	_, ok := a.session.Selected()
	assert.False(t, ok)
}

func TestView(t *testing.T) {
	a, _ := newApp(t)
	a.Update(key(tea.KeyTab))
	view := a.View()
	assert.Contains(t, view, "DynoDocs")
	assert.Contains(t, view, "Hello")
	assert.Contains(t, view, "[img]")
	assert.Len(t, strings.Split(view, "\n"), 50)
}

func TestHit_TopmostWins(t *testing.T) {
	boxes := []box{
		{index: 0, col: 0, row: 0, cols: 10, rows: 10},
		{index: 1, col: 5, row: 5, cols: 2, rows: 2},
	}
	i, ok := hit(boxes, 6, 6)
	require.True(t, ok)
	assert.Equal(t, 1, i)

	i, ok = hit(boxes, 1, 1)
	require.True(t, ok)
	assert.Equal(t, 0, i)

	_, ok = hit(boxes, 20, 20)
	assert.False(t, ok)
}
