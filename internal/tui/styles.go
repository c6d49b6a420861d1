package tui

import (
	"github.com/charmbracelet/lipgloss"
)

// Colors
var (
	Primary   = lipgloss.Color("#7C3AED") // Purple
	Secondary = lipgloss.Color("#06B6D4") // Cyan
	Success   = lipgloss.Color("#10B981") // Green
	Warning   = lipgloss.Color("#F59E0B") // Amber
	Error     = lipgloss.Color("#EF4444") // Red
	Muted     = lipgloss.Color("#6B7280") // Gray

	BgCard    = lipgloss.Color("#1E293B") // Slate 800
	BgHover   = lipgloss.Color("#334155") // Slate 700
	BgSidebar = lipgloss.Color("#18181B") // Zinc 900
	BgConsole = lipgloss.Color("#09090B") // Zinc 950
	BgPage    = lipgloss.Color("#F8FAFC") // paper

	colorTextBright = lipgloss.Color("#F8FAFC") // Slate 50
	colorTextNormal = lipgloss.Color("#CBD5E1") // Slate 300
	colorTextMuted  = lipgloss.Color("#64748B") // Slate 500
	colorTextInk    = lipgloss.Color("#0F172A") // Slate 900
)

var (
	TextMuted = lipgloss.NewStyle().Foreground(colorTextMuted)

	SidebarStyle = lipgloss.NewStyle().
			Background(BgSidebar).
			Foreground(colorTextNormal).
			Padding(1, 0).
			BorderRight(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(BgHover)

	SidebarItemStyle = lipgloss.NewStyle().
				Foreground(colorTextMuted)

	SidebarActiveStyle = lipgloss.NewStyle().
				Foreground(colorTextBright).
				Background(Primary).
				Bold(true)

	ContentStyle = lipgloss.NewStyle().
			Padding(1, 2)

	LogoStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorTextBright)

	// Canvas cells
	PageStyle = lipgloss.NewStyle().
			Background(BgPage).
			Foreground(colorTextInk)

	ElementStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#E2E8F0")).
			Foreground(colorTextInk)

	SelectedElementStyle = lipgloss.NewStyle().
				Background(Secondary).
				Foreground(colorTextInk).
				Bold(true)

	DraggingElementStyle = lipgloss.NewStyle().
				Background(Warning).
				Foreground(colorTextInk).
				Bold(true)

	PromptStyle = lipgloss.NewStyle().
			Foreground(Secondary)

	HelpStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted)

	HelpKeyStyle = lipgloss.NewStyle().
			Foreground(Secondary).
			Bold(true)
)

// RenderHelp renders a key hint
func RenderHelp(key, desc string) string {
	return HelpKeyStyle.Render(key) + HelpStyle.Render(" "+desc)
}

// Truncate shortens s to max runes, marking the cut with "..."
func Truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}
