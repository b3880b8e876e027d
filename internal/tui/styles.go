package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/54b3r/insight-scout/internal/scout"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true)
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	focusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	sourceStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	stepStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	titleStyle   = lipgloss.NewStyle().Bold(true)
	cardStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	levelColours = map[scout.Level]lipgloss.Color{
		scout.LevelSuccess: lipgloss.Color("10"),
		scout.LevelWarning: lipgloss.Color("11"),
		scout.LevelError:   lipgloss.Color("9"),
	}
)

// RenderOutcome draws o as a bordered card: green for success, yellow for
// warnings and red for errors. width <= 0 leaves the card unwrapped.
func RenderOutcome(o scout.Outcome, width int) string {
	colour, ok := levelColours[o.Level]
	if !ok {
		colour = levelColours[scout.LevelError]
	}

	var lines []string
	if o.Title != "" {
		lines = append(lines, titleStyle.Foreground(colour).Render(o.Title))
	}
	for _, s := range o.Steps {
		lines = append(lines, stepStyle.Render("• "+s))
	}
	if o.Answer != "" {
		lines = append(lines, o.Answer)
	}
	if o.Message != "" {
		msg := o.Message
		if o.Level != scout.LevelSuccess {
			msg = lipgloss.NewStyle().Foreground(colour).Render(msg)
		}
		lines = append(lines, msg)
	}
	if len(o.Sources) > 0 {
		lines = append(lines, "", subtleStyle.Render("Sources:"))
		for _, s := range o.Sources {
			label := s.Label
			if label == "" {
				label = s.URL
			}
			lines = append(lines, sourceStyle.Render("  "+label)+subtleStyle.Render("  "+s.URL))
		}
	}

	style := cardStyle.BorderForeground(colour)
	if width > 0 {
		style = style.Width(width - style.GetHorizontalFrameSize())
	}
	return style.Render(strings.Join(lines, "\n"))
}
