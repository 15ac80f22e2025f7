package ui

import (
	"image/color"
	"strings"

	"charm.land/lipgloss/v2"
)

var (
	daySeparatorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	timeStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	outNameStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	inNameStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("4")).Bold(true)
	noticeStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Italic(true)
	errorStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	draftStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))

	activeTabStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("170")).Bold(true).Underline(true)
	inactiveTabStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))

	dimColor       = lipgloss.Color("240")
	highlightColor = lipgloss.Color("#9B59B6")

	// Focused borders cycle through these and wrap back to the start.
	rainbowBlend = []color.Color{
		lipgloss.Color("#FF6B9D"),
		lipgloss.Color("#9B59B6"),
		lipgloss.Color("#3498DB"),
		lipgloss.Color("#2ECC71"),
		lipgloss.Color("#FF6B9D"),
	}
)

// applyBorderColor applies either the rainbow blend (focused) or dim border color.
func applyBorderColor(s lipgloss.Style, focused bool) lipgloss.Style {
	if focused {
		return s.BorderForegroundBlend(rainbowBlend...)
	}
	return s.BorderForeground(dimColor)
}

// truncateHeight limits s to at most maxLines lines.
func truncateHeight(s string, maxLines int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= maxLines {
		return s
	}
	return strings.Join(lines[:maxLines], "\n")
}

// centerOffset returns the position that centers box in a w×h area.
func centerOffset(box string, w, h int) (int, int) {
	x := (w - lipgloss.Width(box)) / 2
	y := (h - lipgloss.Height(box)) / 2
	return max(x, 0), max(y, 0)
}
