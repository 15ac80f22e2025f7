package ui

import "charm.land/lipgloss/v2"

const splashArt = `
 _       _
| |_ ___| | ___  ___ _   _ _ __   ___
| __/ _ \ |/ _ \/ __| | | | '_ \ / __|
| ||  __/ |  __/\__ \ |_| | | | | (__
 \__\___|_|\___||___/\__, |_| |_|\___|
                     |___/
`

// SplashModel renders a centered splash overlay on startup. It stays up for
// the minimum duration even if the first account is ready sooner.
type SplashModel struct {
	visible       bool
	timerDone     bool
	ready         bool
	width, height int
}

func NewSplashModel() SplashModel {
	return SplashModel{visible: true}
}

func (s SplashModel) SetSize(w, h int) SplashModel {
	s.width = w
	s.height = h
	return s
}

func (s SplashModel) IsVisible() bool {
	return s.visible
}

// TimerDone marks the minimum display duration as elapsed.
func (s SplashModel) TimerDone() SplashModel {
	s.timerDone = true
	s.visible = !s.ready
	return s
}

// Ready marks the first account as past connecting.
func (s SplashModel) Ready() SplashModel {
	s.ready = true
	if s.timerDone {
		s.visible = false
	}
	return s
}

// View renders the splash box. Use BoxOffset to center it.
func (s SplashModel) View() string {
	if !s.visible || s.width == 0 || s.height == 0 {
		return ""
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(highlightColor).
		Padding(1, 3).
		Render(splashArt)
}

func (s SplashModel) BoxOffset() (int, int) {
	return centerOffset(s.View(), s.width, s.height)
}
