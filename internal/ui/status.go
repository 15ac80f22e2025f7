package ui

import (
	"fmt"
	"image/color"
	"strings"
	"time"

	"charm.land/lipgloss/v2"

	"github.com/danhigham/telesync/internal/state"
)

var (
	statusBarBg     = lipgloss.Color("#353533")
	statusPillBg    = lipgloss.Color("#FF5FAF")
	statusPillBgOff = lipgloss.Color("#6C5098")
	statusTimeBg    = lipgloss.Color("#6124DF")
	statusUserBg    = lipgloss.Color("#7B5EA7")
)

// statusModel is the bottom bar:
// [phase pill] [chat title] [message] ... [account] [time pill]
type statusModel struct {
	phase     string
	online    bool
	chatTitle string
	message   string
	account   string
	width     int
}

func newStatusModel() statusModel {
	return statusModel{phase: "connecting"}
}

func (m statusModel) SetWidth(w int) statusModel {
	m.width = w
	return m
}

// FromSnapshot fills the bar from the active account of snap.
func (m statusModel) FromSnapshot(snap state.Snapshot) statusModel {
	m.message = snap.Status
	m.chatTitle = ""
	if snap.History != nil {
		m.chatTitle = snap.History.Title
	}

	a, ok := snap.ActiveAccount()
	if !ok {
		m.phase, m.online, m.account = "no account", false, ""
		return m
	}
	switch a.Phase {
	case state.PhaseSession:
		m.phase, m.online = "online", true
		m.account = a.Me.DisplayName()
	case state.PhaseLoggingOut:
		m.phase, m.online = "logging out", false
		m.account = ""
	default:
		m.phase, m.online = "log in", false
		m.account = ""
	}
	if n := len(snap.Accounts); n > 1 {
		m.account = strings.TrimSpace(fmt.Sprintf("%s %d/%d", m.account, snap.Active+1, n))
	}
	return m
}

func pill(text string, bg color.Color) string {
	return lipgloss.NewStyle().
		Background(bg).
		Foreground(lipgloss.Color("#FFFFFF")).
		Bold(true).
		Padding(0, 1).
		Render(text)
}

func (m statusModel) View() string {
	bg := statusPillBgOff
	if m.online {
		bg = statusPillBg
	}
	left := pill(strings.ToUpper(m.phase), bg)
	if m.chatTitle != "" {
		left += lipgloss.NewStyle().
			Background(statusBarBg).
			Foreground(lipgloss.Color("#FFFFFF")).
			Bold(true).
			Padding(0, 1).
			Render(m.chatTitle)
	}
	if m.message != "" {
		left += lipgloss.NewStyle().
			Background(statusBarBg).
			Foreground(lipgloss.Color("#FF8787")).
			Padding(0, 1).
			Render(m.message)
	}

	right := pill(time.Now().Format("15:04"), statusTimeBg)
	if m.account != "" {
		right = pill(m.account, statusUserBg) + right
	}

	gap := max(m.width-lipgloss.Width(left)-lipgloss.Width(right), 0)
	filler := lipgloss.NewStyle().
		Background(statusBarBg).
		Render(strings.Repeat(" ", gap))

	return lipgloss.NewStyle().
		MaxWidth(m.width).
		Render(left + filler + right)
}
