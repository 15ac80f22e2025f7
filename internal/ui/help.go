package ui

import "charm.land/lipgloss/v2"

// HelpModel renders a centered help overlay listing keyboard shortcuts.
type HelpModel struct {
	visible       bool
	width, height int
}

func NewHelpModel() HelpModel {
	return HelpModel{}
}

func (h HelpModel) IsVisible() bool {
	return h.visible
}

func (h HelpModel) Toggle() HelpModel {
	h.visible = !h.visible
	return h
}

func (h HelpModel) SetSize(w, ht int) HelpModel {
	h.width = w
	h.height = ht
	return h
}

const helpText = ` Keyboard Shortcuts

 General
   Ctrl+C        Quit
   ? / F1        Toggle this help
   Tab           Next pane
   Shift+Tab     Previous pane
   Esc           Back to chat list

 Accounts
   Ctrl+N        Next account
   Ctrl+T        Add account
   Ctrl+L        Log out

 Chat List
   j/k / ↑/↓     Navigate chats
   [ / ]         Previous / next folder
   Enter         Open chat
   /             Filter chats
   Ctrl+D        Delete folder

 Messages
   j / k         Scroll down / up
   PgUp / PgDn   Page scroll

 Input
   Enter         Send message

 Press ?, F1, or Esc to close`

// View renders the help box without placement. Use BoxOffset to center it
// through the layer API.
func (h HelpModel) View() string {
	if !h.visible || h.width == 0 || h.height == 0 {
		return ""
	}

	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		Padding(1, 3).
		BorderForegroundBlend(rainbowBlend...)

	return style.Render(helpText)
}

func (h HelpModel) BoxOffset() (int, int) {
	return centerOffset(h.View(), h.width, h.height)
}
