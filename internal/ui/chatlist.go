package ui

import (
	"fmt"
	"io"
	"strings"

	"charm.land/bubbles/v2/list"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/danhigham/telesync/internal/domain"
	"github.com/danhigham/telesync/internal/state"
)

// chatItem implements list.Item for the chat list.
type chatItem struct {
	row state.ChatRow
}

func (i chatItem) FilterValue() string { return i.row.Title }

// chatItemDelegate renders a chatItem in the list.
type chatItemDelegate struct{}

func (d chatItemDelegate) Height() int                             { return 2 }
func (d chatItemDelegate) Spacing() int                            { return 1 }
func (d chatItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }

func (d chatItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	ci, ok := item.(chatItem)
	if !ok {
		return
	}
	title, desc := chatLines(ci.row)

	// Account for the cursor prefix ("  " or "> ") in available width.
	contentWidth := max(m.Width()-2, 1)
	titleStyle := lipgloss.NewStyle().MaxWidth(contentWidth).MaxHeight(1)
	descStyle := lipgloss.NewStyle().MaxWidth(contentWidth).MaxHeight(1).Foreground(lipgloss.Color("240"))

	cursor := "  "
	if index == m.Index() {
		cursor = "> "
		titleStyle = titleStyle.Foreground(lipgloss.Color("170")).Bold(true)
		descStyle = descStyle.Foreground(lipgloss.Color("250"))
	}
	if ci.row.Unread > 0 {
		titleStyle = titleStyle.Bold(true)
	}
	if ci.row.Draft != "" {
		desc = draftStyle.Render("Draft:") + " " + desc
	}

	fmt.Fprintf(w, "%s%s\n%s%s", cursor, titleStyle.Render(title), "  ", descStyle.Render(desc))
}

// chatLines returns the title and preview line of a row.
func chatLines(row state.ChatRow) (title, desc string) {
	title = row.Title
	if title == "" {
		title = fmt.Sprintf("Chat %d", row.ID)
	}
	if row.Pinned {
		title = "📌 " + title
	}
	if row.Unread > 0 {
		title = fmt.Sprintf("%s (%d)", title, row.Unread)
	}
	desc = row.Preview
	if row.Draft != "" {
		desc = row.Draft
	}
	return title, desc
}

// ChatListModel is the sidebar: folder tabs above the chats of the selected
// tab.
type ChatListModel struct {
	list    list.Model
	tabs    []state.ListView
	active  int
	focused bool
	width   int
	height  int
}

func NewChatListModel() ChatListModel {
	l := list.New(nil, chatItemDelegate{}, 0, 0)
	l.SetShowTitle(false)
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(true)
	l.DisableQuitKeybindings()
	return ChatListModel{list: l}
}

func (m ChatListModel) Update(msg tea.Msg) (ChatListModel, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok && m.list.FilterState() != list.Filtering {
		switch key.String() {
		case "enter":
			if item, ok := m.list.SelectedItem().(chatItem); ok {
				id := item.row.ID
				return m, func() tea.Msg { return ChatSelectedMsg{ChatID: id} }
			}
			return m, nil
		case "]", "right", "l":
			return m, m.selectTab(m.active + 1)
		case "[", "left", "h":
			return m, m.selectTab(m.active - 1)
		case "ctrl+d":
			if m.active < len(m.tabs) && m.tabs[m.active].Kind.IsFolder() {
				return m, func() tea.Msg { return deleteFolderMsg{} }
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m ChatListModel) selectTab(i int) tea.Cmd {
	if len(m.tabs) == 0 {
		return nil
	}
	i = (i + len(m.tabs)) % len(m.tabs)
	return func() tea.Msg { return selectListMsg{index: i} }
}

func (m ChatListModel) View() string {
	contentH := max(m.height-2, 0)

	header := m.tabsView()
	body := m.list.View()
	if cur, ok := m.current(); ok && len(cur.Chats) == 0 {
		switch {
		case cur.Loading || !cur.Exhausted:
			body = noticeStyle.Render("Loading chats...")
		default:
			body = noticeStyle.Render("No chats")
		}
	}
	content := truncateHeight(header+"\n"+body, contentH)

	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		Width(m.width).
		Height(m.height)
	style = applyBorderColor(style, m.focused)

	return style.Render(content)
}

// tabsView renders the tab titles on one line, clipped to the sidebar.
func (m ChatListModel) tabsView() string {
	parts := make([]string, 0, len(m.tabs))
	for i, t := range m.tabs {
		label := t.Title
		if t.Icon != "" {
			label = t.Icon + " " + label
		}
		if t.Unread > 0 {
			label = fmt.Sprintf("%s %d", label, t.Unread)
		}
		if i == m.active {
			parts = append(parts, activeTabStyle.Render(label))
		} else {
			parts = append(parts, inactiveTabStyle.Render(label))
		}
	}
	return lipgloss.NewStyle().MaxWidth(max(m.width-2, 1)).Render(strings.Join(parts, " │ "))
}

func (m ChatListModel) current() (state.ListView, bool) {
	if m.active < 0 || m.active >= len(m.tabs) {
		return state.ListView{}, false
	}
	return m.tabs[m.active], true
}

// WithLists shows tabs with the active-th one selected. The cursor stays on
// the same chat when it is still listed.
func (m ChatListModel) WithLists(tabs []state.ListView, active int) (ChatListModel, tea.Cmd) {
	var selected domain.ChatID
	if item, ok := m.list.SelectedItem().(chatItem); ok {
		selected = item.row.ID
	}
	switched := active != m.active
	m.tabs = tabs
	m.active = active

	cur, _ := m.current()
	items := make([]list.Item, len(cur.Chats))
	cursor := 0
	for i, row := range cur.Chats {
		items[i] = chatItem{row: row}
		if row.ID == selected {
			cursor = i
		}
	}
	cmd := m.list.SetItems(items)
	if switched {
		cursor = 0
	}
	if len(items) > 0 {
		m.list.Select(cursor)
	}
	return m, cmd
}

func (m ChatListModel) SetSize(w, h int) ChatListModel {
	m.width = w
	m.height = h
	// One line for the tabs.
	m.list.SetSize(max(w-2, 1), max(h-3, 1))
	return m
}

func (m ChatListModel) SetFocused(f bool) ChatListModel {
	m.focused = f
	return m
}
