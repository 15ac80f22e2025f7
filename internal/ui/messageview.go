package ui

import (
	"fmt"
	"strings"
	"time"

	"charm.land/bubbles/v2/viewport"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"github.com/charmbracelet/glamour"

	"github.com/danhigham/telesync/internal/domain"
	"github.com/danhigham/telesync/internal/state"
)

// MessageViewModel displays the open chat's history using a viewport and
// glamour for markdown bodies.
type MessageViewModel struct {
	viewport viewport.Model
	renderer *glamour.TermRenderer
	history  *state.HistoryView
	now      func() time.Time
	focused  bool
	width    int
	height   int
}

func NewMessageViewModel() MessageViewModel {
	return MessageViewModel{viewport: viewport.New(), now: time.Now}
}

func (m MessageViewModel) Update(msg tea.Msg) (MessageViewModel, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "j":
			m.viewport.ScrollDown(1)
			return m, nil
		case "k":
			m.viewport.ScrollUp(1)
			return m, m.checkScrollTop()
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, tea.Batch(cmd, m.checkScrollTop())
}

// checkScrollTop asks for older history once the top is reached.
func (m MessageViewModel) checkScrollTop() tea.Cmd {
	h := m.history
	if h == nil || h.Loading || h.Exhausted || m.viewport.YOffset() > 0 {
		return nil
	}
	return func() tea.Msg { return loadOlderMsg{} }
}

func (m MessageViewModel) View() string {
	contentH := max(m.height-2, 0)

	body := m.viewport.View()
	if m.history == nil {
		body = lipgloss.Place(max(m.width-2, 1), contentH, lipgloss.Center, lipgloss.Center,
			noticeStyle.Render("Select a chat to start messaging"))
	}
	content := truncateHeight(body, contentH)

	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		Width(m.width).
		Height(m.height)
	style = applyBorderColor(style, m.focused)

	return style.Render(content)
}

func (m MessageViewModel) SetSize(w, h int) MessageViewModel {
	m.width = w
	m.height = h
	m.viewport.SetWidth(max(w-2, 1))
	m.viewport.SetHeight(max(h-2, 1))
	m = m.recreateRenderer()
	return m.renderContent(true)
}

func (m MessageViewModel) SetFocused(f bool) MessageViewModel {
	m.focused = f
	return m
}

// SetHistory shows h. Older pages arriving at the top keep the lines on
// screen in place; new messages follow the bottom only if it was visible.
func (m MessageViewModel) SetHistory(h *state.HistoryView) MessageViewModel {
	prev := m.history
	m.history = h
	switch {
	case h == nil || prev == nil || prev.ChatID != h.ChatID:
		return m.renderContent(true)
	case oldestID(h) != oldestID(prev):
		oldLines := m.viewport.TotalLineCount()
		offset := m.viewport.YOffset()
		m = m.renderContent(false)
		m.viewport.SetYOffset(offset + max(m.viewport.TotalLineCount()-oldLines, 0))
		return m
	default:
		return m.renderContent(m.viewport.AtBottom())
	}
}

func oldestID(h *state.HistoryView) domain.MessageID {
	if len(h.Sections) == 0 || len(h.Sections[0].Messages) == 0 {
		return 0
	}
	return h.Sections[0].Messages[0].ID
}

func (m MessageViewModel) recreateRenderer() MessageViewModel {
	r, err := glamour.NewTermRenderer(
		glamour.WithStylePath("dark"),
		glamour.WithWordWrap(max(m.viewport.Width()-2, 10)),
	)
	if err == nil {
		m.renderer = r
	}
	return m
}

func (m MessageViewModel) renderContent(gotoBottom bool) MessageViewModel {
	h := m.history
	if h == nil {
		m.viewport.SetContent("")
		return m
	}

	var b strings.Builder
	switch {
	case h.Loading:
		b.WriteString(noticeStyle.Render("Loading messages...") + "\n\n")
	case h.Exhausted:
		b.WriteString(noticeStyle.Render("Beginning of the conversation") + "\n\n")
	}

	for i, sec := range h.Sections {
		if i > 0 {
			b.WriteString("\n")
		}
		label := dayLabel(sec.Day, m.now())
		b.WriteString(daySeparatorStyle.Render(fmt.Sprintf("───── %s ─────", label)) + "\n")
		for _, msg := range sec.Messages {
			m.writeMessage(&b, msg)
		}
	}

	// Wrap content to viewport width so long lines don't overflow
	wrapped := lipgloss.NewStyle().Width(m.viewport.Width()).Render(b.String())
	m.viewport.SetContent(wrapped)
	if gotoBottom {
		m.viewport.GotoBottom()
	}
	return m
}

func (m MessageViewModel) writeMessage(b *strings.Builder, msg domain.Message) {
	ts := timeStyle.Render(msg.Date.Local().Format("15:04"))
	name := inNameStyle.Render(msg.SenderName + ":")
	if msg.Out {
		name = outNameStyle.Render(msg.SenderName + ":")
	}
	if !msg.EditDate.IsZero() {
		ts += timeStyle.Render(" (edited)")
	}

	text := msg.Text
	switch {
	case msg.HasMarkdown:
		fmt.Fprintf(b, "%s %s\n%s\n\n", ts, name, m.renderMessageText(text))
	case strings.Contains(text, "\n"):
		fmt.Fprintf(b, "%s %s\n%s\n\n", ts, name, text)
	default:
		fmt.Fprintf(b, "%s %s %s\n", ts, name, text)
	}
}

// dayLabel names the calendar day of t relative to now.
func dayLabel(t, now time.Time) string {
	t, now = t.Local(), now.Local()
	y, mo, d := t.Date()
	ny, nmo, nd := now.Date()
	switch {
	case y == ny && mo == nmo && d == nd:
		return "Today"
	case t.AddDate(0, 0, 1).Format(time.DateOnly) == now.Format(time.DateOnly):
		return "Yesterday"
	case y == ny:
		return t.Format("Monday, January 2")
	default:
		return t.Format("January 2, 2006")
	}
}

// renderMessageText renders markdown while keeping Telegram's single line
// breaks, which glamour would otherwise fold into paragraphs. Blank-line
// separated blocks that are tables or fenced code go through as a whole;
// other blocks are rendered line by line.
func (m MessageViewModel) renderMessageText(text string) string {
	if m.renderer == nil {
		return text
	}

	blocks := strings.Split(text, "\n\n")
	for i, block := range blocks {
		switch {
		case block == "":
		case isMultiLineMarkdown(block):
			blocks[i] = m.renderBlock(block)
		default:
			lines := strings.Split(block, "\n")
			for j, line := range lines {
				if line != "" {
					lines[j] = m.renderBlock(line)
				}
			}
			blocks[i] = strings.Join(lines, "\n")
		}
	}
	return strings.Join(blocks, "\n")
}

func (m MessageViewModel) renderBlock(text string) string {
	r, err := m.renderer.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimLeft(strings.TrimRight(r, "\n "), "\n")
}

// isMultiLineMarkdown reports whether block is a fenced code block or a
// table.
func isMultiLineMarkdown(block string) bool {
	if !strings.Contains(block, "\n") {
		return false
	}
	trimmed := strings.TrimSpace(block)
	if strings.HasPrefix(trimmed, "```") {
		return true
	}
	for _, line := range strings.Split(trimmed, "\n") {
		if !strings.Contains(line, "|") {
			return false
		}
	}
	return true
}
