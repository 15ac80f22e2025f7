// Package ui is the terminal front end. It renders state snapshots and turns
// key presses into binder actions run on the core loop.
package ui

import (
	"fmt"
	"time"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/danhigham/telesync/internal/domain"
	"github.com/danhigham/telesync/internal/state"
)

// Dispatch runs fn against the binder on the core loop.
type Dispatch func(fn func(b *state.Binder))

type focusTarget int

const (
	focusChatList focusTarget = iota
	focusMessages
	focusInput
)

const chatListWidth = 36

// inputRenderedHeight is the total height of the input box (1 inner + 2 border).
const inputRenderedHeight = 3

// Model is the root Bubble Tea model.
type Model struct {
	chatList    ChatListModel
	messageView MessageViewModel
	input       InputModel
	auth        AuthModel
	status      statusModel
	help        HelpModel
	splash      SplashModel

	store     *state.Store
	dispatch  Dispatch
	useTestDC bool
	snap      state.Snapshot
	openChat  domain.ChatID

	focus  focusTarget
	width  int
	height int
}

func NewModel(store *state.Store, dispatch Dispatch, useTestDC bool) Model {
	return Model{
		chatList:    NewChatListModel(),
		messageView: NewMessageViewModel(),
		input:       NewInputModel(),
		auth:        NewAuthModel(),
		status:      newStatusModel(),
		help:        NewHelpModel(),
		splash:      NewSplashModel(),
		store:       store,
		dispatch:    dispatch,
		useTestDC:   useTestDC,
		snap:        store.Snapshot(),
		focus:       focusChatList,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.input.Init(),
		func() tea.Msg { return StoreUpdatedMsg{} },
		tea.Tick(3*time.Second, func(time.Time) tea.Msg { return SplashDoneMsg{} }),
		clockTick(),
	)
}

func clockTick() tea.Cmd {
	return tea.Tick(time.Minute, func(time.Time) tea.Msg { return clockTickMsg{} })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m.distributeSize(), nil

	case StoreUpdatedMsg:
		return m.refreshFromStore()

	case ChatSelectedMsg:
		draft, prev, id := m.input.Value(), m.openChat, msg.ChatID
		m.dispatch(func(b *state.Binder) {
			if prev != 0 {
				b.SaveDraft(draft)
			}
			b.OpenChat(id)
		})
		m.focus = focusInput
		return m.updateFocus(), nil

	case sendMessageMsg:
		text := msg.text
		m.dispatch(func(b *state.Binder) { b.Send(text) })
		return m, nil

	case loadOlderMsg:
		m.dispatch(func(b *state.Binder) { b.LoadMore() })
		return m, nil

	case selectListMsg:
		i := msg.index
		m.dispatch(func(b *state.Binder) { b.SelectList(i) })
		return m, nil

	case authSubmitMsg:
		value := msg.value
		m.dispatch(func(b *state.Binder) { b.SubmitAuth(value) })
		return m, nil

	case resendCodeMsg:
		m.dispatch(func(b *state.Binder) { b.ResendCode() })
		return m, nil

	case qrLoginMsg:
		m.dispatch(func(b *state.Binder) { b.RequestQRCode() })
		return m, nil

	case deleteFolderMsg:
		m.dispatch(func(b *state.Binder) { b.DeleteFolder() })
		return m, nil

	case SplashDoneMsg:
		m.splash = m.splash.TimerDone()
		return m, nil

	case clockTickMsg:
		return m, clockTick()

	case tea.FocusMsg:
		m.dispatch(func(b *state.Binder) { b.SetOnline(true) })
		return m, nil

	case tea.BlurMsg:
		m.dispatch(func(b *state.Binder) { b.SetOnline(false) })
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "ctrl+c" {
		return m, tea.Quit
	}
	if m.splash.IsVisible() {
		return m, nil
	}
	if m.help.IsVisible() {
		if key == "?" || key == "f1" || key == "esc" {
			m.help = m.help.Toggle()
		}
		return m, nil
	}

	switch key {
	case "ctrl+n":
		if n := len(m.snap.Accounts); n > 1 {
			next := (m.snap.Active + 1) % n
			m.dispatch(func(b *state.Binder) { b.SelectAccount(next) })
		}
		return m, nil
	case "ctrl+t":
		testDC := m.useTestDC
		m.dispatch(func(b *state.Binder) { b.AddAccount(testDC) })
		return m, nil
	case "ctrl+l":
		m.dispatch(func(b *state.Binder) { b.LogOut() })
		return m, nil
	}

	if m.auth.IsVisible() {
		var cmd tea.Cmd
		m.auth, cmd = m.auth.Update(msg)
		return m, cmd
	}

	switch key {
	case "q":
		if m.focus != focusInput {
			return m, tea.Quit
		}
	case "?", "f1":
		if m.focus != focusInput || key == "f1" {
			m.help = m.help.Toggle()
			return m, nil
		}
	case "tab":
		m.focus = (m.focus + 1) % 3
		return m.updateFocus(), nil
	case "shift+tab":
		m.focus = (m.focus + 2) % 3
		return m.updateFocus(), nil
	case "esc":
		m.focus = focusChatList
		return m.updateFocus(), nil
	}

	var cmd tea.Cmd
	switch m.focus {
	case focusChatList:
		m.chatList, cmd = m.chatList.Update(msg)
	case focusMessages:
		m.messageView, cmd = m.messageView.Update(msg)
	case focusInput:
		m.input, cmd = m.input.Update(msg)
	}
	return m, cmd
}

func (m Model) View() tea.View {
	v := tea.NewView("")
	v.AltScreen = true
	v.ReportFocus = true
	v.WindowTitle = "telesync"

	if m.width == 0 || m.height == 0 {
		return v
	}

	var content string
	switch a, ok := m.snap.ActiveAccount(); {
	case !ok:
		content = lipgloss.Place(m.width, m.height-1, lipgloss.Center, lipgloss.Center,
			noticeStyle.Render("No accounts. Press ctrl+t to add one."))
	case a.Phase == state.PhaseAuth:
		content = m.auth.View()
	default:
		rightPane := lipgloss.JoinVertical(lipgloss.Left, m.messageView.View(), m.input.View())
		content = lipgloss.JoinHorizontal(lipgloss.Top, m.chatList.View(), rightPane)
	}
	full := lipgloss.JoinVertical(lipgloss.Left, content, m.status.View())

	// Clamp to terminal dimensions
	mainContent := lipgloss.NewStyle().
		MaxWidth(m.width).
		MaxHeight(m.height).
		Render(full)

	var overlay string
	var x, y int
	switch {
	case m.splash.IsVisible():
		overlay = m.splash.View()
		x, y = m.splash.BoxOffset()
	case m.help.IsVisible():
		overlay = m.help.View()
		x, y = m.help.BoxOffset()
	}
	if overlay == "" {
		v.SetContent(mainContent)
		return v
	}
	bg := lipgloss.NewLayer(mainContent)
	fg := lipgloss.NewLayer(overlay).X(x).Y(y).Z(1)
	v.SetContent(lipgloss.NewCompositor(bg, fg).Render())
	return v
}

func (m Model) distributeSize() Model {
	// One row for the status bar.
	contentHeight := max(m.height-1, 1)

	clWidth := min(chatListWidth, m.width)
	m.chatList = m.chatList.SetSize(clWidth, contentHeight)

	rightWidth := max(m.width-clWidth, 1)
	messagesHeight := max(contentHeight-inputRenderedHeight, 1)
	m.messageView = m.messageView.SetSize(rightWidth, messagesHeight)
	m.input = m.input.SetSize(rightWidth, inputRenderedHeight)

	m.auth = m.auth.SetSize(m.width, contentHeight)
	m.status = m.status.SetWidth(m.width)
	m.help = m.help.SetSize(m.width, m.height)
	m.splash = m.splash.SetSize(m.width, m.height)
	return m
}

func (m Model) updateFocus() Model {
	m.chatList = m.chatList.SetFocused(m.focus == focusChatList)
	m.messageView = m.messageView.SetFocused(m.focus == focusMessages)
	m.input = m.input.SetFocused(m.focus == focusInput)
	return m
}

func (m Model) refreshFromStore() (Model, tea.Cmd) {
	m.snap = m.store.Snapshot()
	m.status = m.status.FromSnapshot(m.snap)

	a, ok := m.snap.ActiveAccount()
	if !ok {
		m.auth = m.auth.Hide()
		m.splash = m.splash.Ready()
		return m, nil
	}
	if a.Phase == state.PhaseAuth {
		label := ""
		if n := len(m.snap.Accounts); n > 1 {
			label = fmt.Sprintf("account %d of %d", m.snap.Active+1, n)
		}
		var cmd tea.Cmd
		m.auth, cmd = m.auth.SetStep(label, a.Auth)
		if !a.Auth.Waiting {
			m.splash = m.splash.Ready()
		}
		return m, cmd
	}
	m.auth = m.auth.Hide()
	m.splash = m.splash.Ready()

	var cmd tea.Cmd
	m.chatList, cmd = m.chatList.WithLists(a.Lists, m.snap.List)

	h := m.snap.History
	var open domain.ChatID
	if h != nil {
		open = h.ChatID
		if open != m.openChat {
			m.input = m.input.SetValue(h.Draft)
		}
	}
	m.openChat = open
	m.messageView = m.messageView.SetHistory(h)
	return m, cmd
}

// App wraps the Bubble Tea program for external use.
type App struct {
	program *tea.Program
}

func NewApp(store *state.Store, dispatch Dispatch, useTestDC bool) *App {
	return &App{program: tea.NewProgram(NewModel(store, dispatch, useTestDC))}
}

// Run starts the Bubble Tea event loop and blocks until quit.
func (a *App) Run() error {
	_, err := a.program.Run()
	return err
}

func (a *App) Quit() {
	a.program.Quit()
}

// Send sends a message into the Bubble Tea event loop from external goroutines.
func (a *App) Send(msg tea.Msg) {
	go a.program.Send(msg)
}

// DrawFunc returns a redraw hook for state.Store.
func (a *App) DrawFunc() func() {
	return func() {
		a.Send(StoreUpdatedMsg{})
	}
}
