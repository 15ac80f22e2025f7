package state

import (
	"strings"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/danhigham/telesync/internal/auth"
	"github.com/danhigham/telesync/internal/chatlist"
	"github.com/danhigham/telesync/internal/client"
	"github.com/danhigham/telesync/internal/domain"
	"github.com/danhigham/telesync/internal/history"
	"github.com/danhigham/telesync/internal/loop"
	"github.com/danhigham/telesync/internal/notify"
	"github.com/danhigham/telesync/internal/session"
)

var ErrNoSession = errors.New("account is not logged in")

type BinderConfig struct {
	Loop     *loop.Loop
	Manager  *client.Manager
	Store    *Store
	PageSize int
	Logger   *zap.Logger
}

// Binder observes the client manager and republishes a Snapshot whenever
// anything it shows changes. Bursts of changes within one loop turn are
// coalesced into a single publish. All methods must be called on the loop.
type Binder struct {
	loop     *loop.Loop
	manager  *client.Manager
	store    *Store
	pageSize int
	logger   *zap.Logger

	watched map[*client.Client]*watch
	cancel  []func()

	active      *client.Client
	list        int
	chat        domain.ChatID
	open        *history.Model
	unwatchChat func()
	status      string
	dirty       bool
}

// watch holds the subscriptions of one client's current state.
type watch struct {
	state  func()
	cancel []func()
}

func NewBinder(cfg BinderConfig) *Binder {
	b := &Binder{
		loop:     cfg.Loop,
		manager:  cfg.Manager,
		store:    cfg.Store,
		pageSize: cfg.PageSize,
		logger:   cfg.Logger.Named("state"),
		watched:  make(map[*client.Client]*watch),
	}
	b.cancel = append(b.cancel,
		cfg.Manager.SubscribeAdded(b.onAdded),
		cfg.Manager.SubscribeRemoved(b.onRemoved),
	)
	for _, c := range cfg.Manager.Clients() {
		b.onAdded(c)
	}
	b.invalidate()
	return b
}

// Close drops every subscription. Nothing is published afterwards.
func (b *Binder) Close() {
	for _, cancel := range b.cancel {
		cancel()
	}
	b.cancel = nil
	for c, w := range b.watched {
		w.state()
		w.drop()
		delete(b.watched, c)
	}
	b.closeHistory()
}

func (w *watch) drop() {
	for _, cancel := range w.cancel {
		cancel()
	}
	w.cancel = nil
}

func (b *Binder) onAdded(c *client.Client) {
	if _, ok := b.watched[c]; ok {
		return
	}
	w := &watch{}
	w.state = c.Subscribe(func(client.State) {
		b.rewatch(c)
		b.invalidate()
	})
	b.watched[c] = w
	b.rewatch(c)
	if b.active == nil {
		b.active = c
	}
	b.invalidate()
}

func (b *Binder) onRemoved(c *client.Client) {
	if w, ok := b.watched[c]; ok {
		w.state()
		w.drop()
		delete(b.watched, c)
	}
	if b.active == c {
		b.active = nil
		b.list = 0
		b.closeHistory()
		if first, ok := b.manager.FirstClient(); ok {
			b.active = first
		}
	}
	b.invalidate()
}

// rewatch replaces the subscriptions of c with ones matching its state.
func (b *Binder) rewatch(c *client.Client) {
	w, ok := b.watched[c]
	if !ok {
		return
	}
	w.drop()

	if sub, ok := c.AuthSubState(); ok {
		w.cancel = append(w.cancel, sub.Subscribe(b.invalidate))
	}
	s, ok := c.Session()
	if !ok {
		if c == b.active {
			b.closeHistory()
		}
		return
	}
	w.cancel = append(w.cancel,
		s.SubscribeChats(func(domain.ChatID) { b.invalidate() }),
		s.SubscribeUsers(func(domain.UserID) { b.invalidate() }),
		s.Folders().Subscribe(func(notify.Change) {
			b.rewatch(c)
			b.invalidate()
		}),
	)
	for _, l := range tabs(s) {
		w.cancel = append(w.cancel,
			l.Subscribe(func(notify.Change) { b.invalidate() }),
			l.SubscribeMetadata(b.invalidate),
		)
		if l.Len() == 0 {
			l.Fetch()
		}
	}
}

// tabs are the lists shown for a session: the folder projection, then the
// archive.
func tabs(s *session.Session) []*chatlist.List {
	f := s.Folders()
	out := make([]*chatlist.List, 0, f.Len()+1)
	for i := 0; i < f.Len(); i++ {
		out = append(out, f.At(i))
	}
	return append(out, s.ChatList(domain.ArchiveList()))
}

func (b *Binder) invalidate() {
	if b.dirty {
		return
	}
	b.dirty = true
	b.loop.Post(b.publish)
}

func (b *Binder) publish() {
	if !b.dirty {
		return
	}
	b.dirty = false
	b.store.Publish(b.build())
}

func (b *Binder) build() Snapshot {
	snap := Snapshot{Active: -1, List: b.list, Status: b.status}
	for i, c := range b.manager.Clients() {
		if c == b.active {
			snap.Active = i
		}
		snap.Accounts = append(snap.Accounts, b.account(c))
	}
	if a, ok := snap.ActiveAccount(); ok && snap.List >= len(a.Lists) {
		snap.List = 0
	}
	if b.open != nil && b.active != nil {
		if s, ok := b.active.Session(); ok {
			snap.History = historyView(s, b.open)
		}
	}
	return snap
}

func (b *Binder) account(c *client.Client) Account {
	a := Account{ClientID: c.ID(), Slot: c.Slot()}
	switch st := c.State().(type) {
	case client.AuthState:
		a.Phase = PhaseAuth
		a.Auth = authStep(st.Sub)
	case client.SessionState:
		a.Phase = PhaseSession
		a.Me = st.Session.Me()
		for _, l := range tabs(st.Session) {
			a.Lists = append(a.Lists, listView(st.Session, l))
		}
	case client.LoggingOutState:
		a.Phase = PhaseLoggingOut
	}
	return a
}

func authStep(sub auth.SubState) AuthStep {
	if sub == nil {
		return AuthStep{Waiting: true}
	}
	step := AuthStep{Kind: sub.Kind(), Error: sub.Error()}
	switch sub := sub.(type) {
	case *auth.WaitCode:
		step.CodeInfo = sub.CodeInfo()
		step.ResendIn = sub.ResendIn()
	case *auth.WaitPassword:
		step.Hint = sub.Hint()
	case *auth.WaitRegistration:
		step.Terms = sub.TermsOfService()
	case *auth.WaitOtherDeviceConfirmation:
		step.Link = sub.Link()
	}
	return step
}

func listView(s *session.Session, l *chatlist.List) ListView {
	v := ListView{
		Kind:      l.Kind(),
		Title:     l.Title(),
		Icon:      l.Icon(),
		Unread:    l.UnreadCount(),
		Loading:   l.Fetching(),
		Exhausted: l.Exhausted(),
	}
	switch l.Kind().Type {
	case domain.ListMain:
		v.Title = "All chats"
	case domain.ListArchive:
		v.Title = "Archive"
	}
	for _, it := range l.Items() {
		row := ChatRow{ID: it.ChatID, Pinned: it.IsPinned}
		if chat, ok := s.Chat(it.ChatID); ok {
			row.Title = chat.Title
			row.Unread = chat.UnreadCount
			if m := chat.LastMessage; m != nil {
				row.Preview = firstLine(m.Text)
				row.Date = m.Date
			}
			if d := chat.Draft; d != nil {
				row.Draft = d.Text
			}
		}
		v.Chats = append(v.Chats, row)
	}
	return v
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// historyView groups the cached messages into days, oldest day first.
func historyView(s *session.Session, h *history.Model) *HistoryView {
	v := &HistoryView{
		ChatID:    h.ChatID(),
		Loading:   h.Loading(),
		Exhausted: h.Exhausted(),
	}
	if chat, ok := s.Chat(h.ChatID()); ok {
		v.Title = chat.Title
		if chat.Draft != nil {
			v.Draft = chat.Draft.Text
		}
	}
	msgs := h.Messages()
	for pos := 0; pos < len(msgs); {
		start, end := h.Section(pos)
		day := make([]domain.Message, 0, end-start)
		for i := end - 1; i >= start; i-- {
			day = append(day, msgs[i])
		}
		v.Sections = append(v.Sections, Section{Day: day[0].Date, Messages: day})
		pos = end
	}
	for i, j := 0, len(v.Sections)-1; i < j; i, j = i+1, j-1 {
		v.Sections[i], v.Sections[j] = v.Sections[j], v.Sections[i]
	}
	return v
}

func (b *Binder) setStatus(msg string) {
	b.status = msg
	b.invalidate()
}

// report shows err in the status line.
func (b *Binder) report(what string, err error) {
	if err == nil {
		return
	}
	b.logger.Info("Action failed", zap.String("action", what), zap.Error(err))
	b.setStatus(what + ": " + err.Error())
}

// Active returns the selected client.
func (b *Binder) Active() (*client.Client, bool) {
	return b.active, b.active != nil
}

func (b *Binder) session() (*session.Session, error) {
	if b.active == nil {
		return nil, ErrNoSession
	}
	s, ok := b.active.Session()
	if !ok {
		return nil, ErrNoSession
	}
	return s, nil
}

// SelectAccount switches to the i-th account.
func (b *Binder) SelectAccount(i int) {
	clients := b.manager.Clients()
	if i < 0 || i >= len(clients) || clients[i] == b.active {
		return
	}
	b.closeHistory()
	b.active = clients[i]
	b.list = 0
	b.status = ""
	b.invalidate()
}

// SelectList switches the active account to its i-th tab.
func (b *Binder) SelectList(i int) {
	s, err := b.session()
	if err != nil {
		return
	}
	ls := tabs(s)
	if i < 0 || i >= len(ls) {
		return
	}
	b.list = i
	ls[i].Fetch()
	b.invalidate()
}

// OpenChat shows the history of chatID, loading its first page if nothing
// is cached yet.
func (b *Binder) OpenChat(chatID domain.ChatID) {
	s, err := b.session()
	if err != nil {
		b.report("open chat", err)
		return
	}
	if b.open != nil && b.chat == chatID {
		return
	}
	b.closeHistory()
	b.chat = chatID
	b.open = s.History(chatID)
	b.unwatchChat = b.open.Subscribe(func(notify.Change) { b.invalidate() })
	if b.open.Len() == 0 && !b.open.Exhausted() {
		b.LoadMore()
	}
	b.invalidate()
}

func (b *Binder) CloseChat() {
	b.closeHistory()
	b.invalidate()
}

func (b *Binder) closeHistory() {
	if b.unwatchChat != nil {
		b.unwatchChat()
	}
	b.open, b.unwatchChat, b.chat = nil, nil, 0
}

// LoadMore requests older messages of the open chat.
func (b *Binder) LoadMore() {
	h := b.open
	if h == nil || h.Exhausted() {
		return
	}
	// Page failures are logged by the history itself.
	if err := h.LoadOlderMessages(b.pageSize, func(bool, error) { b.invalidate() }); err != nil {
		return
	}
	b.invalidate()
}

// Send posts text to the open chat and clears its draft.
func (b *Binder) Send(text string) {
	text = strings.TrimSpace(text)
	if text == "" || b.open == nil {
		return
	}
	s, err := b.session()
	if err != nil {
		b.report("send", err)
		return
	}
	s.SendMessage(b.chat, text)
	if chat, ok := s.Chat(b.chat); ok && chat.Draft != nil {
		s.SetDraft(b.chat, "")
	}
}

// SaveDraft stores text as the draft of the open chat.
func (b *Binder) SaveDraft(text string) {
	if b.open == nil {
		return
	}
	s, err := b.session()
	if err != nil {
		return
	}
	cur := ""
	if chat, ok := s.Chat(b.chat); ok && chat.Draft != nil {
		cur = chat.Draft.Text
	}
	if cur != text {
		s.SetDraft(b.chat, text)
	}
}

// SetOnline tells the server whether the user is looking at the active
// account.
func (b *Binder) SetOnline(online bool) {
	if s, err := b.session(); err == nil {
		s.SetOnline(online)
	}
}

// SubmitAuth answers the pending authentication step of the active account
// with input. Registration expects "first last".
func (b *Binder) SubmitAuth(input string) {
	c := b.active
	if c == nil {
		return
	}
	sub, ok := c.AuthSubState()
	if !ok {
		return
	}
	input = strings.TrimSpace(input)
	var err error
	switch sub.Kind() {
	case auth.KindWaitPhoneNumber:
		err = c.SubmitPhoneNumber(input)
	case auth.KindWaitCode:
		err = c.SubmitCode(input)
	case auth.KindWaitPassword:
		err = c.SubmitPassword(input)
	case auth.KindWaitRegistration:
		first, last, _ := strings.Cut(input, " ")
		err = c.Register(first, strings.TrimSpace(last))
	default:
		return
	}
	b.report("authentication", err)
}

func (b *Binder) ResendCode() {
	if c := b.active; c != nil {
		b.report("resend code", c.ResendCode())
	}
}

func (b *Binder) RequestQRCode() {
	if c := b.active; c != nil {
		b.report("qr login", c.RequestQRCode())
	}
}

// AddAccount creates a new account and selects it.
func (b *Binder) AddAccount(useTestDC bool) {
	c, err := b.manager.AddNewClient(useTestDC)
	if err != nil {
		b.report("add account", err)
		return
	}
	b.closeHistory()
	b.active = c
	b.list = 0
	b.invalidate()
}

// LogOut logs the active account out of the server.
func (b *Binder) LogOut() {
	if c := b.active; c != nil {
		c.LogOut()
	}
}

func (b *Binder) DeleteFolder() {
	s, err := b.session()
	if err != nil {
		return
	}
	ls := tabs(s)
	if b.list >= len(ls) {
		return
	}
	err = ls[b.list].Delete(func(err error) { b.report("delete folder", err) })
	b.report("delete folder", err)
}
