// Package session holds the synchronized state of one logged-in account and
// routes every push update to the component that owns the affected data.
package session

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/danhigham/telesync/internal/account"
	"github.com/danhigham/telesync/internal/backend"
	"github.com/danhigham/telesync/internal/chatlist"
	"github.com/danhigham/telesync/internal/domain"
	"github.com/danhigham/telesync/internal/history"
	"github.com/danhigham/telesync/internal/loop"
	"github.com/danhigham/telesync/internal/notify"
)

type Config struct {
	Ctx       context.Context
	Loop      *loop.Loop
	Backend   backend.Backend
	Account   account.Slot
	Me        domain.User
	BatchSize int // chats per LoadChats request
	Logger    *zap.Logger
	Location  *time.Location
}

// Session is one account's mirror of the server state. It must only be used
// on the owning loop.
type Session struct {
	account account.Slot
	meID    domain.UserID
	ctx     context.Context
	cancel  context.CancelFunc
	loop    *loop.Loop
	backend backend.Backend
	logger  *zap.Logger
	loc     *time.Location

	chats     map[domain.ChatID]*domain.Chat
	users     map[domain.UserID]*domain.User
	main      *chatlist.List
	archive   *chatlist.List
	folders   *chatlist.FolderList
	histories map[domain.ChatID]*history.Model
	closed    bool

	chatChanged notify.Observers[domain.ChatID]
	userChanged notify.Observers[domain.UserID]
}

func New(cfg Config) *Session {
	ctx, cancel := context.WithCancel(cfg.Ctx)
	logger := cfg.Logger.Named("session")

	listCfg := chatlist.Config{
		Ctx:       ctx,
		Loop:      cfg.Loop,
		Backend:   cfg.Backend,
		BatchSize: cfg.BatchSize,
		Logger:    cfg.Logger.Named("chatlist"),
	}
	main := chatlist.New(chatlist.Identity{Account: cfg.Account, Kind: domain.MainList()}, listCfg)

	s := &Session{
		account:   cfg.Account,
		meID:      cfg.Me.ID,
		ctx:       ctx,
		cancel:    cancel,
		loop:      cfg.Loop,
		backend:   cfg.Backend,
		logger:    logger,
		loc:       cfg.Location,
		chats:     make(map[domain.ChatID]*domain.Chat),
		users:     make(map[domain.UserID]*domain.User),
		main:      main,
		archive:   chatlist.New(chatlist.Identity{Account: cfg.Account, Kind: domain.ArchiveList()}, listCfg),
		folders:   chatlist.NewFolderList(main, listCfg),
		histories: make(map[domain.ChatID]*history.Model),
	}
	me := cfg.Me
	s.users[me.ID] = &me
	return s
}

func (s *Session) Account() account.Slot { return s.account }
func (s *Session) Me() domain.User       { return *s.users[s.meID] }

// Folders is the folder projection including the main list.
func (s *Session) Folders() *chatlist.FolderList { return s.folders }

// ChatList returns the list of kind. The same kind always yields the same
// list; a folder not yet announced by the server is created on first use.
func (s *Session) ChatList(kind domain.ListKind) *chatlist.List {
	switch kind.Type {
	case domain.ListMain:
		return s.main
	case domain.ListArchive:
		return s.archive
	default:
		return s.folders.GetOrCreate(kind.FolderID)
	}
}

// History returns the history cache of chatID, creating it on first use.
func (s *Session) History(chatID domain.ChatID) *history.Model {
	if h, ok := s.histories[chatID]; ok {
		return h
	}
	h := history.New(chatID, history.Config{
		Ctx:      s.ctx,
		Loop:     s.loop,
		Backend:  s.backend,
		Logger:   s.logger.Named("history"),
		Location: s.loc,
	})
	if s.closed {
		h.Close()
	}
	s.histories[chatID] = h
	return h
}

// Chat returns a copy of the registered chat.
func (s *Session) Chat(id domain.ChatID) (domain.Chat, bool) {
	c, ok := s.chats[id]
	if !ok {
		return domain.Chat{}, false
	}
	out := *c
	out.Positions = append([]domain.ChatPosition(nil), c.Positions...)
	return out, true
}

func (s *Session) User(id domain.UserID) (domain.User, bool) {
	u, ok := s.users[id]
	if !ok {
		return domain.User{}, false
	}
	return *u, true
}

// SubscribeChats registers fn for changes of any registered chat.
func (s *Session) SubscribeChats(fn func(domain.ChatID)) (cancel func()) {
	return s.chatChanged.Subscribe(fn)
}

// SubscribeUsers registers fn for changes of any registered user.
func (s *Session) SubscribeUsers(fn func(domain.UserID)) (cancel func()) {
	return s.userChanged.Subscribe(fn)
}

// Close cancels the requests the session started and detaches its lists
// and histories. Results that still arrive are dropped.
func (s *Session) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.cancel()
	s.folders.Close()
	s.archive.Close()
	for _, h := range s.histories {
		h.Close()
	}
}

// Handle applies one push update.
func (s *Session) Handle(u backend.Update) {
	switch u := u.(type) {
	case backend.UpdateNewChat:
		chat := u.Chat
		positions := chat.Positions
		chat.Positions = nil
		s.chats[chat.ID] = &chat
		for _, p := range positions {
			s.setPosition(&chat, p)
		}
		s.chatChanged.Emit(chat.ID)

	case backend.UpdateChatTitle:
		s.withChat(u.ChatID, func(c *domain.Chat) { c.Title = u.Title })

	case backend.UpdateChatPosition:
		s.withChat(u.ChatID, func(c *domain.Chat) { s.setPosition(c, u.Position) })

	case backend.UpdateChatLastMessage:
		s.withChat(u.ChatID, func(c *domain.Chat) {
			c.LastMessage = u.LastMessage
			for _, p := range u.Positions {
				s.setPosition(c, p)
			}
		})

	case backend.UpdateChatReadInbox:
		s.withChat(u.ChatID, func(c *domain.Chat) {
			c.LastReadInboxID = u.LastReadInboxID
			c.UnreadCount = u.UnreadCount
		})

	case backend.UpdateChatReadOutbox:
		s.withChat(u.ChatID, func(c *domain.Chat) { c.LastReadOutboxID = u.LastReadOutboxID })

	case backend.UpdateChatDraftMessage:
		s.withChat(u.ChatID, func(c *domain.Chat) {
			c.Draft = u.Draft
			for _, p := range u.Positions {
				s.setPosition(c, p)
			}
		})

	case backend.UpdateChatFolders:
		s.folders.HandleUpdate(u.Folders, u.MainChatListPosition)

	case backend.UpdateUnreadChatCount:
		s.ChatList(u.List).SetUnreadCount(u.UnreadCount, u.UnreadUnmutedCount)

	case backend.UpdateNewMessage:
		if h, ok := s.histories[u.Message.ChatID]; ok {
			h.PushFront(u.Message)
		}

	case backend.UpdateMessageContent:
		edit := func(m *domain.Message) {
			m.Text = u.Text
			m.HasMarkdown = u.HasMarkdown
			m.EditDate = u.EditDate
		}
		if h, ok := s.histories[u.ChatID]; ok {
			h.Update(u.MessageID, edit)
		}
		if c, ok := s.chats[u.ChatID]; ok && c.LastMessage != nil && c.LastMessage.ID == u.MessageID {
			last := *c.LastMessage
			edit(&last)
			c.LastMessage = &last
			s.chatChanged.Emit(c.ID)
		}

	case backend.UpdateDeleteMessages:
		if u.FromCache {
			return
		}
		if h, ok := s.histories[u.ChatID]; ok {
			for _, id := range u.MessageIDs {
				h.Remove(id)
			}
		}

	case backend.UpdateMessageInteractionInfo:
		if h, ok := s.histories[u.ChatID]; ok {
			h.Update(u.MessageID, func(m *domain.Message) { m.Interaction = u.Info })
		}

	case backend.UpdateMessageSendSucceeded:
		if h, ok := s.histories[u.Message.ChatID]; ok {
			h.ReplaceID(u.OldMessageID, u.Message)
		}

	case backend.UpdateUser:
		user := u.User
		s.users[user.ID] = &user
		s.userChanged.Emit(user.ID)

	case backend.UpdateUserStatus:
		usr, ok := s.users[u.UserID]
		if !ok {
			s.logger.Debug("Status for unknown user", zap.Int64("user_id", int64(u.UserID)))
			return
		}
		usr.Status = u.Status
		s.userChanged.Emit(u.UserID)

	case backend.UpdateAuthorizationState:
		s.logger.Warn("Authorization update routed to session")

	default:
		s.logger.Debug("Unhandled update", zap.String("type", fmt.Sprintf("%T", u)))
	}
}

func (s *Session) withChat(id domain.ChatID, fn func(*domain.Chat)) {
	c, ok := s.chats[id]
	if !ok {
		s.logger.Debug("Update for unknown chat", zap.Int64("chat_id", int64(id)))
		return
	}
	fn(c)
	s.chatChanged.Emit(id)
}

func (s *Session) setPosition(c *domain.Chat, p domain.ChatPosition) {
	c.SetPosition(p)
	s.ChatList(p.List).UpdateChatPosition(c.ID, p)
}
