// Package history caches the message history of one chat, newest first, and
// pages older messages in on demand.
package history

import (
	"context"
	"sort"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/danhigham/telesync/internal/backend"
	"github.com/danhigham/telesync/internal/domain"
	"github.com/danhigham/telesync/internal/loop"
	"github.com/danhigham/telesync/internal/notify"
)

var (
	ErrAlreadyLoading = errors.New("history is already loading")
	ErrClosed         = errors.New("history is closed")
)

// Config carries the collaborators of a Model.
type Config struct {
	Ctx      context.Context
	Loop     *loop.Loop
	Backend  backend.Backend
	Logger   *zap.Logger
	Location *time.Location // day boundaries; time.Local if nil
}

// Model is the cached history of one chat. Index 0 is the newest message;
// ids strictly decrease with the index. All methods must be called on the
// owning loop.
type Model struct {
	chatID  domain.ChatID
	ctx     context.Context
	loop    *loop.Loop
	backend backend.Backend
	logger  *zap.Logger
	loc     *time.Location

	messages  []domain.Message
	loading   bool
	exhausted bool
	closed    bool

	changes notify.Observers[notify.Change]
}

func New(chatID domain.ChatID, cfg Config) *Model {
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	return &Model{
		chatID:  chatID,
		ctx:     cfg.Ctx,
		loop:    cfg.Loop,
		backend: cfg.Backend,
		logger:  cfg.Logger.With(zap.Int64("chat_id", int64(chatID))),
		loc:     loc,
	}
}

func (m *Model) ChatID() domain.ChatID { return m.chatID }
func (m *Model) Len() int              { return len(m.messages) }
func (m *Model) At(i int) domain.Message {
	return m.messages[i]
}

// Messages returns a copy of the cache, newest first.
func (m *Model) Messages() []domain.Message {
	out := make([]domain.Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// Loading reports whether a page request is outstanding.
func (m *Model) Loading() bool { return m.loading }

// Exhausted reports whether the last page request added nothing older than
// what was already cached.
func (m *Model) Exhausted() bool { return m.exhausted }

// Subscribe registers fn for row insertions, removals and updates.
func (m *Model) Subscribe(fn func(notify.Change)) (cancel func()) {
	return m.changes.Subscribe(fn)
}

// LoadOlderMessages requests up to limit messages older than the oldest
// cached one, or the newest messages if the cache is empty. It returns
// ErrAlreadyLoading without issuing a request while another page is
// outstanding, or ErrClosed once the model is closed. Otherwise done is
// called on the loop with hasMore false once the history is exhausted, or
// with the backend error.
func (m *Model) LoadOlderMessages(limit int, done func(hasMore bool, err error)) error {
	if m.closed {
		return ErrClosed
	}
	if m.loading {
		return ErrAlreadyLoading
	}
	m.loading = true

	var from domain.MessageID
	if n := len(m.messages); n > 0 {
		from = m.messages[n-1].ID
	}
	chatID := m.chatID
	loop.Go(m.loop, m.ctx, func(ctx context.Context) ([]domain.Message, error) {
		return m.backend.GetChatHistory(ctx, chatID, from, limit)
	}, func(msgs []domain.Message, err error) {
		if m.closed {
			return
		}
		m.loading = false
		if err != nil {
			m.logger.Warn("Failed to load history", zap.Int64("from", int64(from)), zap.Error(err))
			if done != nil {
				done(false, errors.Wrap(err, "get chat history"))
			}
			return
		}
		for _, msg := range msgs {
			m.insert(msg)
		}
		// A page that does not reach past the previous oldest message
		// would be requested again with the same offset.
		progressed := len(m.messages) > 0 && (from == 0 || m.messages[len(m.messages)-1].ID < from)
		m.exhausted = !progressed
		if done != nil {
			done(progressed, nil)
		}
	})
	return nil
}

// Close detaches the model from its session. A page request still in
// flight is dropped without calling its done func.
func (m *Model) Close() {
	m.closed = true
}

// PushFront adds a message that just arrived. Duplicates are ignored.
func (m *Model) PushFront(msg domain.Message) {
	if len(m.messages) == 0 || msg.ID > m.messages[0].ID {
		m.messages = append(m.messages, domain.Message{})
		copy(m.messages[1:], m.messages)
		m.messages[0] = msg
		m.changes.Emit(notify.Change{Kind: notify.Inserted, Index: 0})
		return
	}
	m.insert(msg)
}

// Remove drops the message with id. It reports whether it was cached.
func (m *Model) Remove(id domain.MessageID) bool {
	i, ok := m.find(id)
	if !ok {
		return false
	}
	m.messages = append(m.messages[:i], m.messages[i+1:]...)
	m.changes.Emit(notify.Change{Kind: notify.Removed, Index: i})
	return true
}

// Update applies fn to the cached message id. It reports whether it was
// cached.
func (m *Model) Update(id domain.MessageID, fn func(*domain.Message)) bool {
	i, ok := m.find(id)
	if !ok {
		return false
	}
	fn(&m.messages[i])
	m.changes.Emit(notify.Change{Kind: notify.Updated, Index: i})
	return true
}

// Replace overwrites the cached message with the same id.
func (m *Model) Replace(msg domain.Message) bool {
	return m.Update(msg.ID, func(cur *domain.Message) { *cur = msg })
}

// ReplaceID swaps a temporary message for its server version.
func (m *Model) ReplaceID(oldID domain.MessageID, msg domain.Message) {
	m.Remove(oldID)
	m.insert(msg)
}

// Section returns the run [start, end) of cached messages around pos that
// share pos's calendar day.
func (m *Model) Section(pos int) (start, end int) {
	if pos < 0 || pos >= len(m.messages) {
		return pos, pos
	}
	day := m.day(pos)
	start = pos
	for start > 0 && m.day(start-1) == day {
		start--
	}
	end = pos + 1
	for end < len(m.messages) && m.day(end) == day {
		end++
	}
	return start, end
}

type civilDay struct {
	year  int
	month time.Month
	day   int
}

func (m *Model) day(i int) civilDay {
	y, mo, d := m.messages[i].Date.In(m.loc).Date()
	return civilDay{year: y, month: mo, day: d}
}

// find locates id with a binary search over the descending ids.
func (m *Model) find(id domain.MessageID) (int, bool) {
	i := sort.Search(len(m.messages), func(i int) bool {
		return m.messages[i].ID <= id
	})
	if i < len(m.messages) && m.messages[i].ID == id {
		return i, true
	}
	return i, false
}

func (m *Model) insert(msg domain.Message) {
	i, ok := m.find(msg.ID)
	if ok {
		return
	}
	m.messages = append(m.messages, domain.Message{})
	copy(m.messages[i+1:], m.messages[i:])
	m.messages[i] = msg
	m.changes.Emit(notify.Change{Kind: notify.Inserted, Index: i})
}
