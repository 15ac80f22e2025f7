// Package chatlist mirrors the server-ordered chat collections of an account:
// the main list, the archive and every chat folder.
package chatlist

import (
	"context"
	"sort"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/danhigham/telesync/internal/account"
	"github.com/danhigham/telesync/internal/backend"
	"github.com/danhigham/telesync/internal/domain"
	"github.com/danhigham/telesync/internal/loop"
	"github.com/danhigham/telesync/internal/notify"
)

var ErrOnlyFoldersCanBeDeleted = errors.New("only folders can be deleted")

// Identity names a chat list of one account.
type Identity struct {
	Account account.Slot
	Kind    domain.ListKind
}

// Item is a chat's entry in a list. The same *Item is kept for a chat while
// it stays in the list; reorders mutate it.
type Item struct {
	ChatID   domain.ChatID
	Order    int64
	IsPinned bool
}

// List is the ordered mirror of one server chat list. Iteration order is
// descending server order; equal orders fall back to ascending chat id.
// All methods must be called on the owning loop.
type List struct {
	id      Identity
	ctx     context.Context
	loop    *loop.Loop
	backend backend.Backend
	batch   int
	logger  *zap.Logger

	items  []*Item
	byChat map[domain.ChatID]*Item

	title              string
	icon               string
	unreadCount        int
	unreadUnmutedCount int

	fetching  bool
	exhausted bool
	detached  bool

	changes notify.Observers[notify.Change]
	meta    notify.Observers[struct{}]
}

// Config carries what every list of a session shares.
type Config struct {
	Ctx       context.Context
	Loop      *loop.Loop
	Backend   backend.Backend
	BatchSize int
	Logger    *zap.Logger
}

func New(id Identity, cfg Config) *List {
	return &List{
		id:      id,
		ctx:     cfg.Ctx,
		loop:    cfg.Loop,
		backend: cfg.Backend,
		batch:   cfg.BatchSize,
		logger:  cfg.Logger.With(zap.Stringer("list", id.Kind)),
		byChat:  make(map[domain.ChatID]*Item),
	}
}

func (l *List) Identity() Identity    { return l.id }
func (l *List) Kind() domain.ListKind { return l.id.Kind }
func (l *List) FolderID() int         { return l.id.Kind.FolderID }
func (l *List) Len() int              { return len(l.items) }

// At returns the item at iteration index i.
func (l *List) At(i int) Item {
	return *l.items[i]
}

// Items returns a copy of the list in iteration order.
func (l *List) Items() []Item {
	out := make([]Item, len(l.items))
	for i, it := range l.items {
		out[i] = *it
	}
	return out
}

// IndexOf returns the iteration index of chatID.
func (l *List) IndexOf(chatID domain.ChatID) (int, bool) {
	it, ok := l.byChat[chatID]
	if !ok {
		return 0, false
	}
	return l.indexOf(it), true
}

func (l *List) Contains(chatID domain.ChatID) bool {
	_, ok := l.byChat[chatID]
	return ok
}

// Subscribe registers fn for row insertions and removals.
func (l *List) Subscribe(fn func(notify.Change)) (cancel func()) {
	return l.changes.Subscribe(fn)
}

// SubscribeMetadata registers fn for title, icon and unread counter changes.
func (l *List) SubscribeMetadata(fn func()) (cancel func()) {
	return l.meta.Subscribe(func(struct{}) { fn() })
}

// UpdateChatPosition moves chatID to position. A zero order removes it.
func (l *List) UpdateChatPosition(chatID domain.ChatID, position domain.ChatPosition) {
	it, present := l.byChat[chatID]
	if present {
		if it.Order == position.Order && it.IsPinned == position.IsPinned {
			return
		}
		idx := l.indexOf(it)
		l.items = append(l.items[:idx], l.items[idx+1:]...)
		l.changes.Emit(notify.Change{Kind: notify.Removed, Index: idx})
	}

	if position.Order == 0 {
		delete(l.byChat, chatID)
		return
	}

	if !present {
		it = &Item{ChatID: chatID}
		l.byChat[chatID] = it
	}
	it.Order = position.Order
	it.IsPinned = position.IsPinned

	idx := l.insertIndex(it)
	l.items = append(l.items, nil)
	copy(l.items[idx+1:], l.items[idx:])
	l.items[idx] = it
	l.changes.Emit(notify.Change{Kind: notify.Inserted, Index: idx})
}

// Fetch asks the backend for more chats until it reports the list exhausted.
// Loaded chats arrive as position updates, not through Fetch itself. Only
// one fetch chain runs at a time.
func (l *List) Fetch() {
	if l.fetching || l.exhausted || l.detached {
		return
	}
	l.fetching = true

	kind := l.id.Kind
	loop.Go(l.loop, l.ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, l.backend.LoadChats(ctx, kind, l.batch)
	}, func(_ struct{}, err error) {
		l.fetching = false
		if l.detached {
			return
		}
		switch {
		case err == nil:
			l.Fetch()
		case backend.IsNotFound(err):
			l.exhausted = true
			l.logger.Debug("Chat list fully loaded", zap.Int("chats", len(l.items)))
		default:
			l.logger.Warn("Failed to load chats", zap.Error(err))
		}
	})
}

func (l *List) Fetching() bool  { return l.fetching }
func (l *List) Exhausted() bool { return l.exhausted }

// Delete removes the folder on the server. The folder disappears from the
// folder list once the backend sends the new folder configuration. done, if
// not nil, receives the backend result on the loop.
func (l *List) Delete(done func(error)) error {
	if !l.id.Kind.IsFolder() {
		return ErrOnlyFoldersCanBeDeleted
	}
	folderID := l.id.Kind.FolderID
	loop.Go(l.loop, l.ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, l.backend.DeleteChatFolder(ctx, folderID)
	}, func(_ struct{}, err error) {
		if l.detached {
			return
		}
		if err != nil {
			l.logger.Warn("Failed to delete folder", zap.Error(err))
		}
		if done != nil {
			done(err)
		}
	})
	return nil
}

func (l *List) Title() string           { return l.title }
func (l *List) Icon() string            { return l.icon }
func (l *List) UnreadCount() int        { return l.unreadCount }
func (l *List) UnreadUnmutedCount() int { return l.unreadUnmutedCount }

// SetMetadata updates the folder title and icon. It reports whether
// anything changed.
func (l *List) SetMetadata(title, icon string) bool {
	if l.title == title && l.icon == icon {
		return false
	}
	l.title = title
	l.icon = icon
	l.meta.Emit(struct{}{})
	return true
}

func (l *List) SetUnreadCount(total, unmuted int) {
	if l.unreadCount == total && l.unreadUnmutedCount == unmuted {
		return
	}
	l.unreadCount = total
	l.unreadUnmutedCount = unmuted
	l.meta.Emit(struct{}{})
}

// Close detaches the list. Results of requests still in flight are
// discarded.
func (l *List) Close() {
	l.detached = true
}

func (l *List) Detached() bool { return l.detached }

func less(a, b *Item) bool {
	if a.Order != b.Order {
		return -a.Order < -b.Order
	}
	return a.ChatID < b.ChatID
}

func (l *List) insertIndex(it *Item) int {
	return sort.Search(len(l.items), func(i int) bool {
		return less(it, l.items[i])
	})
}

func (l *List) indexOf(it *Item) int {
	idx := sort.Search(len(l.items), func(i int) bool {
		return !less(l.items[i], it)
	})
	if idx >= len(l.items) || l.items[idx] != it {
		panic("chatlist: tracked chat missing from ordered items")
	}
	return idx
}
