package telegram

import (
	"math"
	"sync"

	"github.com/gotd/td/tg"

	"github.com/danhigham/telesync/internal/domain"
)

// Chat ids follow the bot API convention: users keep their id, basic groups
// are negated and channels are negated after adding channelIDOffset.
const channelIDOffset = 1_000_000_000_000

func chatIDFromPeer(p tg.PeerClass) (domain.ChatID, bool) {
	switch p := p.(type) {
	case *tg.PeerUser:
		return domain.ChatID(p.UserID), true
	case *tg.PeerChat:
		return domain.ChatID(-p.ChatID), true
	case *tg.PeerChannel:
		return channelChatID(p.ChannelID), true
	default:
		return 0, false
	}
}

func chatIDFromInputPeer(p tg.InputPeerClass, selfID int64) (domain.ChatID, bool) {
	switch p := p.(type) {
	case *tg.InputPeerSelf:
		if selfID == 0 {
			return 0, false
		}
		return domain.ChatID(selfID), true
	case *tg.InputPeerUser:
		return domain.ChatID(p.UserID), true
	case *tg.InputPeerChat:
		return domain.ChatID(-p.ChatID), true
	case *tg.InputPeerChannel:
		return channelChatID(p.ChannelID), true
	default:
		return 0, false
	}
}

func channelChatID(channelID int64) domain.ChatID {
	return domain.ChatID(-(channelIDOffset + channelID))
}

// channelID reports the channel behind a chat id.
func channelID(id domain.ChatID) (int64, bool) {
	if id >= -channelIDOffset {
		return 0, false
	}
	return int64(-id) - channelIDOffset, true
}

// dateOrder ranks chats by their last message; later messages sort first.
func dateOrder(date, messageID int) int64 {
	return int64(date)<<32 | int64(uint32(messageID))
}

// pinnedOrder ranks the i-th pinned chat above every unpinned one.
func pinnedOrder(i int) int64 {
	return math.MaxInt64 - int64(i)
}

// chatMeta is what the adapter remembers about a chat between requests.
type chatMeta struct {
	peer      tg.InputPeerClass
	list      domain.ListKind
	order     int64
	pinned    bool
	pinOrder  int64
	readInbox domain.MessageID
	unread    int
}

func (m chatMeta) position() domain.ChatPosition {
	order := m.order
	if m.pinned {
		order = m.pinOrder
	}
	return domain.ChatPosition{List: m.list, Order: order, IsPinned: m.pinned}
}

// registry caches input peers and list placement of every chat the account
// has seen, plus the chat of each non-channel message: those message ids are
// unique per account and deletions arrive without a chat.
type registry struct {
	mu       sync.Mutex
	chats    map[domain.ChatID]*chatMeta
	users    map[int64]*tg.User
	messages map[int]domain.ChatID
}

func newRegistry() *registry {
	return &registry{
		chats:    make(map[domain.ChatID]*chatMeta),
		users:    make(map[int64]*tg.User),
		messages: make(map[int]domain.ChatID),
	}
}

// addEntities records access hashes so the chats can be addressed later.
func (r *registry) addEntities(users map[int64]*tg.User, chats map[int64]*tg.Chat, channels map[int64]*tg.Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, u := range users {
		r.users[id] = u
		r.peerLocked(domain.ChatID(id)).peer = &tg.InputPeerUser{UserID: id, AccessHash: u.AccessHash}
	}
	for id := range chats {
		r.peerLocked(domain.ChatID(-id)).peer = &tg.InputPeerChat{ChatID: id}
	}
	for id, ch := range channels {
		r.peerLocked(channelChatID(id)).peer = &tg.InputPeerChannel{ChannelID: id, AccessHash: ch.AccessHash}
	}
}

func (r *registry) peerLocked(id domain.ChatID) *chatMeta {
	m, ok := r.chats[id]
	if !ok {
		m = &chatMeta{list: domain.MainList()}
		r.chats[id] = m
	}
	return m
}

func (r *registry) inputPeer(id domain.ChatID) (tg.InputPeerClass, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.chats[id]
	if !ok || m.peer == nil {
		return nil, false
	}
	return m.peer, true
}

func (r *registry) user(id int64) (*tg.User, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	return u, ok
}

// update applies fn to the chat's metadata and returns a copy of the result.
// known is false if the chat had no list placement before.
func (r *registry) update(id domain.ChatID, fn func(*chatMeta)) (meta chatMeta, known bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.chats[id]
	known = ok && m.order != 0
	if !ok {
		m = &chatMeta{list: domain.MainList()}
		r.chats[id] = m
	}
	fn(m)
	return *m, known
}

func (r *registry) meta(id domain.ChatID) (chatMeta, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.chats[id]
	if !ok || m.order == 0 {
		return chatMeta{}, false
	}
	return *m, true
}

// pinnedCount is the number of pinned chats in list.
func (r *registry) pinnedCount(list domain.ListKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.chats {
		if m.pinned && m.list == list {
			n++
		}
	}
	return n
}

func (r *registry) noteMessage(chatID domain.ChatID, id int) {
	if _, ok := channelID(chatID); ok {
		return
	}
	r.mu.Lock()
	r.messages[id] = chatID
	r.mu.Unlock()
}

// messageChats groups non-channel message ids by chat and forgets them.
// Unknown ids are dropped.
func (r *registry) messageChats(ids []int) map[domain.ChatID][]domain.MessageID {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[domain.ChatID][]domain.MessageID)
	for _, id := range ids {
		chatID, ok := r.messages[id]
		if !ok {
			continue
		}
		delete(r.messages, id)
		out[chatID] = append(out[chatID], domain.MessageID(id))
	}
	return out
}
