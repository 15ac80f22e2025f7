package telegram

import (
	"math"
	"testing"

	"github.com/gotd/td/tg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danhigham/telesync/internal/domain"
)

func TestChatIDs(t *testing.T) {
	for _, tt := range []struct {
		name  string
		peer  tg.PeerClass
		input tg.InputPeerClass
		want  domain.ChatID
	}{
		{"User", &tg.PeerUser{UserID: 42}, &tg.InputPeerUser{UserID: 42}, 42},
		{"Group", &tg.PeerChat{ChatID: 42}, &tg.InputPeerChat{ChatID: 42}, -42},
		{"Channel", &tg.PeerChannel{ChannelID: 42}, &tg.InputPeerChannel{ChannelID: 42}, -1_000_000_000_042},
	} {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := chatIDFromPeer(tt.peer)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)

			got, ok = chatIDFromInputPeer(tt.input, 7)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	id, ok := chatIDFromInputPeer(&tg.InputPeerSelf{}, 7)
	require.True(t, ok)
	assert.Equal(t, domain.ChatID(7), id)

	_, ok = chatIDFromInputPeer(&tg.InputPeerSelf{}, 0)
	assert.False(t, ok)
	_, ok = chatIDFromPeer(nil)
	assert.False(t, ok)
}

func TestChannelID(t *testing.T) {
	ch, ok := channelID(channelChatID(1234))
	require.True(t, ok)
	assert.Equal(t, int64(1234), ch)

	for _, id := range []domain.ChatID{42, -42, -channelIDOffset} {
		_, ok := channelID(id)
		assert.False(t, ok, "chat %d", id)
	}
}

func TestOrders(t *testing.T) {
	assert.Greater(t, dateOrder(1001, 1), dateOrder(1000, 99), "later message wins")
	assert.Greater(t, dateOrder(1000, 2), dateOrder(1000, 1), "same second breaks on id")
	assert.Equal(t, int64(math.MaxInt64), pinnedOrder(0))
	assert.Greater(t, pinnedOrder(0), pinnedOrder(1))
	assert.Greater(t, pinnedOrder(100), dateOrder(math.MaxInt32, math.MaxInt32))
}

func TestRegistry(t *testing.T) {
	r := newRegistry()
	r.addEntities(
		map[int64]*tg.User{1: {ID: 1, AccessHash: 11}},
		map[int64]*tg.Chat{2: {ID: 2}},
		map[int64]*tg.Channel{3: {ID: 3, AccessHash: 33}},
	)

	p, ok := r.inputPeer(1)
	require.True(t, ok)
	assert.Equal(t, &tg.InputPeerUser{UserID: 1, AccessHash: 11}, p)
	p, ok = r.inputPeer(-2)
	require.True(t, ok)
	assert.Equal(t, &tg.InputPeerChat{ChatID: 2}, p)
	p, ok = r.inputPeer(channelChatID(3))
	require.True(t, ok)
	assert.Equal(t, &tg.InputPeerChannel{ChannelID: 3, AccessHash: 33}, p)
	_, ok = r.inputPeer(99)
	assert.False(t, ok)

	_, known := r.meta(1)
	assert.False(t, known, "entities alone do not place a chat")

	meta, known := r.update(1, func(m *chatMeta) { m.order = 10 })
	assert.False(t, known)
	assert.Equal(t, domain.ChatPosition{List: domain.MainList(), Order: 10}, meta.position())

	meta, known = r.update(1, func(m *chatMeta) {
		m.pinned = true
		m.pinOrder = pinnedOrder(0)
	})
	assert.True(t, known)
	assert.Equal(t, domain.ChatPosition{List: domain.MainList(), Order: math.MaxInt64, IsPinned: true}, meta.position())
	assert.Equal(t, 1, r.pinnedCount(domain.MainList()))
	assert.Equal(t, 0, r.pinnedCount(domain.ArchiveList()))
}

func TestRegistryMessageChats(t *testing.T) {
	r := newRegistry()
	r.noteMessage(1, 100)
	r.noteMessage(1, 101)
	r.noteMessage(-2, 102)
	r.noteMessage(channelChatID(3), 103)

	got := r.messageChats([]int{100, 102, 103, 104})
	assert.Equal(t, map[domain.ChatID][]domain.MessageID{
		1:  {100},
		-2: {102},
	}, got)

	assert.Empty(t, r.messageChats([]int{100}), "ids are forgotten once deleted")
	assert.Equal(t, map[domain.ChatID][]domain.MessageID{1: {101}}, r.messageChats([]int{101}))
}
