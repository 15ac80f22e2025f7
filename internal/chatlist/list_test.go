package chatlist_test

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/danhigham/telesync/internal/account"
	"github.com/danhigham/telesync/internal/backend"
	"github.com/danhigham/telesync/internal/backend/backendtest"
	"github.com/danhigham/telesync/internal/chatlist"
	"github.com/danhigham/telesync/internal/domain"
	"github.com/danhigham/telesync/internal/loop"
	"github.com/danhigham/telesync/internal/notify"
)

var testSlot = account.Slot{Dir: "account-test"}

func newConfig(t *testing.T) (chatlist.Config, *loop.Loop, *backendtest.Fake) {
	t.Helper()
	l := loop.New()
	fake := backendtest.New()
	return chatlist.Config{
		Ctx:       context.Background(),
		Loop:      l,
		Backend:   fake,
		BatchSize: 20,
		Logger:    zap.NewNop(),
	}, l, fake
}

func newList(t *testing.T, kind domain.ListKind) (*chatlist.List, *loop.Loop, *backendtest.Fake) {
	t.Helper()
	cfg, l, fake := newConfig(t)
	return chatlist.New(chatlist.Identity{Account: testSlot, Kind: kind}, cfg), l, fake
}

func pos(order int64) domain.ChatPosition {
	return domain.ChatPosition{List: domain.MainList(), Order: order}
}

func chatIDs(l *chatlist.List) []domain.ChatID {
	var out []domain.ChatID
	for _, it := range l.Items() {
		out = append(out, it.ChatID)
	}
	return out
}

func record(l *chatlist.List) *[]notify.Change {
	var changes []notify.Change
	l.Subscribe(func(c notify.Change) { changes = append(changes, c) })
	return &changes
}

const (
	chatA domain.ChatID = 1
	chatB domain.ChatID = 2
	chatC domain.ChatID = 3
)

func TestList_InsertOrdersByDescendingOrder(t *testing.T) {
	list, _, _ := newList(t, domain.MainList())
	changes := record(list)

	list.UpdateChatPosition(chatA, pos(10))
	list.UpdateChatPosition(chatB, pos(20))
	list.UpdateChatPosition(chatC, pos(5))

	assert.Equal(t, []domain.ChatID{chatB, chatA, chatC}, chatIDs(list))
	assert.Equal(t, []notify.Change{
		{Kind: notify.Inserted, Index: 0},
		{Kind: notify.Inserted, Index: 0},
		{Kind: notify.Inserted, Index: 2},
	}, *changes)
}

func TestList_ZeroOrderRemoves(t *testing.T) {
	list, _, _ := newList(t, domain.MainList())
	list.UpdateChatPosition(chatA, pos(10))
	list.UpdateChatPosition(chatB, pos(20))
	list.UpdateChatPosition(chatC, pos(5))
	changes := record(list)

	list.UpdateChatPosition(chatA, pos(0))

	assert.Equal(t, []domain.ChatID{chatB, chatC}, chatIDs(list))
	assert.Equal(t, []notify.Change{{Kind: notify.Removed, Index: 1}}, *changes)
	assert.False(t, list.Contains(chatA))
}

func TestList_ReorderKeepsItemAndEmitsRemoveInsert(t *testing.T) {
	list, _, _ := newList(t, domain.MainList())
	list.UpdateChatPosition(chatA, pos(10))
	list.UpdateChatPosition(chatB, pos(20))
	changes := record(list)

	list.UpdateChatPosition(chatA, domain.ChatPosition{List: domain.MainList(), Order: 30, IsPinned: true})

	assert.Equal(t, []domain.ChatID{chatA, chatB}, chatIDs(list))
	assert.Equal(t, []notify.Change{
		{Kind: notify.Removed, Index: 1},
		{Kind: notify.Inserted, Index: 0},
	}, *changes)
	assert.True(t, list.At(0).IsPinned)
	assert.Equal(t, 2, list.Len())
}

func TestList_UnchangedPositionIsNoop(t *testing.T) {
	list, _, _ := newList(t, domain.MainList())
	list.UpdateChatPosition(chatA, pos(10))
	changes := record(list)

	list.UpdateChatPosition(chatA, pos(10))

	assert.Empty(t, *changes)
}

func TestList_RemovingUnknownChatIsNoop(t *testing.T) {
	list, _, _ := newList(t, domain.MainList())
	changes := record(list)

	list.UpdateChatPosition(chatA, pos(0))

	assert.Empty(t, *changes)
	assert.Equal(t, 0, list.Len())
}

func TestList_EqualOrdersTieBreakByChatID(t *testing.T) {
	list, _, _ := newList(t, domain.MainList())

	list.UpdateChatPosition(9, pos(7))
	list.UpdateChatPosition(4, pos(7))
	list.UpdateChatPosition(6, pos(7))

	assert.Equal(t, []domain.ChatID{4, 6, 9}, chatIDs(list))
}

func TestList_RandomSequencesStayOrderedAndUnique(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	list, _, _ := newList(t, domain.MainList())

	mirror := map[domain.ChatID]int64{}
	for step := 0; step < 2000; step++ {
		chat := domain.ChatID(rng.Intn(40) + 1)
		order := int64(rng.Intn(15))
		list.UpdateChatPosition(chat, pos(order))
		if order == 0 {
			delete(mirror, chat)
		} else {
			mirror[chat] = order
		}

		items := list.Items()
		require.Len(t, items, len(mirror))
		seen := map[domain.ChatID]bool{}
		for _, it := range items {
			require.False(t, seen[it.ChatID], "chat %d listed twice", it.ChatID)
			seen[it.ChatID] = true
			require.Equal(t, mirror[it.ChatID], it.Order)
		}
		require.True(t, sort.SliceIsSorted(items, func(i, j int) bool {
			if items[i].Order != items[j].Order {
				return items[i].Order > items[j].Order
			}
			return items[i].ChatID < items[j].ChatID
		}))
	}
}

func TestList_FetchRecursesUntilNotFound(t *testing.T) {
	list, l, fake := newList(t, domain.ArchiveList())
	batches := 0
	fake.LoadChatsFunc = func(_ context.Context, kind domain.ListKind, limit int) error {
		assert.Equal(t, domain.ArchiveList(), kind)
		assert.Equal(t, 20, limit)
		batches++
		if batches < 3 {
			return nil
		}
		return &backend.Error{Code: backend.CodeNotFound, Message: "Not Found"}
	}

	l.Post(list.Fetch)
	l.Settle()

	assert.Equal(t, 3, fake.CallCount("LoadChats"))
	assert.True(t, list.Exhausted())
	assert.False(t, list.Fetching())

	l.Post(list.Fetch)
	l.Settle()
	assert.Equal(t, 3, fake.CallCount("LoadChats"), "exhausted list must not fetch again")
}

func TestList_FetchStopsOnOtherError(t *testing.T) {
	list, l, fake := newList(t, domain.MainList())
	fake.Errors["LoadChats"] = &backend.Error{Code: 500, Message: "internal"}

	l.Post(list.Fetch)
	l.Settle()

	assert.Equal(t, 1, fake.CallCount("LoadChats"))
	assert.False(t, list.Exhausted())
	assert.False(t, list.Fetching())
}

func TestList_FetchSingleChain(t *testing.T) {
	list, l, fake := newList(t, domain.MainList())

	l.Post(func() {
		list.Fetch()
		list.Fetch()
		assert.True(t, list.Fetching())
	})
	l.Settle()

	assert.Equal(t, 1, fake.CallCount("LoadChats"))
}

func TestList_DeleteOnlyFolders(t *testing.T) {
	main, _, _ := newList(t, domain.MainList())
	assert.ErrorIs(t, main.Delete(nil), chatlist.ErrOnlyFoldersCanBeDeleted)

	archive, _, _ := newList(t, domain.ArchiveList())
	assert.ErrorIs(t, archive.Delete(nil), chatlist.ErrOnlyFoldersCanBeDeleted)

	folder, l, fake := newList(t, domain.FolderList(7))
	var got error = errors.New("not called")
	require.NoError(t, folder.Delete(func(err error) { got = err }))
	l.Settle()

	assert.NoError(t, got)
	calls := fake.Calls("DeleteChatFolder")
	require.Len(t, calls, 1)
	assert.Equal(t, 7, calls[0].Args[0])
}

func TestList_Metadata(t *testing.T) {
	list, _, _ := newList(t, domain.FolderList(1))
	notified := 0
	list.SubscribeMetadata(func() { notified++ })

	assert.True(t, list.SetMetadata("Work", "💼"))
	assert.False(t, list.SetMetadata("Work", "💼"))
	list.SetUnreadCount(3, 1)
	list.SetUnreadCount(3, 1)

	assert.Equal(t, 2, notified)
	assert.Equal(t, "Work", list.Title())
	assert.Equal(t, 3, list.UnreadCount())
	assert.Equal(t, 1, list.UnreadUnmutedCount())
}
