package history_test

import (
	"context"
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/danhigham/telesync/internal/backend"
	"github.com/danhigham/telesync/internal/backend/backendtest"
	"github.com/danhigham/telesync/internal/domain"
	"github.com/danhigham/telesync/internal/history"
	"github.com/danhigham/telesync/internal/loop"
	"github.com/danhigham/telesync/internal/notify"
)

const chat domain.ChatID = 42

func newModel(t *testing.T) (*history.Model, *loop.Loop, *backendtest.Fake) {
	t.Helper()
	l := loop.New()
	fake := backendtest.New()
	m := history.New(chat, history.Config{
		Ctx:      context.Background(),
		Loop:     l,
		Backend:  fake,
		Logger:   zap.NewNop(),
		Location: time.UTC,
	})
	return m, l, fake
}

func msg(id int64, date time.Time) domain.Message {
	return domain.Message{ID: domain.MessageID(id), ChatID: chat, Date: date}
}

func ids(m *history.Model) []domain.MessageID {
	var out []domain.MessageID
	for _, msg := range m.Messages() {
		out = append(out, msg.ID)
	}
	return out
}

var (
	jan1 = time.Date(2024, time.January, 1, 10, 0, 0, 0, time.UTC)
	jan2 = time.Date(2024, time.January, 2, 9, 0, 0, 0, time.UTC)
)

func TestModel_SecondLoadWhileLoadingIsRejected(t *testing.T) {
	m, l, fake := newModel(t)
	release := make(chan struct{})
	fake.GetChatHistoryFunc = func(ctx context.Context, _ domain.ChatID, _ domain.MessageID, _ int) ([]domain.Message, error) {
		<-release
		return []domain.Message{msg(10, jan1)}, nil
	}

	var hasMore bool
	var doneErr error
	var calls int
	require.NoError(t, m.LoadOlderMessages(50, func(more bool, err error) {
		calls++
		hasMore, doneErr = more, err
	}))
	assert.True(t, m.Loading())
	assert.ErrorIs(t, m.LoadOlderMessages(50, nil), history.ErrAlreadyLoading)

	close(release)
	l.Settle()

	assert.Equal(t, 1, fake.CallCount("GetChatHistory"))
	assert.Equal(t, 1, calls)
	assert.True(t, hasMore)
	assert.NoError(t, doneErr)
	assert.False(t, m.Loading())
	assert.Equal(t, []domain.MessageID{10}, ids(m))
}

func TestModel_LoadContinuesFromOldest(t *testing.T) {
	m, l, fake := newModel(t)
	fake.GetChatHistoryFunc = func(_ context.Context, _ domain.ChatID, from domain.MessageID, limit int) ([]domain.Message, error) {
		if from == 0 {
			return []domain.Message{msg(30, jan2), msg(20, jan2)}, nil
		}
		return []domain.Message{msg(10, jan1)}, nil
	}

	require.NoError(t, m.LoadOlderMessages(2, nil))
	l.Settle()
	require.NoError(t, m.LoadOlderMessages(2, nil))
	l.Settle()

	calls := fake.Calls("GetChatHistory")
	require.Len(t, calls, 2)
	assert.Equal(t, []any{chat, domain.MessageID(0), 2}, calls[0].Args)
	assert.Equal(t, []any{chat, domain.MessageID(20), 2}, calls[1].Args)
	assert.Equal(t, []domain.MessageID{30, 20, 10}, ids(m))
}

func TestModel_EmptyPageMeansNoMore(t *testing.T) {
	m, l, _ := newModel(t)

	hasMore := true
	require.NoError(t, m.LoadOlderMessages(50, func(more bool, err error) {
		require.NoError(t, err)
		hasMore = more
	}))
	l.Settle()

	assert.False(t, hasMore)
	assert.True(t, m.Exhausted())
	assert.Equal(t, 0, m.Len())
}

func TestModel_DuplicatePageMeansNoMore(t *testing.T) {
	m, l, fake := newModel(t)
	fake.GetChatHistoryFunc = func(context.Context, domain.ChatID, domain.MessageID, int) ([]domain.Message, error) {
		return []domain.Message{msg(20, jan1), msg(10, jan1)}, nil
	}

	require.NoError(t, m.LoadOlderMessages(2, nil))
	l.Settle()
	require.False(t, m.Exhausted())

	hasMore := true
	require.NoError(t, m.LoadOlderMessages(2, func(more bool, err error) {
		require.NoError(t, err)
		hasMore = more
	}))
	l.Settle()

	assert.False(t, hasMore)
	assert.True(t, m.Exhausted())
	assert.Equal(t, []domain.MessageID{20, 10}, ids(m))
}

func TestModel_CloseDropsPendingPage(t *testing.T) {
	m, l, fake := newModel(t)
	release := make(chan struct{})
	fake.GetChatHistoryFunc = func(context.Context, domain.ChatID, domain.MessageID, int) ([]domain.Message, error) {
		<-release
		return []domain.Message{msg(10, jan1)}, nil
	}

	called := false
	require.NoError(t, m.LoadOlderMessages(50, func(bool, error) { called = true }))
	m.Close()
	close(release)
	l.Settle()

	assert.False(t, called)
	assert.Zero(t, m.Len())
	assert.ErrorIs(t, m.LoadOlderMessages(50, nil), history.ErrClosed)
}

func TestModel_LoadErrorReachesCaller(t *testing.T) {
	m, l, fake := newModel(t)
	fake.Errors["GetChatHistory"] = &backend.Error{Code: 400, Message: "CHANNEL_PRIVATE"}

	var got error
	require.NoError(t, m.LoadOlderMessages(50, func(_ bool, err error) { got = err }))
	l.Settle()

	be, ok := backend.AsError(got)
	require.True(t, ok)
	assert.Equal(t, 400, be.Code)
	assert.False(t, m.Loading())
	assert.NoError(t, m.LoadOlderMessages(50, nil), "guard released after failure")
}

func TestModel_PushFrontRemoveAndReplace(t *testing.T) {
	m, _, _ := newModel(t)
	var changes []notify.Change
	m.Subscribe(func(c notify.Change) { changes = append(changes, c) })

	m.PushFront(msg(1, jan1))
	m.PushFront(msg(2, jan1))
	m.PushFront(msg(2, jan1))
	assert.Equal(t, []domain.MessageID{2, 1}, ids(m))

	edited := msg(1, jan1)
	edited.Text = "edited"
	assert.True(t, m.Replace(edited))
	assert.Equal(t, "edited", m.At(1).Text)

	assert.True(t, m.Remove(2))
	assert.False(t, m.Remove(2))

	assert.Equal(t, []notify.Change{
		{Kind: notify.Inserted, Index: 0},
		{Kind: notify.Inserted, Index: 0},
		{Kind: notify.Updated, Index: 1},
		{Kind: notify.Removed, Index: 0},
	}, changes)
}

func TestModel_ReplaceIDKeepsOrder(t *testing.T) {
	m, _, _ := newModel(t)
	m.PushFront(msg(5, jan1))
	m.PushFront(msg(1<<40, jan1))

	m.ReplaceID(1<<40, msg(6, jan1))

	assert.Equal(t, []domain.MessageID{6, 5}, ids(m))
}

func TestModel_SectionsByDay(t *testing.T) {
	m, _, _ := newModel(t)
	m.PushFront(msg(1, jan2))
	m.PushFront(msg(2, jan2))
	m.PushFront(msg(3, jan2))
	m.PushFront(msg(4, jan1))
	m.PushFront(msg(5, jan1))

	start, end := m.Section(0)
	assert.Equal(t, [2]int{0, 2}, [2]int{start, end})
	start, end = m.Section(2)
	assert.Equal(t, [2]int{2, 5}, [2]int{start, end})
	start, end = m.Section(4)
	assert.Equal(t, [2]int{2, 5}, [2]int{start, end})
}

func TestModel_RandomMergesStaySortedAndUnique(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	m, l, fake := newModel(t)
	fake.GetChatHistoryFunc = func(context.Context, domain.ChatID, domain.MessageID, int) ([]domain.Message, error) {
		n := rng.Intn(10)
		page := make([]domain.Message, n)
		for i := range page {
			page[i] = msg(int64(rng.Intn(200)+1), jan1.Add(time.Duration(rng.Intn(96))*time.Hour))
		}
		return page, nil
	}

	for step := 0; step < 200; step++ {
		switch rng.Intn(4) {
		case 0:
			m.PushFront(msg(int64(rng.Intn(200)+1), jan1))
		case 1:
			if n := m.Len(); n > 0 && rng.Intn(2) == 0 {
				require.True(t, m.Remove(m.At(rng.Intn(n)).ID))
			} else {
				m.Remove(domain.MessageID(rng.Intn(200) + 1))
			}
		default:
			require.NoError(t, m.LoadOlderMessages(10, nil))
			l.Settle()
		}

		got := ids(m)
		require.True(t, sort.SliceIsSorted(got, func(i, j int) bool { return got[i] > got[j] }))
		seen := map[domain.MessageID]bool{}
		for _, id := range got {
			require.False(t, seen[id], "message %d cached twice", id)
			seen[id] = true
		}
	}
}

func TestModel_SectionsPartitionHistory(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	m, _, _ := newModel(t)
	date := jan1
	for id := int64(1); id <= 60; id++ {
		date = date.Add(time.Duration(rng.Intn(20)) * time.Hour)
		m.PushFront(msg(id, date))
	}

	for pos := 0; pos < m.Len(); {
		start, end := m.Section(pos)
		require.Equal(t, pos, start, "sections must tile the history")
		require.Greater(t, end, start)
		y, mo, d := m.At(start).Date.Date()
		for i := start; i < end; i++ {
			y2, mo2, d2 := m.At(i).Date.Date()
			require.Equal(t, [3]int{y, int(mo), d}, [3]int{y2, int(mo2), d2})
		}
		if end < m.Len() {
			y2, mo2, d2 := m.At(end).Date.Date()
			require.NotEqual(t, [3]int{y, int(mo), d}, [3]int{y2, int(mo2), d2})
		}
		pos = end
	}
}
