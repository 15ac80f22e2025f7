package telegram

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gotd/td/tg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/danhigham/telesync/internal/account"
	"github.com/danhigham/telesync/internal/backend"
	"github.com/danhigham/telesync/internal/domain"
)

type recorder struct {
	mu      sync.Mutex
	updates []backend.Update
}

func (r *recorder) handle(u backend.Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
}

// take returns and forgets everything recorded so far.
func (r *recorder) take() []backend.Update {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.updates
	r.updates = nil
	return out
}

func newTestBackend(t *testing.T) (*Backend, *recorder) {
	t.Helper()
	rec := &recorder{}
	b := Open(account.Slot{Dir: "account-1"}, rec.handle, zaptest.NewLogger(t))
	t.Cleanup(func() { _ = b.Close(context.Background()) })
	return b, rec
}

func deliver(t *testing.T, b *Backend, users []tg.UserClass, updates ...tg.UpdateClass) {
	t.Helper()
	require.NoError(t, b.dispatcher.Handle(context.Background(), &tg.Updates{
		Updates: updates,
		Users:   users,
		Date:    1000,
	}))
}

var alice = &tg.User{ID: 1, AccessHash: 11, FirstName: "Alice"}

func TestOpenWaitsForParameters(t *testing.T) {
	_, rec := newTestBackend(t)
	assert.Equal(t, []backend.Update{
		backend.UpdateAuthorizationState{State: backend.AuthorizationStateWaitParameters{}},
	}, rec.take())
}

func TestClosedBeforeInit(t *testing.T) {
	b, _ := newTestBackend(t)
	ctx := context.Background()
	require.NoError(t, b.Close(ctx))
	require.NoError(t, b.Close(ctx))

	assert.ErrorIs(t, b.SetInitParameters(ctx, backend.InitParameters{DatabaseDirectory: t.TempDir()}), ErrClosed)
	_, err := b.GetMe(ctx)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, b.LoadChats(ctx, domain.MainList(), 10), ErrClosed)
}

func TestSetOptionValidatesBeforeConnecting(t *testing.T) {
	b, _ := newTestBackend(t)
	ctx := context.Background()

	err := b.SetOption(ctx, "language", backend.OptionString{Value: "en"})
	be, ok := backend.AsError(err)
	require.True(t, ok)
	assert.Equal(t, 400, be.Code)

	err = b.SetOption(ctx, "online", backend.OptionString{Value: "yes"})
	be, ok = backend.AsError(err)
	require.True(t, ok)
	assert.Equal(t, "OPTION_VALUE_INVALID", be.Message)
}

func TestMessageInUnknownChatAnnouncesIt(t *testing.T) {
	b, rec := newTestBackend(t)
	rec.take()

	deliver(t, b, []tg.UserClass{alice}, &tg.UpdateNewMessage{Message: &tg.Message{
		ID:      5,
		PeerID:  &tg.PeerUser{UserID: 1},
		FromID:  &tg.PeerUser{UserID: 1},
		Message: "hi",
		Date:    1000,
	}})

	got := rec.take()
	require.Len(t, got, 2)
	nc, ok := got[0].(backend.UpdateNewChat)
	require.True(t, ok, "%T", got[0])
	assert.Equal(t, domain.ChatID(1), nc.Chat.ID)
	assert.Equal(t, "Alice", nc.Chat.Title)
	assert.Equal(t, 1, nc.Chat.UnreadCount)
	assert.Equal(t, []domain.ChatPosition{{List: domain.MainList(), Order: dateOrder(1000, 5)}}, nc.Chat.Positions)

	nm, ok := got[1].(backend.UpdateNewMessage)
	require.True(t, ok, "%T", got[1])
	assert.Equal(t, "hi", nm.Message.Text)
	assert.Equal(t, "Alice", nm.Message.SenderName)
	assert.Equal(t, domain.SenderUser{UserID: 1}, nm.Message.Sender)

	p, ok := b.reg.inputPeer(1)
	require.True(t, ok)
	assert.Equal(t, &tg.InputPeerUser{UserID: 1, AccessHash: 11}, p)
}

func TestMessageInKnownChatMovesIt(t *testing.T) {
	b, rec := newTestBackend(t)
	b.reg.update(1, func(m *chatMeta) {
		m.order = dateOrder(900, 4)
		m.readInbox = 4
		m.unread = 2
	})
	rec.take()

	deliver(t, b, []tg.UserClass{alice}, &tg.UpdateNewMessage{Message: &tg.Message{
		ID:      5,
		PeerID:  &tg.PeerUser{UserID: 1},
		Message: "again",
		Date:    1000,
	}})

	got := rec.take()
	require.Len(t, got, 3)
	assert.IsType(t, backend.UpdateNewMessage{}, got[0])

	last, ok := got[1].(backend.UpdateChatLastMessage)
	require.True(t, ok, "%T", got[1])
	assert.Equal(t, domain.MessageID(5), last.LastMessage.ID)
	assert.Equal(t, []domain.ChatPosition{{List: domain.MainList(), Order: dateOrder(1000, 5)}}, last.Positions)

	assert.Equal(t, backend.UpdateChatReadInbox{ChatID: 1, LastReadInboxID: 4, UnreadCount: 3}, got[2])
}

func TestDeletesResolveTheirChat(t *testing.T) {
	b, rec := newTestBackend(t)
	b.reg.noteMessage(1, 5)
	b.reg.noteMessage(-2, 6)
	rec.take()

	deliver(t, b, nil, &tg.UpdateDeleteMessages{Messages: []int{5, 7}})
	assert.Equal(t, []backend.Update{
		backend.UpdateDeleteMessages{ChatID: 1, MessageIDs: []domain.MessageID{5}, IsPermanent: true},
	}, rec.take())

	deliver(t, b, nil, &tg.UpdateDeleteChannelMessages{ChannelID: 3, Messages: []int{8, 9}})
	assert.Equal(t, []backend.Update{
		backend.UpdateDeleteMessages{ChatID: channelChatID(3), MessageIDs: []domain.MessageID{8, 9}, IsPermanent: true},
	}, rec.take())
}

func TestReadAndDraftUpdates(t *testing.T) {
	b, rec := newTestBackend(t)
	rec.take()

	deliver(t, b, nil,
		&tg.UpdateReadChannelInbox{ChannelID: 3, MaxID: 40, StillUnreadCount: 2},
		&tg.UpdateReadHistoryOutbox{Peer: &tg.PeerUser{UserID: 1}, MaxID: 12},
		&tg.UpdateDraftMessage{Peer: &tg.PeerChat{ChatID: 2}, Draft: &tg.DraftMessage{Message: "wip", Date: 1000}},
		&tg.UpdateDraftMessage{Peer: &tg.PeerChat{ChatID: 2}, Draft: &tg.DraftMessageEmpty{}},
	)
	assert.Equal(t, []backend.Update{
		backend.UpdateChatReadInbox{ChatID: channelChatID(3), LastReadInboxID: 40, UnreadCount: 2},
		backend.UpdateChatReadOutbox{ChatID: 1, LastReadOutboxID: 12},
		backend.UpdateChatDraftMessage{ChatID: -2, Draft: &domain.DraftMessage{Text: "wip", Date: time.Unix(1000, 0)}},
		backend.UpdateChatDraftMessage{ChatID: -2},
	}, rec.take())

	meta, _ := b.reg.update(channelChatID(3), func(*chatMeta) {})
	assert.Equal(t, 2, meta.unread)
}

func TestEditCarriesMarkdown(t *testing.T) {
	b, rec := newTestBackend(t)
	rec.take()

	deliver(t, b, nil, &tg.UpdateEditMessage{Message: &tg.Message{
		ID:       5,
		PeerID:   &tg.PeerUser{UserID: 1},
		Message:  "Hello world",
		Entities: []tg.MessageEntityClass{&tg.MessageEntityBold{Offset: 6, Length: 5}},
		EditDate: 1100,
		Views:    3,
	}})
	assert.Equal(t, []backend.Update{
		backend.UpdateMessageContent{
			ChatID:      1,
			MessageID:   5,
			Text:        "Hello **world**",
			HasMarkdown: true,
			EditDate:    time.Unix(1100, 0),
		},
		backend.UpdateMessageInteractionInfo{ChatID: 1, MessageID: 5, Info: domain.InteractionInfo{ViewCount: 3}},
	}, rec.take())
}

func TestPinnedDialog(t *testing.T) {
	b, rec := newTestBackend(t)
	b.reg.update(1, func(m *chatMeta) { m.order = 10 })
	rec.take()

	deliver(t, b, nil, &tg.UpdateDialogPinned{Pinned: true, Peer: &tg.DialogPeer{Peer: &tg.PeerUser{UserID: 1}}})
	deliver(t, b, nil, &tg.UpdateDialogPinned{Peer: &tg.DialogPeer{Peer: &tg.PeerUser{UserID: 1}}})
	assert.Equal(t, []backend.Update{
		backend.UpdateChatPosition{ChatID: 1, Position: domain.ChatPosition{List: domain.MainList(), Order: pinnedOrder(0), IsPinned: true}},
		backend.UpdateChatPosition{ChatID: 1, Position: domain.ChatPosition{List: domain.MainList(), Order: 10}},
	}, rec.take())
}
