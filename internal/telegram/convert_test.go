package telegram

import (
	"testing"
	"time"

	"github.com/gotd/td/telegram/message/peer"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danhigham/telesync/internal/backend"
	"github.com/danhigham/telesync/internal/domain"
)

func TestRequestError(t *testing.T) {
	err := requestError(tgerr.New(400, "PHONE_CODE_INVALID"))
	be, ok := backend.AsError(err)
	require.True(t, ok)
	assert.Equal(t, &backend.Error{Code: 400, Message: "PHONE_CODE_INVALID"}, be)

	assert.NoError(t, requestError(nil))
}

func TestConvertStatus(t *testing.T) {
	for _, tt := range []struct {
		in   tg.UserStatusClass
		want domain.UserStatus
	}{
		{&tg.UserStatusOnline{Expires: 100}, domain.UserStatus{Kind: domain.StatusOnline, Expires: time.Unix(100, 0)}},
		{&tg.UserStatusOffline{WasOnline: 50}, domain.UserStatus{Kind: domain.StatusOffline, WasOnline: time.Unix(50, 0)}},
		{&tg.UserStatusRecently{}, domain.UserStatus{Kind: domain.StatusRecently}},
		{&tg.UserStatusLastWeek{}, domain.UserStatus{Kind: domain.StatusLastWeek}},
		{&tg.UserStatusLastMonth{}, domain.UserStatus{Kind: domain.StatusLastMonth}},
		{&tg.UserStatusEmpty{}, domain.UserStatus{Kind: domain.StatusEmpty}},
	} {
		assert.Equal(t, tt.want, convertStatus(tt.in), "%T", tt.in)
	}
}

func TestConvertCodeInfo(t *testing.T) {
	sent := &tg.AuthSentCode{
		Type:          &tg.AuthSentCodeTypeApp{Length: 5},
		PhoneCodeHash: "hash",
	}
	sent.SetNextType(&tg.AuthCodeTypeSMS{})
	sent.SetTimeout(60)

	assert.Equal(t, backend.CodeInfo{
		PhoneNumber: "+100",
		Type:        backend.CodeTypeApp,
		Length:      5,
		HasNextType: true,
		NextType:    backend.CodeTypeSMS,
		Timeout:     60,
	}, convertCodeInfo("+100", sent))

	last := &tg.AuthSentCode{Type: &tg.AuthSentCodeTypeCall{Length: 6}}
	assert.Equal(t, backend.CodeInfo{
		PhoneNumber: "+100",
		Type:        backend.CodeTypeCall,
		Length:      6,
	}, convertCodeInfo("+100", last))
}

func TestConvertMessageSender(t *testing.T) {
	self := &tg.User{ID: 7, FirstName: "Me"}
	ents := peer.NewEntities(
		map[int64]*tg.User{1: {ID: 1, FirstName: "Alice", LastName: "Liddell"}},
		map[int64]*tg.Chat{},
		map[int64]*tg.Channel{3: {ID: 3, Title: "News"}},
	)

	for _, tt := range []struct {
		name       string
		msg        *tg.Message
		wantSender domain.Sender
		wantName   string
	}{
		{
			name:       "PrivateIncoming",
			msg:        &tg.Message{ID: 1, PeerID: &tg.PeerUser{UserID: 1}},
			wantSender: domain.SenderUser{UserID: 1},
			wantName:   "Alice Liddell",
		},
		{
			name:       "Outgoing",
			msg:        &tg.Message{ID: 2, Out: true, PeerID: &tg.PeerUser{UserID: 1}},
			wantSender: domain.SenderUser{UserID: 7},
			wantName:   "Me",
		},
		{
			name:       "ChannelPost",
			msg:        &tg.Message{ID: 3, PeerID: &tg.PeerChannel{ChannelID: 3}},
			wantSender: domain.SenderChat{ChatID: channelChatID(3)},
			wantName:   "News",
		},
		{
			name:       "GroupMember",
			msg:        &tg.Message{ID: 4, PeerID: &tg.PeerChat{ChatID: 2}, FromID: &tg.PeerUser{UserID: 1}},
			wantSender: domain.SenderUser{UserID: 1},
			wantName:   "Alice Liddell",
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			if tt.msg.FromID != nil {
				tt.msg.SetFromID(tt.msg.FromID)
			}
			got := convertMessage(tt.msg, ents, self)
			assert.Equal(t, tt.wantSender, got.Sender)
			assert.Equal(t, tt.wantName, got.SenderName)
		})
	}
}

func TestConvertDialog(t *testing.T) {
	ents := peer.NewEntities(
		map[int64]*tg.User{},
		map[int64]*tg.Chat{},
		map[int64]*tg.Channel{3: {ID: 3, Title: "Gophers", Megagroup: true}},
	)
	d := &tg.Dialog{
		Peer:            &tg.PeerChannel{ChannelID: 3},
		TopMessage:      9,
		UnreadCount:     4,
		ReadInboxMaxID:  5,
		ReadOutboxMaxID: 8,
	}
	d.SetDraft(&tg.DraftMessage{Message: "draft", Date: 10})
	last := &tg.Message{ID: 9, PeerID: &tg.PeerChannel{ChannelID: 3}, Message: "latest", Date: 20}
	pos := domain.ChatPosition{List: domain.MainList(), Order: dateOrder(20, 9)}

	chat := convertDialog(d, last, ents, nil, pos)
	assert.Equal(t, channelChatID(3), chat.ID)
	assert.Equal(t, domain.ChatTypeSupergroup, chat.Type)
	assert.Equal(t, "Gophers", chat.Title)
	assert.Equal(t, 4, chat.UnreadCount)
	assert.Equal(t, domain.MessageID(5), chat.LastReadInboxID)
	assert.Equal(t, domain.MessageID(8), chat.LastReadOutboxID)
	require.NotNil(t, chat.LastMessage)
	assert.Equal(t, "latest", chat.LastMessage.Text)
	assert.Equal(t, &domain.DraftMessage{Text: "draft", Date: time.Unix(10, 0)}, chat.Draft)
	assert.Equal(t, []domain.ChatPosition{pos}, chat.Positions)
}

func TestConvertFilters(t *testing.T) {
	work := &tg.DialogFilter{ID: 2, Title: tg.TextWithEntities{Text: " Work "}, Emoticon: "💼"}
	unnamed := &tg.DialogFilterChatlist{ID: 5}

	folders, mainPos := convertFilters([]tg.DialogFilterClass{work, &tg.DialogFilterDefault{}, unnamed})
	assert.Equal(t, []domain.FolderInfo{
		{ID: 2, Title: "Work", Icon: "💼"},
		{ID: 5, Title: "Folder 5"},
	}, folders)
	assert.Equal(t, 1, mainPos)

	_, mainPos = convertFilters([]tg.DialogFilterClass{work})
	assert.Zero(t, mainPos)
}

func TestLastMessages(t *testing.T) {
	last := lastMessages([]tg.MessageClass{
		&tg.Message{ID: 9, PeerID: &tg.PeerChannel{ChannelID: 3}, Message: "latest", Date: 20},
		&tg.MessageService{ID: 4, PeerID: &tg.PeerUser{UserID: 7}, Date: 30},
		&tg.MessageEmpty{ID: 2},
	})
	require.Len(t, last, 2)
	assert.Equal(t, 9, last[channelChatID(3)].GetID())
	assert.Equal(t, 30, last[domain.ChatID(7)].GetDate())

	d := &tg.Dialog{Peer: &tg.PeerChannel{ChannelID: 3}, TopMessage: 9}
	ents := peer.NewEntities(
		map[int64]*tg.User{},
		map[int64]*tg.Chat{},
		map[int64]*tg.Channel{3: {ID: 3, Title: "Gophers"}},
	)
	chat := convertDialog(d, last[channelChatID(3)], ents, nil, domain.ChatPosition{})
	require.NotNil(t, chat.LastMessage)
	assert.Equal(t, "latest", chat.LastMessage.Text)
}

func TestOldestID(t *testing.T) {
	id, ok := oldestID([]tg.MessageClass{
		&tg.Message{ID: 40},
		&tg.MessageEmpty{ID: 12},
		&tg.MessageService{ID: 31},
	})
	require.True(t, ok)
	assert.Equal(t, 12, id)

	_, ok = oldestID(nil)
	assert.False(t, ok)
}
