package telegram

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/gotd/td/telegram/message/peer"
	"github.com/gotd/td/tg"
	"go.uber.org/zap"

	"github.com/danhigham/telesync/internal/backend"
	"github.com/danhigham/telesync/internal/domain"
)

// Outgoing messages are shown under temporary ids until the server assigns
// the real one. Server ids never reach this range.
const firstTempID domain.MessageID = 1 << 40

var errUnknownPeer = &backend.Error{Code: 400, Message: "PEER_ID_INVALID"}

func (b *Backend) peerOf(chatID domain.ChatID) (tg.InputPeerClass, error) {
	p, ok := b.reg.inputPeer(chatID)
	if !ok {
		return nil, errUnknownPeer
	}
	return p, nil
}

func (b *Backend) GetChatHistory(ctx context.Context, chatID domain.ChatID, from domain.MessageID, limit int) ([]domain.Message, error) {
	api, err := b.api(ctx)
	if err != nil {
		return nil, err
	}
	p, err := b.peerOf(chatID)
	if err != nil {
		return nil, err
	}
	offset := int(from)
	for {
		raw, ents, err := b.historyPage(ctx, api, p, offset, limit)
		if err != nil {
			return nil, err
		}
		self := b.selfUser()
		out := make([]domain.Message, 0, len(raw))
		for _, m := range raw {
			msg, ok := b.messageOf(m, ents, self)
			if !ok {
				continue
			}
			b.reg.noteMessage(chatID, int(msg.ID))
			out = append(out, msg)
		}
		// Skip over pages made only of deleted placeholders.
		next, ok := oldestID(raw)
		if len(out) > 0 || !ok || next <= 0 || (offset != 0 && next >= offset) {
			return out, nil
		}
		offset = next
	}
}

func (b *Backend) historyPage(ctx context.Context, api *tg.Client, p tg.InputPeerClass, offset, limit int) ([]tg.MessageClass, peer.Entities, error) {
	res, err := api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
		Peer:     p,
		OffsetID: offset,
		Limit:    limit,
	})
	if err != nil {
		return nil, peer.Entities{}, requestError(err)
	}

	var (
		raw   []tg.MessageClass
		users []tg.UserClass
		chats []tg.ChatClass
	)
	switch r := res.(type) {
	case *tg.MessagesMessages:
		raw, users, chats = r.Messages, r.Users, r.Chats
	case *tg.MessagesMessagesSlice:
		raw, users, chats = r.Messages, r.Users, r.Chats
	case *tg.MessagesChannelMessages:
		raw, users, chats = r.Messages, r.Users, r.Chats
	}
	us, cs, chs := indexEntities(users, chats)
	b.reg.addEntities(us, cs, chs)
	return raw, peer.NewEntities(us, cs, chs), nil
}

// oldestID returns the smallest message id in raw, empty placeholders
// included.
func oldestID(raw []tg.MessageClass) (int, bool) {
	oldest, ok := 0, false
	for _, m := range raw {
		if id := m.GetID(); !ok || id < oldest {
			oldest, ok = id, true
		}
	}
	return oldest, ok
}

// messageOf converts regular and service messages. Service messages are
// shown as a one-line description of the action.
func (b *Backend) messageOf(m tg.MessageClass, ents peer.Entities, self *tg.User) (domain.Message, bool) {
	switch m := m.(type) {
	case *tg.Message:
		return convertMessage(m, ents, self), true
	case *tg.MessageService:
		chatID, _ := chatIDFromPeer(m.PeerID)
		msg := domain.Message{
			ID:          domain.MessageID(m.ID),
			ChatID:      chatID,
			Text:        "_" + describeAction(m.Action) + "_",
			HasMarkdown: true,
			Date:        unixTime(m.Date),
			Out:         m.Out,
		}
		if from, ok := m.GetFromID(); ok {
			if pu, ok := from.(*tg.PeerUser); ok {
				msg.Sender = domain.SenderUser{UserID: domain.UserID(pu.UserID)}
				if u, ok := ents.User(pu.UserID); ok {
					msg.SenderName = convertUser(u).DisplayName()
				}
			}
		}
		if msg.Sender == nil {
			msg.Sender = domain.SenderChat{ChatID: chatID}
		}
		return msg, true
	default:
		return domain.Message{}, false
	}
}

func describeAction(a tg.MessageActionClass) string {
	switch a := a.(type) {
	case *tg.MessageActionChatCreate:
		return "created the group " + a.Title
	case *tg.MessageActionChannelCreate:
		return "created the channel " + a.Title
	case *tg.MessageActionChatEditTitle:
		return "changed the title to " + a.Title
	case *tg.MessageActionChatEditPhoto:
		return "changed the photo"
	case *tg.MessageActionChatAddUser, *tg.MessageActionChatJoinedByLink:
		return "joined the group"
	case *tg.MessageActionChatDeleteUser:
		return "left the group"
	case *tg.MessageActionPinMessage:
		return "pinned a message"
	case *tg.MessageActionPhoneCall:
		return "call"
	default:
		return "service message"
	}
}

// SendMessage shows the message under a temporary id right away and swaps
// in the server's version once the send is confirmed. A failed send removes
// the temporary message again.
func (b *Backend) SendMessage(ctx context.Context, chatID domain.ChatID, text string) error {
	api, err := b.api(ctx)
	if err != nil {
		return err
	}
	p, err := b.peerOf(chatID)
	if err != nil {
		return err
	}

	temp := domain.Message{
		ID:     b.nextTempID(),
		ChatID: chatID,
		Text:   text,
		Date:   time.Now(),
		Out:    true,
	}
	if self := b.selfUser(); self != nil {
		temp.Sender = domain.SenderUser{UserID: domain.UserID(self.ID)}
		temp.SenderName = convertUser(self).DisplayName()
	}
	b.emit(backend.UpdateNewMessage{Message: temp})

	randomID := rand.Int64()
	res, err := api.MessagesSendMessage(ctx, &tg.MessagesSendMessageRequest{
		Peer:     p,
		Message:  text,
		RandomID: randomID,
	})
	if err != nil {
		b.emit(backend.UpdateDeleteMessages{ChatID: chatID, MessageIDs: []domain.MessageID{temp.ID}, IsPermanent: true})
		return requestError(err)
	}

	sent := b.sentMessage(res, randomID, temp)
	b.reg.noteMessage(chatID, int(sent.ID))
	b.emit(backend.UpdateMessageSendSucceeded{OldMessageID: temp.ID, Message: sent})
	b.onChatMessage(chatID, sent)

	if err := b.gaps.Handle(ctx, res); err != nil {
		b.logger.Debug("Failed to apply send result", zap.Error(err))
	}
	return nil
}

func (b *Backend) nextTempID() domain.MessageID {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tempSeq++
	return firstTempID + domain.MessageID(b.tempSeq)
}

// sentMessage extracts the stored message from a send result. When the
// result carries no full message, temp is kept under the new id.
func (b *Backend) sentMessage(res tg.UpdatesClass, randomID int64, temp domain.Message) domain.Message {
	var (
		updates []tg.UpdateClass
		users   []tg.UserClass
		chats   []tg.ChatClass
	)
	switch r := res.(type) {
	case *tg.UpdateShortSentMessage:
		temp.ID = domain.MessageID(r.ID)
		temp.Date = unixTime(r.Date)
		return temp
	case *tg.Updates:
		updates, users, chats = r.Updates, r.Users, r.Chats
	case *tg.UpdatesCombined:
		updates, users, chats = r.Updates, r.Users, r.Chats
	default:
		return temp
	}

	id := 0
	for _, u := range updates {
		if u, ok := u.(*tg.UpdateMessageID); ok && u.RandomID == randomID {
			id = u.ID
		}
	}
	if id == 0 {
		return temp
	}
	temp.ID = domain.MessageID(id)

	us, cs, chs := indexEntities(users, chats)
	ents := peer.NewEntities(us, cs, chs)
	for _, u := range updates {
		var m tg.MessageClass
		switch u := u.(type) {
		case *tg.UpdateNewMessage:
			m = u.Message
		case *tg.UpdateNewChannelMessage:
			m = u.Message
		default:
			continue
		}
		if msg, ok := m.(*tg.Message); ok && msg.ID == id {
			return convertMessage(msg, ents, b.selfUser())
		}
	}
	return temp
}

func (b *Backend) DeleteMessages(ctx context.Context, chatID domain.ChatID, ids []domain.MessageID, revoke bool) error {
	api, err := b.api(ctx)
	if err != nil {
		return err
	}
	raw := make([]int, len(ids))
	for i, id := range ids {
		raw[i] = int(id)
	}

	if _, ok := channelID(chatID); ok {
		p, err := b.peerOf(chatID)
		if err != nil {
			return err
		}
		ch, ok := p.(*tg.InputPeerChannel)
		if !ok {
			return errUnknownPeer
		}
		_, err = api.ChannelsDeleteMessages(ctx, &tg.ChannelsDeleteMessagesRequest{
			Channel: &tg.InputChannel{ChannelID: ch.ChannelID, AccessHash: ch.AccessHash},
			ID:      raw,
		})
		if err != nil {
			return requestError(err)
		}
	} else {
		_, err := api.MessagesDeleteMessages(ctx, &tg.MessagesDeleteMessagesRequest{Revoke: revoke, ID: raw})
		if err != nil {
			return requestError(err)
		}
		b.reg.messageChats(raw)
	}
	b.emit(backend.UpdateDeleteMessages{ChatID: chatID, MessageIDs: ids, IsPermanent: true})
	return nil
}

// SetChatDraftMessage saves or, for a nil draft, clears the chat's draft.
func (b *Backend) SetChatDraftMessage(ctx context.Context, chatID domain.ChatID, draft *domain.DraftMessage) error {
	api, err := b.api(ctx)
	if err != nil {
		return err
	}
	p, err := b.peerOf(chatID)
	if err != nil {
		return err
	}
	text := ""
	if draft != nil {
		text = draft.Text
	}
	if _, err := api.MessagesSaveDraft(ctx, &tg.MessagesSaveDraftRequest{Peer: p, Message: text}); err != nil {
		return requestError(err)
	}
	b.emit(backend.UpdateChatDraftMessage{ChatID: chatID, Draft: draft})
	return nil
}
