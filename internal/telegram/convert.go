package telegram

import (
	"time"

	"github.com/gotd/td/telegram/message/peer"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"

	"github.com/danhigham/telesync/internal/backend"
	"github.com/danhigham/telesync/internal/domain"
)

// requestError turns an RPC failure into a backend.Error so that callers see
// Telegram's error type, e.g. PHONE_CODE_INVALID.
func requestError(err error) error {
	if err == nil {
		return nil
	}
	if rpcErr, ok := tgerr.As(err); ok {
		return &backend.Error{Code: rpcErr.Code, Message: rpcErr.Type}
	}
	return err
}

func unixTime(sec int) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(int64(sec), 0)
}

func convertUser(u *tg.User) domain.User {
	out := domain.User{
		ID:        domain.UserID(u.ID),
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Username:  u.Username,
		Phone:     u.Phone,
	}
	if st, ok := u.GetStatus(); ok {
		out.Status = convertStatus(st)
	}
	return out
}

func convertStatus(s tg.UserStatusClass) domain.UserStatus {
	switch s := s.(type) {
	case *tg.UserStatusOnline:
		return domain.UserStatus{Kind: domain.StatusOnline, Expires: unixTime(s.Expires)}
	case *tg.UserStatusOffline:
		return domain.UserStatus{Kind: domain.StatusOffline, WasOnline: unixTime(s.WasOnline)}
	case *tg.UserStatusRecently:
		return domain.UserStatus{Kind: domain.StatusRecently}
	case *tg.UserStatusLastWeek:
		return domain.UserStatus{Kind: domain.StatusLastWeek}
	case *tg.UserStatusLastMonth:
		return domain.UserStatus{Kind: domain.StatusLastMonth}
	default:
		return domain.UserStatus{Kind: domain.StatusEmpty}
	}
}

func convertCodeInfo(phone string, sent *tg.AuthSentCode) backend.CodeInfo {
	info := backend.CodeInfo{PhoneNumber: phone}
	switch t := sent.Type.(type) {
	case *tg.AuthSentCodeTypeApp:
		info.Type, info.Length = backend.CodeTypeApp, t.Length
	case *tg.AuthSentCodeTypeSMS:
		info.Type, info.Length = backend.CodeTypeSMS, t.Length
	case *tg.AuthSentCodeTypeCall:
		info.Type, info.Length = backend.CodeTypeCall, t.Length
	case *tg.AuthSentCodeTypeFlashCall:
		info.Type = backend.CodeTypeFlashCall
	case *tg.AuthSentCodeTypeMissedCall:
		info.Type, info.Length = backend.CodeTypeMissedCall, t.Length
	case *tg.AuthSentCodeTypeFragmentSMS:
		info.Type, info.Length = backend.CodeTypeFragment, t.Length
	case *tg.AuthSentCodeTypeEmailCode:
		info.Type, info.Length = backend.CodeTypeEmail, t.Length
	}
	if next, ok := sent.GetNextType(); ok {
		info.HasNextType = true
		switch next.(type) {
		case *tg.AuthCodeTypeSMS:
			info.NextType = backend.CodeTypeSMS
		case *tg.AuthCodeTypeCall:
			info.NextType = backend.CodeTypeCall
		case *tg.AuthCodeTypeFlashCall:
			info.NextType = backend.CodeTypeFlashCall
		case *tg.AuthCodeTypeMissedCall:
			info.NextType = backend.CodeTypeMissedCall
		case *tg.AuthCodeTypeFragmentSMS:
			info.NextType = backend.CodeTypeFragment
		default:
			info.HasNextType = false
		}
	}
	if timeout, ok := sent.GetTimeout(); ok {
		info.Timeout = timeout
	}
	return info
}

func convertDraft(d tg.DraftMessageClass) *domain.DraftMessage {
	draft, ok := d.(*tg.DraftMessage)
	if !ok || draft.Message == "" {
		return nil
	}
	return &domain.DraftMessage{Text: draft.Message, Date: unixTime(draft.Date)}
}

func convertInteraction(m *tg.Message) domain.InteractionInfo {
	info := domain.InteractionInfo{ViewCount: m.Views, ForwardCount: m.Forwards}
	if r, ok := m.GetReplies(); ok {
		info.ReplyCount = r.Replies
	}
	return info
}

// convertMessage maps a message. Without a sender field the author is the
// account itself for outgoing messages, the peer in private chats and the
// chat itself otherwise.
func convertMessage(m *tg.Message, ents peer.Entities, self *tg.User) domain.Message {
	chatID, _ := chatIDFromPeer(m.PeerID)
	text, markdown := formatText(m.Message, m.Entities)
	out := domain.Message{
		ID:          domain.MessageID(m.ID),
		ChatID:      chatID,
		Text:        text,
		HasMarkdown: markdown,
		Date:        unixTime(m.Date),
		EditDate:    unixTime(m.EditDate),
		Out:         m.Out,
		Interaction: convertInteraction(m),
	}

	from, ok := m.GetFromID()
	switch {
	case ok:
	case m.Out && self != nil:
		from = &tg.PeerUser{UserID: self.ID}
	default:
		from = m.PeerID
	}
	switch p := from.(type) {
	case *tg.PeerUser:
		out.Sender = domain.SenderUser{UserID: domain.UserID(p.UserID)}
		if u, ok := ents.User(p.UserID); ok {
			out.SenderName = convertUser(u).DisplayName()
		} else if self != nil && p.UserID == self.ID {
			out.SenderName = convertUser(self).DisplayName()
		}
	default:
		id, _ := chatIDFromPeer(from)
		out.Sender = domain.SenderChat{ChatID: id}
		_, out.SenderName = chatTitle(from, ents)
	}
	return out
}

// chatTitle resolves a peer's chat type and title from ents.
func chatTitle(p tg.PeerClass, ents peer.Entities) (domain.ChatType, string) {
	switch p := p.(type) {
	case *tg.PeerUser:
		if u, ok := ents.User(p.UserID); ok {
			return domain.ChatTypePrivate, convertUser(u).DisplayName()
		}
		return domain.ChatTypePrivate, ""
	case *tg.PeerChat:
		if c, ok := ents.Chat(p.ChatID); ok {
			return domain.ChatTypeGroup, c.Title
		}
		return domain.ChatTypeGroup, ""
	case *tg.PeerChannel:
		c, ok := ents.Channel(p.ChannelID)
		switch {
		case !ok:
			return domain.ChatTypeChannel, ""
		case c.Megagroup:
			return domain.ChatTypeSupergroup, c.Title
		default:
			return domain.ChatTypeChannel, c.Title
		}
	}
	return domain.ChatTypePrivate, ""
}

// convertDialog builds the chat of a dialog placed at pos.
func convertDialog(d *tg.Dialog, last tg.NotEmptyMessage, ents peer.Entities, self *tg.User, pos domain.ChatPosition) domain.Chat {
	id, _ := chatIDFromPeer(d.Peer)
	kind, title := chatTitle(d.Peer, ents)
	chat := domain.Chat{
		ID:               id,
		Type:             kind,
		Title:            title,
		UnreadCount:      d.UnreadCount,
		LastReadInboxID:  domain.MessageID(d.ReadInboxMaxID),
		LastReadOutboxID: domain.MessageID(d.ReadOutboxMaxID),
	}
	if self != nil && int64(id) == self.ID {
		chat.Title = "Saved Messages"
	}
	if m, ok := last.(*tg.Message); ok {
		msg := convertMessage(m, ents, self)
		chat.LastMessage = &msg
	}
	if draft, ok := d.GetDraft(); ok {
		chat.Draft = convertDraft(draft)
	}
	if pos.Order != 0 {
		chat.Positions = []domain.ChatPosition{pos}
	}
	return chat
}

// indexEntities collects the entities of a response.
func indexEntities(users []tg.UserClass, chats []tg.ChatClass) (map[int64]*tg.User, map[int64]*tg.Chat, map[int64]*tg.Channel) {
	us := make(map[int64]*tg.User, len(users))
	for _, u := range users {
		if u, ok := u.(*tg.User); ok {
			us[u.ID] = u
		}
	}
	cs := make(map[int64]*tg.Chat)
	chs := make(map[int64]*tg.Channel)
	for _, c := range chats {
		switch c := c.(type) {
		case *tg.Chat:
			cs[c.ID] = c
		case *tg.Channel:
			chs[c.ID] = c
		}
	}
	return us, cs, chs
}
