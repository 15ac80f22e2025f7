package telegram

import (
	"context"

	"github.com/gotd/td/telegram/message/peer"
	"github.com/gotd/td/tg"
	"go.uber.org/zap"

	"github.com/danhigham/telesync/internal/backend"
	"github.com/danhigham/telesync/internal/domain"
)

// registerHandlers translates server updates into backend updates.
func (b *Backend) registerHandlers() {
	d := b.dispatcher

	d.OnNewMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewMessage) error {
		b.onNewMessage(e, u.Message)
		return nil
	})
	d.OnNewChannelMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewChannelMessage) error {
		b.onNewMessage(e, u.Message)
		return nil
	})
	d.OnEditMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateEditMessage) error {
		b.onEditMessage(u.Message)
		return nil
	})
	d.OnEditChannelMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateEditChannelMessage) error {
		b.onEditMessage(u.Message)
		return nil
	})

	d.OnDeleteMessages(func(ctx context.Context, e tg.Entities, u *tg.UpdateDeleteMessages) error {
		for chatID, ids := range b.reg.messageChats(u.Messages) {
			b.emit(backend.UpdateDeleteMessages{ChatID: chatID, MessageIDs: ids, IsPermanent: true})
		}
		return nil
	})
	d.OnDeleteChannelMessages(func(ctx context.Context, e tg.Entities, u *tg.UpdateDeleteChannelMessages) error {
		ids := make([]domain.MessageID, len(u.Messages))
		for i, id := range u.Messages {
			ids[i] = domain.MessageID(id)
		}
		b.emit(backend.UpdateDeleteMessages{ChatID: channelChatID(u.ChannelID), MessageIDs: ids, IsPermanent: true})
		return nil
	})

	d.OnReadHistoryInbox(func(ctx context.Context, e tg.Entities, u *tg.UpdateReadHistoryInbox) error {
		if id, ok := chatIDFromPeer(u.Peer); ok {
			b.onReadInbox(id, u.MaxID, u.StillUnreadCount)
		}
		return nil
	})
	d.OnReadHistoryOutbox(func(ctx context.Context, e tg.Entities, u *tg.UpdateReadHistoryOutbox) error {
		if id, ok := chatIDFromPeer(u.Peer); ok {
			b.emit(backend.UpdateChatReadOutbox{ChatID: id, LastReadOutboxID: domain.MessageID(u.MaxID)})
		}
		return nil
	})
	d.OnReadChannelInbox(func(ctx context.Context, e tg.Entities, u *tg.UpdateReadChannelInbox) error {
		b.onReadInbox(channelChatID(u.ChannelID), u.MaxID, u.StillUnreadCount)
		return nil
	})
	d.OnReadChannelOutbox(func(ctx context.Context, e tg.Entities, u *tg.UpdateReadChannelOutbox) error {
		b.emit(backend.UpdateChatReadOutbox{ChatID: channelChatID(u.ChannelID), LastReadOutboxID: domain.MessageID(u.MaxID)})
		return nil
	})

	d.OnDraftMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateDraftMessage) error {
		id, ok := chatIDFromPeer(u.Peer)
		if !ok {
			return nil
		}
		b.emit(backend.UpdateChatDraftMessage{ChatID: id, Draft: convertDraft(u.Draft)})
		return nil
	})
	d.OnDialogPinned(func(ctx context.Context, e tg.Entities, u *tg.UpdateDialogPinned) error {
		dp, ok := u.Peer.(*tg.DialogPeer)
		if !ok {
			return nil
		}
		if id, ok := chatIDFromPeer(dp.Peer); ok {
			b.onPinned(id, u.Pinned)
		}
		return nil
	})

	d.OnUserStatus(func(ctx context.Context, e tg.Entities, u *tg.UpdateUserStatus) error {
		b.emit(backend.UpdateUserStatus{UserID: domain.UserID(u.UserID), Status: convertStatus(u.Status)})
		return nil
	})
	d.OnChannelMessageViews(func(ctx context.Context, e tg.Entities, u *tg.UpdateChannelMessageViews) error {
		b.emit(backend.UpdateMessageInteractionInfo{
			ChatID:    channelChatID(u.ChannelID),
			MessageID: domain.MessageID(u.ID),
			Info:      domain.InteractionInfo{ViewCount: u.Views},
		})
		return nil
	})

	refresh := func(ctx context.Context) error {
		api, err := b.api(ctx)
		if err != nil {
			return err
		}
		if err := b.refreshFolders(ctx, api); err != nil {
			b.logger.Warn("Failed to refresh chat folders", zap.Error(err))
		}
		return nil
	}
	d.OnDialogFilter(func(ctx context.Context, e tg.Entities, u *tg.UpdateDialogFilter) error {
		return refresh(ctx)
	})
	d.OnDialogFilters(func(ctx context.Context, e tg.Entities, u *tg.UpdateDialogFilters) error {
		return refresh(ctx)
	})
	d.OnDialogFilterOrder(func(ctx context.Context, e tg.Entities, u *tg.UpdateDialogFilterOrder) error {
		return refresh(ctx)
	})
}

func (b *Backend) onNewMessage(e tg.Entities, raw tg.MessageClass) {
	b.reg.addEntities(e.Users, e.Chats, e.Channels)
	ents := peer.NewEntities(e.Users, e.Chats, e.Channels)
	msg, ok := b.messageOf(raw, ents, b.selfUser())
	if !ok {
		return
	}
	b.reg.noteMessage(msg.ChatID, int(msg.ID))
	if _, known := b.reg.meta(msg.ChatID); !known {
		b.announceChat(msg, raw, ents)
		return
	}
	b.emit(backend.UpdateNewMessage{Message: msg})
	b.onChatMessage(msg.ChatID, msg)
	if !msg.Out {
		meta, _ := b.reg.update(msg.ChatID, func(m *chatMeta) { m.unread++ })
		b.emit(backend.UpdateChatReadInbox{ChatID: msg.ChatID, LastReadInboxID: meta.readInbox, UnreadCount: meta.unread})
	}
}

func (b *Backend) onReadInbox(id domain.ChatID, maxID, unread int) {
	b.reg.update(id, func(m *chatMeta) {
		m.readInbox = domain.MessageID(maxID)
		m.unread = unread
	})
	b.emit(backend.UpdateChatReadInbox{ChatID: id, LastReadInboxID: domain.MessageID(maxID), UnreadCount: unread})
}

// onChatMessage moves the chat to the top of its list for msg.
func (b *Backend) onChatMessage(chatID domain.ChatID, msg domain.Message) {
	meta, _ := b.reg.update(chatID, func(m *chatMeta) {
		m.order = dateOrder(int(msg.Date.Unix()), int(msg.ID))
	})
	last := msg
	b.emit(backend.UpdateChatLastMessage{
		ChatID:      chatID,
		LastMessage: &last,
		Positions:   []domain.ChatPosition{meta.position()},
	})
}

// announceChat introduces a chat first seen through a new message. It goes
// to the main list.
func (b *Backend) announceChat(msg domain.Message, raw tg.MessageClass, ents peer.Entities) {
	var p tg.PeerClass
	switch m := raw.(type) {
	case *tg.Message:
		p = m.PeerID
	case *tg.MessageService:
		p = m.PeerID
	}
	kind, title := chatTitle(p, ents)
	meta, _ := b.reg.update(msg.ChatID, func(m *chatMeta) {
		m.list = domain.MainList()
		m.order = dateOrder(int(msg.Date.Unix()), int(msg.ID))
		if !msg.Out {
			m.unread = 1
		}
	})
	last := msg
	chat := domain.Chat{
		ID:          msg.ChatID,
		Type:        kind,
		Title:       title,
		LastMessage: &last,
		UnreadCount: meta.unread,
		Positions:   []domain.ChatPosition{meta.position()},
	}
	b.emit(backend.UpdateNewChat{Chat: chat})
	b.emit(backend.UpdateNewMessage{Message: msg})
}

func (b *Backend) onEditMessage(raw tg.MessageClass) {
	m, ok := raw.(*tg.Message)
	if !ok {
		return
	}
	chatID, ok := chatIDFromPeer(m.PeerID)
	if !ok {
		return
	}
	text, markdown := formatText(m.Message, m.Entities)
	b.emit(backend.UpdateMessageContent{
		ChatID:      chatID,
		MessageID:   domain.MessageID(m.ID),
		Text:        text,
		HasMarkdown: markdown,
		EditDate:    unixTime(m.EditDate),
	})
	b.emit(backend.UpdateMessageInteractionInfo{
		ChatID:    chatID,
		MessageID: domain.MessageID(m.ID),
		Info:      convertInteraction(m),
	})
}

// onPinned moves a chat of a main or archive list to or from the pinned
// block. Newly pinned chats go below the existing ones.
func (b *Backend) onPinned(id domain.ChatID, pinned bool) {
	cur, known := b.reg.meta(id)
	if !known {
		return
	}
	rank := b.reg.pinnedCount(cur.list)
	meta, _ := b.reg.update(id, func(m *chatMeta) {
		m.pinned = pinned
		if pinned {
			m.pinOrder = pinnedOrder(rank)
		}
	})
	b.emit(backend.UpdateChatPosition{ChatID: id, Position: meta.position()})
}
