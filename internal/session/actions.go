package session

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/danhigham/telesync/internal/backend"
	"github.com/danhigham/telesync/internal/domain"
	"github.com/danhigham/telesync/internal/loop"
)

// fireAndForget issues call and only logs a failure.
func (s *Session) fireAndForget(what string, call func(ctx context.Context) error, fields ...zap.Field) {
	loop.Go(s.loop, s.ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, call(ctx)
	}, func(_ struct{}, err error) {
		if err != nil && !s.closed {
			s.logger.Warn("Request failed", append(fields, zap.String("request", what), zap.Error(err))...)
		}
	})
}

// SetDraft stores text as the chat's draft. An empty text clears it.
func (s *Session) SetDraft(chatID domain.ChatID, text string) {
	var draft *domain.DraftMessage
	if text != "" {
		draft = &domain.DraftMessage{Text: text, Date: time.Now()}
	}
	s.fireAndForget("set_draft", func(ctx context.Context) error {
		return s.backend.SetChatDraftMessage(ctx, chatID, draft)
	}, zap.Int64("chat_id", int64(chatID)))
}

// SetOnline tells the server whether the account is being actively used.
func (s *Session) SetOnline(online bool) {
	s.fireAndForget("set_option", func(ctx context.Context) error {
		return s.backend.SetOption(ctx, "online", backend.OptionBoolean{Value: online})
	}, zap.Bool("online", online))
}

// SendMessage sends text to chatID. The message itself arrives as a push
// update.
func (s *Session) SendMessage(chatID domain.ChatID, text string) {
	s.fireAndForget("send_message", func(ctx context.Context) error {
		return s.backend.SendMessage(ctx, chatID, text)
	}, zap.Int64("chat_id", int64(chatID)))
}

// DeleteMessages deletes ids from chatID, for everyone if revoke is set. done
// is called on the loop with the backend result.
func (s *Session) DeleteMessages(chatID domain.ChatID, ids []domain.MessageID, revoke bool, done func(error)) {
	loop.Go(s.loop, s.ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.backend.DeleteMessages(ctx, chatID, ids, revoke)
	}, func(_ struct{}, err error) {
		if s.closed {
			return
		}
		if err != nil {
			err = errors.Wrap(err, "delete messages")
		}
		if done != nil {
			done(err)
		}
	})
}
