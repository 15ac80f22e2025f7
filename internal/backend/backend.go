// Package backend describes the asynchronous chat service the synchronization
// core talks to: request/response calls plus one ordered push-update stream
// per account.
package backend

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"

	"github.com/danhigham/telesync/internal/account"
	"github.com/danhigham/telesync/internal/domain"
)

// CodeNotFound returned by LoadChats signals that the list is exhausted.
const CodeNotFound = 404

// Error is a failed request as reported by the backend.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("backend error %d: %s", e.Code, e.Message)
}

// AsError extracts a backend error from err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsNotFound reports whether err carries CodeNotFound.
func IsNotFound(err error) bool {
	e, ok := AsError(err)
	return ok && e.Code == CodeNotFound
}

// InitParameters configure a freshly created account connection.
type InitParameters struct {
	DatabaseDirectory  string
	UseTestDC          bool
	APIID              int
	APIHash            string
	SystemLanguageCode string
	DeviceModel        string
	ApplicationVersion string
}

// OptionValue is the value of a backend option.
type OptionValue interface {
	isOptionValue()
}

type OptionBoolean struct{ Value bool }
type OptionString struct{ Value string }

func (OptionBoolean) isOptionValue() {}
func (OptionString) isOptionValue()  {}

// Backend is one account's connection. Every method may block on the network
// and must not be called from the loop goroutine; use loop.Go.
//
// Pull requests such as LoadChats report only success: the chats themselves
// arrive through the update stream.
type Backend interface {
	SetInitParameters(ctx context.Context, params InitParameters) error

	SetAuthenticationPhoneNumber(ctx context.Context, phone string) error
	CheckAuthenticationCode(ctx context.Context, code string) error
	ResendAuthenticationCode(ctx context.Context) error
	CheckAuthenticationPassword(ctx context.Context, password string) error
	RegisterUser(ctx context.Context, firstName, lastName string) error
	RequestQRCodeAuthentication(ctx context.Context) error

	GetMe(ctx context.Context) (domain.User, error)

	// LoadChats asks for up to limit more chats of list. It fails with
	// CodeNotFound once the list has been loaded completely.
	LoadChats(ctx context.Context, list domain.ListKind, limit int) error

	// GetChatHistory returns up to limit messages strictly older than
	// fromMessageID, newest first. A zero fromMessageID starts from the
	// newest message. An empty result means the history is exhausted.
	GetChatHistory(ctx context.Context, chatID domain.ChatID, fromMessageID domain.MessageID, limit int) ([]domain.Message, error)

	DeleteMessages(ctx context.Context, chatID domain.ChatID, ids []domain.MessageID, revoke bool) error
	SetChatDraftMessage(ctx context.Context, chatID domain.ChatID, draft *domain.DraftMessage) error
	SendMessage(ctx context.Context, chatID domain.ChatID, text string) error
	DeleteChatFolder(ctx context.Context, folderID int) error
	SetOption(ctx context.Context, name string, value OptionValue) error

	LogOut(ctx context.Context) error
	Close(ctx context.Context) error
}

// UpdateHandler receives push updates in stream order. Implementations of
// Backend call it from a single goroutine at a time.
type UpdateHandler func(Update)

// Factory opens the backend of one account slot.
type Factory func(slot account.Slot, handler UpdateHandler) (Backend, error)
