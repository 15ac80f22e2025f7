// Package backendtest provides an in-memory backend.Backend for tests.
package backendtest

import (
	"context"
	"sync"

	"github.com/danhigham/telesync/internal/account"
	"github.com/danhigham/telesync/internal/backend"
	"github.com/danhigham/telesync/internal/domain"
)

// Call is one recorded request.
type Call struct {
	Method string
	Args   []any
}

// Fake records every request and answers from the optional hook functions.
// With no hook set a request succeeds with a zero result.
type Fake struct {
	Slot    account.Slot
	Handler backend.UpdateHandler

	GetMeFunc          func(ctx context.Context) (domain.User, error)
	LoadChatsFunc      func(ctx context.Context, list domain.ListKind, limit int) error
	GetChatHistoryFunc func(ctx context.Context, chatID domain.ChatID, from domain.MessageID, limit int) ([]domain.Message, error)
	// Errors makes the named method fail with the given error.
	Errors map[string]error

	mu    sync.Mutex
	calls []Call
}

var _ backend.Backend = (*Fake)(nil)

func New() *Fake {
	return &Fake{Errors: make(map[string]error)}
}

// Emit delivers u to the registered update handler.
func (f *Fake) Emit(u backend.Update) {
	f.Handler(u)
}

// Calls returns the recorded calls of method, or all calls if method is empty.
func (f *Fake) Calls(method string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, c := range f.calls {
		if method == "" || c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (f *Fake) CallCount(method string) int {
	return len(f.Calls(method))
}

func (f *Fake) record(method string, args ...any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Method: method, Args: args})
	return f.Errors[method]
}

func (f *Fake) SetInitParameters(_ context.Context, params backend.InitParameters) error {
	return f.record("SetInitParameters", params)
}

func (f *Fake) SetAuthenticationPhoneNumber(_ context.Context, phone string) error {
	return f.record("SetAuthenticationPhoneNumber", phone)
}

func (f *Fake) CheckAuthenticationCode(_ context.Context, code string) error {
	return f.record("CheckAuthenticationCode", code)
}

func (f *Fake) ResendAuthenticationCode(context.Context) error {
	return f.record("ResendAuthenticationCode")
}

func (f *Fake) CheckAuthenticationPassword(_ context.Context, password string) error {
	return f.record("CheckAuthenticationPassword", password)
}

func (f *Fake) RegisterUser(_ context.Context, firstName, lastName string) error {
	return f.record("RegisterUser", firstName, lastName)
}

func (f *Fake) RequestQRCodeAuthentication(context.Context) error {
	return f.record("RequestQRCodeAuthentication")
}

func (f *Fake) GetMe(ctx context.Context) (domain.User, error) {
	if err := f.record("GetMe"); err != nil {
		return domain.User{}, err
	}
	if f.GetMeFunc != nil {
		return f.GetMeFunc(ctx)
	}
	return domain.User{ID: 1, FirstName: "Me"}, nil
}

func (f *Fake) LoadChats(ctx context.Context, list domain.ListKind, limit int) error {
	if err := f.record("LoadChats", list, limit); err != nil {
		return err
	}
	if f.LoadChatsFunc != nil {
		return f.LoadChatsFunc(ctx, list, limit)
	}
	return &backend.Error{Code: backend.CodeNotFound, Message: "Not Found"}
}

func (f *Fake) GetChatHistory(ctx context.Context, chatID domain.ChatID, from domain.MessageID, limit int) ([]domain.Message, error) {
	if err := f.record("GetChatHistory", chatID, from, limit); err != nil {
		return nil, err
	}
	if f.GetChatHistoryFunc != nil {
		return f.GetChatHistoryFunc(ctx, chatID, from, limit)
	}
	return nil, nil
}

func (f *Fake) DeleteMessages(_ context.Context, chatID domain.ChatID, ids []domain.MessageID, revoke bool) error {
	return f.record("DeleteMessages", chatID, ids, revoke)
}

func (f *Fake) SetChatDraftMessage(_ context.Context, chatID domain.ChatID, draft *domain.DraftMessage) error {
	return f.record("SetChatDraftMessage", chatID, draft)
}

func (f *Fake) SendMessage(_ context.Context, chatID domain.ChatID, text string) error {
	return f.record("SendMessage", chatID, text)
}

func (f *Fake) DeleteChatFolder(_ context.Context, folderID int) error {
	return f.record("DeleteChatFolder", folderID)
}

func (f *Fake) SetOption(_ context.Context, name string, value backend.OptionValue) error {
	return f.record("SetOption", name, value)
}

func (f *Fake) LogOut(context.Context) error {
	return f.record("LogOut")
}

func (f *Fake) Close(context.Context) error {
	return f.record("Close")
}

// Factory hands out one Fake per opened slot.
type Factory struct {
	mu       sync.Mutex
	backends []*Fake
	// Setup, if set, configures every new Fake before it is returned.
	Setup func(*Fake)
}

func (f *Factory) Open(slot account.Slot, handler backend.UpdateHandler) (backend.Backend, error) {
	fake := New()
	fake.Slot = slot
	fake.Handler = handler
	if f.Setup != nil {
		f.Setup(fake)
	}
	f.mu.Lock()
	f.backends = append(f.backends, fake)
	f.mu.Unlock()
	return fake, nil
}

// For returns the Fake opened for slot.
func (f *Factory) For(slot account.Slot) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.backends {
		if b.Slot == slot {
			return b
		}
	}
	return nil
}

// Last returns the most recently opened Fake.
func (f *Factory) Last() *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.backends) == 0 {
		return nil
	}
	return f.backends[len(f.backends)-1]
}
