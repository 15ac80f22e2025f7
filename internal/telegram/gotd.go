// Package telegram implements backend.Backend on top of gotd/td. Pull
// requests are plain RPC calls; everything they load is pushed back through
// the account's update stream the way the gap-aware update manager delivers
// server updates.
package telegram

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/go-faster/errors"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/dcs"
	"github.com/gotd/td/telegram/updates"
	"github.com/gotd/td/tg"
	"go.uber.org/zap"

	"github.com/danhigham/telesync/internal/account"
	"github.com/danhigham/telesync/internal/backend"
	"github.com/danhigham/telesync/internal/domain"
)

// ErrClosed is returned by requests made after Close.
var ErrClosed = errors.New("telegram backend closed")

const testDC = 2

// Backend is one account's gotd connection.
type Backend struct {
	slot    account.Slot
	handler backend.UpdateHandler
	logger  *zap.Logger

	emitMu sync.Mutex

	reg        *registry
	dispatcher tg.UpdateDispatcher
	gaps       *updates.Manager
	gapsOn     atomic.Bool

	ready      chan struct{} // connection is up
	done       chan struct{} // run returned or never started
	authorized chan struct{}
	authOnce   sync.Once
	closeOnce  sync.Once

	mu       sync.Mutex
	client   *telegram.Client
	runCtx   context.Context
	cancel   context.CancelFunc
	stopped  bool
	self     *tg.User
	phone    string
	codeHash string
	tempSeq  int64
	pagers   map[domain.ListType]*pager
	loaded   map[int]bool // folders already materialized
	filters  []tg.DialogFilterClass
}

var _ backend.Backend = (*Backend)(nil)

// Open creates the backend for slot and reports that it waits for its
// init parameters. Nothing touches the network before SetInitParameters.
func Open(slot account.Slot, handler backend.UpdateHandler, logger *zap.Logger) *Backend {
	b := &Backend{
		slot:       slot,
		handler:    handler,
		logger:     logger.With(zap.String("account", slot.Dir)),
		reg:        newRegistry(),
		dispatcher: tg.NewUpdateDispatcher(),
		ready:      make(chan struct{}),
		done:       make(chan struct{}),
		authorized: make(chan struct{}),
		pagers:     make(map[domain.ListType]*pager),
		loaded:     make(map[int]bool),
	}
	b.registerHandlers()
	b.gaps = updates.New(updates.Config{
		Handler: b.dispatcher,
		Logger:  b.logger.Named("gaps"),
	})
	b.emitAuth(backend.AuthorizationStateWaitParameters{})
	return b
}

func (b *Backend) emit(u backend.Update) {
	b.emitMu.Lock()
	defer b.emitMu.Unlock()
	b.handler(u)
}

func (b *Backend) emitAuth(s backend.AuthorizationState) {
	b.emit(backend.UpdateAuthorizationState{State: s})
}

// handleUpdates feeds raw server updates to the dispatcher until the
// account is logged in, and through the gap manager afterwards.
func (b *Backend) handleUpdates(ctx context.Context, u tg.UpdatesClass) error {
	if b.gapsOn.Load() {
		return b.gaps.Handle(ctx, u)
	}
	return b.dispatcher.Handle(ctx, u)
}

func (b *Backend) SetInitParameters(_ context.Context, p backend.InitParameters) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case b.stopped:
		return ErrClosed
	case b.client != nil:
		return &backend.Error{Code: 400, Message: "ALREADY_INITIALIZED"}
	}
	if err := os.MkdirAll(p.DatabaseDirectory, 0o700); err != nil {
		return errors.Wrap(err, "create database directory")
	}

	opts := telegram.Options{
		Logger:         b.logger.Named("mtproto"),
		SessionStorage: &fileSession{path: filepath.Join(p.DatabaseDirectory, "session.json")},
		UpdateHandler:  telegram.UpdateHandlerFunc(b.handleUpdates),
		Device: telegram.DeviceConfig{
			DeviceModel:    p.DeviceModel,
			AppVersion:     p.ApplicationVersion,
			SystemLangCode: p.SystemLanguageCode,
			LangCode:       p.SystemLanguageCode,
		},
	}
	if p.UseTestDC {
		opts.DCList = dcs.Test()
		opts.DC = testDC
	}
	b.client = telegram.NewClient(p.APIID, p.APIHash, opts)
	b.runCtx, b.cancel = context.WithCancel(context.Background())
	go b.run(b.runCtx, b.client)
	return nil
}

func (b *Backend) run(ctx context.Context, client *telegram.Client) {
	defer close(b.done)

	err := client.Run(ctx, func(ctx context.Context) error {
		close(b.ready)

		status, err := client.Auth().Status(ctx)
		if err != nil {
			return errors.Wrap(err, "auth status")
		}
		if !status.Authorized {
			b.emitAuth(backend.AuthorizationStateWaitPhoneNumber{})
			select {
			case <-b.authorized:
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		self, err := client.Self(ctx)
		if err != nil {
			return errors.Wrap(err, "get self")
		}
		b.mu.Lock()
		b.self = self
		b.mu.Unlock()
		b.reg.addEntities(map[int64]*tg.User{self.ID: self}, nil, nil)

		b.emitAuth(backend.AuthorizationStateReady{})
		b.emit(backend.UpdateUser{User: convertUser(self)})
		if err := b.refreshFolders(ctx, client.API()); err != nil {
			b.logger.Warn("Failed to load chat folders", zap.Error(err))
		}

		b.gapsOn.Store(true)
		return b.gaps.Run(ctx, client.API(), self.ID, updates.AuthOptions{})
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		b.logger.Error("Connection stopped", zap.Error(err))
	}
}

// connected waits until the MTProto connection is up.
func (b *Backend) connected(ctx context.Context) (*telegram.Client, error) {
	select {
	case <-b.ready:
		return b.client, nil
	case <-b.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (b *Backend) api(ctx context.Context) (*tg.Client, error) {
	client, err := b.connected(ctx)
	if err != nil {
		return nil, err
	}
	return client.API(), nil
}

func (b *Backend) selfUser() *tg.User {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.self
}

func (b *Backend) markAuthorized() {
	b.authOnce.Do(func() { close(b.authorized) })
}

func (b *Backend) GetMe(ctx context.Context) (domain.User, error) {
	client, err := b.connected(ctx)
	if err != nil {
		return domain.User{}, err
	}
	self, err := client.Self(ctx)
	if err != nil {
		return domain.User{}, requestError(err)
	}
	b.mu.Lock()
	b.self = self
	b.mu.Unlock()
	return convertUser(self), nil
}

// SetOption supports "online", which sets the account's presence.
func (b *Backend) SetOption(ctx context.Context, name string, value backend.OptionValue) error {
	if name != "online" {
		return &backend.Error{Code: 400, Message: "OPTION_NAME_UNKNOWN"}
	}
	v, ok := value.(backend.OptionBoolean)
	if !ok {
		return &backend.Error{Code: 400, Message: "OPTION_VALUE_INVALID"}
	}
	api, err := b.api(ctx)
	if err != nil {
		return err
	}
	_, err = api.AccountUpdateStatus(ctx, !v.Value)
	return requestError(err)
}

// LogOut terminates the session on the server and stops the connection.
// A failed server call is logged: the local session is dropped either way.
func (b *Backend) LogOut(ctx context.Context) error {
	api, err := b.api(ctx)
	if err != nil {
		return err
	}
	b.emitAuth(backend.AuthorizationStateLoggingOut{})
	if _, err := api.AuthLogOut(ctx); err != nil {
		b.logger.Warn("Server logout failed", zap.Error(err))
	}
	b.emitAuth(backend.AuthorizationStateClosing{})
	if err := b.Close(ctx); err != nil {
		return err
	}
	b.emitAuth(backend.AuthorizationStateClosed{})
	return nil
}

// Close stops the connection and waits for it to wind down.
func (b *Backend) Close(ctx context.Context) error {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.stopped = true
		if b.cancel != nil {
			b.cancel()
		} else {
			close(b.done)
		}
	})
	select {
	case <-b.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
