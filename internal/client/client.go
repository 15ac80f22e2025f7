// Package client drives each account through its authorization lifecycle
// and owns the set of accounts known to the application.
package client

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/danhigham/telesync/internal/account"
	"github.com/danhigham/telesync/internal/auth"
	"github.com/danhigham/telesync/internal/backend"
	"github.com/danhigham/telesync/internal/domain"
	"github.com/danhigham/telesync/internal/loop"
	"github.com/danhigham/telesync/internal/notify"
	"github.com/danhigham/telesync/internal/session"
)

var ErrNotInAuth = errors.New("client is not authenticating")

// State is the lifecycle phase of a Client: AuthState, SessionState or
// LoggingOutState.
type State interface {
	isState()
}

// AuthState is the phase before login. Sub is nil until the backend asks for
// the first authentication step.
type AuthState struct {
	Sub auth.SubState
}

type SessionState struct {
	Session *session.Session
}

type LoggingOutState struct{}

func (AuthState) isState()       {}
func (SessionState) isState()    {}
func (LoggingOutState) isState() {}

// hooks are the manager callbacks of a client.
type hooks struct {
	loggedIn func(*Client)
	closed   func(*Client)
}

// Client is one account's connection handle. Updates from the backend are
// applied strictly in stream order; updates that arrive before a session
// exists are queued and replayed into it. All methods must be called on the
// owning loop.
type Client struct {
	id      uuid.UUID
	slot    account.Slot
	discard bool

	ctx       context.Context
	loop      *loop.Loop
	backend   backend.Backend
	params    backend.InitParameters
	batchSize int
	location  *time.Location
	logger    *zap.Logger
	hooks     hooks

	state        State
	queue        []backend.Update
	fetchingSelf bool
	closed       bool

	changed notify.Observers[State]
}

func (c *Client) ID() uuid.UUID      { return c.id }
func (c *Client) Slot() account.Slot { return c.slot }
func (c *Client) State() State       { return c.state }

// DiscardIfUnauthenticated reports whether the client's account is purged
// on shutdown unless it logs in first.
func (c *Client) DiscardIfUnauthenticated() bool { return c.discard }

// Session returns the session of a logged-in client.
func (c *Client) Session() (*session.Session, bool) {
	st, ok := c.state.(SessionState)
	if !ok {
		return nil, false
	}
	return st.Session, true
}

// AuthSubState returns the pending authentication step, if any.
func (c *Client) AuthSubState() (auth.SubState, bool) {
	st, ok := c.state.(AuthState)
	if !ok || st.Sub == nil {
		return nil, false
	}
	return st.Sub, true
}

// Queued is the number of updates waiting for the session.
func (c *Client) Queued() int { return len(c.queue) }

// Subscribe registers fn for state transitions.
func (c *Client) Subscribe(fn func(State)) (cancel func()) {
	return c.changed.Subscribe(fn)
}

// receive is the backend's update handler. It may be called from any
// goroutine.
func (c *Client) receive(u backend.Update) {
	c.loop.Post(func() { c.dispatch(u) })
}

func (c *Client) dispatch(u backend.Update) {
	if c.closed {
		return
	}
	if a, ok := u.(backend.UpdateAuthorizationState); ok {
		c.handleAuthorizationState(a.State)
		return
	}
	switch st := c.state.(type) {
	case AuthState:
		c.queue = append(c.queue, u)
	case SessionState:
		st.Session.Handle(u)
	case LoggingOutState:
		c.logger.Debug("Dropping update while logging out")
	}
}

func (c *Client) handleAuthorizationState(state backend.AuthorizationState) {
	c.logger.Debug("Authorization state", zap.String("state", stateName(state)))

	switch state.(type) {
	case backend.AuthorizationStateWaitParameters:
		params := c.params
		c.call("set_init_parameters", func(ctx context.Context) error {
			return c.backend.SetInitParameters(ctx, params)
		})

	case backend.AuthorizationStateReady:
		c.becomeReady()

	case backend.AuthorizationStateClosing:
		c.leave()
		c.setState(LoggingOutState{})

	case backend.AuthorizationStateLoggingOut:
		c.logger.Info("Logging out")

	case backend.AuthorizationStateClosed:
		if _, ok := c.state.(LoggingOutState); ok && c.hooks.closed != nil {
			c.hooks.closed(c)
		}

	default:
		st, ok := c.state.(AuthState)
		if !ok {
			c.logger.Warn("Authentication step outside of auth", zap.String("state", stateName(state)))
			return
		}
		next, _ := auth.Apply(st.Sub, state, c.loop)
		if next != st.Sub {
			c.setState(AuthState{Sub: next})
		}
	}
}

// becomeReady fetches the own user and installs the session. Queued updates
// are replayed in the same loop task that installs it, so nothing arriving
// later can overtake them.
func (c *Client) becomeReady() {
	if _, ok := c.state.(AuthState); !ok || c.fetchingSelf {
		return
	}
	c.fetchingSelf = true

	loop.Go(c.loop, c.ctx, c.backend.GetMe, func(me domain.User, err error) {
		c.fetchingSelf = false
		if c.closed {
			return
		}
		st, ok := c.state.(AuthState)
		if !ok {
			return
		}
		if err != nil {
			c.logger.Error("Failed to fetch own user", zap.Error(err))
			return
		}
		if st.Sub != nil {
			st.Sub.Close()
		}

		s := session.New(session.Config{
			Ctx:       c.ctx,
			Loop:      c.loop,
			Backend:   c.backend,
			Account:   c.slot,
			Me:        me,
			BatchSize: c.batchSize,
			Logger:    c.logger,
			Location:  c.location,
		})
		queued := c.queue
		c.queue = nil
		for _, u := range queued {
			s.Handle(u)
		}
		c.logger.Info("Logged in", zap.Int64("user_id", int64(me.ID)), zap.Int("replayed", len(queued)))
		c.setState(SessionState{Session: s})

		if c.hooks.loggedIn != nil {
			c.hooks.loggedIn(c)
		}
	})
}

func (c *Client) setState(s State) {
	c.state = s
	c.changed.Emit(s)
}

// leave tears down whatever the current state owns.
func (c *Client) leave() {
	switch st := c.state.(type) {
	case AuthState:
		if st.Sub != nil {
			st.Sub.Close()
		}
	case SessionState:
		st.Session.Close()
	}
	c.queue = nil
}

// shutdown stops processing updates. Pending results are discarded.
func (c *Client) shutdown() {
	if c.closed {
		return
	}
	c.leave()
	c.closed = true
}

// call runs a request whose failure is only logged.
func (c *Client) call(what string, fn func(ctx context.Context) error) {
	loop.Go(c.loop, c.ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	}, func(_ struct{}, err error) {
		if err != nil {
			c.logger.Warn("Request failed", zap.String("request", what), zap.Error(err))
		}
	})
}

func stateName(s backend.AuthorizationState) string {
	switch s.(type) {
	case backend.AuthorizationStateWaitParameters:
		return "wait_parameters"
	case backend.AuthorizationStateReady:
		return "ready"
	case backend.AuthorizationStateLoggingOut:
		return "logging_out"
	case backend.AuthorizationStateClosing:
		return "closing"
	case backend.AuthorizationStateClosed:
		return "closed"
	}
	if k, ok := auth.KindOf(s); ok {
		return k.String()
	}
	return "unknown"
}
