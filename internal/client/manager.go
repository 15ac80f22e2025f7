package client

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/danhigham/telesync/internal/account"
	"github.com/danhigham/telesync/internal/backend"
	"github.com/danhigham/telesync/internal/loop"
	"github.com/danhigham/telesync/internal/notify"
)

// Config is shared by every client of a Manager.
type Config struct {
	Ctx     context.Context
	Loop    *loop.Loop
	Store   *account.Store
	Factory backend.Factory
	// Params is the template for each client's init parameters; the
	// database directory and environment are filled in per slot.
	Params    backend.InitParameters
	BatchSize int
	Location  *time.Location
	Logger    *zap.Logger
}

// Manager owns one Client per account slot. All methods except Close must
// be called on the owning loop.
type Manager struct {
	cfg     Config
	logger  *zap.Logger
	clients []*Client

	added    notify.Observers[*Client]
	removed  notify.Observers[*Client]
	loggedIn notify.Observers[*Client]
}

func NewManager(cfg Config) *Manager {
	return &Manager{cfg: cfg, logger: cfg.Logger.Named("client")}
}

func (m *Manager) SubscribeAdded(fn func(*Client)) (cancel func())   { return m.added.Subscribe(fn) }
func (m *Manager) SubscribeRemoved(fn func(*Client)) (cancel func()) { return m.removed.Subscribe(fn) }

// SubscribeLoggedIn registers fn for clients reaching a session.
func (m *Manager) SubscribeLoggedIn(fn func(*Client)) (cancel func()) {
	return m.loggedIn.Subscribe(fn)
}

// AddNewClient creates a client for a fresh account slot. Unless it logs in,
// the slot is purged on Close.
func (m *Manager) AddNewClient(useTestDC bool) (*Client, error) {
	slot, err := m.cfg.Store.Allocate(useTestDC)
	if err != nil {
		return nil, errors.Wrap(err, "allocate slot")
	}
	c, err := m.add(slot, true)
	if err != nil {
		if rmErr := m.cfg.Store.Remove(slot); rmErr != nil {
			m.logger.Warn("Failed to remove slot", zap.String("account", slot.Dir), zap.Error(rmErr))
		}
		return nil, err
	}
	return c, nil
}

// Restore creates clients for all persisted slots that have none yet.
func (m *Manager) Restore() error {
	slots, err := m.cfg.Store.List()
	if err != nil {
		return errors.Wrap(err, "list slots")
	}
	var errs error
	for _, slot := range slots {
		if _, ok := m.ClientByAccountSlot(slot); ok {
			continue
		}
		if _, err := m.add(slot, false); err != nil {
			errs = multierr.Append(errs, errors.Wrapf(err, "restore %s", slot.Dir))
		}
	}
	return errs
}

func (m *Manager) add(slot account.Slot, discard bool) (*Client, error) {
	if _, ok := m.ClientByAccountSlot(slot); ok {
		return nil, errors.Errorf("slot %s already has a client", slot.Dir)
	}

	params := m.cfg.Params
	params.DatabaseDirectory = m.cfg.Store.Path(slot)
	params.UseTestDC = slot.UseTestDC

	c := &Client{
		id:        uuid.New(),
		slot:      slot,
		discard:   discard,
		ctx:       m.cfg.Ctx,
		loop:      m.cfg.Loop,
		params:    params,
		batchSize: m.cfg.BatchSize,
		location:  m.cfg.Location,
		logger:    m.logger.With(zap.String("account", slot.Dir)),
		hooks: hooks{
			loggedIn: m.onClientLoggedIn,
			closed:   m.RemoveClient,
		},
		state: AuthState{},
	}
	b, err := m.cfg.Factory(slot, c.receive)
	if err != nil {
		return nil, errors.Wrap(err, "open backend")
	}
	c.backend = b

	m.clients = append(m.clients, c)
	c.logger.Info("Client added", zap.Bool("test_dc", slot.UseTestDC))
	m.added.Emit(c)
	return c, nil
}

// RemoveClient unregisters c, closes its backend and deletes its storage
// directory. Failures to delete are logged only.
func (m *Manager) RemoveClient(c *Client) {
	i := m.indexOf(c)
	if i < 0 {
		return
	}
	m.clients = append(m.clients[:i], m.clients[i+1:]...)
	c.shutdown()

	store := m.cfg.Store
	loop.Go(m.cfg.Loop, context.Background(), func(ctx context.Context) (struct{}, error) {
		err := c.backend.Close(ctx)
		if rmErr := store.Remove(c.slot); rmErr != nil && !errors.Is(rmErr, account.ErrSlotNotFound) {
			err = multierr.Append(err, rmErr)
		}
		return struct{}{}, err
	}, func(_ struct{}, err error) {
		if err != nil {
			c.logger.Warn("Failed to purge account", zap.Error(err))
		}
	})

	c.logger.Info("Client removed")
	m.removed.Emit(c)
}

func (m *Manager) ClientByAccountSlot(slot account.Slot) (*Client, bool) {
	for _, c := range m.clients {
		if c.slot == slot {
			return c, true
		}
	}
	return nil, false
}

// FirstClient returns the oldest registered client.
func (m *Manager) FirstClient() (*Client, bool) {
	if len(m.clients) == 0 {
		return nil, false
	}
	return m.clients[0], true
}

func (m *Manager) Clients() []*Client {
	out := make([]*Client, len(m.clients))
	copy(out, m.clients)
	return out
}

// onClientLoggedIn keeps the new session unless the same user is already
// logged in on the same environment, in which case the newcomer is dropped.
func (m *Manager) onClientLoggedIn(c *Client) {
	c.discard = false

	s, _ := c.Session()
	me := s.Me().ID
	for _, other := range m.clients {
		if other == c || other.slot.UseTestDC != c.slot.UseTestDC {
			continue
		}
		if existing, ok := other.Session(); ok && existing.Me().ID == me {
			c.logger.Info("Account already logged in", zap.String("logged_in_as", other.slot.Dir))
			m.RemoveClient(c)
			return
		}
	}
	m.loggedIn.Emit(c)
}

// Close shuts every client down and closes its backend. Accounts that never
// logged in after AddNewClient are purged. It must be called once the loop
// no longer runs.
func (m *Manager) Close(ctx context.Context) error {
	var errs error
	for _, c := range m.clients {
		_, authenticating := c.state.(AuthState)
		c.shutdown()
		errs = multierr.Append(errs, c.backend.Close(ctx))
		if c.discard && authenticating {
			if err := m.cfg.Store.Remove(c.slot); err != nil && !errors.Is(err, account.ErrSlotNotFound) {
				errs = multierr.Append(errs, err)
			}
		}
	}
	m.clients = nil
	return errs
}

func (m *Manager) indexOf(c *Client) int {
	for i, cur := range m.clients {
		if cur == c {
			return i
		}
	}
	return -1
}
