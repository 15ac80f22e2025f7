// Package state hands the UI read-only snapshots of the synchronization
// core. Snapshots are built on the core's loop by a Binder and read from any
// goroutine through a Store.
package state

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/danhigham/telesync/internal/account"
	"github.com/danhigham/telesync/internal/auth"
	"github.com/danhigham/telesync/internal/backend"
	"github.com/danhigham/telesync/internal/domain"
)

type Phase int

const (
	PhaseAuth Phase = iota
	PhaseSession
	PhaseLoggingOut
)

// AuthStep is the pending authentication step of an account. Waiting is
// true before the backend asked for the first step.
type AuthStep struct {
	Waiting  bool
	Kind     auth.Kind
	Error    string
	CodeInfo backend.CodeInfo
	ResendIn int
	Hint     string
	Link     string
	Terms    backend.TermsOfService
}

type ChatRow struct {
	ID      domain.ChatID
	Title   string
	Preview string
	Date    time.Time
	Unread  int
	Pinned  bool
	Draft   string
}

type ListView struct {
	Kind      domain.ListKind
	Title     string
	Icon      string
	Unread    int
	Chats     []ChatRow
	Loading   bool
	Exhausted bool
}

// Section is one calendar day of history, oldest message first.
type Section struct {
	Day      time.Time
	Messages []domain.Message
}

type HistoryView struct {
	ChatID    domain.ChatID
	Title     string
	Draft     string
	Sections  []Section
	Loading   bool
	Exhausted bool
}

type Account struct {
	ClientID uuid.UUID
	Slot     account.Slot
	Phase    Phase
	Auth     AuthStep
	Me       domain.User
	// Lists are the folder tabs in display order, archive last.
	Lists []ListView
}

// Snapshot is everything the UI renders. Active is -1 without accounts.
type Snapshot struct {
	Accounts []Account
	Active   int
	List     int
	History  *HistoryView
	Status   string
}

// ActiveAccount returns the selected account.
func (s Snapshot) ActiveAccount() (Account, bool) {
	if s.Active < 0 || s.Active >= len(s.Accounts) {
		return Account{}, false
	}
	return s.Accounts[s.Active], true
}

// ActiveList returns the selected tab of the selected account.
func (s Snapshot) ActiveList() (ListView, bool) {
	a, ok := s.ActiveAccount()
	if !ok || s.List < 0 || s.List >= len(a.Lists) {
		return ListView{}, false
	}
	return a.Lists[s.List], true
}

// Store holds the latest snapshot. Published snapshots are never modified,
// so readers may keep them.
type Store struct {
	mu       sync.RWMutex
	snap     Snapshot
	drawFunc func()
}

func New(drawFunc func()) *Store {
	return &Store{
		snap:     Snapshot{Active: -1},
		drawFunc: drawFunc,
	}
}

func (s *Store) SetDrawFunc(f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drawFunc = f
}

// Publish replaces the snapshot and asks the UI to redraw.
func (s *Store) Publish(snap Snapshot) {
	s.mu.Lock()
	s.snap = snap
	draw := s.drawFunc
	s.mu.Unlock()

	if draw != nil {
		draw()
	}
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}
