// Package auth holds the per-step data of an account that is not logged in
// yet. A sub-state lives as long as the backend stays in the same kind of
// authorization step; payload changes are applied in place so attached
// observers and timers survive.
package auth

import (
	"time"

	"github.com/danhigham/telesync/internal/backend"
	"github.com/danhigham/telesync/internal/notify"
)

// Kind enumerates the authorization steps.
type Kind int

const (
	KindWaitPhoneNumber Kind = iota
	KindWaitCode
	KindWaitPassword
	KindWaitRegistration
	KindWaitOtherDeviceConfirmation
)

func (k Kind) String() string {
	switch k {
	case KindWaitPhoneNumber:
		return "wait_phone_number"
	case KindWaitCode:
		return "wait_code"
	case KindWaitPassword:
		return "wait_password"
	case KindWaitRegistration:
		return "wait_registration"
	case KindWaitOtherDeviceConfirmation:
		return "wait_other_device_confirmation"
	default:
		return "unknown"
	}
}

// Ticker schedules fn on the owning loop every d. loop.Loop implements it.
type Ticker interface {
	Every(d time.Duration, fn func()) (stop func())
}

// SubState is one pending authentication step.
type SubState interface {
	Kind() Kind
	// Error is the message of the last failed attempt at this step.
	Error() string
	SetError(msg string)
	// Subscribe registers fn to be called after any change of the step.
	Subscribe(fn func()) (cancel func())
	// Close stops timers owned by the step.
	Close()

	update(state backend.AuthorizationState)
}

// KindOf maps an authorization state to its step kind. It reports false for
// states that are not authentication steps.
func KindOf(state backend.AuthorizationState) (Kind, bool) {
	switch state.(type) {
	case backend.AuthorizationStateWaitPhoneNumber:
		return KindWaitPhoneNumber, true
	case backend.AuthorizationStateWaitCode:
		return KindWaitCode, true
	case backend.AuthorizationStateWaitPassword:
		return KindWaitPassword, true
	case backend.AuthorizationStateWaitRegistration:
		return KindWaitRegistration, true
	case backend.AuthorizationStateWaitOtherDeviceConfirmation:
		return KindWaitOtherDeviceConfirmation, true
	default:
		return 0, false
	}
}

// Apply moves from cur to state. If cur is the same kind, its payload is
// updated in place and cur is returned; otherwise cur is closed and a new
// sub-state is built. cur may be nil. ok is false when state is not an
// authentication step, in which case cur is returned untouched.
func Apply(cur SubState, state backend.AuthorizationState, ticker Ticker) (next SubState, ok bool) {
	kind, ok := KindOf(state)
	if !ok {
		return cur, false
	}
	if cur != nil && cur.Kind() == kind {
		cur.update(state)
		return cur, true
	}
	if cur != nil {
		cur.Close()
	}

	switch s := state.(type) {
	case backend.AuthorizationStateWaitPhoneNumber:
		return &WaitPhoneNumber{}, true
	case backend.AuthorizationStateWaitCode:
		w := &WaitCode{ticker: ticker}
		w.update(s)
		return w, true
	case backend.AuthorizationStateWaitPassword:
		return &WaitPassword{payload: s}, true
	case backend.AuthorizationStateWaitRegistration:
		return &WaitRegistration{terms: s.TermsOfService}, true
	case backend.AuthorizationStateWaitOtherDeviceConfirmation:
		return &WaitOtherDeviceConfirmation{link: s.Link}, true
	}
	panic("unreachable")
}

type base struct {
	err     string
	changed notify.Observers[struct{}]
}

func (b *base) Error() string { return b.err }

func (b *base) SetError(msg string) {
	b.err = msg
	b.notify()
}

func (b *base) Subscribe(fn func()) func() {
	return b.changed.Subscribe(func(struct{}) { fn() })
}

func (b *base) Close() {}

func (b *base) notify() {
	b.changed.Emit(struct{}{})
}

type WaitPhoneNumber struct {
	base
}

func (*WaitPhoneNumber) Kind() Kind { return KindWaitPhoneNumber }

func (w *WaitPhoneNumber) update(backend.AuthorizationState) {
	w.err = ""
	w.notify()
}

type WaitPassword struct {
	base
	payload backend.AuthorizationStateWaitPassword
}

func (*WaitPassword) Kind() Kind { return KindWaitPassword }

func (w *WaitPassword) Hint() string                 { return w.payload.Hint }
func (w *WaitPassword) HasRecoveryEmail() bool       { return w.payload.HasRecoveryEmail }
func (w *WaitPassword) RecoveryEmailPattern() string { return w.payload.RecoveryEmailPattern }

func (w *WaitPassword) update(state backend.AuthorizationState) {
	w.payload = state.(backend.AuthorizationStateWaitPassword)
	w.err = ""
	w.notify()
}

type WaitRegistration struct {
	base
	terms backend.TermsOfService
}

func (*WaitRegistration) Kind() Kind { return KindWaitRegistration }

func (w *WaitRegistration) TermsOfService() backend.TermsOfService { return w.terms }

func (w *WaitRegistration) update(state backend.AuthorizationState) {
	w.terms = state.(backend.AuthorizationStateWaitRegistration).TermsOfService
	w.err = ""
	w.notify()
}

type WaitOtherDeviceConfirmation struct {
	base
	link string
}

func (*WaitOtherDeviceConfirmation) Kind() Kind { return KindWaitOtherDeviceConfirmation }

// Link is the tg:// login link to confirm from an already logged-in device.
func (w *WaitOtherDeviceConfirmation) Link() string { return w.link }

func (w *WaitOtherDeviceConfirmation) update(state backend.AuthorizationState) {
	w.link = state.(backend.AuthorizationStateWaitOtherDeviceConfirmation).Link
	w.err = ""
	w.notify()
}
