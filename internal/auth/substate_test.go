package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danhigham/telesync/internal/auth"
	"github.com/danhigham/telesync/internal/backend"
)

type manualTicker struct {
	fns     []func()
	stopped int
}

func (m *manualTicker) Every(_ time.Duration, fn func()) func() {
	m.fns = append(m.fns, fn)
	done := false
	return func() {
		if !done {
			done = true
			m.stopped++
		}
	}
}

func (m *manualTicker) active() int {
	return len(m.fns) - m.stopped
}

func waitCode(timeout int, hasNext bool) backend.AuthorizationStateWaitCode {
	return backend.AuthorizationStateWaitCode{CodeInfo: backend.CodeInfo{
		PhoneNumber: "+15550000",
		Type:        backend.CodeTypeApp,
		HasNextType: hasNext,
		NextType:    backend.CodeTypeSMS,
		Timeout:     timeout,
	}}
}

func TestApply_NotAnAuthStep(t *testing.T) {
	cur, ok := auth.Apply(nil, backend.AuthorizationStateReady{}, nil)
	assert.False(t, ok)
	assert.Nil(t, cur)
}

func TestApply_SameKindUpdatesInPlace(t *testing.T) {
	ticker := &manualTicker{}
	first, ok := auth.Apply(nil, waitCode(30, true), ticker)
	require.True(t, ok)

	notified := 0
	first.Subscribe(func() { notified++ })
	first.SetError("PHONE_CODE_INVALID")

	second, ok := auth.Apply(first, waitCode(60, true), ticker)
	require.True(t, ok)

	assert.Same(t, first, second)
	assert.Equal(t, 2, notified)
	assert.Empty(t, second.Error())
	assert.Equal(t, 60, second.(*auth.WaitCode).ResendIn())
	assert.Equal(t, 1, ticker.active())
}

func TestApply_DifferentKindReplaces(t *testing.T) {
	ticker := &manualTicker{}
	code, _ := auth.Apply(nil, waitCode(30, true), ticker)

	next, ok := auth.Apply(code, backend.AuthorizationStateWaitPassword{Hint: "cat"}, ticker)
	require.True(t, ok)

	assert.NotSame(t, code, next)
	assert.Equal(t, auth.KindWaitPassword, next.Kind())
	assert.Equal(t, "cat", next.(*auth.WaitPassword).Hint())
	assert.Equal(t, 0, ticker.active(), "replaced code step must stop its countdown")
}

func TestWaitCode_Countdown(t *testing.T) {
	ticker := &manualTicker{}
	s, _ := auth.Apply(nil, waitCode(2, true), ticker)
	code := s.(*auth.WaitCode)

	assert.False(t, code.ResendAvailable())
	ticker.fns[0]()
	assert.Equal(t, 1, code.ResendIn())
	ticker.fns[0]()
	assert.Equal(t, 0, code.ResendIn())
	assert.True(t, code.ResendAvailable())
	assert.Equal(t, 0, ticker.active())
}

func TestWaitCode_NoNextTypeNoTicker(t *testing.T) {
	ticker := &manualTicker{}
	s, _ := auth.Apply(nil, waitCode(30, false), ticker)
	code := s.(*auth.WaitCode)

	assert.Empty(t, ticker.fns)
	assert.Equal(t, 0, code.ResendIn())
	assert.False(t, code.ResendAvailable())
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		state backend.AuthorizationState
		kind  auth.Kind
		ok    bool
	}{
		{backend.AuthorizationStateWaitPhoneNumber{}, auth.KindWaitPhoneNumber, true},
		{backend.AuthorizationStateWaitCode{}, auth.KindWaitCode, true},
		{backend.AuthorizationStateWaitPassword{}, auth.KindWaitPassword, true},
		{backend.AuthorizationStateWaitRegistration{}, auth.KindWaitRegistration, true},
		{backend.AuthorizationStateWaitOtherDeviceConfirmation{Link: "tg://login"}, auth.KindWaitOtherDeviceConfirmation, true},
		{backend.AuthorizationStateClosing{}, 0, false},
	}
	for _, tt := range tests {
		kind, ok := auth.KindOf(tt.state)
		assert.Equal(t, tt.ok, ok)
		if ok {
			assert.Equal(t, tt.kind, kind)
		}
	}
}
