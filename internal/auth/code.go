package auth

import (
	"time"

	"github.com/danhigham/telesync/internal/backend"
)

// WaitCode is the step waiting for the code the backend sent. It counts down
// the seconds until another delivery method may be requested.
type WaitCode struct {
	base
	info      backend.CodeInfo
	remaining int
	ticker    Ticker
	stopTick  func()
}

func (*WaitCode) Kind() Kind { return KindWaitCode }

func (w *WaitCode) CodeInfo() backend.CodeInfo { return w.info }

// ResendIn is the number of seconds until ResendAvailable turns true.
func (w *WaitCode) ResendIn() int { return w.remaining }

// ResendAvailable reports whether the code may be re-sent by NextType now.
func (w *WaitCode) ResendAvailable() bool {
	return w.info.HasNextType && w.remaining == 0
}

// Tick advances the countdown by one second.
func (w *WaitCode) Tick() {
	if w.remaining == 0 {
		w.stopTicker()
		return
	}
	w.remaining--
	if w.remaining == 0 {
		w.stopTicker()
	}
	w.notify()
}

func (w *WaitCode) Close() {
	w.stopTicker()
}

func (w *WaitCode) update(state backend.AuthorizationState) {
	w.info = state.(backend.AuthorizationStateWaitCode).CodeInfo
	w.err = ""
	w.stopTicker()

	w.remaining = 0
	if w.info.HasNextType && w.info.Timeout > 0 {
		w.remaining = w.info.Timeout
		if w.ticker != nil {
			w.stopTick = w.ticker.Every(time.Second, w.Tick)
		}
	}
	w.notify()
}

func (w *WaitCode) stopTicker() {
	if w.stopTick != nil {
		w.stopTick()
		w.stopTick = nil
	}
}
