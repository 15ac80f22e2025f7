package notify_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/danhigham/telesync/internal/notify"
)

func TestObservers_EmitAndCancel(t *testing.T) {
	var o notify.Observers[notify.Change]

	var a, b []notify.Change
	cancelA := o.Subscribe(func(c notify.Change) { a = append(a, c) })
	o.Subscribe(func(c notify.Change) { b = append(b, c) })

	o.Emit(notify.Change{Kind: notify.Inserted, Index: 1})
	cancelA()
	o.Emit(notify.Change{Kind: notify.Removed, Index: 0})

	assert.Len(t, a, 1)
	assert.Len(t, b, 2)
	assert.Equal(t, 1, o.Len())
	assert.Equal(t, notify.Removed, b[1].Kind)
}

func TestObservers_CancelDuringEmit(t *testing.T) {
	var o notify.Observers[int]

	calls := 0
	var cancel func()
	cancel = o.Subscribe(func(int) {
		calls++
		cancel()
	})
	o.Subscribe(func(int) { calls++ })

	o.Emit(1)
	o.Emit(2)

	assert.Equal(t, 3, calls)
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "moved", notify.Moved.String())
	assert.Equal(t, "main_position_changed", notify.MainPositionChanged.String())
}
