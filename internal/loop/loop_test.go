package loop_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danhigham/telesync/internal/loop"
)

func TestLoop_PostRunsInOrder(t *testing.T) {
	l := loop.New()

	var got []int
	for i := 0; i < 5; i++ {
		i := i
		l.Post(func() { got = append(got, i) })
	}
	l.Settle()

	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestLoop_GoPostsContinuation(t *testing.T) {
	l := loop.New()

	release := make(chan struct{})
	var order []string
	loop.Go(l, context.Background(), func(context.Context) (int, error) {
		<-release
		return 42, nil
	}, func(v int, err error) {
		require.NoError(t, err)
		order = append(order, "done")
		assert.Equal(t, 42, v)
	})
	l.Post(func() { order = append(order, "queued") })

	go func() {
		time.Sleep(10 * time.Millisecond)
		close(release)
	}()
	l.Settle()

	assert.Equal(t, []string{"queued", "done"}, order)
}

func TestLoop_GoPropagatesError(t *testing.T) {
	l := loop.New()
	boom := errors.New("boom")

	var gotErr error
	loop.Go(l, context.Background(), func(context.Context) (struct{}, error) {
		return struct{}{}, boom
	}, func(_ struct{}, err error) {
		gotErr = err
	})
	l.Settle()

	assert.ErrorIs(t, gotErr, boom)
}

func TestLoop_CloseDiscardsLateResults(t *testing.T) {
	l := loop.New()

	release := make(chan struct{})
	called := false
	loop.Go(l, context.Background(), func(context.Context) (int, error) {
		<-release
		return 1, nil
	}, func(int, error) {
		called = true
	})

	l.Close()
	close(release)
	l.Settle()

	assert.False(t, called)
	assert.False(t, l.Post(func() {}))
}

func TestLoop_RunAndDo(t *testing.T) {
	l := loop.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(ctx) }()

	value := 0
	require.True(t, l.Do(func() { value = 7 }))
	assert.Equal(t, 7, value)

	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)
}
