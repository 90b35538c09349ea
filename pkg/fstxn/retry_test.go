package fstxn

import (
	"context"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetry_ExhaustsTransientError(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, Backoff: time.Millisecond}

	calls := 0
	err := p.do(context.Background(), func() error {
		calls++
		return syscall.EAGAIN
	})

	assert.Equal(t, 3, calls)
	require.Error(t, err)
	assert.Equal(t, CodeIO, CodeOf(err))
	assert.ErrorIs(t, err, syscall.EAGAIN)
}

func TestRetry_SucceedsAfterTransientFailure(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, Backoff: time.Millisecond}

	calls := 0
	err := p.do(context.Background(), func() error {
		calls++
		if calls == 1 {
			return syscall.EBUSY
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetry_TerminalErrorReturnsImmediately(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, Backoff: time.Millisecond}

	calls := 0
	err := p.do(context.Background(), func() error {
		calls++
		return os.ErrPermission
	})

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, os.ErrPermission)
	assert.Equal(t, ErrorCode(0), CodeOf(err))
}

func TestRetry_CancelledBetweenAttempts(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, Backoff: time.Minute}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- p.do(ctx, func() error {
			calls++
			cancel()
			return syscall.EINTR
		})
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	case <-time.After(5 * time.Second):
		t.Fatal("retry did not observe cancellation")
	}
}
