package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPool_RunsTasks(t *testing.T) {
	p := NewPool(Config{MaxWorkers: 3, QueueSize: 16}, zap.NewNop())

	var done atomic.Int32
	for i := 0; i < 10; i++ {
		require.NoError(t, p.Submit(func(ctx context.Context) error {
			done.Add(1)
			return nil
		}))
	}
	require.NoError(t, p.Shutdown(context.Background()))

	assert.Equal(t, int32(10), done.Load())
	stats := p.Stats()
	assert.Equal(t, int64(10), stats.Submitted)
	assert.Equal(t, int64(10), stats.Completed)
	assert.Equal(t, 0, stats.Workers)
}

func TestPool_RespectsMaxWorkers(t *testing.T) {
	p := NewPool(Config{MaxWorkers: 2, QueueSize: 16}, zap.NewNop())

	var running, peak atomic.Int32
	release := make(chan struct{})
	for i := 0; i < 6; i++ {
		require.NoError(t, p.Submit(func(ctx context.Context) error {
			n := running.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			<-release
			running.Add(-1)
			return nil
		}))
	}

	assert.Eventually(t, func() bool { return running.Load() == 2 }, time.Second, 5*time.Millisecond)
	close(release)
	require.NoError(t, p.Shutdown(context.Background()))
	assert.Equal(t, int32(2), peak.Load())
}

func TestPool_QueueFull(t *testing.T) {
	p := NewPool(Config{MaxWorkers: 1, QueueSize: 1}, zap.NewNop())
	block := make(chan struct{})
	started := make(chan struct{})

	require.NoError(t, p.Submit(func(ctx context.Context) error {
		close(started)
		<-block
		return nil
	}))
	<-started
	require.NoError(t, p.Submit(func(ctx context.Context) error { return nil }))

	err := p.Submit(func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrPoolFull)
	assert.Equal(t, int64(1), p.Stats().Rejected)

	close(block)
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestPool_RecoversPanics(t *testing.T) {
	p := NewPool(Config{MaxWorkers: 1, QueueSize: 4}, zap.NewNop())

	require.NoError(t, p.Submit(func(ctx context.Context) error { panic("boom") }))
	require.NoError(t, p.Submit(func(ctx context.Context) error { return errors.New("failed") }))
	require.NoError(t, p.Submit(func(ctx context.Context) error { return nil }))
	require.NoError(t, p.Shutdown(context.Background()))

	stats := p.Stats()
	assert.Equal(t, int64(2), stats.Failed)
	assert.Equal(t, int64(1), stats.Completed)
}

func TestPool_SubmitAfterShutdown(t *testing.T) {
	p := NewPool(DefaultConfig(), zap.NewNop())
	require.NoError(t, p.Shutdown(context.Background()))
	assert.NoError(t, p.Shutdown(context.Background()), "second shutdown is a no-op")

	assert.ErrorIs(t, p.Submit(func(ctx context.Context) error { return nil }), ErrPoolClosed)
}

func TestPool_ShutdownDeadlineCancelsTasks(t *testing.T) {
	p := NewPool(Config{MaxWorkers: 1, QueueSize: 1}, zap.NewNop())
	started := make(chan struct{})
	var cancelled atomic.Bool

	require.NoError(t, p.Submit(func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		cancelled.Store(true)
		return ctx.Err()
	}))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p.Shutdown(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, cancelled.Load())
}

func TestPool_Hooks(t *testing.T) {
	var mu sync.Mutex
	var running []int
	p := NewPool(Config{
		MaxWorkers: 1,
		QueueSize:  4,
		Hooks: Hooks{
			OnRunning: func(n int) {
				mu.Lock()
				running = append(running, n)
				mu.Unlock()
			},
		},
	}, zap.NewNop())

	require.NoError(t, p.Submit(func(ctx context.Context) error { return nil }))
	require.NoError(t, p.Shutdown(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 0}, running)
}
