// Package worker provides the bounded goroutine pool that executes service jobs.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	ErrPoolClosed = errors.New("worker pool is closed")
	ErrPoolFull   = errors.New("worker pool queue is full")
)

// Task 一个工作单元。ctx 来自池本身，Shutdown 超时后被取消。
type Task func(ctx context.Context) error

// Hooks 队列与执行数变化回调，用于上报指标
type Hooks struct {
	OnQueued  func(n int)
	OnRunning func(n int)
}

// Config configures the pool.
type Config struct {
	MaxWorkers  int           `json:"max_workers" yaml:"max_workers"`
	QueueSize   int           `json:"queue_size" yaml:"queue_size"`
	IdleTimeout time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
	Hooks       Hooks         `json:"-" yaml:"-"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxWorkers:  4,
		QueueSize:   64,
		IdleTimeout: 60 * time.Second,
	}
}

// Pool manages a bounded set of worker goroutines fed by a queue.
type Pool struct {
	maxWorkers  int
	taskQueue   chan Task
	workerCount atomic.Int32
	activeCount atomic.Int32
	wg          sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	ctx    context.Context
	cancel context.CancelFunc

	// Metrics
	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64

	idleTimeout time.Duration
	hooks       Hooks
	logger      *zap.Logger
}

// NewPool creates a new pool. Workers are spawned on demand up to MaxWorkers.
func NewPool(config Config, logger *zap.Logger) *Pool {
	d := DefaultConfig()
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = d.MaxWorkers
	}
	if config.QueueSize <= 0 {
		config.QueueSize = d.QueueSize
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = d.IdleTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		maxWorkers:  config.MaxWorkers,
		taskQueue:   make(chan Task, config.QueueSize),
		ctx:         ctx,
		cancel:      cancel,
		idleTimeout: config.IdleTimeout,
		hooks:       config.Hooks,
		logger:      logger.With(zap.String("component", "worker_pool")),
	}
}

// Submit enqueues task without blocking. A full queue returns ErrPoolFull.
func (p *Pool) Submit(task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}

	p.submitted.Add(1)

	select {
	case p.taskQueue <- task:
		p.notifyQueued()
		p.ensureWorker()
		return nil
	default:
		// 队列已满，尝试再拉起一个 worker
		if p.trySpawnWorker() {
			select {
			case p.taskQueue <- task:
				p.notifyQueued()
				return nil
			default:
			}
		}
		p.rejected.Add(1)
		return ErrPoolFull
	}
}

func (p *Pool) ensureWorker() {
	if p.workerCount.Load() < int32(p.maxWorkers) {
		p.trySpawnWorker()
	}
}

func (p *Pool) trySpawnWorker() bool {
	for {
		current := p.workerCount.Load()
		if current >= int32(p.maxWorkers) {
			return false
		}
		if p.workerCount.CompareAndSwap(current, current+1) {
			p.wg.Add(1)
			go p.worker()
			return true
		}
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()

	timer := time.NewTimer(p.idleTimeout)
	defer timer.Stop()

	for {
		select {
		case task, ok := <-p.taskQueue:
			if !ok {
				p.workerCount.Add(-1)
				return
			}
			p.notifyQueued()

			p.notifyRunning(p.activeCount.Add(1))
			err := p.execute(task)
			p.notifyRunning(p.activeCount.Add(-1))

			if err != nil {
				p.failed.Add(1)
			} else {
				p.completed.Add(1)
			}

			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(p.idleTimeout)

		case <-timer.C:
			// 空闲超时，至少保留一个 worker；CAS 避免多个 worker 同时退出
			if cur := p.workerCount.Load(); cur > 1 && p.workerCount.CompareAndSwap(cur, cur-1) {
				return
			}
			timer.Reset(p.idleTimeout)
		}
	}
}

func (p *Pool) execute(task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("task panicked", zap.Any("panic", r), zap.Stack("stack"))
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()

	return task(p.ctx)
}

func (p *Pool) notifyQueued() {
	if p.hooks.OnQueued != nil {
		p.hooks.OnQueued(len(p.taskQueue))
	}
}

func (p *Pool) notifyRunning(n int32) {
	if p.hooks.OnRunning != nil {
		p.hooks.OnRunning(int(n))
	}
}

// Shutdown stops accepting tasks and waits for queued and running tasks.
// When ctx expires first, running tasks see their context cancelled.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.taskQueue)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.logger.Warn("shutdown deadline reached, cancelling running tasks",
			zap.Int32("active", p.activeCount.Load()))
		p.cancel()
		<-done
		return ctx.Err()
	}
}

// Stats returns pool statistics.
func (p *Pool) Stats() Stats {
	return Stats{
		Workers:   int(p.workerCount.Load()),
		Active:    int(p.activeCount.Load()),
		Queued:    len(p.taskQueue),
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Rejected:  p.rejected.Load(),
	}
}

// Stats contains pool statistics.
type Stats struct {
	Workers   int   `json:"workers"`
	Active    int   `json:"active"`
	Queued    int   `json:"queued"`
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Rejected  int64 `json:"rejected"`
}
