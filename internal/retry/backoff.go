package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/svdflow/types"
)

// Policy 定义有界重试策略
type Policy struct {
	MaxRetries   int                                               // 最大重试次数（0 表示不重试）
	InitialDelay time.Duration                                     // 初始延迟
	MaxDelay     time.Duration                                     // 最大延迟
	Multiplier   float64                                           // 指数退避倍数
	Jitter       bool                                              // 是否添加 ±25% 随机抖动
	ShouldRetry  func(err error) bool                              // 判断错误是否可重试（为空则按 types.IsRetryable）
	OnRetry      func(attempt int, err error, delay time.Duration) // 重试回调
}

// DefaultPolicy 返回瞬时读取错误使用的默认策略
func DefaultPolicy() *Policy {
	return &Policy{
		MaxRetries:   3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Retryer 重试器接口
type Retryer interface {
	// Do 执行 fn，失败且可重试时按策略退避后再次执行
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

// Backoff 基于指数退避的重试器
type Backoff struct {
	policy Policy
	logger *zap.Logger
}

// NewBackoff 创建指数退避重试器，非法参数回落到默认值
func NewBackoff(policy *Policy, logger *zap.Logger) *Backoff {
	p := *DefaultPolicy()
	if policy != nil {
		p = *policy
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = 1 * time.Second
	}
	if p.MaxDelay < p.InitialDelay {
		p.MaxDelay = p.InitialDelay
	}
	if p.Multiplier < 1.0 {
		p.Multiplier = 2.0
	}

	return &Backoff{
		policy: p,
		logger: logger.With(zap.String("component", "retry")),
	}
}

// Do 实现 Retryer。
// 不可重试的错误原样返回；次数耗尽时返回 *ExhaustedError，仍可通过 errors.Is/As 取到最后一次错误。
func (b *Backoff) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= b.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := b.delay(attempt)

			b.logger.Debug("retrying",
				zap.Int("attempt", attempt),
				zap.Int("max_retries", b.policy.MaxRetries),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			if b.policy.OnRetry != nil {
				b.policy.OnRetry(attempt, lastErr, delay)
			}

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("retry canceled: %w", ctx.Err())
			case <-timer.C:
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			if attempt > 0 {
				b.logger.Info("retry succeeded", zap.Int("attempt", attempt))
			}
			return nil
		}

		if !b.retryable(lastErr) {
			return lastErr
		}
	}

	b.logger.Warn("retries exhausted",
		zap.Int("attempts", b.policy.MaxRetries+1),
		zap.Error(lastErr),
	)
	return &ExhaustedError{Attempts: b.policy.MaxRetries + 1, Err: lastErr}
}

// delay = initial * multiplier^(attempt-1)，上限 MaxDelay
func (b *Backoff) delay(attempt int) time.Duration {
	d := float64(b.policy.InitialDelay) * math.Pow(b.policy.Multiplier, float64(attempt-1))
	if d > float64(b.policy.MaxDelay) {
		d = float64(b.policy.MaxDelay)
	}

	if b.policy.Jitter {
		jitter := d * 0.25
		d = d + (rand.Float64()*2-1)*jitter
	}

	if d < float64(b.policy.InitialDelay) {
		d = float64(b.policy.InitialDelay)
	}
	return time.Duration(d)
}

func (b *Backoff) retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if b.policy.ShouldRetry != nil {
		return b.policy.ShouldRetry(err)
	}
	return types.IsRetryable(err)
}

// ExhaustedError 表示重试次数耗尽
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}
