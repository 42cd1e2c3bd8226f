package inference

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/svdflow/internal/objectstore"
	"github.com/BaSui01/svdflow/internal/retry"
	"github.com/BaSui01/svdflow/internal/telemetry"
)

// Poll 读取一次结果位置。
// 结果不存在返回 NOT_READY（可重试）；服务端写入失败结果返回 INFERENCE_FAILED；
// 瞬时错误在本次读取内有限重试，耗尽或其它读取错误返回 READ_FAILED。
func (c *Client) Poll(ctx context.Context, h *SubmissionHandle) ([]byte, error) {
	ctx, span := c.tracer.Start(ctx, telemetry.SpanPoll,
		trace.WithAttributes(telemetry.AttrInferenceID.String(h.InferenceID)))
	defer span.End()

	tracking := c.beginPoll(h)
	start := c.now()

	body, err := retry.Value(ctx, c.retryer, func(ctx context.Context) ([]byte, error) {
		return c.store.Get(ctx, h.OutputLocation)
	})
	if err == nil {
		if tracking {
			_ = h.tracker.Transition(StateReady)
		}
		span.SetAttributes(attribute.Int("inference.output_bytes", len(body)))
		c.recorder.RecordPollAttempt("ready")
		c.recorder.RecordInferenceStage("poll", "ok", c.now().Sub(start))
		return body, nil
	}

	if objectstore.IsNotFound(err) {
		if failed := c.checkFailure(ctx, h); failed != nil {
			return nil, c.pollFailed(h, span, tracking, start, failed)
		}
		if tracking {
			_ = h.tracker.Transition(StatePollRetry)
		}
		c.recorder.RecordPollAttempt("not_ready")
		return nil, notReadyError(h.OutputLocation)
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, c.pollFailed(h, span, tracking, start, fmt.Errorf("poll %s: %w", h.OutputLocation, ctxErr))
	}
	return nil, c.pollFailed(h, span, tracking, start, readError(h.OutputLocation, err))
}

// 只有处于轮询阶段的句柄才推进状态；已就绪的句柄重复读取不影响状态机
func (c *Client) beginPoll(h *SubmissionHandle) bool {
	if h.tracker == nil {
		return false
	}
	switch h.tracker.State() {
	case StateSubmitted, StatePollRetry:
		return h.tracker.Transition(StatePending) == nil
	case StatePending:
		return true
	default:
		return false
	}
}

func (c *Client) checkFailure(ctx context.Context, h *SubmissionHandle) error {
	if h.FailureLocation == nil {
		return nil
	}
	body, err := c.store.Get(ctx, *h.FailureLocation)
	if err != nil {
		if !objectstore.IsNotFound(err) {
			c.logger.Debug("failure location unreadable",
				zap.String("inference_id", h.InferenceID),
				zap.String("failure_location", h.FailureLocation.String()),
				zap.Error(err),
			)
		}
		return nil
	}
	return inferenceFailedError(*h.FailureLocation, body)
}

func (c *Client) pollFailed(h *SubmissionHandle, span trace.Span, tracking bool, start time.Time, err error) error {
	if tracking {
		_ = h.tracker.Fail(err)
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	c.recorder.RecordPollAttempt("error")
	c.recorder.RecordInferenceStage("poll", "error", c.now().Sub(start))
	c.logger.Error("poll failed",
		zap.String("inference_id", h.InferenceID),
		zap.String("output_location", h.OutputLocation.String()),
		zap.Error(err),
	)
	return err
}

// AwaitResult 以固定间隔轮询，直到拿到结果、遇到致命错误或超过截止时间。
// 截止时间为 SubmittedAt + InvocationTimeout + PollGrace，超时返回 TIMEOUT。
func (c *Client) AwaitResult(ctx context.Context, h *SubmissionHandle) ([]byte, error) {
	deadline := h.Deadline(c.cfg.PollGrace)
	ctx, span := c.tracer.Start(ctx, telemetry.SpanAwait,
		trace.WithAttributes(
			telemetry.AttrInferenceID.String(h.InferenceID),
			attribute.String("inference.deadline", deadline.Format(time.RFC3339)),
		))
	defer span.End()

	start := c.now()
	polls := 0
	for {
		polls++
		body, err := c.Poll(ctx, h)
		if err == nil {
			span.SetAttributes(attribute.Int("inference.polls", polls))
			c.recorder.RecordInferenceStage("await", "ok", c.now().Sub(start))
			c.logger.Info("output ready",
				zap.String("inference_id", h.InferenceID),
				zap.Int("polls", polls),
				zap.Duration("waited", c.now().Sub(start)),
			)
			return body, nil
		}
		if !IsNotReady(err) {
			c.recorder.RecordInferenceStage("await", "error", c.now().Sub(start))
			return nil, err
		}

		remaining := deadline.Sub(c.now())
		if remaining <= 0 {
			return nil, c.awaitFailed(h, span, start, timeoutError(h, polls))
		}
		wait := c.cfg.PollInterval
		if remaining < wait {
			wait = remaining
		}

		c.logger.Debug("output not ready, backing off",
			zap.String("inference_id", h.InferenceID),
			zap.Int("poll", polls),
			zap.Duration("wait", wait),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, c.awaitFailed(h, span, start, fmt.Errorf("await %s: %w", h.InferenceID, ctx.Err()))
		case <-timer.C:
		}
	}
}

func (c *Client) awaitFailed(h *SubmissionHandle, span trace.Span, start time.Time, err error) error {
	if h.tracker != nil && h.tracker.State() == StatePollRetry {
		_ = h.tracker.Fail(err)
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	status := "error"
	if IsTimeout(err) {
		status = "timeout"
	} else if errors.Is(err, context.Canceled) {
		status = "canceled"
	}
	c.recorder.RecordInferenceStage("await", status, c.now().Sub(start))
	c.logger.Warn("await aborted", zap.String("inference_id", h.InferenceID), zap.Error(err))
	return err
}
