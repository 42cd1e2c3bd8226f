package inference

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/svdflow/internal/endpoint"
	"github.com/BaSui01/svdflow/internal/objectstore"
	"github.com/BaSui01/svdflow/internal/retry"
	"github.com/BaSui01/svdflow/internal/telemetry"
)

const instrumentationName = "github.com/BaSui01/svdflow/inference"

// Config 客户端配置
type Config struct {
	// Bucket 请求体所在 bucket
	Bucket string
	// InputPrefix 请求体 key 前缀，每个请求写入 <prefix>/<inference-id>.json
	InputPrefix string
	// ContentType 请求体类型
	ContentType string
	// InvocationTimeout 服务端处理超时
	InvocationTimeout time.Duration
	// PollInterval 固定轮询间隔
	PollInterval time.Duration
	// PollGrace 截止时间在处理超时之外的宽限
	PollGrace time.Duration
	// TransientRetries 单次读取内瞬时错误的最大重试次数
	TransientRetries int
	// TransientBackoff 瞬时错误重试的初始退避
	TransientBackoff time.Duration
}

// DefaultConfig 返回默认客户端配置（Bucket 需调用方设置）
func DefaultConfig() Config {
	return Config{
		InputPrefix:       "async_inference/input",
		ContentType:       "application/json",
		InvocationTimeout: time.Hour,
		PollInterval:      15 * time.Second,
		PollGrace:         5 * time.Minute,
		TransientRetries:  3,
		TransientBackoff:  time.Second,
	}
}

// Recorder 推理阶段指标记录器，由 internal/metrics.Collector 实现
type Recorder interface {
	RecordInferenceStage(stage, status string, duration time.Duration)
	RecordPollAttempt(outcome string)
}

type nopRecorder struct{}

func (nopRecorder) RecordInferenceStage(string, string, time.Duration) {}
func (nopRecorder) RecordPollAttempt(string)                           {}

// Option 客户端选项
type Option func(*Client)

// WithRecorder 设置指标记录器
func WithRecorder(r Recorder) Option {
	return func(c *Client) {
		if r != nil {
			c.recorder = r
		}
	}
}

// WithTracer 设置 tracer，默认使用全局 TracerProvider
func WithTracer(t trace.Tracer) Option {
	return func(c *Client) {
		if t != nil {
			c.tracer = t
		}
	}
}

// WithClock 替换时钟
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// WithIDGenerator 替换推理 ID 生成器
func WithIDGenerator(gen func() string) Option {
	return func(c *Client) {
		if gen != nil {
			c.newID = gen
		}
	}
}

// Client 异步推理客户端。
// 所有依赖在构造时显式传入，多个请求可以并发使用同一个 Client。
type Client struct {
	store    objectstore.Store
	invoker  endpoint.Invoker
	cfg      Config
	retryer  retry.Retryer
	recorder Recorder
	tracer   trace.Tracer
	logger   *zap.Logger
	now      func() time.Time
	newID    func() string
}

// NewClient 创建客户端
func NewClient(store objectstore.Store, invoker endpoint.Invoker, cfg Config, logger *zap.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultConfig()
	if cfg.ContentType == "" {
		cfg.ContentType = defaults.ContentType
	}
	if cfg.InvocationTimeout <= 0 {
		cfg.InvocationTimeout = defaults.InvocationTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaults.PollInterval
	}
	if cfg.PollGrace < 0 {
		cfg.PollGrace = 0
	}
	if cfg.TransientRetries < 0 {
		cfg.TransientRetries = 0
	}
	if cfg.TransientBackoff <= 0 {
		cfg.TransientBackoff = defaults.TransientBackoff
	}

	logger = logger.With(zap.String("component", "inference.client"))
	c := &Client{
		store:    store,
		invoker:  invoker,
		cfg:      cfg,
		recorder: nopRecorder{},
		tracer:   otel.Tracer(instrumentationName),
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	c.retryer = retry.NewBackoff(&retry.Policy{
		MaxRetries:   cfg.TransientRetries,
		InitialDelay: cfg.TransientBackoff,
		MaxDelay:     cfg.PollInterval,
		Multiplier:   2.0,
		Jitter:       true,
		ShouldRetry:  objectstore.IsTransient,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			c.recorder.RecordPollAttempt("transient_retry")
		},
	}, logger)

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config 返回生效的配置
func (c *Client) Config() Config {
	return c.cfg
}

// SubmitOption 提交选项
type SubmitOption func(*submitOptions)

type submitOptions struct {
	tracker *Tracker
}

// WithTracker 使用调用方创建的 Tracker，便于提前挂上观察者
func WithTracker(t *Tracker) SubmitOption {
	return func(o *submitOptions) {
		o.tracker = t
	}
}

// Submit 序列化请求、写入对象存储并发起异步调用。
// 任一步失败返回 SUBMISSION_FAILED，不在本地重试。
func (c *Client) Submit(ctx context.Context, req Request, opts ...SubmitOption) (*SubmissionHandle, error) {
	so := submitOptions{}
	for _, opt := range opts {
		opt(&so)
	}
	tracker := so.tracker
	if tracker == nil {
		tracker = NewTracker()
	}

	id := c.newID()
	ctx, span := c.tracer.Start(ctx, telemetry.SpanSubmit,
		trace.WithAttributes(
			telemetry.AttrInferenceID.String(id),
			attribute.Int("inference.num_frames", req.NumFrames),
			attribute.Int("inference.fps", req.FPS),
		))
	defer span.End()

	start := c.now()
	fail := func(err error) (*SubmissionHandle, error) {
		_ = tracker.Fail(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.recorder.RecordInferenceStage("submit", "error", c.now().Sub(start))
		c.logger.Error("submission failed", zap.String("inference_id", id), zap.Error(err))
		return nil, err
	}

	if err := req.Validate(); err != nil {
		return fail(err)
	}
	payload, err := req.Marshal()
	if err != nil {
		return fail(submissionError("serialize request", err))
	}

	inputLoc := objectstore.Location{
		Bucket: c.cfg.Bucket,
		Key:    objectstore.JoinKey(c.cfg.InputPrefix, id+".json"),
	}
	if err := c.store.Put(ctx, inputLoc, payload, c.cfg.ContentType); err != nil {
		return fail(submissionError("upload request", err))
	}

	res, err := c.invoker.InvokeAsync(ctx, endpoint.Invocation{
		InputLocation: inputLoc,
		Timeout:       c.cfg.InvocationTimeout,
		InferenceID:   id,
		ContentType:   c.cfg.ContentType,
	})
	if err != nil {
		return fail(submissionError("invoke endpoint", err))
	}
	if res == nil || res.OutputLocation.IsZero() {
		return fail(submissionError("invoke endpoint", errors.New("no output location returned")))
	}

	h := &SubmissionHandle{
		InferenceID:       id,
		InputLocation:     inputLoc,
		OutputLocation:    res.OutputLocation,
		FailureLocation:   res.FailureLocation,
		SubmittedAt:       c.now(),
		InvocationTimeout: c.cfg.InvocationTimeout,
		payload:           payload,
		tracker:           tracker,
	}
	if res.InferenceID != "" {
		h.InferenceID = res.InferenceID
	}
	if err := tracker.Transition(StateSubmitted); err != nil {
		return fail(err)
	}

	span.SetAttributes(telemetry.AttrInputLocation.String(h.InputLocation.String()),
		telemetry.AttrOutputLocation.String(h.OutputLocation.String()))
	c.recorder.RecordInferenceStage("submit", "ok", c.now().Sub(start))
	c.logger.Info("request submitted",
		zap.String("inference_id", h.InferenceID),
		zap.String("input_location", inputLoc.String()),
		zap.String("output_location", h.OutputLocation.String()),
		zap.Duration("invocation_timeout", h.InvocationTimeout),
	)
	return h, nil
}
