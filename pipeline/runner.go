package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/svdflow/frames"
	"github.com/BaSui01/svdflow/inference"
	"github.com/BaSui01/svdflow/internal/telemetry"
	"github.com/BaSui01/svdflow/types"
	"github.com/BaSui01/svdflow/video"
)

// Inferencer 异步推理客户端，*inference.Client 实现了该接口
type Inferencer interface {
	Submit(ctx context.Context, req inference.Request, opts ...inference.SubmitOption) (*inference.SubmissionHandle, error)
	AwaitResult(ctx context.Context, h *inference.SubmissionHandle) ([]byte, error)
}

// StageRecorder 记录解码与合成阶段耗时
type StageRecorder interface {
	RecordInferenceStage(stage, status string, d time.Duration)
}

// Config 输出配置
type Config struct {
	// OutputDir 视频输出目录，视频写到 OutputDir/<inference-id>/<title>.<ext>
	OutputDir string
	// FramesDir 非空时把帧写到 FramesDir/<inference-id>/
	FramesDir string
}

// RunOptions 单次运行选项
type RunOptions struct {
	// Title 输出文件名（不含扩展名），为空时使用 inference id。
	// 同名请求各自落在自己的 inference id 目录下，互不覆盖。
	Title string
	// Tracker 外部传入的状态机，用于订阅状态变化
	Tracker *inference.Tracker
	// OnSubmitted 提交成功后回调
	OnSubmitted func(h *inference.SubmissionHandle)
}

// Result 单个请求的运行结果
type Result struct {
	Title      string
	Handle     *inference.SubmissionHandle
	FrameCount int
	FramePaths []string
	Artifact   *video.Artifact
	Err        error
}

// State 返回最终状态
func (r *Result) State() inference.State {
	if r == nil || r.Handle == nil {
		return inference.StateFailed
	}
	return r.Handle.State()
}

// Runner 端到端执行器
type Runner struct {
	client    Inferencer
	assembler video.Assembler
	cfg       Config
	recorder  StageRecorder
	tracer    trace.Tracer
	logger    *zap.Logger
}

// Option 配置 Runner
type Option func(*Runner)

// WithStageRecorder 设置阶段指标记录器
func WithStageRecorder(r StageRecorder) Option {
	return func(rn *Runner) {
		if r != nil {
			rn.recorder = r
		}
	}
}

// WithTracer 设置 tracer，默认使用全局 TracerProvider
func WithTracer(t trace.Tracer) Option {
	return func(rn *Runner) {
		if t != nil {
			rn.tracer = t
		}
	}
}

type nopStageRecorder struct{}

func (nopStageRecorder) RecordInferenceStage(string, string, time.Duration) {}

// NewRunner 创建 Runner
func NewRunner(client Inferencer, assembler video.Assembler, cfg Config, logger *zap.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "."
	}
	r := &Runner{
		client:    client,
		assembler: assembler,
		cfg:       cfg,
		recorder:  nopStageRecorder{},
		tracer:    otel.Tracer("github.com/BaSui01/svdflow/pipeline"),
		logger:    logger.With(zap.String("component", "pipeline")),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run 执行单个请求。返回的 Result 总是非 nil，失败时 Err 与返回的 error 相同。
func (r *Runner) Run(ctx context.Context, req inference.Request, opts RunOptions) (*Result, error) {
	tracker := opts.Tracker
	if tracker == nil {
		tracker = inference.NewTracker()
	}
	res := &Result{Title: opts.Title}

	h, err := r.client.Submit(ctx, req, inference.WithTracker(tracker))
	if err != nil {
		res.Err = err
		return res, err
	}
	res.Handle = h
	if res.Title == "" {
		res.Title = h.InferenceID
	}
	res.Title = SafeTitle(res.Title, h.InferenceID)
	if opts.OnSubmitted != nil {
		opts.OnSubmitted(h)
	}

	log := r.logger.With(zap.String("inference_id", h.InferenceID), zap.String("title", res.Title))
	runDir := SafeTitle(h.InferenceID, "run")

	payload, err := r.client.AwaitResult(ctx, h)
	if err != nil {
		res.Err = err
		return res, err
	}

	_, span := r.tracer.Start(ctx, telemetry.SpanDecode,
		trace.WithAttributes(telemetry.AttrInferenceID.String(h.InferenceID),
			telemetry.AttrPayloadBytes.Int(len(payload))))
	start := time.Now()
	seq, err := frames.Decode(payload)
	if err == nil {
		err = tracker.Transition(inference.StateDecoded)
	}
	if err != nil {
		r.recorder.RecordInferenceStage("decode", "error", time.Since(start))
		endSpan(span, err)
		return r.fail(res, tracker, log, "decode", err)
	}
	r.recorder.RecordInferenceStage("decode", "ok", time.Since(start))
	res.FrameCount = seq.Len()
	span.SetAttributes(telemetry.AttrFrames.Int(seq.Len()))
	endSpan(span, nil)

	if r.cfg.FramesDir != "" && seq.Len() > 0 {
		paths, err := seq.WriteDir(filepath.Join(r.cfg.FramesDir, runDir))
		if err != nil {
			return r.fail(res, tracker, log, "write frames",
				types.NewError(types.ErrAssemblyFailed, "write frames").WithCause(err))
		}
		res.FramePaths = paths
	}

	outPath := filepath.Join(r.cfg.OutputDir, runDir, res.Title+r.assembler.Format().Ext())
	actx, span := r.tracer.Start(ctx, telemetry.SpanAssemble,
		trace.WithAttributes(telemetry.AttrInferenceID.String(h.InferenceID),
			telemetry.AttrVideoFormat.String(string(r.assembler.Format())),
			telemetry.AttrVideoFPS.Int(req.FPS)))
	start = time.Now()
	art, err := r.assembler.Assemble(actx, seq, req.FPS, outPath)
	if err == nil {
		err = tracker.Transition(inference.StateAssembled)
	}
	if err != nil {
		r.recorder.RecordInferenceStage("assemble", "error", time.Since(start))
		endSpan(span, err)
		return r.fail(res, tracker, log, "assemble", err)
	}
	r.recorder.RecordInferenceStage("assemble", "ok", time.Since(start))
	res.Artifact = art
	span.SetAttributes(telemetry.AttrVideoSize.Int64(art.Size))
	endSpan(span, nil)

	log.Info("video ready",
		zap.String("path", art.Path),
		zap.Int("frames", art.FrameCount),
		zap.Duration("duration", art.Duration))
	return res, nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (r *Runner) fail(res *Result, tracker *inference.Tracker, log *zap.Logger, step string, err error) (*Result, error) {
	_ = tracker.Fail(err)
	log.Error("pipeline failed", zap.String("step", step), zap.Error(err))
	res.Err = err
	return res, err
}

// SafeTitle 把标题规整为文件名：去掉目录与扩展名，非 [A-Za-z0-9_-] 字符替换为 '_'
func SafeTitle(title, fallback string) string {
	title = strings.TrimSpace(filepath.Base(strings.ReplaceAll(title, "\\", "/")))
	title = strings.TrimSuffix(title, filepath.Ext(title))
	var b strings.Builder
	for _, c := range title {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
			b.WriteRune(c)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), "_")
	if out == "" {
		if fallback == "" {
			return "video"
		}
		return fallback
	}
	return out
}

// SeedSweep 以 base 为模板生成 count 个请求，第 i 个请求的种子为 base.Seed + i*step
func SeedSweep(base inference.Request, count int, step int64) []inference.Request {
	if count <= 0 {
		return nil
	}
	if step == 0 {
		step = 1
	}
	reqs := make([]inference.Request, count)
	for i := range reqs {
		reqs[i] = base.WithSeed(base.Seed + int64(i)*step)
	}
	return reqs
}

// SweepTitle 批量运行的默认标题
func SweepTitle(prefix string, req inference.Request) string {
	if prefix == "" {
		prefix = "svd"
	}
	return fmt.Sprintf("%s_seed%d", prefix, req.Seed)
}
