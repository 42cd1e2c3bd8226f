package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/svdflow/inference"
	"github.com/BaSui01/svdflow/internal/worker"
	"github.com/BaSui01/svdflow/pipeline"
	"github.com/BaSui01/svdflow/types"
)

// Runner 执行单个推理请求，*pipeline.Runner 实现了该接口
type Runner interface {
	Run(ctx context.Context, req inference.Request, opts pipeline.RunOptions) (*pipeline.Result, error)
}

// Executor 异步执行任务，*worker.Pool 实现了该接口
type Executor interface {
	Submit(task worker.Task) error
}

// Recorder 任务指标，*metrics.Collector 实现了该接口
type Recorder interface {
	RecordStateTransition(fromState, toState string)
	RecordJobFinished(state string)
	RecordVideo(format string, frames int, size int64)
}

type nopRecorder struct{}

func (nopRecorder) RecordStateTransition(string, string) {}
func (nopRecorder) RecordJobFinished(string)             {}
func (nopRecorder) RecordVideo(string, int, int64)       {}

// =============================================================================
// 🎬 任务管理器
// =============================================================================

// Manager 接收视频生成任务，排队到 worker 池执行，并把状态写入 Store、推送到 Hub
type Manager struct {
	store    Store
	runner   Runner
	exec     Executor
	hub      *Hub
	recorder Recorder
	newID    func() string
	now      func() time.Time
	logger   *zap.Logger
}

// ManagerOption 配置 Manager
type ManagerOption func(*Manager)

// WithRecorder 设置指标记录器
func WithRecorder(r Recorder) ManagerOption {
	return func(m *Manager) {
		if r != nil {
			m.recorder = r
		}
	}
}

// WithIDGenerator 替换任务 ID 生成器
func WithIDGenerator(fn func() string) ManagerOption {
	return func(m *Manager) {
		if fn != nil {
			m.newID = fn
		}
	}
}

// WithClock 替换时钟
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager 创建任务管理器
func NewManager(store Store, runner Runner, exec Executor, hub *Hub, logger *zap.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if hub == nil {
		hub = NewHub()
	}
	m := &Manager{
		store:    store,
		runner:   runner,
		exec:     exec,
		hub:      hub,
		recorder: nopRecorder{},
		newID:    uuid.NewString,
		now:      time.Now,
		logger:   logger.With(zap.String("component", "jobs")),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Enqueue 校验请求、创建任务记录并排队执行。
// 队列已满或已关闭时任务记为失败，返回 SERVICE_UNAVAILABLE。
func (m *Manager) Enqueue(ctx context.Context, req inference.Request, title string) (*Job, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := m.now().UTC()
	job := &Job{
		ID:        m.newID(),
		Title:     title,
		State:     inference.StateCreated,
		Seed:      req.Seed,
		NumFrames: req.NumFrames,
		FPS:       req.FPS,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.Create(ctx, job); err != nil {
		return nil, err
	}

	log := m.logger.With(zap.String("job_id", job.ID))
	run := job.Clone()
	if err := m.exec.Submit(func(ctx context.Context) error {
		return m.process(ctx, run, req)
	}); err != nil {
		job.State = inference.StateFailed
		job.UpdatedAt = m.now().UTC()
		qerr := types.NewError(types.ErrServiceUnavailable, "job queue unavailable").
			WithHTTPStatus(503).WithRetryable(true).WithCause(err)
		job.setError(qerr)
		if uerr := m.store.Update(context.WithoutCancel(ctx), job); uerr != nil {
			log.Error("failed to persist rejected job", zap.Error(uerr))
		}
		m.recorder.RecordJobFinished(string(job.State))
		log.Warn("job rejected", zap.Error(err))
		return job, qerr
	}

	log.Info("job queued", zap.String("title", title), zap.Int64("seed", req.Seed))
	return job, nil
}

// process 在 worker 中执行任务
func (m *Manager) process(ctx context.Context, job *Job, req inference.Request) error {
	ctx = types.WithJobID(ctx, job.ID)
	log := m.logger.With(zap.String("job_id", job.ID))
	start := m.now()

	tracker := inference.NewTracker(func(tr inference.Transition) {
		m.onTransition(ctx, job, tr)
	})

	res, err := m.runner.Run(ctx, req, pipeline.RunOptions{
		Title:   job.Title,
		Tracker: tracker,
		OnSubmitted: func(h *inference.SubmissionHandle) {
			job.applyHandle(h)
			log.Info("job submitted", zap.String("inference_id", h.InferenceID))
		},
	})

	job.applyResult(res)
	job.State = tracker.State()
	if err != nil && job.State != inference.StateFailed {
		job.State = inference.StateFailed
		job.setError(err)
	}
	job.UpdatedAt = m.now().UTC()

	// 关闭期间 ctx 可能已取消，终态仍需落盘
	m.save(context.WithoutCancel(ctx), job)

	from := inference.StateCreated
	if h := tracker.History(); len(h) > 0 {
		from = h[len(h)-1].From
	}
	m.hub.Publish(m.event(job, from))

	m.recorder.RecordJobFinished(string(job.State))
	if res != nil && res.Artifact != nil {
		m.recorder.RecordVideo(string(res.Artifact.Format), res.Artifact.FrameCount, res.Artifact.Size)
	}

	if err != nil {
		log.Error("job failed", zap.String("state", string(job.State)), zap.Duration("elapsed", m.now().Sub(start)), zap.Error(err))
		return err
	}
	log.Info("job finished", zap.String("video", job.VideoPath), zap.Duration("elapsed", m.now().Sub(start)))
	return nil
}

// onTransition 记录非终态迁移；终态在流水线返回、结果写回后统一落盘与推送
func (m *Manager) onTransition(ctx context.Context, job *Job, tr inference.Transition) {
	m.recorder.RecordStateTransition(string(tr.From), string(tr.To))
	if tr.To.IsTerminal() {
		return
	}
	job.State = tr.To
	job.UpdatedAt = tr.At.UTC()
	m.save(ctx, job)
	m.hub.Publish(m.event(job, tr.From))
}

func (m *Manager) save(ctx context.Context, job *Job) {
	if err := m.store.Update(ctx, job); err != nil {
		m.logger.Error("failed to persist job",
			zap.String("job_id", job.ID),
			zap.String("state", string(job.State)),
			zap.Error(err))
	}
}

func (m *Manager) event(job *Job, from inference.State) Event {
	return Event{
		JobID:       job.ID,
		InferenceID: job.InferenceID,
		From:        from,
		State:       job.State,
		Error:       job.ErrorMessage,
		At:          job.UpdatedAt,
	}
}

// Get 获取任务
func (m *Manager) Get(ctx context.Context, id string) (*Job, error) {
	return m.store.Get(ctx, id)
}

// List 列出任务
func (m *Manager) List(ctx context.Context, opts ListOptions) ([]*Job, error) {
	return m.store.List(ctx, opts)
}

// Subscribe 订阅任务事件
func (m *Manager) Subscribe(id string) (<-chan Event, func()) {
	return m.hub.Subscribe(id)
}

// Ping 检查任务存储
func (m *Manager) Ping(ctx context.Context) error {
	return m.store.Ping(ctx)
}

// 进程重启后无法续跑的状态
var inFlightStates = []inference.State{
	inference.StateCreated,
	inference.StateSubmitted,
	inference.StatePending,
	inference.StatePollRetry,
	inference.StateReady,
	inference.StateDecoded,
}

// RecoverInterrupted 把上次进程退出时仍在执行的任务标记为失败，返回处理数量
func (m *Manager) RecoverInterrupted(ctx context.Context) (int, error) {
	n := 0
	for _, st := range inFlightStates {
		list, err := m.store.List(ctx, ListOptions{State: st, Limit: 1000})
		if err != nil {
			return n, fmt.Errorf("recover jobs: %w", err)
		}
		for _, job := range list {
			job.State = inference.StateFailed
			job.UpdatedAt = m.now().UTC()
			job.setError(types.NewError(types.ErrInternalError, fmt.Sprintf("interrupted in state %s", st)))
			if err := m.store.Update(ctx, job); err != nil {
				return n, fmt.Errorf("recover job %s: %w", job.ID, err)
			}
			n++
		}
	}
	if n > 0 {
		m.logger.Warn("marked interrupted jobs as failed", zap.Int("count", n))
	}
	return n, nil
}
