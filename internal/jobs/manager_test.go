package jobs

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/svdflow/inference"
	"github.com/BaSui01/svdflow/internal/objectstore"
	"github.com/BaSui01/svdflow/internal/worker"
	"github.com/BaSui01/svdflow/pipeline"
	"github.com/BaSui01/svdflow/testutil/fixtures"
	"github.com/BaSui01/svdflow/testutil/mocks"
	"github.com/BaSui01/svdflow/types"
	"github.com/BaSui01/svdflow/video"
)

// inlineExec 在调用方 goroutine 中同步执行任务
type inlineExec struct{}

func (inlineExec) Submit(task worker.Task) error {
	_ = task(context.Background())
	return nil
}

type rejectExec struct{ err error }

func (r rejectExec) Submit(worker.Task) error { return r.err }

type runnerFunc func(ctx context.Context, req inference.Request, opts pipeline.RunOptions) (*pipeline.Result, error)

func (f runnerFunc) Run(ctx context.Context, req inference.Request, opts pipeline.RunOptions) (*pipeline.Result, error) {
	return f(ctx, req, opts)
}

type fakeRecorder struct {
	mu          sync.Mutex
	transitions []string
	finished    []string
	videos      int
}

func (r *fakeRecorder) RecordStateTransition(from, to string) {
	r.mu.Lock()
	r.transitions = append(r.transitions, from+"->"+to)
	r.mu.Unlock()
}

func (r *fakeRecorder) RecordJobFinished(state string) {
	r.mu.Lock()
	r.finished = append(r.finished, state)
	r.mu.Unlock()
}

func (r *fakeRecorder) RecordVideo(string, int, int64) {
	r.mu.Lock()
	r.videos++
	r.mu.Unlock()
}

func fixedID(id string) ManagerOption {
	return WithIDGenerator(func() string { return id })
}

func validRequest() inference.Request {
	req := inference.DefaultRequest()
	req.Image = inference.EncodeImageBytes(fixtures.JPEGFrame(0, 16, 16))
	return req
}

func drain(ch <-chan Event) []inference.State {
	var out []inference.State
	for len(ch) > 0 {
		out = append(out, (<-ch).State)
	}
	return out
}

func TestManager_Enqueue_EndToEnd(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	mem := objectstore.NewMemoryStore()
	invoker := mocks.NewFakeInvoker("svd-bucket").CompleteWith(mem, fixtures.ResponsePayload(fixtures.JPEGFrames(5, 16, 16)))
	cfg := inference.DefaultConfig()
	cfg.Bucket = "svd-bucket"
	cfg.PollInterval = time.Millisecond
	cfg.PollGrace = 0
	client := inference.NewClient(mem, invoker, cfg, zap.NewNop(),
		inference.WithIDGenerator(func() string { return "inf-1" }))
	runner := pipeline.NewRunner(client, video.NewMJPEGAssembler(nil), pipeline.Config{OutputDir: dir}, zap.NewNop())

	store := NewMemoryStore()
	hub := NewHub()
	rec := &fakeRecorder{}
	m := NewManager(store, runner, inlineExec{}, hub, zap.NewNop(), fixedID("job-1"), WithRecorder(rec))

	events, cancel := m.Subscribe("job-1")
	defer cancel()

	job, err := m.Enqueue(ctx, validRequest(), "beach.png")
	require.NoError(t, err)
	assert.Equal(t, "job-1", job.ID)

	got, err := m.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, inference.StateAssembled, got.State)
	assert.Equal(t, "inf-1", got.InferenceID)
	assert.Equal(t, "beach", got.Title)
	assert.Equal(t, filepath.Join(dir, "inf-1", "beach.avi"), got.VideoPath)
	assert.Equal(t, "avi", got.Format)
	assert.Equal(t, 5, got.FrameCount)
	assert.Contains(t, got.OutputLocation, "inf-1")
	assert.Empty(t, got.ErrorCode)
	assert.True(t, got.Ready())

	states := drain(events)
	require.NotEmpty(t, states)
	assert.Equal(t, inference.StateSubmitted, states[0])
	assert.Equal(t, inference.StateAssembled, states[len(states)-1])

	assert.Equal(t, []string{"assembled"}, rec.finished)
	assert.Equal(t, 1, rec.videos)
	assert.Contains(t, rec.transitions, "decoded->assembled")
}

func TestManager_Enqueue_InvalidRequest(t *testing.T) {
	store := NewMemoryStore()
	m := NewManager(store, runnerFunc(func(context.Context, inference.Request, pipeline.RunOptions) (*pipeline.Result, error) {
		t.Fatal("runner must not be called")
		return nil, nil
	}), inlineExec{}, nil, zap.NewNop())

	_, err := m.Enqueue(context.Background(), inference.DefaultRequest(), "x")
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))

	list, err := store.List(context.Background(), ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestManager_Enqueue_QueueFull(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	rec := &fakeRecorder{}
	m := NewManager(store, nil, rejectExec{err: worker.ErrPoolFull}, nil, zap.NewNop(), fixedID("job-q"), WithRecorder(rec))

	job, err := m.Enqueue(ctx, validRequest(), "x")
	require.Error(t, err)
	assert.Equal(t, types.ErrServiceUnavailable, types.GetErrorCode(err))
	assert.True(t, errors.Is(err, worker.ErrPoolFull))
	require.NotNil(t, job)

	got, err := store.Get(ctx, "job-q")
	require.NoError(t, err)
	assert.Equal(t, inference.StateFailed, got.State)
	assert.Equal(t, string(types.ErrServiceUnavailable), got.ErrorCode)
	assert.Equal(t, []string{"failed"}, rec.finished)
}

func TestManager_RunnerFailure(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	hub := NewHub()

	runner := runnerFunc(func(ctx context.Context, req inference.Request, opts pipeline.RunOptions) (*pipeline.Result, error) {
		tr := opts.Tracker
		require.NoError(t, tr.Transition(inference.StateSubmitted))
		h := &inference.SubmissionHandle{
			InferenceID:    "inf-9",
			OutputLocation: objectstore.Location{Bucket: "b", Key: "out/inf-9.out"},
		}
		opts.OnSubmitted(h)
		require.NoError(t, tr.Transition(inference.StatePending))
		err := types.NewError(types.ErrTimeout, "no result before deadline")
		_ = tr.Fail(err)
		return &pipeline.Result{Title: opts.Title, Handle: h, Err: err}, err
	})

	m := NewManager(store, runner, inlineExec{}, hub, zap.NewNop(), fixedID("job-f"))
	events, cancel := m.Subscribe("job-f")
	defer cancel()

	_, err := m.Enqueue(ctx, validRequest(), "clip")
	require.NoError(t, err, "enqueue succeeds, failure is recorded on the job")

	got, err := m.Get(ctx, "job-f")
	require.NoError(t, err)
	assert.Equal(t, inference.StateFailed, got.State)
	assert.Equal(t, string(types.ErrTimeout), got.ErrorCode)
	assert.Equal(t, "inf-9", got.InferenceID)
	assert.False(t, got.Ready())

	assert.Equal(t, []inference.State{
		inference.StateSubmitted, inference.StatePending, inference.StateFailed,
	}, drain(events))
}

func TestManager_WithWorkerPool(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	pool := worker.NewPool(worker.Config{MaxWorkers: 2, QueueSize: 8}, zap.NewNop())

	var n int
	var mu sync.Mutex
	runner := runnerFunc(func(ctx context.Context, req inference.Request, opts pipeline.RunOptions) (*pipeline.Result, error) {
		_, ok := types.JobID(ctx)
		assert.True(t, ok, "job id propagated through context")
		err := errors.New("boom")
		_ = opts.Tracker.Fail(err)
		mu.Lock()
		n++
		mu.Unlock()
		return &pipeline.Result{Err: err}, err
	})
	m := NewManager(store, runner, pool, nil, zap.NewNop())

	for i := 0; i < 4; i++ {
		_, err := m.Enqueue(ctx, validRequest().WithSeed(int64(i)), "")
		require.NoError(t, err)
	}
	require.NoError(t, pool.Shutdown(ctx))

	assert.Equal(t, 4, n)
	failed, err := m.List(ctx, ListOptions{State: inference.StateFailed})
	require.NoError(t, err)
	assert.Len(t, failed, 4)
}

func TestManager_RecoverInterrupted(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	running := newJob("running", 0)
	running.State = inference.StatePending
	done := newJob("done", time.Minute)
	done.State = inference.StateAssembled
	require.NoError(t, store.Create(ctx, running))
	require.NoError(t, store.Create(ctx, done))

	m := NewManager(store, nil, inlineExec{}, nil, zap.NewNop())
	n, err := m.RecoverInterrupted(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := store.Get(ctx, "running")
	require.NoError(t, err)
	assert.Equal(t, inference.StateFailed, got.State)
	assert.Contains(t, got.ErrorMessage, "interrupted in state pending")

	got, err = store.Get(ctx, "done")
	require.NoError(t, err)
	assert.Equal(t, inference.StateAssembled, got.State)
}
