package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"

	"github.com/BaSui01/svdflow/inference"
	"github.com/BaSui01/svdflow/internal/objectstore"
	"github.com/BaSui01/svdflow/testutil/fixtures"
	"github.com/BaSui01/svdflow/testutil/mocks"
	"github.com/BaSui01/svdflow/types"
	"github.com/BaSui01/svdflow/video"
)

type stageRecorder struct {
	mu     sync.Mutex
	stages []string
}

func (r *stageRecorder) RecordInferenceStage(stage, status string, _ time.Duration) {
	r.mu.Lock()
	r.stages = append(r.stages, stage+":"+status)
	r.mu.Unlock()
}

func (r *stageRecorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.stages...)
}

func clientConfig() inference.Config {
	cfg := inference.DefaultConfig()
	cfg.Bucket = "svd-bucket"
	cfg.InvocationTimeout = 2 * time.Second
	cfg.PollInterval = 5 * time.Millisecond
	cfg.PollGrace = 0
	cfg.TransientRetries = 1
	cfg.TransientBackoff = time.Millisecond
	return cfg
}

func sequentialIDs() func() string {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("inf-%d", n.Add(1))
	}
}

func newClient(store objectstore.Store, invoker *mocks.FakeInvoker) *inference.Client {
	return inference.NewClient(store, invoker, clientConfig(), zap.NewNop(),
		inference.WithIDGenerator(sequentialIDs()))
}

func testRequest(numFrames, fps int) inference.Request {
	req := inference.DefaultRequest()
	req.Image = inference.EncodeImageBytes(fixtures.JPEGFrame(0, 16, 16))
	req.NumFrames = numFrames
	req.FPS = fps
	return req
}

func historyStates(tr *inference.Tracker) []inference.State {
	var out []inference.State
	for _, t := range tr.History() {
		out = append(out, t.To)
	}
	return out
}

func TestRunner_Run_NotReadyTwiceThenAssembled(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	payload := fixtures.ResponsePayload(fixtures.JPEGFrames(25, 32, 18))

	mem := objectstore.NewMemoryStore()
	store := mocks.NewScriptedStore(mem)
	invoker := mocks.NewFakeInvoker("svd-bucket").CompleteWith(mem, payload)
	store.NotReadyFor(invoker.OutputLocation("inf-1"), 2)

	rec := &stageRecorder{}
	runner := NewRunner(newClient(store, invoker), video.NewMJPEGAssembler(nil),
		Config{OutputDir: filepath.Join(dir, "out"), FramesDir: filepath.Join(dir, "frames")},
		zap.NewNop(), WithStageRecorder(rec))

	var submitted string
	res, err := runner.Run(ctx, testRequest(25, 6), RunOptions{
		Title:       "my photo.png",
		OnSubmitted: func(h *inference.SubmissionHandle) { submitted = h.InferenceID },
	})
	require.NoError(t, err)
	require.NotNil(t, res.Artifact)

	assert.Equal(t, "inf-1", submitted)
	assert.Equal(t, "my_photo", res.Title)
	assert.Equal(t, 25, res.FrameCount)
	assert.Equal(t, 25, res.Artifact.FrameCount)
	assert.Equal(t, 6, res.Artifact.FPS)
	assert.Equal(t, 25*time.Second/6, res.Artifact.Duration)
	assert.Equal(t, filepath.Join(dir, "out", "inf-1", "my_photo.avi"), res.Artifact.Path)
	assert.Equal(t, inference.StateAssembled, res.State())
	assert.Equal(t, 3, store.GetCount(res.Handle.OutputLocation))

	assert.Equal(t, []inference.State{
		inference.StateSubmitted,
		inference.StatePending, inference.StatePollRetry,
		inference.StatePending, inference.StatePollRetry,
		inference.StatePending, inference.StateReady,
		inference.StateDecoded, inference.StateAssembled,
	}, historyStates(res.Handle.Tracker()))

	require.Len(t, res.FramePaths, 25)
	assert.Equal(t, filepath.Join(dir, "frames", "inf-1", "frame_01.jpg"), res.FramePaths[0])
	assert.Equal(t, filepath.Join(dir, "frames", "inf-1", "frame_25.jpg"), res.FramePaths[24])
	for _, p := range res.FramePaths {
		_, statErr := os.Stat(p)
		assert.NoError(t, statErr)
	}

	assert.Equal(t, []string{"decode:ok", "assemble:ok"}, rec.all())
}

func TestRunner_Run_SameTitleDoesNotShareOutput(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	ids := sequentialIDs()
	cfg := Config{OutputDir: filepath.Join(dir, "out"), FramesDir: filepath.Join(dir, "frames")}

	newRunner := func(frameCount int) *Runner {
		mem := objectstore.NewMemoryStore()
		invoker := mocks.NewFakeInvoker("svd-bucket").
			CompleteWith(mem, fixtures.ResponsePayload(fixtures.JPEGFrames(frameCount, 16, 16)))
		client := inference.NewClient(mem, invoker, clientConfig(), zap.NewNop(), inference.WithIDGenerator(ids))
		return NewRunner(client, video.NewMJPEGAssembler(nil), cfg, zap.NewNop())
	}

	first, err := newRunner(3).Run(ctx, testRequest(3, 6), RunOptions{Title: "cat"})
	require.NoError(t, err)
	second, err := newRunner(5).Run(ctx, testRequest(5, 6), RunOptions{Title: "cat.png"})
	require.NoError(t, err)

	assert.Equal(t, first.Title, second.Title)
	assert.NotEqual(t, first.Artifact.Path, second.Artifact.Path)
	assert.Equal(t, "cat.avi", filepath.Base(first.Artifact.Path))
	assert.Equal(t, "cat.avi", filepath.Base(second.Artifact.Path))
	assert.NotEqual(t, filepath.Dir(first.FramePaths[0]), filepath.Dir(second.FramePaths[0]))

	// 第一个视频在磁盘上仍是 3 帧
	for _, tc := range []struct {
		res    *Result
		frames int
	}{{first, 3}, {second, 5}} {
		assert.Equal(t, tc.frames, tc.res.Artifact.FrameCount)
		f, err := os.Open(tc.res.Artifact.Path)
		require.NoError(t, err)
		info, err := video.ProbeAVI(f)
		f.Close()
		require.NoError(t, err)
		assert.Equal(t, tc.frames, info.TotalFrames)
	}
}

func TestRunner_Run_EmptyFramesFailsFast(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	mem := objectstore.NewMemoryStore()
	invoker := mocks.NewFakeInvoker("svd-bucket").CompleteWith(mem, []byte(`{"frames":[]}`))
	runner := NewRunner(newClient(mem, invoker), video.NewMJPEGAssembler(nil), Config{OutputDir: dir}, zap.NewNop())

	res, err := runner.Run(ctx, testRequest(25, 6), RunOptions{})
	require.Error(t, err)
	assert.True(t, video.IsNoFrames(err))
	assert.Equal(t, inference.StateFailed, res.State())
	assert.Equal(t, 0, res.FrameCount)
	assert.Nil(t, res.Artifact)

	entries, readErr := os.ReadDir(dir)
	require.NoError(t, readErr)
	assert.Empty(t, entries, "no output file may be created")
}

func TestRunner_Run_DecodeFailure(t *testing.T) {
	ctx := context.Background()
	mem := objectstore.NewMemoryStore()
	invoker := mocks.NewFakeInvoker("svd-bucket").CompleteWith(mem, []byte(`{"images":[]}`))
	rec := &stageRecorder{}
	runner := NewRunner(newClient(mem, invoker), video.NewMJPEGAssembler(nil),
		Config{OutputDir: t.TempDir()}, zap.NewNop(), WithStageRecorder(rec))

	res, err := runner.Run(ctx, testRequest(4, 6), RunOptions{})
	assert.True(t, inference.IsDecodeError(err))
	assert.Equal(t, inference.StateFailed, res.State())
	assert.Equal(t, inference.StateReady, res.Handle.Tracker().History()[len(res.Handle.Tracker().History())-1].From)
	assert.Equal(t, []string{"decode:error"}, rec.all())
}

func TestRunner_Run_RecordsStageSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	mem := objectstore.NewMemoryStore()
	invoker := mocks.NewFakeInvoker("svd-bucket").CompleteWith(mem, fixtures.ResponsePayload(fixtures.JPEGFrames(3, 16, 16)))
	runner := NewRunner(newClient(mem, invoker), video.NewMJPEGAssembler(nil),
		Config{OutputDir: t.TempDir()}, zap.NewNop(), WithTracer(tp.Tracer("test")))

	_, err := runner.Run(context.Background(), testRequest(3, 6), RunOptions{Title: "spans"})
	require.NoError(t, err)

	var names []string
	for _, s := range exporter.GetSpans() {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"pipeline.decode", "pipeline.assemble"}, names)
}

func TestRunner_Run_SubmissionFailure(t *testing.T) {
	mem := objectstore.NewMemoryStore()
	invoker := mocks.NewFakeInvoker("svd-bucket").WithError(errors.New("endpoint down"))
	runner := NewRunner(newClient(mem, invoker), video.NewMJPEGAssembler(nil), Config{}, zap.NewNop())
	tracker := inference.NewTracker()

	res, err := runner.Run(context.Background(), testRequest(4, 6), RunOptions{Tracker: tracker})
	assert.True(t, inference.IsSubmissionError(err))
	assert.Nil(t, res.Handle)
	assert.Equal(t, inference.StateFailed, res.State())
	assert.Equal(t, inference.StateFailed, tracker.State())
}

func TestRunner_Run_InvalidRequest(t *testing.T) {
	mem := objectstore.NewMemoryStore()
	invoker := mocks.NewFakeInvoker("svd-bucket")
	runner := NewRunner(newClient(mem, invoker), video.NewMJPEGAssembler(nil), Config{}, zap.NewNop())

	_, err := runner.Run(context.Background(), inference.DefaultRequest(), RunOptions{})
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
	assert.Empty(t, invoker.Calls())
}

func TestSafeTitle(t *testing.T) {
	tests := []struct {
		in, fallback, want string
	}{
		{"cat.jpg", "id", "cat"},
		{"/tmp/uploads/dog.png", "id", "dog"},
		{`C:\images\bird.jpeg`, "id", "bird"},
		{"hello world!", "id", "hello_world"},
		{"", "inf-9", "inf-9"},
		{"...", "", "video"},
		{"svd_seed42", "id", "svd_seed42"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SafeTitle(tt.in, tt.fallback), "SafeTitle(%q)", tt.in)
	}
}

func TestSeedSweep(t *testing.T) {
	base := testRequest(25, 6).WithSeed(42)

	reqs := SeedSweep(base, 4, 10)
	require.Len(t, reqs, 4)
	for i, r := range reqs {
		assert.Equal(t, int64(42+10*i), r.Seed)
		assert.Equal(t, base.Image, r.Image)
	}
	assert.Equal(t, int64(42), base.Seed, "base must not change")

	assert.Nil(t, SeedSweep(base, 0, 1))
	assert.Equal(t, int64(43), SeedSweep(base, 2, 0)[1].Seed)

	items := Items("", reqs)
	assert.Equal(t, "svd_seed42", items[0].Title)
	assert.Equal(t, "svd_seed72", items[3].Title)
}
