package inference

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/BaSui01/svdflow/internal/endpoint"
	"github.com/BaSui01/svdflow/internal/objectstore"
	"github.com/BaSui01/svdflow/testutil/fixtures"
	"github.com/BaSui01/svdflow/testutil/mocks"
	"github.com/BaSui01/svdflow/types"
)

type stageRecord struct {
	stage  string
	status string
}

type fakeRecorder struct {
	mu     sync.Mutex
	stages []stageRecord
	polls  map[string]int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{polls: map[string]int{}}
}

func (r *fakeRecorder) RecordInferenceStage(stage, status string, _ time.Duration) {
	r.mu.Lock()
	r.stages = append(r.stages, stageRecord{stage, status})
	r.mu.Unlock()
}

func (r *fakeRecorder) RecordPollAttempt(outcome string) {
	r.mu.Lock()
	r.polls[outcome]++
	r.mu.Unlock()
}

func (r *fakeRecorder) pollCount(outcome string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.polls[outcome]
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Bucket = "svd-bucket"
	cfg.InvocationTimeout = 2 * time.Second
	cfg.PollInterval = 5 * time.Millisecond
	cfg.PollGrace = 0
	cfg.TransientRetries = 2
	cfg.TransientBackoff = time.Millisecond
	return cfg
}

func sequentialIDs() func() string {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("inf-%d", n.Add(1))
	}
}

func newTestClient(store objectstore.Store, invoker endpoint.Invoker, cfg Config, opts ...Option) *Client {
	opts = append([]Option{WithIDGenerator(sequentialIDs())}, opts...)
	return NewClient(store, invoker, cfg, zap.NewNop(), opts...)
}

func TestClient_SubmitUploadsRequestAndInvokes(t *testing.T) {
	ctx := context.Background()
	mem := objectstore.NewMemoryStore()
	invoker := mocks.NewFakeInvoker("svd-bucket")
	rec := newFakeRecorder()
	c := newTestClient(mem, invoker, testConfig(), WithRecorder(rec))

	req := validRequest()
	h, err := c.Submit(ctx, req)
	require.NoError(t, err)

	wantInput := objectstore.Location{Bucket: "svd-bucket", Key: "async_inference/input/inf-1.json"}
	assert.Equal(t, "inf-1", h.InferenceID)
	assert.Equal(t, wantInput, h.InputLocation)
	assert.Equal(t, invoker.OutputLocation("inf-1"), h.OutputLocation)
	require.NotNil(t, h.FailureLocation)
	assert.Equal(t, 2*time.Second, h.InvocationTimeout)
	assert.False(t, h.SubmittedAt.IsZero())
	assert.Equal(t, StateSubmitted, h.State())

	stored, err := mem.Get(ctx, wantInput)
	require.NoError(t, err)
	want, err := req.Marshal()
	require.NoError(t, err)
	assert.Equal(t, want, stored)
	ct, _ := mem.ContentType(wantInput)
	assert.Equal(t, "application/json", ct)

	calls := invoker.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, wantInput, calls[0].InputLocation)
	assert.Equal(t, 2*time.Second, calls[0].Timeout)
	assert.Equal(t, "inf-1", calls[0].InferenceID)

	assert.Contains(t, rec.stages, stageRecord{"submit", "ok"})
}

func TestClient_SubmittedRequestIsImmutable(t *testing.T) {
	ctx := context.Background()
	mem := objectstore.NewMemoryStore()
	c := newTestClient(mem, mocks.NewFakeInvoker("svd-bucket"), testConfig())

	req := validRequest()
	h, err := c.Submit(ctx, req)
	require.NoError(t, err)

	req.Seed = 999
	req.NumFrames = 1

	submitted, err := h.Request()
	require.NoError(t, err)
	assert.Equal(t, int64(42), submitted.Seed)
	assert.Equal(t, 25, submitted.NumFrames)

	payload := h.Payload()
	payload[0] = 'X'
	assert.NotEqual(t, payload, h.Payload(), "Payload returns a copy")
}

func TestClient_ConcurrentSubmissionsUseDistinctKeys(t *testing.T) {
	ctx := context.Background()
	mem := objectstore.NewMemoryStore()
	c := NewClient(mem, mocks.NewFakeInvoker("svd-bucket"), testConfig(), zap.NewNop())

	var wg sync.WaitGroup
	handles := make([]*SubmissionHandle, 8)
	for i := range handles {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := c.Submit(ctx, validRequest().WithSeed(int64(i)))
			if err == nil {
				handles[i] = h
			}
		}(i)
	}
	wg.Wait()

	keys := map[string]bool{}
	for _, h := range handles {
		require.NotNil(t, h)
		keys[h.InputLocation.Key] = true
	}
	assert.Len(t, keys, len(handles))
}

func TestClient_SubmitFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("upload fails", func(t *testing.T) {
		store := mocks.NewScriptedStore(objectstore.NewMemoryStore()).FailPuts(errors.New("access denied"))
		invoker := mocks.NewFakeInvoker("svd-bucket")
		tracker := NewTracker()
		c := newTestClient(store, invoker, testConfig())

		h, err := c.Submit(ctx, validRequest(), WithTracker(tracker))
		require.Error(t, err)
		assert.Nil(t, h)
		assert.True(t, IsSubmissionError(err))
		assert.Empty(t, invoker.Calls(), "no invocation after failed upload")
		assert.Equal(t, StateFailed, tracker.State())
	})

	t.Run("invocation fails", func(t *testing.T) {
		mem := objectstore.NewMemoryStore()
		invoker := mocks.NewFakeInvoker("svd-bucket").WithError(errors.New("ValidationError: endpoint not found"))
		tracker := NewTracker()
		c := newTestClient(mem, invoker, testConfig())

		_, err := c.Submit(ctx, validRequest(), WithTracker(tracker))
		require.Error(t, err)
		assert.True(t, IsSubmissionError(err))
		assert.Contains(t, err.Error(), "endpoint not found")
		assert.Len(t, invoker.Calls(), 1, "submission is never retried locally")
		assert.Equal(t, StateFailed, tracker.State())
	})

	t.Run("invalid request", func(t *testing.T) {
		store := mocks.NewScriptedStore(objectstore.NewMemoryStore())
		c := newTestClient(store, mocks.NewFakeInvoker("svd-bucket"), testConfig())

		req := validRequest()
		req.FPS = 0
		_, err := c.Submit(ctx, req)
		require.Error(t, err)
		assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
		assert.Empty(t, store.Puts())
	})
}

func TestProperty_PollBeforeResultIsNotReady(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		req := DefaultRequest()
		req.Image = EncodeImageBytes(rapid.SliceOfN(rapid.Byte(), 1, 64).Draw(rt, "image"))
		req.Width = rapid.IntRange(1, 2048).Draw(rt, "width")
		req.Height = rapid.IntRange(1, 2048).Draw(rt, "height")
		req.NumFrames = rapid.IntRange(1, 200).Draw(rt, "num_frames")
		req.NumInferenceSteps = rapid.IntRange(1, 100).Draw(rt, "steps")
		req.MinGuidanceScale = rapid.Float64Range(0, 5).Draw(rt, "min_guidance")
		req.MaxGuidanceScale = req.MinGuidanceScale + rapid.Float64Range(0, 5).Draw(rt, "guidance_span")
		req.FPS = rapid.IntRange(1, 60).Draw(rt, "fps")
		req.MotionBucketID = rapid.IntRange(0, 255).Draw(rt, "motion_bucket_id")
		req.NoiseAugStrength = rapid.Float64Range(0, 1).Draw(rt, "noise")
		req.DecodeChunkSize = rapid.IntRange(1, 32).Draw(rt, "chunk")
		req.Seed = rapid.Int64().Draw(rt, "seed")

		ctx := context.Background()
		c := newTestClient(objectstore.NewMemoryStore(), mocks.NewFakeInvoker("svd-bucket"), testConfig())

		h, err := c.Submit(ctx, req)
		if err != nil {
			rt.Fatalf("submit: %v", err)
		}
		_, err = c.Poll(ctx, h)
		if !IsNotReady(err) {
			rt.Fatalf("expected NOT_READY, got %v", err)
		}
		if types.GetErrorCode(err) != types.ErrNotReady || !types.IsRetryable(err) {
			rt.Fatalf("not-ready must be retryable, got %v", err)
		}
		if h.State() != StatePollRetry {
			rt.Fatalf("expected poll_retry state, got %s", h.State())
		}
	})
}

func TestClient_AwaitResult_NotReadyTwiceThenPayload(t *testing.T) {
	ctx := context.Background()
	payload := fixtures.ResponsePayload(fixtures.JPEGFrames(25, 16, 16))

	mem := objectstore.NewMemoryStore()
	store := mocks.NewScriptedStore(mem)
	invoker := mocks.NewFakeInvoker("svd-bucket").CompleteWith(mem, payload)
	store.NotReadyFor(invoker.OutputLocation("inf-1"), 2)
	rec := newFakeRecorder()
	c := newTestClient(store, invoker, testConfig(), WithRecorder(rec))

	req := validRequest()
	req.NumFrames = 25
	req.FPS = 6
	h, err := c.Submit(ctx, req)
	require.NoError(t, err)

	body, err := c.AwaitResult(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, payload, body)
	assert.Equal(t, 3, store.GetCount(h.OutputLocation))
	assert.Equal(t, StateReady, h.State())
	assert.Equal(t, 2, rec.pollCount("not_ready"))
	assert.Equal(t, 1, rec.pollCount("ready"))

	var states []State
	for _, tr := range h.Tracker().History() {
		states = append(states, tr.To)
	}
	assert.Equal(t, []State{
		StateSubmitted,
		StatePending, StatePollRetry,
		StatePending, StatePollRetry,
		StatePending, StateReady,
	}, states)
}

func TestClient_Poll_TransientErrorsAreRetriedWithinAttempt(t *testing.T) {
	ctx := context.Background()
	mem := objectstore.NewMemoryStore()
	store := mocks.NewScriptedStore(mem)
	invoker := mocks.NewFakeInvoker("svd-bucket").CompleteWith(mem, []byte(`{"frames":[]}`))
	c := newTestClient(store, invoker, testConfig())

	h, err := c.Submit(ctx, validRequest())
	require.NoError(t, err)

	store.FailGets(&smithy.GenericAPIError{Code: "SlowDown"}, &smithy.GenericAPIError{Code: "InternalError"})
	body, err := c.Poll(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, `{"frames":[]}`, string(body))
	assert.Equal(t, 3, store.GetCount(h.OutputLocation))
}

func TestClient_Poll_TransientErrorsExhausted(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewScriptedStore(objectstore.NewMemoryStore())
	c := newTestClient(store, mocks.NewFakeInvoker("svd-bucket"), testConfig())

	h, err := c.Submit(ctx, validRequest())
	require.NoError(t, err)

	slow := &smithy.GenericAPIError{Code: "SlowDown"}
	store.FailGets(slow, slow, slow, slow)
	_, err = c.Poll(ctx, h)
	require.Error(t, err)
	assert.True(t, IsReadError(err))
	assert.False(t, IsNotReady(err))
	assert.Equal(t, 3, store.GetCount(h.OutputLocation), "initial attempt + 2 transient retries")
	assert.Equal(t, StateFailed, h.State())
}

func TestClient_Poll_FatalReadErrorIsImmediate(t *testing.T) {
	ctx := context.Background()
	store := mocks.NewScriptedStore(objectstore.NewMemoryStore())
	c := newTestClient(store, mocks.NewFakeInvoker("svd-bucket"), testConfig())

	h, err := c.Submit(ctx, validRequest())
	require.NoError(t, err)

	denied := &smithy.GenericAPIError{Code: "AccessDenied", Message: "forbidden"}
	store.FailGets(denied)

	_, err = c.AwaitResult(ctx, h)
	require.Error(t, err)
	assert.True(t, IsReadError(err))
	assert.ErrorIs(t, err, denied)
	assert.Equal(t, 1, store.GetCount(h.OutputLocation))
	assert.Equal(t, StateFailed, h.State())
	assert.Equal(t, err, h.Tracker().Err())
}

func TestClient_Poll_FailureLocationIsFatal(t *testing.T) {
	ctx := context.Background()
	mem := objectstore.NewMemoryStore()
	invoker := mocks.NewFakeInvoker("svd-bucket").FailWith(mem, []byte("CUDA out of memory"))
	c := newTestClient(mem, invoker, testConfig())

	h, err := c.Submit(ctx, validRequest())
	require.NoError(t, err)

	_, err = c.AwaitResult(ctx, h)
	require.Error(t, err)
	assert.True(t, IsInferenceFailed(err))
	assert.Contains(t, err.Error(), "CUDA out of memory")
	assert.Equal(t, StateFailed, h.State())
}

func TestClient_AwaitResult_TimesOutAfterDeadline(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.InvocationTimeout = 40 * time.Millisecond
	cfg.PollGrace = 10 * time.Millisecond
	rec := newFakeRecorder()
	c := newTestClient(objectstore.NewMemoryStore(), mocks.NewFakeInvoker("svd-bucket").WithoutFailureLocation(), cfg, WithRecorder(rec))

	h, err := c.Submit(ctx, validRequest())
	require.NoError(t, err)

	start := time.Now()
	_, err = c.AwaitResult(ctx, h)
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
	assert.False(t, time.Now().Before(h.Deadline(cfg.PollGrace)))
	assert.Equal(t, StateFailed, h.State())
	assert.Greater(t, rec.pollCount("not_ready"), 1)
}

func TestClient_AwaitResult_ContextCanceled(t *testing.T) {
	cfg := testConfig()
	cfg.PollInterval = time.Second
	c := newTestClient(objectstore.NewMemoryStore(), mocks.NewFakeInvoker("svd-bucket"), cfg)

	h, err := c.Submit(context.Background(), validRequest())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = c.AwaitResult(ctx, h)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, IsTimeout(err))
	assert.Equal(t, StateFailed, h.State())
}

func TestSubmissionHandle_Deadline(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	h := &SubmissionHandle{SubmittedAt: at, InvocationTimeout: time.Hour}
	assert.Equal(t, at.Add(time.Hour+5*time.Minute), h.Deadline(5*time.Minute))
	assert.Equal(t, at.Add(time.Hour), h.Deadline(0))
}

func TestNewClient_NormalizesConfig(t *testing.T) {
	c := NewClient(objectstore.NewMemoryStore(), mocks.NewFakeInvoker("b"), Config{Bucket: "b", PollGrace: -time.Second}, nil)
	cfg := c.Config()
	assert.Equal(t, "application/json", cfg.ContentType)
	assert.Equal(t, time.Hour, cfg.InvocationTimeout)
	assert.Equal(t, 15*time.Second, cfg.PollInterval)
	assert.Equal(t, time.Duration(0), cfg.PollGrace)
}
