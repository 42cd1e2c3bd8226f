package inference

import (
	"errors"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/svdflow/types"
)

var allStates = []State{
	StateCreated, StateSubmitted, StatePending, StatePollRetry,
	StateReady, StateDecoded, StateAssembled, StateFailed,
}

func TestTracker_HappyPath(t *testing.T) {
	var mu sync.Mutex
	var seen []State
	tr := NewTracker(func(t Transition) {
		mu.Lock()
		seen = append(seen, t.To)
		mu.Unlock()
	})

	path := []State{
		StateSubmitted, StatePending, StatePollRetry, StatePending, StatePollRetry,
		StatePending, StateReady, StateDecoded, StateAssembled,
	}
	for _, s := range path {
		require.NoError(t, tr.Transition(s), "transition to %s", s)
	}

	assert.Equal(t, StateAssembled, tr.State())
	assert.True(t, tr.State().IsTerminal())
	assert.Equal(t, path, seen)
	assert.Len(t, tr.History(), len(path))
	assert.Nil(t, tr.Err())
}

func TestTracker_RejectsIllegalTransitions(t *testing.T) {
	tr := NewTracker()

	err := tr.Transition(StateReady)
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidState, types.GetErrorCode(err))
	assert.Equal(t, StateCreated, tr.State())

	require.NoError(t, tr.Transition(StateSubmitted))
	// 未经轮询不能直接就绪
	assert.Error(t, tr.Transition(StateReady))
	assert.Error(t, tr.Transition(StateSubmitted))
}

func TestTracker_FailRecordsCause(t *testing.T) {
	tr := NewTracker()
	require.NoError(t, tr.Transition(StateSubmitted))

	cause := errors.New("access denied")
	require.NoError(t, tr.Fail(cause))
	assert.Equal(t, StateFailed, tr.State())
	assert.Same(t, cause, tr.Err())

	// 终态不可离开
	assert.Error(t, tr.Fail(cause))
	assert.Error(t, tr.Transition(StatePending))

	hist := tr.History()
	require.Len(t, hist, 2)
	assert.Equal(t, StateSubmitted, hist[1].From)
	assert.Equal(t, StateFailed, hist[1].To)
	assert.Same(t, cause, hist[1].Err)
}

func TestTracker_FailedReachableFromEveryActiveState(t *testing.T) {
	for _, s := range allStates {
		if s.IsTerminal() {
			assert.False(t, CanTransition(s, StateFailed), "%s is terminal", s)
			continue
		}
		assert.True(t, CanTransition(s, StateFailed), "%s -> failed", s)
	}
}

func TestProperty_TrackerTerminalStatesAreAbsorbing(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("random walks only follow legal edges and never leave a terminal state", prop.ForAll(
		func(steps []int) bool {
			tr := NewTracker()
			for _, step := range steps {
				target := allStates[step]
				before := tr.State()
				err := tr.Transition(target)

				if before.IsTerminal() && err == nil {
					t.Logf("left terminal state %s", before)
					return false
				}
				if (err == nil) != CanTransition(before, target) {
					t.Logf("transition %s -> %s disagreed with table", before, target)
					return false
				}
				if err != nil && tr.State() != before {
					t.Logf("rejected transition changed state")
					return false
				}
			}
			return len(tr.History()) <= len(steps)
		},
		gen.SliceOf(gen.IntRange(0, len(allStates)-1)),
	))

	properties.TestingRun(t)
}
