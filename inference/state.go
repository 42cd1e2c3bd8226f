package inference

import (
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/svdflow/types"
)

// State 单个请求的生命周期状态
type State string

const (
	StateCreated   State = "created"
	StateSubmitted State = "submitted"
	StatePending   State = "pending"
	StatePollRetry State = "poll_retry"
	StateReady     State = "ready"
	StateDecoded   State = "decoded"
	StateAssembled State = "assembled"
	StateFailed    State = "failed"
)

// IsTerminal 是否为终态
func (s State) IsTerminal() bool {
	return s == StateAssembled || s == StateFailed
}

// 合法迁移表。Failed 可从任意非终态进入：
// 校验失败（Created）、调用失败（Submitted）、读取失败或超时（Pending/PollRetry）、
// 解码失败（Ready）、合成失败（Decoded）。
var transitions = map[State][]State{
	StateCreated:   {StateSubmitted, StateFailed},
	StateSubmitted: {StatePending, StateFailed},
	StatePending:   {StatePollRetry, StateReady, StateFailed},
	StatePollRetry: {StatePending, StateFailed},
	StateReady:     {StateDecoded, StateFailed},
	StateDecoded:   {StateAssembled, StateFailed},
}

// CanTransition 判断迁移是否合法
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition 一次状态迁移记录
type Transition struct {
	From State
	To   State
	At   time.Time
	Err  error
}

// Observer 迁移观察者，在持有锁之外同步调用
type Observer func(Transition)

// Tracker 单个请求的状态机，并发安全
type Tracker struct {
	mu        sync.Mutex
	state     State
	err       error
	history   []Transition
	observers []Observer
	now       func() time.Time
}

// NewTracker 创建处于 Created 状态的 Tracker
func NewTracker(observers ...Observer) *Tracker {
	return &Tracker{
		state:     StateCreated,
		observers: observers,
		now:       time.Now,
	}
}

// Observe 追加观察者
func (t *Tracker) Observe(o Observer) {
	t.mu.Lock()
	t.observers = append(t.observers, o)
	t.mu.Unlock()
}

// State 当前状态
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Err 进入 Failed 时记录的错误
func (t *Tracker) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// History 迁移历史副本
func (t *Tracker) History() []Transition {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Transition, len(t.history))
	copy(out, t.history)
	return out
}

// Transition 迁移到 to，非法迁移返回 INVALID_TRANSITION 错误且状态不变
func (t *Tracker) Transition(to State) error {
	return t.move(to, nil)
}

// Fail 进入 Failed 并记录原因
func (t *Tracker) Fail(cause error) error {
	return t.move(StateFailed, cause)
}

func (t *Tracker) move(to State, cause error) error {
	t.mu.Lock()
	from := t.state
	if !CanTransition(from, to) {
		t.mu.Unlock()
		return types.NewError(types.ErrInvalidState, fmt.Sprintf("illegal transition %s -> %s", from, to))
	}
	tr := Transition{From: from, To: to, At: t.now(), Err: cause}
	t.state = to
	if to == StateFailed {
		t.err = cause
	}
	t.history = append(t.history, tr)
	observers := make([]Observer, len(t.observers))
	copy(observers, t.observers)
	t.mu.Unlock()

	for _, o := range observers {
		o(tr)
	}
	return nil
}
