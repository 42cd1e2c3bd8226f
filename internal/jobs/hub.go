package jobs

import (
	"sync"
	"time"

	"github.com/BaSui01/svdflow/inference"
)

// Event 任务状态变化事件
type Event struct {
	JobID       string          `json:"job_id"`
	InferenceID string          `json:"inference_id,omitempty"`
	From        inference.State `json:"from,omitempty"`
	State       inference.State `json:"state"`
	Error       string          `json:"error,omitempty"`
	At          time.Time       `json:"at"`
}

// Terminal 事件是否为终态
func (e Event) Terminal() bool {
	return e.State.IsTerminal()
}

// 每个订阅者的缓冲，满了丢弃最旧的事件
const subscriberBuffer = 32

type subscriber struct {
	ch chan Event
}

// Hub 按任务 ID 分发事件的进程内发布订阅
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[*subscriber]struct{}
	closed bool
}

// NewHub 创建 Hub
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*subscriber]struct{})}
}

// Subscribe 订阅 jobID 的事件，返回的 cancel 必须调用
func (h *Hub) Subscribe(jobID string) (<-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, subscriberBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	if h.subs[jobID] == nil {
		h.subs[jobID] = make(map[*subscriber]struct{})
	}
	h.subs[jobID][sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() { h.remove(jobID, sub) })
	}
}

func (h *Hub) remove(jobID string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[jobID]
	if !ok {
		return
	}
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(h.subs, jobID)
	}
	close(sub.ch)
}

// Publish 非阻塞地把事件投递给订阅者
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs[ev.JobID] {
		select {
		case sub.ch <- ev:
		default:
			// 慢订阅者：丢弃最旧的一条再投递，保证终态事件能送达
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- ev:
			default:
			}
		}
	}
}

// Subscribers 返回 jobID 当前订阅数
func (h *Hub) Subscribers(jobID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[jobID])
}

// Close 关闭所有订阅
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, set := range h.subs {
		for sub := range set {
			close(sub.ch)
		}
		delete(h.subs, id)
	}
}
