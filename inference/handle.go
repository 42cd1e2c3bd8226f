package inference

import (
	"time"

	"github.com/BaSui01/svdflow/internal/objectstore"
)

// SubmissionHandle 提交返回的句柄。
// 请求体在提交时被序列化并保存在句柄内，之后调用方修改 Request 不影响已提交内容。
type SubmissionHandle struct {
	InferenceID       string
	InputLocation     objectstore.Location
	OutputLocation    objectstore.Location
	FailureLocation   *objectstore.Location
	SubmittedAt       time.Time
	InvocationTimeout time.Duration

	payload []byte
	tracker *Tracker
}

// Payload 返回已提交请求体的副本
func (h *SubmissionHandle) Payload() []byte {
	out := make([]byte, len(h.payload))
	copy(out, h.payload)
	return out
}

// Request 解析已提交的请求
func (h *SubmissionHandle) Request() (Request, error) {
	return UnmarshalRequest(h.payload)
}

// Deadline 等待结果的截止时间
func (h *SubmissionHandle) Deadline(grace time.Duration) time.Time {
	return h.SubmittedAt.Add(h.InvocationTimeout).Add(grace)
}

// Tracker 返回该请求的状态机
func (h *SubmissionHandle) Tracker() *Tracker {
	return h.tracker
}

// State 当前状态
func (h *SubmissionHandle) State() State {
	if h.tracker == nil {
		return StateSubmitted
	}
	return h.tracker.State()
}
