package endpoint

import (
	"context"
	"time"

	"github.com/BaSui01/svdflow/internal/objectstore"
)

// MaxInvocationTimeout 是异步端点允许的最大处理超时
const MaxInvocationTimeout = time.Hour

// Invocation 一次异步调用的参数
type Invocation struct {
	// InputLocation 请求体所在位置
	InputLocation objectstore.Location
	// Timeout 服务端处理超时，按秒向上取整
	Timeout time.Duration
	// InferenceID 调用方生成的推理 ID，便于在服务端日志中追踪
	InferenceID string
	// ContentType 请求体类型
	ContentType string
}

// Result 异步调用的返回
type Result struct {
	InferenceID     string
	OutputLocation  objectstore.Location
	FailureLocation *objectstore.Location
}

// Invoker 异步推理调用接口
type Invoker interface {
	InvokeAsync(ctx context.Context, inv Invocation) (*Result, error)
}

// TimeoutSeconds 将超时换算为端点接受的秒数，范围 [1, 3600]
func TimeoutSeconds(d time.Duration) int32 {
	if d <= 0 {
		return 1
	}
	if d > MaxInvocationTimeout {
		d = MaxInvocationTimeout
	}
	secs := int32(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	if secs < 1 {
		secs = 1
	}
	return secs
}
