package objectstore

import (
	"context"
	"errors"
	"net"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsretry "github.com/aws/aws-sdk-go-v2/aws/retry"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/smithy-go"
)

// ErrNotFound 对象不存在。轮询期间这是正常状态，不代表失败。
var ErrNotFound = errors.New("objectstore: object not found")

// Store 对象存储接口
type Store interface {
	// Put 写入对象，覆盖同名对象
	Put(ctx context.Context, loc Location, body []byte, contentType string) error

	// Get 读取对象；对象不存在时返回的错误满足 errors.Is(err, ErrNotFound)
	Get(ctx context.Context, loc Location) ([]byte, error)

	// Ping 检查 bucket 是否可访问，用于就绪探针
	Ping(ctx context.Context, bucket string) error
}

// IsNotFound 判断错误是否表示对象不存在
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

var transientCodes = map[string]struct{}{
	"RequestTimeout":          {},
	"RequestTimeoutException": {},
	"SlowDown":                {},
	"Throttling":              {},
	"ThrottlingException":     {},
	"InternalError":           {},
	"ServiceUnavailable":      {},
}

var (
	defaultRetryables = awsretry.IsErrorRetryables(awsretry.DefaultRetryables)
	defaultThrottles  = awsretry.IsErrorThrottles(awsretry.DefaultThrottles)
)

// IsTransient 判断读取错误是否为瞬时故障（网络超时、5xx、限流）。
// 不存在与 context 取消都不算瞬时故障。
func IsTransient(err error) bool {
	if err == nil || IsNotFound(err) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		status := respErr.HTTPStatusCode()
		if status == 429 || status >= 500 {
			return true
		}
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if _, ok := transientCodes[apiErr.ErrorCode()]; ok {
			return true
		}
	}

	if defaultThrottles.IsErrorThrottle(err) == aws.TrueTernary {
		return true
	}
	return defaultRetryables.IsErrorRetryable(err) == aws.TrueTernary
}
