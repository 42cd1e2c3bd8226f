package inference

import (
	"errors"
	"fmt"
	"net/http"
	"unicode/utf8"

	"github.com/BaSui01/svdflow/internal/objectstore"
	"github.com/BaSui01/svdflow/types"
)

// 错误哨兵，配合 errors.Is 使用
var (
	ErrSubmission      = types.Sentinel(types.ErrSubmissionFailed)
	ErrNotReady        = types.Sentinel(types.ErrNotReady)
	ErrRead            = types.Sentinel(types.ErrReadFailed)
	ErrDecode          = types.Sentinel(types.ErrDecodeFailed)
	ErrTimeout         = types.Sentinel(types.ErrTimeout)
	ErrInferenceFailed = types.Sentinel(types.ErrInferenceFailed)
)

// IsNotReady 结果尚未写入
func IsNotReady(err error) bool { return errors.Is(err, ErrNotReady) }

// IsSubmissionError 上传或调用失败
func IsSubmissionError(err error) bool { return errors.Is(err, ErrSubmission) }

// IsReadError 非"不存在"的读取失败
func IsReadError(err error) bool { return errors.Is(err, ErrRead) }

// IsDecodeError 响应体格式错误
func IsDecodeError(err error) bool { return errors.Is(err, ErrDecode) }

// IsTimeout 等待超过上限
func IsTimeout(err error) bool { return errors.Is(err, ErrTimeout) }

// IsInferenceFailed 服务端写入了失败结果
func IsInferenceFailed(err error) bool { return errors.Is(err, ErrInferenceFailed) }

func submissionError(step string, cause error) error {
	return types.NewError(types.ErrSubmissionFailed, step+" failed").
		WithHTTPStatus(http.StatusBadGateway).
		WithCause(cause)
}

func notReadyError(loc objectstore.Location) error {
	return types.NewError(types.ErrNotReady, "output not written yet at "+loc.String()).
		WithRetryable(true)
}

func readError(loc objectstore.Location, cause error) error {
	return types.NewError(types.ErrReadFailed, "read "+loc.String()+" failed").
		WithHTTPStatus(http.StatusBadGateway).
		WithCause(cause)
}

func timeoutError(h *SubmissionHandle, polls int) error {
	return types.NewError(types.ErrTimeout,
		fmt.Sprintf("no output at %s after %d polls (invocation timeout %s)", h.OutputLocation, polls, h.InvocationTimeout)).
		WithHTTPStatus(http.StatusGatewayTimeout)
}

// 失败结果体截断长度
const maxFailureDetail = 512

func inferenceFailedError(loc objectstore.Location, body []byte) error {
	detail := string(body)
	if len(detail) > maxFailureDetail {
		cut := maxFailureDetail
		// 回退到 rune 边界，避免截断多字节字符
		for cut > 0 && !utf8.RuneStart(detail[cut]) {
			cut--
		}
		detail = detail[:cut] + "..."
	}
	return types.NewError(types.ErrInferenceFailed, fmt.Sprintf("inference failed (%s): %s", loc, detail)).
		WithHTTPStatus(http.StatusBadGateway)
}
