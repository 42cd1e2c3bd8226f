package frames

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/BaSui01/svdflow/types"
)

// Sequence 有序帧序列，Frames[i] 是第 i 帧的 JPEG 字节
type Sequence struct {
	Frames [][]byte
}

// Len 帧数
func (s *Sequence) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Frames)
}

// Names 每帧对应的文件名
func (s *Sequence) Names() []string {
	names := make([]string, s.Len())
	for i := range names {
		names[i] = FrameName(i, len(names))
	}
	return names
}

// WriteDir 把所有帧按 FrameName 写入 dir，返回按帧顺序排列的路径
func (s *Sequence) WriteDir(dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create frames dir: %w", err)
	}
	names := s.Names()
	paths := make([]string, len(names))
	for i, name := range names {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, s.Frames[i], 0o644); err != nil {
			return nil, fmt.Errorf("write frame %d: %w", i, err)
		}
		paths[i] = p
	}
	return paths, nil
}

type response struct {
	Frames *[]json.RawMessage `json:"frames"`
}

// Decode 解析响应体。
// JSON 格式错误、缺少 frames 数组、元素不是字符串或无法解码都返回 DECODE_FAILED；
// frames 为空数组时返回空序列且不报错。
func Decode(payload []byte) (*Sequence, error) {
	var resp response
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, decodeError("response is not valid JSON", err)
	}
	if resp.Frames == nil {
		return nil, decodeError(`response has no "frames" array`, nil)
	}

	raw := *resp.Frames
	seq := &Sequence{Frames: make([][]byte, len(raw))}
	for i, item := range raw {
		var text string
		if err := json.Unmarshal(item, &text); err != nil {
			return nil, decodeError(fmt.Sprintf("frame %d is not a string", i), err)
		}
		data, err := decodeBase64Lenient(rawUnicodeEscape(text))
		if err != nil {
			return nil, decodeError(fmt.Sprintf("frame %d is not valid base64", i), err)
		}
		if len(data) == 0 {
			return nil, decodeError(fmt.Sprintf("frame %d is empty", i), nil)
		}
		seq.Frames[i] = data
	}
	return seq, nil
}

func decodeError(msg string, cause error) error {
	e := types.NewError(types.ErrDecodeFailed, msg).WithHTTPStatus(http.StatusBadGateway)
	if cause != nil {
		e = e.WithCause(cause)
	}
	return e
}
