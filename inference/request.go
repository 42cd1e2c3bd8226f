package inference

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/BaSui01/svdflow/types"
)

// Request 图生视频推理请求
type Request struct {
	// Image 条件图像：http(s) URL 或 base64 编码的图像字节
	Image             string  `json:"image"`
	Width             int     `json:"width"`
	Height            int     `json:"height"`
	NumFrames         int     `json:"num_frames"`
	NumInferenceSteps int     `json:"num_inference_steps"`
	MinGuidanceScale  float64 `json:"min_guidance_scale"`
	MaxGuidanceScale  float64 `json:"max_guidance_scale"`
	FPS               int     `json:"fps"`
	MotionBucketID    int     `json:"motion_bucket_id"`
	NoiseAugStrength  float64 `json:"noise_aug_strength"`
	DecodeChunkSize   int     `json:"decode_chunk_size"`
	Seed              int64   `json:"seed"`
}

// DefaultRequest 返回默认参数（不含图像）
func DefaultRequest() Request {
	return Request{
		Width:             1024,
		Height:            576,
		NumFrames:         25,
		NumInferenceSteps: 25,
		MinGuidanceScale:  1.0,
		MaxGuidanceScale:  3.0,
		FPS:               6,
		MotionBucketID:    127,
		NoiseAugStrength:  0.02,
		DecodeChunkSize:   8,
		Seed:              42,
	}
}

// WithSeed 返回替换了 seed 的副本
func (r Request) WithSeed(seed int64) Request {
	r.Seed = seed
	return r
}

// WithImage 返回嵌入了预处理图像的副本，宽高取自图像尺寸
func (r Request) WithImage(img *PreparedImage) Request {
	r.Image = img.Base64
	r.Width = img.Width
	r.Height = img.Height
	return r
}

// Validate 校验请求参数
func (r Request) Validate() error {
	var problems []string

	switch {
	case strings.TrimSpace(r.Image) == "":
		problems = append(problems, "image is required")
	case !IsImageURL(r.Image):
		if _, err := DecodeImageBytes(r.Image); err != nil {
			problems = append(problems, "image is neither a URL nor valid base64")
		}
	}

	positive := []struct {
		name  string
		value int
	}{
		{"width", r.Width},
		{"height", r.Height},
		{"num_frames", r.NumFrames},
		{"num_inference_steps", r.NumInferenceSteps},
		{"fps", r.FPS},
		{"decode_chunk_size", r.DecodeChunkSize},
	}
	for _, p := range positive {
		if p.value <= 0 {
			problems = append(problems, fmt.Sprintf("%s must be positive", p.name))
		}
	}

	if r.MinGuidanceScale < 0 || r.MaxGuidanceScale < 0 {
		problems = append(problems, "guidance scales must not be negative")
	}
	if r.MinGuidanceScale > r.MaxGuidanceScale {
		problems = append(problems, "min_guidance_scale must not exceed max_guidance_scale")
	}
	if r.NoiseAugStrength < 0 || r.NoiseAugStrength > 1 {
		problems = append(problems, "noise_aug_strength must be within [0, 1]")
	}
	if r.MotionBucketID < 0 || r.MotionBucketID > 255 {
		problems = append(problems, "motion_bucket_id must be within [0, 255]")
	}

	if len(problems) > 0 {
		return types.NewError(types.ErrInvalidRequest, "invalid inference request: "+strings.Join(problems, "; ")).
			WithHTTPStatus(400)
	}
	return nil
}

// Marshal 返回规范化的请求体：紧凑 JSON，字段按声明顺序，不转义 HTML 字符
func (r Request) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(r); err != nil {
		return nil, fmt.Errorf("marshal inference request: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// UnmarshalRequest 解析请求体
func UnmarshalRequest(data []byte) (Request, error) {
	var r Request
	if err := json.Unmarshal(data, &r); err != nil {
		return Request{}, fmt.Errorf("unmarshal inference request: %w", err)
	}
	return r, nil
}
