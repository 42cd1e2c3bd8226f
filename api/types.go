package api

import (
	"time"

	"github.com/BaSui01/svdflow/inference"
)

// =============================================================================
// 视频任务类型
// =============================================================================

// CreateVideoRequest 创建视频任务请求。
// 未设置的参数使用服务端默认值；image 与 image_url 二选一，multipart 上传时由文件提供。
// @Description 图生视频任务请求
type CreateVideoRequest struct {
	// 输出文件名（不含扩展名），为空时使用上传文件名或推理 ID
	Title string `json:"title,omitempty" example:"beach"`
	// base64 编码的 PNG/JPEG
	Image string `json:"image,omitempty"`
	// 条件图像 URL，由服务端下载
	ImageURL string `json:"image_url,omitempty" example:"https://example.com/cat.png"`

	Width             *int     `json:"width,omitempty" example:"1024"`
	Height            *int     `json:"height,omitempty" example:"576"`
	NumFrames         *int     `json:"num_frames,omitempty" example:"25"`
	NumInferenceSteps *int     `json:"num_inference_steps,omitempty" example:"25"`
	MinGuidanceScale  *float64 `json:"min_guidance_scale,omitempty" example:"1.0"`
	MaxGuidanceScale  *float64 `json:"max_guidance_scale,omitempty" example:"3.0"`
	FPS               *int     `json:"fps,omitempty" example:"6"`
	MotionBucketID    *int     `json:"motion_bucket_id,omitempty" example:"127"`
	NoiseAugStrength  *float64 `json:"noise_aug_strength,omitempty" example:"0.02"`
	DecodeChunkSize   *int     `json:"decode_chunk_size,omitempty" example:"8"`
	Seed              *int64   `json:"seed,omitempty" example:"42"`
}

// Apply 把请求中显式设置的参数覆盖到 base 上
func (r *CreateVideoRequest) Apply(base inference.Request) inference.Request {
	setInt := func(dst *int, v *int) {
		if v != nil {
			*dst = *v
		}
	}
	setFloat := func(dst *float64, v *float64) {
		if v != nil {
			*dst = *v
		}
	}
	setInt(&base.Width, r.Width)
	setInt(&base.Height, r.Height)
	setInt(&base.NumFrames, r.NumFrames)
	setInt(&base.NumInferenceSteps, r.NumInferenceSteps)
	setFloat(&base.MinGuidanceScale, r.MinGuidanceScale)
	setFloat(&base.MaxGuidanceScale, r.MaxGuidanceScale)
	setInt(&base.FPS, r.FPS)
	setInt(&base.MotionBucketID, r.MotionBucketID)
	setFloat(&base.NoiseAugStrength, r.NoiseAugStrength)
	setInt(&base.DecodeChunkSize, r.DecodeChunkSize)
	if r.Seed != nil {
		base.Seed = *r.Seed
	}
	return base
}

// CreateVideoResponse 创建成功后的响应
type CreateVideoResponse struct {
	JobID string          `json:"job_id" example:"8f14e45f-ceea-467f-a8d5-1d2f0f0b6d3a"`
	State inference.State `json:"state" example:"created"`
	// 状态查询地址
	StatusURL string `json:"status_url"`
	// 事件流地址（websocket）
	EventsURL string `json:"events_url"`
}

// VideoJob 任务详情
// @Description 视频任务状态
type VideoJob struct {
	ID              string          `json:"id"`
	Title           string          `json:"title"`
	State           inference.State `json:"state"`
	InferenceID     string          `json:"inference_id,omitempty"`
	InputLocation   string          `json:"input_location,omitempty"`
	OutputLocation  string          `json:"output_location,omitempty"`
	FailureLocation string          `json:"failure_location,omitempty"`
	Seed            int64           `json:"seed"`
	NumFrames       int             `json:"num_frames"`
	FPS             int             `json:"fps"`
	Video           *VideoArtifact  `json:"video,omitempty"`
	Error           *ErrorDetail    `json:"error,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// VideoArtifact 合成好的视频
type VideoArtifact struct {
	URL        string  `json:"url"`
	Format     string  `json:"format" example:"mp4"`
	FrameCount int     `json:"frame_count" example:"25"`
	Duration   float64 `json:"duration_seconds" example:"4.17"`
	SizeBytes  int64   `json:"size_bytes"`
}

// ErrorDetail 任务失败原因
type ErrorDetail struct {
	Code    string `json:"code" example:"TIMEOUT"`
	Message string `json:"message"`
}

// VideoJobList 任务列表
type VideoJobList struct {
	Jobs  []VideoJob `json:"jobs"`
	Count int        `json:"count"`
}

// VersionInfo 版本信息
type VersionInfo struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GitCommit string `json:"git_commit"`
}
