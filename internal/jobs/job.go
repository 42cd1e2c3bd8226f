package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/svdflow/inference"
	"github.com/BaSui01/svdflow/pipeline"
	"github.com/BaSui01/svdflow/types"
)

func notFound(id string) error {
	return types.NewError(types.ErrNotFound, fmt.Sprintf("job %s not found", id)).WithHTTPStatus(404)
}

// IsNotFound 判断是否为任务不存在
func IsNotFound(err error) bool {
	return errors.Is(err, types.Sentinel(types.ErrNotFound))
}

// Job 一次视频生成任务的持久化记录
type Job struct {
	ID              string          `gorm:"primaryKey;size:64" json:"id"`
	Title           string          `gorm:"size:200" json:"title"`
	State           inference.State `gorm:"size:32;index:idx_svd_jobs_state" json:"state"`
	InferenceID     string          `gorm:"size:64;index:idx_svd_jobs_inference" json:"inference_id,omitempty"`
	InputLocation   string          `gorm:"size:1024" json:"input_location,omitempty"`
	OutputLocation  string          `gorm:"size:1024" json:"output_location,omitempty"`
	FailureLocation string          `gorm:"size:1024" json:"failure_location,omitempty"`

	Seed      int64 `json:"seed"`
	NumFrames int   `json:"num_frames"`
	FPS       int   `json:"fps"`

	FrameCount int    `gorm:"default:0" json:"frame_count"`
	VideoPath  string `gorm:"size:1024" json:"video_path,omitempty"`
	Format     string `gorm:"size:16" json:"format,omitempty"`
	DurationMS int64  `gorm:"default:0" json:"duration_ms"`
	SizeBytes  int64  `gorm:"default:0" json:"size_bytes"`

	ErrorCode    string `gorm:"size:64" json:"error_code,omitempty"`
	ErrorMessage string `gorm:"type:text" json:"error_message,omitempty"`

	CreatedAt time.Time `gorm:"index:idx_svd_jobs_created" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Job) TableName() string {
	return "svd_jobs"
}

// Terminal 是否已结束
func (j *Job) Terminal() bool {
	return j.State.IsTerminal()
}

// Ready 视频文件是否可下载
func (j *Job) Ready() bool {
	return j.State == inference.StateAssembled && j.VideoPath != ""
}

// Clone 返回副本
func (j *Job) Clone() *Job {
	c := *j
	return &c
}

// setError 记录失败原因
func (j *Job) setError(err error) {
	if err == nil {
		return
	}
	j.ErrorCode = string(types.GetErrorCode(err))
	j.ErrorMessage = err.Error()
}

// applyResult 把流水线结果写回任务记录
func (j *Job) applyResult(res *pipeline.Result) {
	if res == nil {
		return
	}
	if res.Title != "" {
		j.Title = res.Title
	}
	if h := res.Handle; h != nil {
		j.applyHandle(h)
	}
	j.FrameCount = res.FrameCount
	if a := res.Artifact; a != nil {
		j.VideoPath = a.Path
		j.Format = string(a.Format)
		j.FrameCount = a.FrameCount
		j.DurationMS = a.Duration.Milliseconds()
		j.SizeBytes = a.Size
	}
	j.setError(res.Err)
}

func (j *Job) applyHandle(h *inference.SubmissionHandle) {
	j.InferenceID = h.InferenceID
	j.InputLocation = h.InputLocation.String()
	j.OutputLocation = h.OutputLocation.String()
	if h.FailureLocation != nil {
		j.FailureLocation = h.FailureLocation.String()
	}
}

// ListOptions 列表查询参数
type ListOptions struct {
	// State 非空时只返回该状态
	State inference.State
	// Limit 最大条数，<=0 时为 50
	Limit int
}

func (o ListOptions) limit() int {
	if o.Limit <= 0 {
		return 50
	}
	return o.Limit
}

// Store 任务存储
type Store interface {
	// Create 新建任务，ID 已存在时返回错误
	Create(ctx context.Context, job *Job) error
	// Get 获取任务，不存在时返回 NOT_FOUND 错误
	Get(ctx context.Context, id string) (*Job, error)
	// Update 覆盖任务，不存在时返回 NOT_FOUND 错误
	Update(ctx context.Context, job *Job) error
	// List 按创建时间倒序列出任务
	List(ctx context.Context, opts ListOptions) ([]*Job, error)
	// Ping 检查后端可用
	Ping(ctx context.Context) error
	// Close 释放资源
	Close() error
}
