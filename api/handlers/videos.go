package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/svdflow/api"
	"github.com/BaSui01/svdflow/inference"
	"github.com/BaSui01/svdflow/internal/jobs"
	"github.com/BaSui01/svdflow/types"
)

// =============================================================================
// 🎬 视频任务 Handler
// =============================================================================

// JobService 任务服务，*jobs.Manager 实现了该接口
type JobService interface {
	Enqueue(ctx context.Context, req inference.Request, title string) (*jobs.Job, error)
	Get(ctx context.Context, id string) (*jobs.Job, error)
	List(ctx context.Context, opts jobs.ListOptions) ([]*jobs.Job, error)
	Subscribe(id string) (<-chan jobs.Event, func())
}

// VideoConfig 视频 Handler 配置
type VideoConfig struct {
	// Defaults 请求参数默认值
	Defaults inference.Request
	// MaxImageBytes 条件图像大小上限
	MaxImageBytes int64
	// HTTPClient 下载 image_url 使用
	HTTPClient *http.Client
	// OriginPatterns websocket 允许的跨域来源
	OriginPatterns []string
}

// VideoHandler 视频任务处理器
type VideoHandler struct {
	svc    JobService
	cfg    VideoConfig
	logger *zap.Logger
}

// NewVideoHandler 创建视频任务处理器
func NewVideoHandler(svc JobService, cfg VideoConfig, logger *zap.Logger) *VideoHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxImageBytes <= 0 {
		cfg.MaxImageBytes = inference.DefaultMaxImageBytes
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &VideoHandler{
		svc:    svc,
		cfg:    cfg,
		logger: logger.With(zap.String("handler", "videos")),
	}
}

// Register 注册路由
func (h *VideoHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/videos", h.HandleCreate)
	mux.HandleFunc("GET /api/v1/videos", h.HandleList)
	mux.HandleFunc("GET /api/v1/videos/{id}", h.HandleGet)
	mux.HandleFunc("GET /api/v1/videos/{id}/video", h.HandleDownload)
	mux.HandleFunc("GET /api/v1/videos/{id}/events", h.HandleEvents)
}

// HandleCreate 处理 POST /api/v1/videos
// @Summary 创建视频任务
// @Description 接收 JSON（image 或 image_url）或 multipart（image 文件 + request JSON 字段），返回 202
// @Tags 视频
// @Accept json
// @Accept mpfd
// @Produce json
// @Param request body api.CreateVideoRequest true "任务参数"
// @Success 202 {object} api.CreateVideoResponse "已排队"
// @Failure 400 {object} Response "请求无效"
// @Failure 413 {object} Response "图像过大"
// @Failure 503 {object} Response "队列已满"
// @Router /api/v1/videos [post]
func (h *VideoHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var body api.CreateVideoRequest
	var upload []byte
	var filename string

	if isMultipart(r) {
		var err error
		upload, filename, err = h.readMultipart(w, r, &body)
		if err != nil {
			WriteErr(w, err, h.logger)
			return
		}
	} else {
		if !ValidateContentType(w, r, h.logger) {
			return
		}
		if err := DecodeJSONBody(w, r, &body, h.logger); err != nil {
			return
		}
	}

	data, err := h.loadImage(r.Context(), &body, upload)
	if err != nil {
		WriteErr(w, err, h.logger)
		return
	}
	img, err := inference.PrepareImage(data, h.cfg.MaxImageBytes)
	if err != nil {
		WriteErr(w, err, h.logger)
		return
	}
	req := body.Apply(h.cfg.Defaults.WithImage(img))

	title := body.Title
	if title == "" {
		title = filename
	}

	job, err := h.svc.Enqueue(r.Context(), req, title)
	if err != nil {
		WriteErr(w, err, h.logger)
		return
	}

	status := "/api/v1/videos/" + job.ID
	w.Header().Set("Location", status)
	WriteData(w, http.StatusAccepted, api.CreateVideoResponse{
		JobID:     job.ID,
		State:     job.State,
		StatusURL: status,
		EventsURL: status + "/events",
	})
}

func isMultipart(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "multipart/form-data"
}

// readMultipart 读取 multipart 上传：image 文件与可选的 request JSON 字段
func (h *VideoHandler) readMultipart(w http.ResponseWriter, r *http.Request, body *api.CreateVideoRequest) ([]byte, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseMultipartForm(h.cfg.MaxImageBytes + 1<<20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, "", types.NewError(types.ErrPayloadTooLarge, "upload too large")
		}
		return nil, "", types.NewError(types.ErrInvalidRequest, "invalid multipart form").WithCause(err)
	}

	if raw := r.FormValue("request"); raw != "" {
		dec := json.NewDecoder(strings.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(body); err != nil {
			return nil, "", types.NewError(types.ErrInvalidRequest, "invalid request field").WithCause(err)
		}
	}
	if t := r.FormValue("title"); t != "" && body.Title == "" {
		body.Title = t
	}

	file, hdr, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", types.NewError(types.ErrInvalidRequest, "invalid image upload").WithCause(err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.cfg.MaxImageBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read upload: %w", err)
	}
	return data, hdr.Filename, nil
}

// loadImage 按 上传文件 → image → image_url 的顺序取条件图像
func (h *VideoHandler) loadImage(ctx context.Context, body *api.CreateVideoRequest, upload []byte) ([]byte, error) {
	switch {
	case upload != nil:
		return upload, nil
	case body.Image != "":
		data, err := inference.DecodeImageBytes(body.Image)
		if err != nil {
			return nil, types.NewError(types.ErrInvalidRequest, "image must be base64 encoded").WithCause(err)
		}
		return data, nil
	case body.ImageURL != "":
		if !inference.IsImageURL(body.ImageURL) {
			return nil, types.NewError(types.ErrInvalidRequest, "image_url must be http or https")
		}
		data, err := inference.FetchImage(ctx, h.cfg.HTTPClient, body.ImageURL, h.cfg.MaxImageBytes)
		if err != nil {
			if types.GetErrorCode(err) != "" {
				return nil, err
			}
			return nil, types.NewError(types.ErrInvalidRequest, "failed to fetch image_url").
				WithHTTPStatus(http.StatusBadRequest).WithCause(err)
		}
		return data, nil
	default:
		return nil, types.NewError(types.ErrInvalidRequest, "image, image_url or an uploaded image file is required")
	}
}

// HandleGet 处理 GET /api/v1/videos/{id}
// @Summary 查询视频任务
// @Tags 视频
// @Produce json
// @Param id path string true "任务 ID"
// @Success 200 {object} api.VideoJob "任务详情"
// @Failure 404 {object} Response "任务不存在"
// @Router /api/v1/videos/{id} [get]
func (h *VideoHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	job, err := h.svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteErr(w, err, h.logger)
		return
	}
	WriteSuccess(w, toVideoJob(job))
}

// HandleList 处理 GET /api/v1/videos?state=&limit=
// @Summary 列出视频任务
// @Tags 视频
// @Produce json
// @Param state query string false "按状态过滤"
// @Param limit query int false "最大条数"
// @Success 200 {object} api.VideoJobList "任务列表"
// @Router /api/v1/videos [get]
func (h *VideoHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	opts := jobs.ListOptions{State: inference.State(r.URL.Query().Get("state"))}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "limit must be within [1, 500]", h.logger)
			return
		}
		opts.Limit = n
	}

	list, err := h.svc.List(r.Context(), opts)
	if err != nil {
		WriteErr(w, err, h.logger)
		return
	}
	out := api.VideoJobList{Jobs: make([]api.VideoJob, 0, len(list))}
	for _, j := range list {
		out.Jobs = append(out.Jobs, toVideoJob(j))
	}
	out.Count = len(out.Jobs)
	WriteSuccess(w, out)
}

// HandleDownload 处理 GET /api/v1/videos/{id}/video，合成完成前返回 404
// @Summary 下载视频
// @Tags 视频
// @Produce video/mp4
// @Param id path string true "任务 ID"
// @Success 200 {file} file "视频文件"
// @Failure 404 {object} Response "任务不存在或视频未就绪"
// @Router /api/v1/videos/{id}/video [get]
func (h *VideoHandler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	job, err := h.svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteErr(w, err, h.logger)
		return
	}
	if !job.Ready() {
		WriteErrorMessage(w, http.StatusNotFound, types.ErrNotFound,
			fmt.Sprintf("video not ready, job is %s", job.State), h.logger)
		return
	}

	f, err := os.Open(job.VideoPath)
	if err != nil {
		h.logger.Error("video file missing", zap.String("job_id", job.ID), zap.String("path", job.VideoPath), zap.Error(err))
		WriteErrorMessage(w, http.StatusNotFound, types.ErrNotFound, "video file is no longer available", h.logger)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		WriteErr(w, err, h.logger)
		return
	}

	name := filepath.Base(job.VideoPath)
	w.Header().Set("Content-Type", videoContentType(job.Format))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	http.ServeContent(w, r, name, info.ModTime(), f)
}

func videoContentType(format string) string {
	switch format {
	case "mp4":
		return "video/mp4"
	case "avi":
		return "video/x-msvideo"
	default:
		return "application/octet-stream"
	}
}

// toVideoJob 把任务记录转换为 API 响应，不暴露本地路径
func toVideoJob(j *jobs.Job) api.VideoJob {
	out := api.VideoJob{
		ID:              j.ID,
		Title:           j.Title,
		State:           j.State,
		InferenceID:     j.InferenceID,
		InputLocation:   j.InputLocation,
		OutputLocation:  j.OutputLocation,
		FailureLocation: j.FailureLocation,
		Seed:            j.Seed,
		NumFrames:       j.NumFrames,
		FPS:             j.FPS,
		CreatedAt:       j.CreatedAt,
		UpdatedAt:       j.UpdatedAt,
	}
	if j.Ready() {
		out.Video = &api.VideoArtifact{
			URL:        "/api/v1/videos/" + j.ID + "/video",
			Format:     j.Format,
			FrameCount: j.FrameCount,
			Duration:   time.Duration(j.DurationMS * int64(time.Millisecond)).Seconds(),
			SizeBytes:  j.SizeBytes,
		}
	}
	if j.ErrorCode != "" || j.ErrorMessage != "" {
		out.Error = &api.ErrorDetail{Code: j.ErrorCode, Message: j.ErrorMessage}
	}
	return out
}
