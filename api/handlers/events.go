package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/BaSui01/svdflow/internal/jobs"
)

const (
	eventWriteTimeout = 10 * time.Second
	eventPingInterval = 30 * time.Second
)

// HandleEvents 处理 GET /api/v1/videos/{id}/events，升级为 websocket 并推送状态变化直到终态
// @Summary 任务事件流
// @Description websocket：先推送当前状态快照，之后每次状态变化推送一条 JSON，终态后正常关闭
// @Tags 视频
// @Param id path string true "任务 ID"
// @Success 101 {object} jobs.Event "状态事件"
// @Failure 404 {object} Response "任务不存在"
// @Router /api/v1/videos/{id}/events [get]
func (h *VideoHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	// 先订阅再读快照，避免两者之间的迁移丢失
	events, cancel := h.svc.Subscribe(id)
	defer cancel()

	job, err := h.svc.Get(r.Context(), id)
	if err != nil {
		WriteErr(w, err, h.logger)
		return
	}

	// 事件流可能持续整个推理周期，清除 http.Server 设置的读写截止时间
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.cfg.OriginPatterns,
	})
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.String("job_id", id), zap.Error(err))
		return
	}
	defer conn.CloseNow()

	log := h.logger.With(zap.String("job_id", id))
	// 客户端不发消息，CloseRead 负责处理控制帧并在对端关闭时取消 ctx
	ctx := conn.CloseRead(r.Context())

	snapshot := jobs.Event{
		JobID:       job.ID,
		InferenceID: job.InferenceID,
		State:       job.State,
		Error:       job.ErrorMessage,
		At:          job.UpdatedAt,
	}
	if err := writeEvent(ctx, conn, snapshot); err != nil {
		log.Debug("websocket write failed", zap.Error(err))
		return
	}
	if snapshot.Terminal() {
		conn.Close(websocket.StatusNormalClosure, "job finished")
		return
	}

	ping := time.NewTicker(eventPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			if err := writeEvent(ctx, conn, ev); err != nil {
				log.Debug("websocket write failed", zap.Error(err))
				return
			}
			if ev.Terminal() {
				conn.Close(websocket.StatusNormalClosure, "job finished")
				return
			}
		case <-ping.C:
			pctx, pcancel := context.WithTimeout(ctx, eventWriteTimeout)
			err := conn.Ping(pctx)
			pcancel()
			if err != nil {
				log.Debug("websocket ping failed", zap.Error(err))
				return
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, ev jobs.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}
