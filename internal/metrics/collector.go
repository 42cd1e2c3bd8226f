// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// 推理指标
	inferenceStagesTotal   *prometheus.CounterVec
	inferenceStageDuration *prometheus.HistogramVec
	pollAttemptsTotal      *prometheus.CounterVec
	stateTransitions       *prometheus.CounterVec

	// 视频指标
	videoFrames *prometheus.HistogramVec
	videoBytes  *prometheus.HistogramVec

	// 任务指标
	jobsTotal   *prometheus.CounterVec
	jobsQueued  prometheus.Gauge
	jobsRunning prometheus.Gauge

	// 数据库指标
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器，指标注册到默认 Registry
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	return NewCollectorWith(prometheus.DefaultRegisterer, namespace, logger)
}

// NewCollectorWith 创建指标收集器并注册到 reg
func NewCollectorWith(reg prometheus.Registerer, namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.httpRequestSize = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_size_bytes",
			Help:      "HTTP request size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	c.httpResponseSize = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// 推理指标
	c.inferenceStagesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inference_stages_total",
			Help:      "Total number of inference pipeline stages by outcome",
		},
		[]string{"stage", "status"}, // stage: submit, poll, await, decode, assemble
	)

	c.inferenceStageDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inference_stage_duration_seconds",
			Help:      "Inference pipeline stage duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"stage"},
	)

	c.pollAttemptsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_attempts_total",
			Help:      "Total number of result poll attempts by outcome",
		},
		[]string{"outcome"}, // ready, not_ready, transient_retry, error
	)

	c.stateTransitions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_state_transitions_total",
			Help:      "Total number of request lifecycle state transitions",
		},
		[]string{"from_state", "to_state"},
	)

	// 视频指标
	c.videoFrames = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "video_frames",
			Help:      "Number of frames per assembled video",
			Buckets:   []float64{1, 8, 14, 25, 50, 100, 250},
		},
		[]string{"format"},
	)

	c.videoBytes = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "video_size_bytes",
			Help:      "Assembled video file size in bytes",
			Buckets:   prometheus.ExponentialBuckets(64*1024, 4, 8),
		},
		[]string{"format"},
	)

	// 任务指标
	c.jobsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Total number of finished jobs by final state",
		},
		[]string{"state"},
	)

	c.jobsQueued = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_queued",
			Help:      "Number of jobs waiting for a worker",
		},
	)

	c.jobsRunning = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_running",
			Help:      "Number of jobs currently executing",
		},
	)

	// 数据库指标
	c.dbConnectionsOpen = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Number of open database connections",
		},
		[]string{"database"},
	)

	c.dbConnectionsIdle = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Number of idle database connections",
		},
		[]string{"database"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// 🎬 推理指标记录
// =============================================================================

// RecordInferenceStage 记录一个推理阶段，实现 inference.Recorder 与 pipeline.StageRecorder
func (c *Collector) RecordInferenceStage(stage, status string, duration time.Duration) {
	c.inferenceStagesTotal.WithLabelValues(stage, status).Inc()
	c.inferenceStageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordPollAttempt 记录一次轮询
func (c *Collector) RecordPollAttempt(outcome string) {
	c.pollAttemptsTotal.WithLabelValues(outcome).Inc()
}

// RecordStateTransition 记录请求状态迁移
func (c *Collector) RecordStateTransition(fromState, toState string) {
	c.stateTransitions.WithLabelValues(fromState, toState).Inc()
}

// RecordVideo 记录合成产物
func (c *Collector) RecordVideo(format string, frames int, size int64) {
	c.videoFrames.WithLabelValues(format).Observe(float64(frames))
	c.videoBytes.WithLabelValues(format).Observe(float64(size))
}

// =============================================================================
// 📋 任务指标记录
// =============================================================================

// RecordJobFinished 记录任务终态
func (c *Collector) RecordJobFinished(state string) {
	c.jobsTotal.WithLabelValues(state).Inc()
}

// SetJobsQueued 设置排队任务数
func (c *Collector) SetJobsQueued(n int) {
	c.jobsQueued.Set(float64(n))
}

// SetJobsRunning 设置执行中任务数
func (c *Collector) SetJobsRunning(n int) {
	c.jobsRunning.Set(float64(n))
}

// =============================================================================
// 🗄️ 数据库指标记录
// =============================================================================

// RecordDBConnections 记录数据库连接数
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
