package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/svdflow/api/handlers"
	"github.com/BaSui01/svdflow/config"
	"github.com/BaSui01/svdflow/internal/cache"
	"github.com/BaSui01/svdflow/internal/database"
	"github.com/BaSui01/svdflow/internal/jobs"
	"github.com/BaSui01/svdflow/internal/metrics"
	"github.com/BaSui01/svdflow/internal/server"
	"github.com/BaSui01/svdflow/internal/telemetry"
	"github.com/BaSui01/svdflow/internal/tlsutil"
	"github.com/BaSui01/svdflow/internal/worker"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 svdflow 的主服务器
type Server struct {
	cfg       *config.Config
	logger    *zap.Logger
	telemetry *telemetry.Providers

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// 推理链路与任务
	comps      *components
	pool       *worker.Pool
	hub        *jobs.Hub
	jobStore   jobs.Store
	jobManager *jobs.Manager
	dbPool     *database.PoolManager

	// Handlers
	healthHandler *handlers.HealthHandler
	videoHandler  *handlers.VideoHandler

	// 指标收集器
	metricsCollector *metrics.Collector

	// Rate limiter 生命周期管理
	rateLimiterCancel context.CancelFunc
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, providers *telemetry.Providers, logger *zap.Logger) *Server {
	return &Server{
		cfg:       cfg,
		logger:    logger,
		telemetry: providers,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动所有服务
func (s *Server) Start(ctx context.Context) error {
	// 1. 初始化指标收集器
	s.metricsCollector = metrics.NewCollector("svdflow", s.logger)

	// 2. 推理链路
	comps, err := buildComponents(ctx, s.cfg, s.metricsCollector, s.telemetry.Tracer(), s.logger)
	if err != nil {
		return fmt.Errorf("failed to build inference pipeline: %w", err)
	}
	s.comps = comps

	// 3. 任务存储、worker 池与任务管理器
	if err := s.initJobs(ctx); err != nil {
		return fmt.Errorf("failed to init jobs: %w", err)
	}

	// 4. Handlers
	s.initHandlers()

	// 5. 启动 HTTP 服务器
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// 6. 启动 Metrics 服务器
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.String("http_addr", s.httpManager.Addr()),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.String("jobs_backend", s.cfg.Jobs.Backend),
	)

	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// initJobs 打开任务存储并恢复上次中断的任务
func (s *Server) initJobs(ctx context.Context) error {
	store, err := s.openJobStore(ctx)
	if err != nil {
		return err
	}
	s.jobStore = store

	s.pool = worker.NewPool(worker.Config{
		MaxWorkers: s.cfg.Jobs.Workers,
		QueueSize:  s.cfg.Jobs.QueueSize,
		Hooks: worker.Hooks{
			OnQueued:  s.metricsCollector.SetJobsQueued,
			OnRunning: s.metricsCollector.SetJobsRunning,
		},
	}, s.logger)
	s.hub = jobs.NewHub()
	s.jobManager = jobs.NewManager(store, s.comps.runner, s.pool, s.hub, s.logger,
		jobs.WithRecorder(s.metricsCollector),
	)

	n, err := s.jobManager.RecoverInterrupted(ctx)
	if err != nil {
		s.logger.Warn("Failed to recover interrupted jobs", zap.Error(err))
	} else if n > 0 {
		s.logger.Info("Recovered interrupted jobs", zap.Int("count", n))
	}
	return nil
}

// openJobStore 按 jobs.backend 打开任务存储
func (s *Server) openJobStore(ctx context.Context) (jobs.Store, error) {
	switch s.cfg.Jobs.Backend {
	case "redis":
		rc := s.cfg.Redis
		cacheCfg := cache.DefaultConfig()
		cacheCfg.Addr = rc.Addr
		cacheCfg.Password = rc.Password
		cacheCfg.DB = rc.DB
		cacheCfg.KeyPrefix = rc.KeyPrefix
		cacheCfg.PoolSize = rc.PoolSize
		cacheCfg.MinIdleConns = rc.MinIdleConns
		cacheCfg.DefaultTTL = s.cfg.Jobs.TTL
		m, err := cache.NewManager(cacheCfg, s.logger)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		return jobs.NewRedisStore(m, s.cfg.Jobs.TTL, s.logger), nil

	case "database":
		dc := s.cfg.Database
		poolCfg := database.DefaultPoolConfig()
		poolCfg.MaxOpenConns = dc.MaxOpenConns
		poolCfg.MaxIdleConns = dc.MaxIdleConns
		poolCfg.ConnMaxLifetime = dc.ConnMaxLifetime
		pool, err := database.Open(dc.Driver, dc.DSN(), poolCfg, s.logger,
			database.WithStatsRecorder(dc.Name, s.metricsCollector))
		if err != nil {
			return nil, err
		}
		store, err := jobs.NewGormStore(ctx, pool, s.logger)
		if err != nil {
			_ = pool.Close()
			return nil, err
		}
		s.dbPool = pool
		s.logger.Info("Database connected", zap.String("driver", dc.Driver))
		return store, nil

	default:
		return jobs.NewMemoryStore(), nil
	}
}

// initHandlers 初始化所有 handlers
func (s *Server) initHandlers() {
	s.healthHandler = handlers.NewHealthHandler(Version, s.logger)
	bucket := s.cfg.Storage.Bucket
	s.healthHandler.RegisterCheck(handlers.NewCheck("object_store", func(ctx context.Context) error {
		return s.comps.store.Ping(ctx, bucket)
	}))
	s.healthHandler.RegisterCheck(handlers.NewCheck("jobs", s.jobManager.Ping))
	if s.dbPool != nil {
		s.healthHandler.RegisterCheck(databaseCheck(s.dbPool))
	}

	s.videoHandler = handlers.NewVideoHandler(s.jobManager, handlers.VideoConfig{
		Defaults:       requestDefaults(s.cfg.Request),
		MaxImageBytes:  s.cfg.Inference.MaxImageBytes,
		HTTPClient:     tlsutil.SecureHTTPClient(30 * time.Second),
		OriginPatterns: s.cfg.Server.CORSAllowedOrigins,
	}, s.logger)

	s.logger.Info("Handlers initialized")
}

// databaseCheck 数据库就绪检查，通过时附带连接池统计
func databaseCheck(pool *database.PoolManager) *handlers.CheckFunc {
	return handlers.NewCheck("database", pool.Ping).WithDetails(func() any {
		return pool.GetStats()
	})
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// startHTTPServer 启动 API 服务器
func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	// 健康检查端点
	mux.HandleFunc("GET /health", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("GET /ready", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /version", s.healthHandler.HandleVersion(BuildTime, GitCommit))

	// 视频任务 API
	s.videoHandler.Register(mux)

	// 构建中间件链
	skipAuthPaths := []string{"/health", "/healthz", "/ready", "/readyz", "/version", "/metrics"}
	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel

	chain := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		OTelTracing(),
		MetricsMiddleware(s.metricsCollector),
		RequestLogger(s.logger),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		RateLimiter(rateLimiterCtx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger),
	}
	if len(s.cfg.Server.APIKeys) > 0 {
		chain = append(chain, APIKeyAuth(s.cfg.Server.APIKeys, skipAuthPaths, s.cfg.Server.AllowQueryAPIKey, s.logger))
	}
	if s.cfg.Server.JWT.Enabled() {
		chain = append(chain, JWTAuth(s.cfg.Server.JWT, skipAuthPaths, s.logger))
	}
	handler := Chain(mux, chain...)

	serverConfig := server.Config{
		Name:            "api",
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(handler, serverConfig, s.logger)
	if sc := s.cfg.Server; sc.TLSEnabled() {
		return s.httpManager.StartTLS(sc.TLSCertFile, sc.TLSKeyFile)
	}
	return s.httpManager.Start()
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

// startMetricsServer 启动 Metrics 服务器，端口为 0 时不启动
func (s *Server) startMetricsServer() error {
	if s.cfg.Server.MetricsPort == 0 {
		s.logger.Info("Metrics server disabled")
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Name:            "metrics",
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)
	return s.metricsManager.Start()
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// Wait 阻塞到 ctx 结束（收到信号）或 API 服务器异常退出
func (s *Server) Wait(ctx context.Context) error {
	if s.httpManager == nil {
		<-ctx.Done()
		return nil
	}
	return s.httpManager.Wait(ctx)
}

// Shutdown 优雅关闭所有服务
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	// 0. 停止 rate limiter 清理 goroutine
	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}

	// 1. 停止接收新请求
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	// 2. 等待执行中的任务，超时后取消
	if s.pool != nil {
		if err := s.pool.Shutdown(ctx); err != nil {
			s.logger.Warn("Worker pool shutdown incomplete", zap.Error(err))
		}
	}

	// 3. 关闭事件流，websocket 客户端收到 going away
	if s.hub != nil {
		s.hub.Close()
	}

	// 4. 关闭任务存储
	if s.jobStore != nil {
		if err := s.jobStore.Close(); err != nil {
			s.logger.Error("Job store close error", zap.Error(err))
		}
	}

	// 5. 关闭 Metrics 服务器
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	s.logger.Info("Graceful shutdown completed")
}
