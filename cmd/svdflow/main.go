// =============================================================================
// svdflow 主入口
// =============================================================================
// 图生视频异步推理客户端与服务
//
// 使用方法:
//
//	svdflow serve                                  # 启动服务
//	svdflow serve --config config.yaml             # 指定配置文件
//	svdflow generate --image beach.png             # 本地生成一个视频
//	svdflow generate --image beach.png --count 4   # seed sweep
//	svdflow version                                # 显示版本信息
//	svdflow health                                 # 健康检查
// =============================================================================

// @title svdflow API
// @version 1.0.0
// @description Asynchronous image-to-video generation on a SageMaker async inference endpoint.
// @description
// @description ## Features
// @description - Submit a conditioning image and generation parameters as a background job
// @description - Poll job state or stream state changes over websocket
// @description - Download the assembled MP4/AVI video

// @contact.name svdflow Team
// @contact.url https://github.com/BaSui01/svdflow

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /
// @schemes http https

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
// @description API key for authentication

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/svdflow/config"
	"github.com/BaSui01/svdflow/internal/telemetry"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "generate":
		os.Exit(runGenerate(os.Args[2:]))
	case "version":
		printVersion()
	case "health":
		runHealthCheck(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// loadConfig 加载并校验配置，失败时退出
func loadConfig(path string) *config.Config {
	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}

	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	cfg := loadConfig(*configPath)

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("Starting svdflow",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	otelProviders, err := telemetry.Init(cfg.Telemetry, logger,
		telemetry.WithResourceAttributes(telemetry.ServiceAttributes(cfg)...))
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := NewServer(cfg, otelProviders, logger)
	if err := srv.Start(ctx); err != nil {
		srv.Shutdown()
		logger.Fatal("Failed to start server", zap.Error(err))
	}

	// 等待关闭信号
	if err := srv.Wait(ctx); err != nil {
		logger.Error("HTTP server stopped unexpectedly", zap.Error(err))
	}
	srv.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := otelProviders.Shutdown(shutdownCtx); err != nil {
		logger.Warn("telemetry shutdown error", zap.Error(err))
	}

	logger.Info("svdflow stopped")
}

// =============================================================================
// 🏥 健康检查命令
// =============================================================================

func runHealthCheck(args []string) {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "Server address")
	fs.Parse(args)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(*addr + "/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: status %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("OK")
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion() {
	fmt.Printf("svdflow %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`svdflow - asynchronous image-to-video inference

Usage:
  svdflow <command> [options]

Commands:
  serve     Start the HTTP API server
  generate  Submit images from the command line and write videos locally
  version   Show version information
  health    Check server health
  help      Show this help message

Options for 'serve':
  --config <path>   Path to configuration file (YAML)

Options for 'generate':
  --config <path>       Path to configuration file (YAML)
  --image <path|url>    Conditioning image (required)
  --title <name>        Output file name without extension (default: image file name)
  --seed <n>            Seed for the first request (default: request.seed)
  --count <n>           Number of requests in the seed sweep (default 1)
  --seed-step <n>       Seed increment between sweep requests (default 1)
  --concurrency <n>     Requests in flight at once (default 1, sequential)
  --frames <n>          Override request.num_frames
  --fps <n>             Override request.fps

Examples:
  svdflow serve
  svdflow serve --config /etc/svdflow/config.yaml
  svdflow generate --image ./beach.png --count 4 --concurrency 2
  svdflow health --addr http://localhost:8080
  svdflow version`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       cfg.Format == "console",
		Encoding:          "json",
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}
	if cfg.Format == "console" {
		zapConfig.Encoding = "console"
	}

	logger, err := zapConfig.Build()
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}

	return logger
}
