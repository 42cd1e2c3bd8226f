package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/svdflow/inference"
	"github.com/BaSui01/svdflow/internal/telemetry"
	"github.com/BaSui01/svdflow/internal/tlsutil"
	"github.com/BaSui01/svdflow/pipeline"
)

// =============================================================================
// 🎬 generate 命令
// =============================================================================

// generateOptions generate 命令参数
type generateOptions struct {
	configPath  string
	image       string
	title       string
	seed        int64
	seedSet     bool
	count       int
	seedStep    int64
	concurrency int
	frames      int
	fps         int
}

func parseGenerateFlags(args []string) (*generateOptions, error) {
	opts := &generateOptions{}
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", "", "Path to config file")
	fs.StringVar(&opts.image, "image", "", "Conditioning image file or http(s) URL")
	fs.StringVar(&opts.title, "title", "", "Output file name without extension")
	fs.Int64Var(&opts.seed, "seed", 0, "Seed for the first request")
	fs.IntVar(&opts.count, "count", 1, "Number of requests in the seed sweep")
	fs.Int64Var(&opts.seedStep, "seed-step", 1, "Seed increment between sweep requests")
	fs.IntVar(&opts.concurrency, "concurrency", 1, "Requests in flight at once")
	fs.IntVar(&opts.frames, "frames", 0, "Override request.num_frames")
	fs.IntVar(&opts.fps, "fps", 0, "Override request.fps")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "seed" {
			opts.seedSet = true
		}
	})

	if opts.image == "" {
		return nil, fmt.Errorf("--image is required")
	}
	if opts.count <= 0 {
		return nil, fmt.Errorf("--count must be positive")
	}
	return opts, nil
}

// applyTo 把命令行覆盖项应用到默认请求
func (o *generateOptions) applyTo(req inference.Request) inference.Request {
	if o.seedSet {
		req.Seed = o.seed
	}
	if o.frames > 0 {
		req.NumFrames = o.frames
	}
	if o.fps > 0 {
		req.FPS = o.fps
	}
	return req
}

// readImage 读取本地文件或下载 URL
func readImage(ctx context.Context, src string, maxBytes int64) ([]byte, error) {
	if inference.IsImageURL(src) {
		return inference.FetchImage(ctx, tlsutil.SecureHTTPClient(30*time.Second), src, maxBytes)
	}
	f, err := os.Open(src)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()
	// 多读一个字节以便 PrepareImage 判定超限
	return io.ReadAll(io.LimitReader(f, maxBytes+1))
}

func runGenerate(args []string) int {
	opts, err := parseGenerateFlags(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "generate: %v\n", err)
		return 2
	}

	cfg := loadConfig(opts.configPath)
	logger := initLogger(cfg.Log)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := telemetry.Init(cfg.Telemetry, logger,
		telemetry.WithResourceAttributes(telemetry.ServiceAttributes(cfg)...))
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = providers.Shutdown(sctx)
	}()

	comps, err := buildComponents(ctx, cfg, nil, providers.Tracer(), logger)
	if err != nil {
		logger.Error("failed to build inference pipeline", zap.Error(err))
		return 1
	}

	data, err := readImage(ctx, opts.image, cfg.Inference.MaxImageBytes)
	if err != nil {
		logger.Error("failed to read image", zap.String("image", opts.image), zap.Error(err))
		return 1
	}
	img, err := inference.PrepareImage(data, cfg.Inference.MaxImageBytes)
	if err != nil {
		logger.Error("invalid image", zap.String("image", opts.image), zap.Error(err))
		return 1
	}

	base := opts.applyTo(requestDefaults(cfg.Request)).WithImage(img)
	title := opts.title
	if title == "" {
		title = opts.image
	}
	title = pipeline.SafeTitle(title, "svd")

	var results []*pipeline.Result
	if opts.count == 1 {
		res, _ := comps.runner.Run(ctx, base, pipeline.RunOptions{Title: title})
		results = []*pipeline.Result{res}
	} else {
		items := pipeline.Items(title, pipeline.SeedSweep(base, opts.count, opts.seedStep))
		results, err = comps.runner.RunBatch(ctx, items, opts.concurrency)
		if err != nil {
			logger.Warn("batch interrupted", zap.Error(err))
		}
	}

	return printResults(os.Stdout, results)
}

// printResults 每个请求输出一行，有失败时返回 1
func printResults(w io.Writer, results []*pipeline.Result) int {
	code := 0
	for _, res := range results {
		if res == nil {
			continue
		}
		if res.Err != nil {
			code = 1
			fmt.Fprintf(w, "%s\t%s\terror: %v\n", res.Title, res.State(), res.Err)
			continue
		}
		a := res.Artifact
		fmt.Fprintf(w, "%s\t%s\t%s\t%d frames\t%s\n",
			res.Title, res.State(), a.Path, a.FrameCount, a.Duration)
	}
	return code
}
