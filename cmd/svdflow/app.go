package main

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/svdflow/config"
	"github.com/BaSui01/svdflow/inference"
	"github.com/BaSui01/svdflow/internal/endpoint"
	"github.com/BaSui01/svdflow/internal/metrics"
	"github.com/BaSui01/svdflow/internal/objectstore"
	"github.com/BaSui01/svdflow/internal/tlsutil"
	"github.com/BaSui01/svdflow/pipeline"
	"github.com/BaSui01/svdflow/video"
)

// =============================================================================
// 🧩 组件装配（serve 与 generate 共用）
// =============================================================================

// components 推理链路上的全部组件
type components struct {
	store  *objectstore.S3Store
	client *inference.Client
	runner *pipeline.Runner
}

// loadAWSConfig 按配置构造 aws.Config
func loadAWSConfig(ctx context.Context, cfg config.AWSConfig) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithHTTPClient(tlsutil.AWSHTTPClient(cfg.HTTPTimeout)),
	}
	if cfg.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return awsCfg, nil
}

// clientConfig 把配置文件映射为推理客户端配置
func clientConfig(cfg *config.Config) inference.Config {
	return inference.Config{
		Bucket:            cfg.Storage.Bucket,
		InputPrefix:       cfg.Storage.InputPrefix,
		ContentType:       cfg.Inference.ContentType,
		InvocationTimeout: cfg.Inference.InvocationTimeout,
		PollInterval:      cfg.Poll.Interval,
		PollGrace:         cfg.Poll.Grace,
		TransientRetries:  cfg.Poll.TransientRetries,
		TransientBackoff:  cfg.Poll.TransientBackoff,
	}
}

// requestDefaults 配置中的请求参数默认值
func requestDefaults(d config.RequestDefaults) inference.Request {
	return inference.Request{
		Width:             d.Width,
		Height:            d.Height,
		NumFrames:         d.NumFrames,
		NumInferenceSteps: d.NumInferenceSteps,
		MinGuidanceScale:  d.MinGuidanceScale,
		MaxGuidanceScale:  d.MaxGuidanceScale,
		FPS:               d.FPS,
		MotionBucketID:    d.MotionBucketID,
		NoiseAugStrength:  d.NoiseAugStrength,
		DecodeChunkSize:   d.DecodeChunkSize,
		Seed:              d.Seed,
	}
}

// videoConfig 把配置文件映射为合成器配置
func videoConfig(cfg config.VideoConfig) video.Config {
	return video.Config{
		Encoder:    cfg.Encoder,
		FFmpegPath: cfg.FFmpegPath,
		Codec:      cfg.Codec,
		CRF:        cfg.CRF,
		Preset:     cfg.Preset,
		PixFmt:     cfg.PixFmt,
		Timeout:    cfg.Timeout,
	}
}

// buildComponents 构造 S3、SageMaker、推理客户端、合成器与 Runner
func buildComponents(ctx context.Context, cfg *config.Config, collector *metrics.Collector, tracer trace.Tracer, logger *zap.Logger) (*components, error) {
	if err := cfg.ValidateClient(); err != nil {
		return nil, err
	}

	awsCfg, err := loadAWSConfig(ctx, cfg.AWS)
	if err != nil {
		return nil, err
	}

	s3Client := objectstore.NewS3Client(awsCfg, objectstore.S3Options{
		EndpointURL:  cfg.AWS.EndpointURL,
		UsePathStyle: cfg.AWS.UsePathStyle,
	})
	store := objectstore.NewS3Store(s3Client, logger)

	smClient := endpoint.NewSageMakerClient(awsCfg, cfg.AWS.EndpointURL)
	invoker := endpoint.NewSageMakerInvoker(smClient, cfg.Inference.EndpointName, logger)

	clientOpts := []inference.Option{inference.WithTracer(tracer)}
	runnerOpts := []pipeline.Option{pipeline.WithTracer(tracer)}
	if collector != nil {
		clientOpts = append(clientOpts, inference.WithRecorder(collector))
		runnerOpts = append(runnerOpts, pipeline.WithStageRecorder(collector))
	}
	client := inference.NewClient(store, invoker, clientConfig(cfg), logger, clientOpts...)

	assembler, err := video.NewAssembler(videoConfig(cfg.Video), logger)
	if err != nil {
		return nil, err
	}
	if ff, ok := assembler.(*video.FFmpegAssembler); ok && !ff.Available() {
		logger.Warn("ffmpeg not found, video assembly will fail",
			zap.String("ffmpeg_path", cfg.Video.FFmpegPath))
	}

	runner := pipeline.NewRunner(client, assembler, pipeline.Config{
		OutputDir: cfg.Video.OutputDir,
		FramesDir: cfg.Video.FramesDir,
	}, logger, runnerOpts...)

	logger.Info("Inference pipeline ready",
		zap.String("endpoint", cfg.Inference.EndpointName),
		zap.String("bucket", cfg.Storage.Bucket),
		zap.String("region", cfg.AWS.Region),
		zap.String("encoder", string(assembler.Format())),
	)

	return &components{store: store, client: client, runner: runner}, nil
}
