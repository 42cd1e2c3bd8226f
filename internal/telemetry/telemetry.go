// =============================================================================
// svdflow OpenTelemetry 初始化
// =============================================================================
// 每个推理请求形成一条 trace：
//
//	inference.submit -> inference.await -> inference.poll (xN) -> pipeline.decode -> pipeline.assemble
//
// HTTP 入口由 middleware 开根 span，后台任务沿用提交时的 trace。
// 资源属性标明 AWS 区域、SageMaker 端点与 S3 bucket，便于按端点聚合。
// =============================================================================

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/svdflow/config"
)

// InstrumentationName is the tracer name used across svdflow packages.
const InstrumentationName = "github.com/BaSui01/svdflow"

// 推理链路的 span 名称
const (
	SpanSubmit   = "inference.submit"
	SpanAwait    = "inference.await"
	SpanPoll     = "inference.poll"
	SpanDecode   = "pipeline.decode"
	SpanAssemble = "pipeline.assemble"
)

// span 属性
const (
	AttrInferenceID    = attribute.Key("inference.id")
	AttrInputLocation  = attribute.Key("inference.input_location")
	AttrOutputLocation = attribute.Key("inference.output_location")
	AttrPayloadBytes   = attribute.Key("pipeline.payload_bytes")
	AttrFrames         = attribute.Key("pipeline.frames")
	AttrVideoFormat    = attribute.Key("video.format")
	AttrVideoFPS       = attribute.Key("video.fps")
	AttrVideoSize      = attribute.Key("video.size_bytes")

	attrEndpointName = attribute.Key("svdflow.endpoint_name")
	attrBucket       = attribute.Key("svdflow.bucket")
	attrEncoder      = attribute.Key("svdflow.video.encoder")
	attrJobsBackend  = attribute.Key("svdflow.jobs.backend")
)

// Providers holds the SDK TracerProvider and MeterProvider.
// Both are nil when telemetry is disabled.
type Providers struct {
	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider
}

type options struct {
	attrs []attribute.KeyValue
}

// Option 配置 Init
type Option func(*options)

// WithResourceAttributes 追加资源属性
func WithResourceAttributes(attrs ...attribute.KeyValue) Option {
	return func(o *options) {
		o.attrs = append(o.attrs, attrs...)
	}
}

// ServiceAttributes 从配置推导部署相关的资源属性，空值跳过
func ServiceAttributes(cfg *config.Config) []attribute.KeyValue {
	attrs := []attribute.KeyValue{semconv.CloudProviderAWS}
	add := func(kv attribute.KeyValue) {
		if kv.Value.AsString() != "" {
			attrs = append(attrs, kv)
		}
	}
	add(semconv.CloudRegion(cfg.AWS.Region))
	add(attrEndpointName.String(cfg.Inference.EndpointName))
	add(attrBucket.String(cfg.Storage.Bucket))
	add(attrEncoder.String(cfg.Video.Encoder))
	add(attrJobsBackend.String(cfg.Jobs.Backend))
	return attrs
}

// Init 初始化 OTel SDK 并注册为全局 provider。
// 未启用时返回空 Providers，不连接任何外部服务。
func Init(cfg config.TelemetryConfig, logger *zap.Logger, opts ...Option) (*Providers, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Enabled {
		logger.Info("telemetry disabled, using noop providers")
		return &Providers{}, nil
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	ctx := context.Background()
	res, err := newResource(ctx, cfg.ServiceName, o.attrs)
	if err != nil {
		return nil, err
	}
	tp, err := newTracerProvider(ctx, cfg, res)
	if err != nil {
		return nil, err
	}
	mp, err := newMeterProvider(ctx, cfg, res)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, err
	}

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("telemetry initialized",
		zap.String("endpoint", cfg.OTLPEndpoint),
		zap.String("service_name", cfg.ServiceName),
		zap.Float64("sample_rate", cfg.SampleRate),
		zap.Int("resource_attributes", res.Len()),
	)

	return &Providers{tp: tp, mp: mp}, nil
}

func newResource(ctx context.Context, serviceName string, attrs []attribute.KeyValue) (*resource.Resource, error) {
	base := []attribute.KeyValue{
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(buildVersion()),
	}
	res, err := resource.New(ctx, resource.WithAttributes(append(base, attrs...)...))
	if err != nil {
		return nil, fmt.Errorf("create otel resource: %w", err)
	}
	return res, nil
}

func newTracerProvider(ctx context.Context, cfg config.TelemetryConfig, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		// 后台任务沿用 HTTP 请求的采样决定
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))),
	), nil
}

func newMeterProvider(ctx context.Context, cfg config.TelemetryConfig, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	exporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
		sdkmetric.WithResource(res),
	), nil
}

// Tracer returns the svdflow tracer, falling back to the global provider.
func (p *Providers) Tracer() trace.Tracer {
	if p != nil && p.tp != nil {
		return p.tp.Tracer(InstrumentationName)
	}
	return otel.Tracer(InstrumentationName)
}

// Shutdown flushes pending spans and metrics. Safe on nil or noop Providers.
func (p *Providers) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var errs []error
	if p.tp != nil {
		if err := p.tp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer provider: %w", err))
		}
	}
	if p.mp != nil {
		if err := p.mp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown meter provider: %w", err))
		}
	}
	return errors.Join(errs...)
}

// buildVersion 取模块版本，本地构建返回 "dev"
func buildVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}
	if info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}
