// =============================================================================
// 📦 svdflow 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("SVDFLOW").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 svdflow 的完整配置结构
type Config struct {
	// Server 服务器配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// AWS 凭证与区域
	AWS AWSConfig `yaml:"aws" env:"AWS"`

	// Storage 请求/结果对象存储
	Storage StorageConfig `yaml:"storage" env:"STORAGE"`

	// Inference 异步推理端点
	Inference InferenceConfig `yaml:"inference" env:"INFERENCE"`

	// Poll 结果轮询策略
	Poll PollConfig `yaml:"poll" env:"POLL"`

	// Request 请求参数默认值
	Request RequestDefaults `yaml:"request" env:"REQUEST"`

	// Video 视频合成配置
	Video VideoConfig `yaml:"video" env:"VIDEO"`

	// Jobs 服务端任务配置
	Jobs JobsConfig `yaml:"jobs" env:"JOBS"`

	// Redis 任务存储配置
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Database 数据库配置
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// Metrics 端口
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 每个 IP 的限流速率
	RateLimitRPS float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// 限流突发容量
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	// API Key 列表（为空则不启用 API Key 认证）
	APIKeys []string `yaml:"api_keys" env:"API_KEYS"`
	// 是否允许通过 ?api_key= 传递（浏览器 websocket 无法设置请求头）
	AllowQueryAPIKey bool `yaml:"allow_query_api_key" env:"ALLOW_QUERY_API_KEY"`
	// 允许的跨域来源
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
	// TLS 证书与私钥，都设置时 API 以 HTTPS 提供
	TLSCertFile string `yaml:"tls_cert_file" env:"TLS_CERT_FILE"`
	TLSKeyFile  string `yaml:"tls_key_file" env:"TLS_KEY_FILE"`
	// JWT 认证
	JWT JWTConfig `yaml:"jwt" env:"JWT"`
}

// TLSEnabled 证书与私钥都配置时启用 HTTPS
func (s ServerConfig) TLSEnabled() bool {
	return s.TLSCertFile != "" && s.TLSKeyFile != ""
}

// JWTConfig JWT 认证配置，Secret 与 PublicKey 都为空时不启用
type JWTConfig struct {
	Secret    string `yaml:"secret" env:"SECRET"`
	PublicKey string `yaml:"public_key" env:"PUBLIC_KEY"`
	Issuer    string `yaml:"issuer" env:"ISSUER"`
	Audience  string `yaml:"audience" env:"AUDIENCE"`
}

// Enabled 是否配置了任一校验密钥
func (j JWTConfig) Enabled() bool {
	return j.Secret != "" || j.PublicKey != ""
}

// AWSConfig AWS SDK 配置
type AWSConfig struct {
	// 区域
	Region string `yaml:"region" env:"REGION"`
	// 共享配置中的 profile
	Profile string `yaml:"profile" env:"PROFILE"`
	// 静态凭证，为空时走默认凭证链
	AccessKeyID     string `yaml:"access_key_id" env:"ACCESS_KEY_ID"`
	SecretAccessKey string `yaml:"secret_access_key" env:"SECRET_ACCESS_KEY"`
	SessionToken    string `yaml:"session_token" env:"SESSION_TOKEN"`
	// 自定义 endpoint（MinIO / LocalStack）
	EndpointURL string `yaml:"endpoint_url" env:"ENDPOINT_URL"`
	// S3 是否使用 path-style 寻址
	UsePathStyle bool `yaml:"use_path_style" env:"USE_PATH_STYLE"`
	// 单次 AWS 调用超时
	HTTPTimeout time.Duration `yaml:"http_timeout" env:"HTTP_TIMEOUT"`
}

// StorageConfig 对象存储配置
type StorageConfig struct {
	// 存放请求体的 bucket
	Bucket string `yaml:"bucket" env:"BUCKET"`
	// 请求体 key 前缀
	InputPrefix string `yaml:"input_prefix" env:"INPUT_PREFIX"`
}

// InferenceConfig 异步推理端点配置
type InferenceConfig struct {
	// 端点名称
	EndpointName string `yaml:"endpoint_name" env:"ENDPOINT_NAME"`
	// 服务端处理超时，同时决定轮询上限
	InvocationTimeout time.Duration `yaml:"invocation_timeout" env:"INVOCATION_TIMEOUT"`
	// 请求体 Content-Type
	ContentType string `yaml:"content_type" env:"CONTENT_TYPE"`
	// 条件图像大小上限（字节）
	MaxImageBytes int64 `yaml:"max_image_bytes" env:"MAX_IMAGE_BYTES"`
}

// PollConfig 结果轮询配置
type PollConfig struct {
	// 固定轮询间隔
	Interval time.Duration `yaml:"interval" env:"INTERVAL"`
	// 在提交超时之外额外等待的宽限期
	Grace time.Duration `yaml:"grace" env:"GRACE"`
	// 瞬时读取错误的最大重试次数
	TransientRetries int `yaml:"transient_retries" env:"TRANSIENT_RETRIES"`
	// 瞬时错误重试的初始退避
	TransientBackoff time.Duration `yaml:"transient_backoff" env:"TRANSIENT_BACKOFF"`
}

// RequestDefaults 推理请求参数默认值
type RequestDefaults struct {
	Width             int     `yaml:"width" env:"WIDTH"`
	Height            int     `yaml:"height" env:"HEIGHT"`
	NumFrames         int     `yaml:"num_frames" env:"NUM_FRAMES"`
	NumInferenceSteps int     `yaml:"num_inference_steps" env:"NUM_INFERENCE_STEPS"`
	MinGuidanceScale  float64 `yaml:"min_guidance_scale" env:"MIN_GUIDANCE_SCALE"`
	MaxGuidanceScale  float64 `yaml:"max_guidance_scale" env:"MAX_GUIDANCE_SCALE"`
	FPS               int     `yaml:"fps" env:"FPS"`
	MotionBucketID    int     `yaml:"motion_bucket_id" env:"MOTION_BUCKET_ID"`
	NoiseAugStrength  float64 `yaml:"noise_aug_strength" env:"NOISE_AUG_STRENGTH"`
	DecodeChunkSize   int     `yaml:"decode_chunk_size" env:"DECODE_CHUNK_SIZE"`
	Seed              int64   `yaml:"seed" env:"SEED"`
}

// VideoConfig 视频合成配置
type VideoConfig struct {
	// 编码器: ffmpeg, mjpeg
	Encoder string `yaml:"encoder" env:"ENCODER"`
	// 输出目录
	OutputDir string `yaml:"output_dir" env:"OUTPUT_DIR"`
	// 帧输出目录（为空则不落盘）
	FramesDir string `yaml:"frames_dir" env:"FRAMES_DIR"`
	// ffmpeg 可执行文件
	FFmpegPath string `yaml:"ffmpeg_path" env:"FFMPEG_PATH"`
	// x264 参数
	Codec  string `yaml:"codec" env:"CODEC"`
	CRF    int    `yaml:"crf" env:"CRF"`
	Preset string `yaml:"preset" env:"PRESET"`
	PixFmt string `yaml:"pix_fmt" env:"PIX_FMT"`
	// 单次合成超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// JobsConfig 服务端任务配置
type JobsConfig struct {
	// 存储后端: memory, redis, database
	Backend string `yaml:"backend" env:"BACKEND"`
	// 并发 worker 数
	Workers int `yaml:"workers" env:"WORKERS"`
	// 队列长度
	QueueSize int `yaml:"queue_size" env:"QUEUE_SIZE"`
	// 任务记录保留时间（redis 后端）
	TTL time.Duration `yaml:"ttl" env:"TTL"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 最小空闲连接
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	// key 前缀
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 驱动类型: postgres, mysql, sqlite
	Driver string `yaml:"driver" env:"DRIVER"`
	// 主机
	Host string `yaml:"host" env:"HOST"`
	// 端口
	Port int `yaml:"port" env:"PORT"`
	// 用户名
	User string `yaml:"user" env:"USER"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库名（sqlite 为文件路径）
	Name string `yaml:"name" env:"NAME"`
	// SSL 模式
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`
	// 最大连接数
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "SVDFLOW",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate 验证服务与推理链路都需要的配置
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		errs = append(errs, "invalid metrics port")
	}
	if (c.Server.TLSCertFile == "") != (c.Server.TLSKeyFile == "") {
		errs = append(errs, "server.tls_cert_file and server.tls_key_file must be set together")
	}

	if c.Inference.InvocationTimeout <= 0 {
		errs = append(errs, "inference.invocation_timeout must be positive")
	}
	// SageMaker 异步调用上限为 3600 秒
	if c.Inference.InvocationTimeout > time.Hour {
		errs = append(errs, "inference.invocation_timeout must not exceed 1h")
	}
	if c.Inference.MaxImageBytes <= 0 {
		errs = append(errs, "inference.max_image_bytes must be positive")
	}

	if c.Poll.Interval <= 0 {
		errs = append(errs, "poll.interval must be positive")
	}
	if c.Poll.Grace < 0 {
		errs = append(errs, "poll.grace must not be negative")
	}
	if c.Poll.TransientRetries < 0 {
		errs = append(errs, "poll.transient_retries must not be negative")
	}

	switch c.Video.Encoder {
	case "ffmpeg", "mjpeg":
	default:
		errs = append(errs, fmt.Sprintf("unsupported video.encoder %q (supported: ffmpeg, mjpeg)", c.Video.Encoder))
	}

	switch c.Jobs.Backend {
	case "memory", "redis", "database":
	default:
		errs = append(errs, fmt.Sprintf("unsupported jobs.backend %q (supported: memory, redis, database)", c.Jobs.Backend))
	}
	if c.Jobs.Workers <= 0 {
		errs = append(errs, "jobs.workers must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// ValidateClient 验证提交推理请求所需的配置（generate 命令与服务共用）
func (c *Config) ValidateClient() error {
	var errs []string
	if c.Storage.Bucket == "" {
		errs = append(errs, "storage.bucket is required")
	}
	if c.Inference.EndpointName == "" {
		errs = append(errs, "inference.endpoint_name is required")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// DSN 返回数据库连接字符串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}
