// =============================================================================
// 📦 svdflow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		AWS:       DefaultAWSConfig(),
		Storage:   DefaultStorageConfig(),
		Inference: DefaultInferenceConfig(),
		Poll:      DefaultPollConfig(),
		Request:   DefaultRequestDefaults(),
		Video:     DefaultVideoConfig(),
		Jobs:      DefaultJobsConfig(),
		Redis:     DefaultRedisConfig(),
		Database:  DefaultDatabaseConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    20,
		RateLimitBurst:  40,
	}
}

// DefaultAWSConfig 返回默认 AWS 配置
func DefaultAWSConfig() AWSConfig {
	return AWSConfig{
		Region:      "us-east-1",
		HTTPTimeout: 60 * time.Second,
	}
}

// DefaultStorageConfig 返回默认对象存储配置
func DefaultStorageConfig() StorageConfig {
	return StorageConfig{
		InputPrefix: "async_inference/input",
	}
}

// DefaultInferenceConfig 返回默认推理端点配置
func DefaultInferenceConfig() InferenceConfig {
	return InferenceConfig{
		InvocationTimeout: time.Hour,
		ContentType:       "application/json",
		MaxImageBytes:     5 * 1024 * 1024,
	}
}

// DefaultPollConfig 返回默认轮询配置
func DefaultPollConfig() PollConfig {
	return PollConfig{
		Interval:         15 * time.Second,
		Grace:            5 * time.Minute,
		TransientRetries: 3,
		TransientBackoff: time.Second,
	}
}

// DefaultRequestDefaults 返回推理请求参数默认值
func DefaultRequestDefaults() RequestDefaults {
	return RequestDefaults{
		Width:             1024,
		Height:            576,
		NumFrames:         25,
		NumInferenceSteps: 25,
		MinGuidanceScale:  1.0,
		MaxGuidanceScale:  3.0,
		FPS:               6,
		MotionBucketID:    127,
		NoiseAugStrength:  0.02,
		DecodeChunkSize:   8,
		Seed:              42,
	}
}

// DefaultVideoConfig 返回默认视频合成配置
func DefaultVideoConfig() VideoConfig {
	return VideoConfig{
		Encoder:    "ffmpeg",
		OutputDir:  "video_out",
		FFmpegPath: "ffmpeg",
		Codec:      "libx264",
		CRF:        20,
		Preset:     "slower",
		PixFmt:     "yuv420p",
		Timeout:    10 * time.Minute,
	}
}

// DefaultJobsConfig 返回默认任务配置
func DefaultJobsConfig() JobsConfig {
	return JobsConfig{
		Backend:   "memory",
		Workers:   4,
		QueueSize: 64,
		TTL:       24 * time.Hour,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		KeyPrefix:    "svdflow:",
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "postgres",
		Host:            "localhost",
		Port:            5432,
		User:            "svdflow",
		Password:        "",
		Name:            "svdflow",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "svdflow",
		SampleRate:   0.1,
	}
}
