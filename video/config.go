package video

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Config 合成器配置.
type Config struct {
	Encoder    string        `json:"encoder" yaml:"encoder"` // ffmpeg, mjpeg
	FFmpegPath string        `json:"ffmpeg_path,omitempty" yaml:"ffmpeg_path,omitempty"`
	Codec      string        `json:"codec,omitempty" yaml:"codec,omitempty"`
	CRF        int           `json:"crf,omitempty" yaml:"crf,omitempty"`
	Preset     string        `json:"preset,omitempty" yaml:"preset,omitempty"`
	PixFmt     string        `json:"pix_fmt,omitempty" yaml:"pix_fmt,omitempty"`
	Timeout    time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// DefaultConfig 返回默认 x264 编码配置.
func DefaultConfig() Config {
	return Config{
		Encoder:    "ffmpeg",
		FFmpegPath: "ffmpeg",
		Codec:      "libx264",
		CRF:        20,
		Preset:     "slower",
		PixFmt:     "yuv420p",
		Timeout:    10 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.FFmpegPath == "" {
		c.FFmpegPath = d.FFmpegPath
	}
	if c.Codec == "" {
		c.Codec = d.Codec
	}
	if c.CRF == 0 {
		c.CRF = d.CRF
	}
	if c.Preset == "" {
		c.Preset = d.Preset
	}
	if c.PixFmt == "" {
		c.PixFmt = d.PixFmt
	}
	return c
}

// NewAssembler 按 Encoder 创建合成器.
func NewAssembler(cfg Config, logger *zap.Logger) (Assembler, error) {
	switch cfg.Encoder {
	case "", "ffmpeg":
		return NewFFmpegAssembler(cfg, logger), nil
	case "mjpeg":
		return NewMJPEGAssembler(logger), nil
	default:
		return nil, fmt.Errorf("unsupported video encoder %q", cfg.Encoder)
	}
}
