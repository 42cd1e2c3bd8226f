package video

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"
	"go.uber.org/zap"

	"github.com/BaSui01/svdflow/frames"
)

// FFmpegAssembler 通过 ffmpeg 把帧序列编码为 H.264 MP4
type FFmpegAssembler struct {
	cfg    Config
	logger *zap.Logger
}

// NewFFmpegAssembler creates an assembler backed by the ffmpeg executable.
func NewFFmpegAssembler(cfg Config, logger *zap.Logger) *FFmpegAssembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	return &FFmpegAssembler{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "ffmpeg_assembler")),
	}
}

// Format implements Assembler.
func (a *FFmpegAssembler) Format() Format { return FormatMP4 }

// Available reports whether the configured ffmpeg binary can be found.
func (a *FFmpegAssembler) Available() bool {
	_, err := exec.LookPath(a.cfg.FFmpegPath)
	return err == nil
}

// stream 构造 ffmpeg 调用，ctx 控制进程生命周期
func (a *FFmpegAssembler) stream(ctx context.Context, framesDir string, fps int, outPath string) *ffmpeg.Stream {
	s := ffmpeg.Input(filepath.Join(framesDir, frames.GlobPattern), ffmpeg.KwArgs{
		"pattern_type": "glob",
		"framerate":    fps,
	}).Output(outPath, ffmpeg.KwArgs{
		"vcodec":   a.cfg.Codec,
		"crf":      a.cfg.CRF,
		"preset":   a.cfg.Preset,
		"movflags": "faststart",
		"pix_fmt":  a.cfg.PixFmt,
	})
	// OverWriteOutput 把标记写进 Context，必须先替换 Context
	s.Context = ctx
	return s.OverWriteOutput().SetFfmpegPath(a.cfg.FFmpegPath)
}

// Args 构造 ffmpeg 命令行参数（不含可执行文件本身）
func (a *FFmpegAssembler) Args(framesDir string, fps int, outPath string) []string {
	return a.stream(context.Background(), framesDir, fps, outPath).GetArgs()
}

// Assemble implements Assembler.
func (a *FFmpegAssembler) Assemble(ctx context.Context, seq *frames.Sequence, fps int, outPath string) (*Artifact, error) {
	if err := checkInput(seq, fps, outPath); err != nil {
		return nil, err
	}

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(seq.Frames[0]))
	if err != nil {
		return nil, assemblyError("first frame is not a JPEG", err)
	}

	// 帧先落到临时目录，glob 按文件名排序即帧顺序
	tmp, err := os.MkdirTemp("", "svdflow-frames-*")
	if err != nil {
		return nil, assemblyError("create temp dir", err)
	}
	defer os.RemoveAll(tmp)

	if _, err := seq.WriteDir(tmp); err != nil {
		return nil, assemblyError("write frames", err)
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return nil, assemblyError("create output dir", err)
	}

	if a.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Timeout)
		defer cancel()
	}

	stream := a.stream(ctx, tmp, fps, outPath)
	var stderr bytes.Buffer

	start := time.Now()
	a.logger.Debug("running ffmpeg", zap.Strings("args", stream.GetArgs()))
	if err := stream.Silent(true).WithErrorOutput(&stderr).Run(); err != nil {
		_ = os.Remove(outPath)
		return nil, assemblyError(fmt.Sprintf("ffmpeg failed: %s", tail(stderr.String(), 512)), err)
	}

	info, err := os.Stat(outPath)
	if err != nil {
		return nil, assemblyError("stat output", err)
	}

	a.logger.Info("video assembled",
		zap.String("path", outPath),
		zap.Int("frames", seq.Len()),
		zap.Int("fps", fps),
		zap.Duration("elapsed", time.Since(start)))

	return &Artifact{
		Path:       outPath,
		Format:     FormatMP4,
		FrameCount: seq.Len(),
		FPS:        fps,
		Duration:   Duration(seq.Len(), fps),
		Width:      cfg.Width,
		Height:     cfg.Height,
		Size:       info.Size(),
	}, nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
