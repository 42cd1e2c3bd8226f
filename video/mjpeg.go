package video

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"image/jpeg"
	"io"
	"os"
	"path/filepath"

	"github.com/icza/mjpeg"
	"go.uber.org/zap"

	"github.com/BaSui01/svdflow/frames"
)

// MJPEGAssembler 写出 Motion-JPEG AVI，帧原样写入容器，不重新编码
type MJPEGAssembler struct {
	logger *zap.Logger
}

// NewMJPEGAssembler creates a pure Go assembler.
func NewMJPEGAssembler(logger *zap.Logger) *MJPEGAssembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MJPEGAssembler{logger: logger.With(zap.String("component", "mjpeg_assembler"))}
}

// Format implements Assembler.
func (a *MJPEGAssembler) Format() Format { return FormatAVI }

// Assemble implements Assembler.
func (a *MJPEGAssembler) Assemble(ctx context.Context, seq *frames.Sequence, fps int, outPath string) (*Artifact, error) {
	if err := checkInput(seq, fps, outPath); err != nil {
		return nil, err
	}

	// 尺寸取自第一帧
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(seq.Frames[0]))
	if err != nil {
		return nil, assemblyError("first frame is not a JPEG", err)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return nil, assemblyError("create output dir", err)
	}

	aw, err := mjpeg.New(outPath, int32(cfg.Width), int32(cfg.Height), int32(fps))
	if err != nil {
		return nil, assemblyError("open avi writer", err)
	}

	for i, frame := range seq.Frames {
		if err := ctx.Err(); err != nil {
			_ = aw.Close()
			_ = os.Remove(outPath)
			return nil, assemblyError("assembly cancelled", err)
		}
		if err := aw.AddFrame(frame); err != nil {
			_ = aw.Close()
			_ = os.Remove(outPath)
			return nil, assemblyError(fmt.Sprintf("add frame %d", i), err)
		}
	}
	if err := aw.Close(); err != nil {
		_ = os.Remove(outPath)
		return nil, assemblyError("finalize avi", err)
	}

	info, err := os.Stat(outPath)
	if err != nil {
		return nil, assemblyError("stat output", err)
	}

	a.logger.Debug("video assembled",
		zap.String("path", outPath),
		zap.Int("frames", seq.Len()),
		zap.Int("fps", fps),
		zap.Int64("size", info.Size()))

	return &Artifact{
		Path:       outPath,
		Format:     FormatAVI,
		FrameCount: seq.Len(),
		FPS:        fps,
		Duration:   Duration(seq.Len(), fps),
		Width:      cfg.Width,
		Height:     cfg.Height,
		Size:       info.Size(),
	}, nil
}

// AVIInfo is the subset of the AVI main and stream headers used to verify output.
type AVIInfo struct {
	TotalFrames int
	Width       int
	Height      int
	Scale       int
	Rate        int
}

// FPS 帧率 = dwRate / dwScale
func (i AVIInfo) FPS() int {
	if i.Scale == 0 {
		return 0
	}
	return i.Rate / i.Scale
}

// ProbeAVI reads the avih and strh headers of an AVI file.
func ProbeAVI(r io.Reader) (*AVIInfo, error) {
	// 头部位于文件开头，读前 4 KiB 足够
	head := make([]byte, 4096)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("read avi header: %w", err)
	}
	head = head[:n]
	if len(head) < 12 || string(head[0:4]) != "RIFF" || string(head[8:12]) != "AVI " {
		return nil, fmt.Errorf("not an AVI file")
	}

	u32 := func(b []byte, off int) int { return int(binary.LittleEndian.Uint32(b[off:])) }

	avih := bytes.Index(head, []byte("avih"))
	if avih < 0 || avih+8+40 > len(head) {
		return nil, fmt.Errorf("avih chunk not found")
	}
	body := head[avih+8:]
	info := &AVIInfo{
		TotalFrames: u32(body, 16),
		Width:       u32(body, 32),
		Height:      u32(body, 36),
	}

	strh := bytes.Index(head, []byte("strh"))
	if strh < 0 || strh+8+28 > len(head) {
		return nil, fmt.Errorf("strh chunk not found")
	}
	body = head[strh+8:]
	info.Scale = u32(body, 20)
	info.Rate = u32(body, 24)
	return info, nil
}
