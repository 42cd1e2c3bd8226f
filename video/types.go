package video

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/BaSui01/svdflow/frames"
	"github.com/BaSui01/svdflow/types"
)

// Format 视频容器格式.
type Format string

const (
	FormatMP4 Format = "mp4"
	FormatAVI Format = "avi"
)

// Ext returns the file extension including the leading dot.
func (f Format) Ext() string {
	return "." + string(f)
}

// ErrNoFrames is returned when the sequence is empty. No output file is created.
var ErrNoFrames = types.NewError(types.ErrAssemblyFailed, "no frames to assemble").
	WithHTTPStatus(http.StatusUnprocessableEntity)

// Artifact describes an assembled video file.
type Artifact struct {
	Path       string        `json:"path"`
	Format     Format        `json:"format"`
	FrameCount int           `json:"frame_count"`
	FPS        int           `json:"fps"`
	Duration   time.Duration `json:"duration"`
	Width      int           `json:"width,omitempty"`
	Height     int           `json:"height,omitempty"`
	Size       int64         `json:"size"`
}

// Assembler 把帧序列合成为视频.
type Assembler interface {
	// Assemble writes seq to outPath at fps frames per second.
	Assemble(ctx context.Context, seq *frames.Sequence, fps int, outPath string) (*Artifact, error)
	// Format reports the container the assembler produces.
	Format() Format
}

// Duration 播放时长 = 帧数 / 帧率
func Duration(frameCount, fps int) time.Duration {
	if fps <= 0 {
		return 0
	}
	return time.Duration(frameCount) * time.Second / time.Duration(fps)
}

func assemblyError(msg string, cause error) error {
	return types.NewError(types.ErrAssemblyFailed, msg).
		WithCause(cause).
		WithHTTPStatus(http.StatusInternalServerError)
}

// checkInput 校验公共前置条件，空序列优先于 fps 校验
func checkInput(seq *frames.Sequence, fps int, outPath string) error {
	if seq.Len() == 0 {
		return ErrNoFrames
	}
	if fps <= 0 {
		return types.NewError(types.ErrInvalidRequest, "fps must be positive").
			WithHTTPStatus(http.StatusBadRequest)
	}
	if outPath == "" {
		return types.NewError(types.ErrInvalidRequest, "output path is required").
			WithHTTPStatus(http.StatusBadRequest)
	}
	return nil
}

// IsNoFrames reports whether err is ErrNoFrames.
func IsNoFrames(err error) bool {
	return errors.Is(err, ErrNoFrames)
}
