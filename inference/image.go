package inference

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // PNG 上传
	"io"
	"net/http"
	"strings"

	"github.com/BaSui01/svdflow/types"
)

// DefaultMaxImageBytes 条件图像大小上限
const DefaultMaxImageBytes int64 = 5 * 1024 * 1024

const jpegQuality = 95

// PreparedImage 重新编码为 JPEG 并 base64 后的条件图像
type PreparedImage struct {
	Base64 string
	Width  int
	Height int
}

// IsImageURL 判断 image 字段是否为可拉取的 URL
func IsImageURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// EncodeImageBytes 将图像字节编码为请求中的嵌入形式
func EncodeImageBytes(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeImageBytes 还原嵌入形式的图像字节
func DecodeImageBytes(s string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode embedded image: %w", err)
	}
	return data, nil
}

// PrepareImage 校验大小，解码 PNG/JPEG 后统一重编码为 JPEG
func PrepareImage(data []byte, maxBytes int64) (*PreparedImage, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxImageBytes
	}
	if int64(len(data)) > maxBytes {
		return nil, imageTooLarge(maxBytes)
	}
	if len(data) == 0 {
		return nil, types.NewError(types.ErrInvalidRequest, "image is empty").WithHTTPStatus(http.StatusBadRequest)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "unsupported image, expected PNG or JPEG").
			WithHTTPStatus(http.StatusBadRequest).
			WithCause(err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("re-encode %s image as jpeg: %w", format, err)
	}

	bounds := img.Bounds()
	return &PreparedImage{
		Base64: EncodeImageBytes(buf.Bytes()),
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}, nil
}

// FetchImage 下载条件图像，超过 maxBytes 时报错
func FetchImage(ctx context.Context, client *http.Client, url string, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxImageBytes
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, types.NewError(types.ErrInvalidRequest, fmt.Sprintf("fetch image: status=%d", resp.StatusCode)).
			WithHTTPStatus(http.StatusBadRequest)
	}
	if resp.ContentLength > maxBytes {
		return nil, imageTooLarge(maxBytes)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read image body: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, imageTooLarge(maxBytes)
	}
	return data, nil
}

func imageTooLarge(maxBytes int64) error {
	return types.NewError(types.ErrPayloadTooLarge, fmt.Sprintf("image exceeds %d bytes", maxBytes)).
		WithHTTPStatus(http.StatusRequestEntityTooLarge)
}
