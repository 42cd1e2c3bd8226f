// Package fixtures 提供确定性的测试帧与推理响应体。
package fixtures

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
)

// JPEGFrame 生成 w×h 的纯色 JPEG，颜色由 index 决定
func JPEGFrame(index, w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	c := color.RGBA{R: uint8(index * 37), G: uint8(255 - index*11), B: uint8(index * 7), A: 255}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// JPEGFrames 生成 n 个 JPEG 帧
func JPEGFrames(n, w, h int) [][]byte {
	out := make([][]byte, n)
	for i := range out {
		out[i] = JPEGFrame(i, w, h)
	}
	return out
}

// ResponsePayload 构造 {"frames": [...]} 响应体，每帧为 base64 文本
func ResponsePayload(frames [][]byte) []byte {
	encoded := make([]string, len(frames))
	for i, f := range frames {
		encoded[i] = base64.StdEncoding.EncodeToString(f)
	}
	data, err := json.Marshal(map[string][]string{"frames": encoded})
	if err != nil {
		panic(err)
	}
	return data
}

// PNGImage 生成 w×h 的 PNG 条件图像
func PNGImage(w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
