// Package frames 把推理响应体解码为有序帧序列，并负责帧文件命名与落盘。
//
// 响应体形如 {"frames": ["<base64>", ...]}，数组下标即帧在视频中的时间位置。
// 每一项先做 raw-unicode-escape 字节转换，再做宽松 base64 解码。
package frames
