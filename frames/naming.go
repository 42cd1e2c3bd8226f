package frames

import (
	"fmt"
	"strconv"
)

// NameWidth 帧序号补零宽度：总帧数的十进制位数
func NameWidth(total int) int {
	if total < 1 {
		return 1
	}
	return len(strconv.Itoa(total))
}

// FrameName 第 i 帧（从 0 开始）的文件名，序号从 1 开始并补零到 NameWidth(total)，
// 保证任意帧数下字典序与时间顺序一致
func FrameName(i, total int) string {
	return fmt.Sprintf("frame_%0*d.jpg", NameWidth(total), i+1)
}

// GlobPattern 匹配 FrameName 生成的文件
const GlobPattern = "frame_*.jpg"
