package frames

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// rawUnicodeEscape 把字符串转换为字节：码点 < 256 直接作为单字节，
// 其余写成 \uXXXX 或 \UXXXXXXXX
func rawUnicodeEscape(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		switch {
		case r < 0x100:
			out = append(out, byte(r))
		case r <= 0xFFFF:
			out = append(out, fmt.Sprintf(`\u%04x`, r)...)
		default:
			out = append(out, fmt.Sprintf(`\U%08x`, r)...)
		}
	}
	return out
}

// decodeBase64Lenient 丢弃字母表以外的字符（换行、空白等）后解码。
// padding 必须完整：凑齐一组的 '=' 之后的内容被忽略，缺少 padding 报错。
func decodeBase64Lenient(data []byte) ([]byte, error) {
	var b strings.Builder
	b.Grow(len(data))
	quad, pads := 0, 0
scan:
	for _, c := range data {
		switch {
		case c == '=':
			// 一组内至少两个有效字符后 padding 才计数
			if quad >= 2 {
				pads++
				if quad+pads >= 4 {
					break scan
				}
			}
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '+', c == '/':
			b.WriteByte(c)
			quad = (quad + 1) % 4
			pads = 0
		}
	}
	switch quad {
	case 0:
	case 1:
		return nil, fmt.Errorf("base64 payload has %d significant characters, one too many for a complete group", b.Len())
	default:
		if pads == 0 || quad+pads < 4 {
			return nil, errors.New("incorrect base64 padding")
		}
	}
	return base64.RawStdEncoding.DecodeString(b.String())
}
