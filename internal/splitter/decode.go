package splitter

import "unicode/utf8"

// DecodeText 将原始字节解码为文本：内容是合法 UTF-8 时原样返回，
// 否则退回到宽容的单字节解码（每个字节映射为同值码点），
// 保证解码失败不会中断处理流程。
func DecodeText(content []byte) string {
	if utf8.Valid(content) {
		return string(content)
	}
	runes := make([]rune, len(content))
	for i, b := range content {
		runes[i] = rune(b)
	}
	return string(runes)
}
