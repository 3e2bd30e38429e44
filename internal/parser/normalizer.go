package parser

import "strings"

// NormalizeText 规范化简历文本
// 按行切分，丢弃空行，行内连续空白折叠为单个空格，再以换行符拼接。
// 对任意输入都不会失败，且 NormalizeText(NormalizeText(x)) == NormalizeText(x)。
func NormalizeText(raw string) string {
	lines := strings.FieldsFunc(raw, isLineBreak)
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		// strings.Fields 按任意空白切分，保证 "@" 所在的 token 不会被拆开
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		kept = append(kept, strings.Join(fields, " "))
	}
	return strings.Join(kept, "\n")
}

// isLineBreak 判断是否为行分隔符，包含PDF提取中常见的换页符与Unicode行/段分隔符
func isLineBreak(r rune) bool {
	switch r {
	case '\n', '\r', '\v', '\f', '\u0085', '\u2028', '\u2029':
		return true
	}
	return false
}
