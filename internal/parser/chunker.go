package parser

import (
	"fmt"

	"resume-analyzer/internal/types"
)

const (
	// DefaultChunkSize 默认窗口长度（字符）
	DefaultChunkSize = 1000
	// DefaultChunkOverlap 默认相邻窗口重叠长度（字符）
	DefaultChunkOverlap = 200
)

// WindowChunker 固定长度滑动窗口分块器
// 窗口按 size-overlap 的步长前进，最后一个窗口截断到文本末尾。
type WindowChunker struct {
	size    int
	overlap int
}

// NewWindowChunker 创建分块器，参数非法时返回错误
func NewWindowChunker(size, overlap int) (*WindowChunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("分块大小必须为正数: %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("分块重叠必须在 [0, %d) 范围内: %d", size, overlap)
	}
	return &WindowChunker{size: size, overlap: overlap}, nil
}

// Split 将规范化文本切分为有序的窗口序列
// 以字符（rune）为单位计数，多字节文本不会被截断在字符中间。
func (c *WindowChunker) Split(text string) []types.Chunk {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	step := c.size - c.overlap
	chunks := make([]types.Chunk, 0, len(runes)/step+1)
	for start := 0; ; start += step {
		end := start + c.size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, types.Chunk{
			Index: len(chunks),
			Start: start,
			Text:  string(runes[start:end]),
		})
		if end == len(runes) {
			break
		}
	}
	return chunks
}

// Texts 提取分块文本
func Texts(chunks []types.Chunk) []string {
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	return texts
}
