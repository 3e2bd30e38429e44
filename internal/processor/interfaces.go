package processor

import (
	"context"

	"resume-analyzer/internal/types"
)

//
// 文档读取相关接口
//

// DocumentReader 从上传文档中读取原始文本
type DocumentReader interface {
	// Read 格式不受支持时返回 ErrUnsupportedFormat，无法读取时返回 ErrExtractionFailure
	Read(ctx context.Context, doc types.Document) (string, error)
}

//
// 文本处理相关接口
//

// ContactExtractor 联系方式提取器接口
type ContactExtractor interface {
	// Extract 出错时仍返回降级后的联系方式
	Extract(ctx context.Context, text string) (types.ContactInfo, error)
}

// Chunker 文本分块器接口
type Chunker interface {
	Split(text string) []types.Chunk
}
