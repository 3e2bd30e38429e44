package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/schema"
)

// 文档元数据中的键
const (
	MetaChunkIndex = "chunk_index"
	MetaChunkStart = "chunk_start"
)

// ErrNamespaceNotFound 命名空间（集合）不存在
var ErrNamespaceNotFound = errors.New("向量命名空间不存在")

// VectorBackend 会话级向量存储
// 每个命名空间只属于一个会话，会话结束时整体删除。
type VectorBackend interface {
	// Create 创建命名空间
	Create(ctx context.Context, namespace string, dimension int) error
	// Upsert 写入文档及其向量，docs 与 vectors 一一对应
	Upsert(ctx context.Context, namespace string, docs []*schema.Document, vectors [][]float64) error
	// Search 返回与 vector 最相近的 topK 个文档，分数通过 Document.Score() 读取
	Search(ctx context.Context, namespace string, vector []float64, topK int) ([]*schema.Document, error)
	// Drop 删除命名空间，不存在视为成功
	Drop(ctx context.Context, namespace string) error
	// List 列出以 prefix 开头的命名空间
	List(ctx context.Context, prefix string) ([]string, error)
}

func checkUpsertInput(docs []*schema.Document, vectors [][]float64) error {
	if len(docs) != len(vectors) {
		return fmt.Errorf("文档数量(%d)与向量数量(%d)不匹配", len(docs), len(vectors))
	}
	for i, v := range vectors {
		if len(v) == 0 {
			return fmt.Errorf("第 %d 个向量为空", i)
		}
	}
	return nil
}

// metaInt 读取整数元数据，兼容 JSON 反序列化得到的 float64
func metaInt(meta map[string]any, key string) int {
	switch v := meta[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
