package rag

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/indexer"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"

	"resume-analyzer/internal/llm"
	"resume-analyzer/internal/storage"
)

const defaultTopK = 3

// SessionIndexer 把文档向量化后写入某个会话命名空间
type SessionIndexer struct {
	namespace string
	embedder  embedding.Embedder
	backend   storage.VectorBackend
}

var _ indexer.Indexer = (*SessionIndexer)(nil)

// NewSessionIndexer 创建会话索引写入器
func NewSessionIndexer(namespace string, embedder embedding.Embedder, backend storage.VectorBackend) *SessionIndexer {
	return &SessionIndexer{namespace: namespace, embedder: embedder, backend: backend}
}

// Store 实现 indexer.Indexer；首次写入时按向量维度创建命名空间
func (s *SessionIndexer) Store(ctx context.Context, docs []*schema.Document, opts ...indexer.Option) ([]string, error) {
	options := indexer.GetCommonOptions(&indexer.Options{Embedding: s.embedder}, opts...)
	if len(docs) == 0 {
		return nil, ErrEmptyIndex
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Content
	}
	vectors, err := options.Embedding.EmbedStrings(ctx, texts)
	if err != nil {
		return nil, serviceError("分块向量化失败", err)
	}
	if len(vectors) != len(docs) || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("%w: 向量化结果数量或维度异常", llm.ErrServiceUnavailable)
	}

	if err := s.backend.Create(ctx, s.namespace, len(vectors[0])); err != nil {
		return nil, fmt.Errorf("%w: 创建会话索引失败: %v", llm.ErrServiceUnavailable, err)
	}
	if err := s.backend.Upsert(ctx, s.namespace, docs, vectors); err != nil {
		return nil, fmt.Errorf("%w: 写入会话索引失败: %v", llm.ErrServiceUnavailable, err)
	}

	ids := make([]string, len(docs))
	for i, doc := range docs {
		ids[i] = doc.ID
	}
	return ids, nil
}

// SessionRetriever 在某个会话命名空间内检索
type SessionRetriever struct {
	namespace string
	embedder  embedding.Embedder
	backend   storage.VectorBackend
	topK      int
}

var _ retriever.Retriever = (*SessionRetriever)(nil)

// NewSessionRetriever 创建会话检索器
func NewSessionRetriever(namespace string, embedder embedding.Embedder, backend storage.VectorBackend, topK int) *SessionRetriever {
	if topK <= 0 {
		topK = defaultTopK
	}
	return &SessionRetriever{namespace: namespace, embedder: embedder, backend: backend, topK: topK}
}

// Retrieve 实现 retriever.Retriever
func (s *SessionRetriever) Retrieve(ctx context.Context, query string, opts ...retriever.Option) ([]*schema.Document, error) {
	topK := s.topK
	options := retriever.GetCommonOptions(&retriever.Options{TopK: &topK, Embedding: s.embedder}, opts...)

	vectors, err := options.Embedding.EmbedStrings(ctx, []string{query})
	if err != nil {
		return nil, serviceError("问题向量化失败", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: 问题向量化结果为空", llm.ErrServiceUnavailable)
	}

	docs, err := s.backend.Search(ctx, s.namespace, vectors[0], *options.TopK)
	if err != nil {
		return nil, fmt.Errorf("%w: 检索会话索引失败: %v", llm.ErrServiceUnavailable, err)
	}

	if options.ScoreThreshold != nil {
		filtered := docs[:0]
		for _, doc := range docs {
			if doc.Score() >= *options.ScoreThreshold {
				filtered = append(filtered, doc)
			}
		}
		docs = filtered
	}
	return docs, nil
}

// serviceError 保证外部服务错误可以通过 errors.Is 归类
func serviceError(msg string, err error) error {
	if llm.IsServiceError(err) {
		return fmt.Errorf("%s: %w", msg, err)
	}
	return fmt.Errorf("%w: %s: %v", llm.ErrServiceUnavailable, msg, err)
}
