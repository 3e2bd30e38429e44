package rag

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"resume-analyzer/internal/llm"
	"resume-analyzer/internal/logger"
	"resume-analyzer/internal/storage"
	"resume-analyzer/internal/tracing"
	"resume-analyzer/internal/types"
)

// ErrEmptyIndex 没有可索引的分块
var ErrEmptyIndex = errors.New("没有可索引的文本分块")

// stuffSystemPrompt 把检索到的分块整体塞进上下文
const stuffSystemPrompt = `Use the following pieces of context to answer the question at the end. If you don't know the answer, just say that you don't know, don't try to make up an answer.

%s`

// IndexHandle 一个已建立的会话索引
type IndexHandle struct {
	Namespace string
	Chunks    int
}

// QueryService 基于会话索引的语义问答服务
type QueryService interface {
	// Index 将分块写入以 namespace 命名的新索引
	Index(ctx context.Context, chunks []types.Chunk, namespace string) (IndexHandle, error)
	// Query 检索 topK 个分块并据此回答 prompt
	Query(ctx context.Context, handle IndexHandle, prompt string, topK int) (string, error)
	// Delete 删除索引，不存在视为成功
	Delete(ctx context.Context, handle IndexHandle) error
	// Complete 不经检索直接调用语言模型
	Complete(ctx context.Context, prompt string) (string, error)
}

// RetrievalQA 向量检索 + 单次对话模型调用
type RetrievalQA struct {
	embedder embedding.Embedder
	chat     model.BaseChatModel
	backend  storage.VectorBackend
	logger   zerolog.Logger
}

var _ QueryService = (*RetrievalQA)(nil)

// NewRetrievalQA 创建问答服务
func NewRetrievalQA(embedder embedding.Embedder, chat model.BaseChatModel, backend storage.VectorBackend) *RetrievalQA {
	return &RetrievalQA{
		embedder: embedder,
		chat:     chat,
		backend:  backend,
		logger:   logger.Named("retrieval_qa"),
	}
}

// Index 实现 QueryService
func (r *RetrievalQA) Index(ctx context.Context, chunks []types.Chunk, namespace string) (IndexHandle, error) {
	ctx, span := tracing.Tracer().Start(ctx, "RetrievalQA.Index")
	defer span.End()
	span.SetAttributes(
		attribute.String("index.namespace", namespace),
		attribute.Int("index.chunks", len(chunks)),
	)

	docs := make([]*schema.Document, 0, len(chunks))
	for _, c := range chunks {
		docs = append(docs, &schema.Document{
			ID:      strconv.Itoa(c.Index),
			Content: c.Text,
			MetaData: map[string]any{
				storage.MetaChunkIndex: c.Index,
				storage.MetaChunkStart: c.Start,
			},
		})
	}

	start := time.Now()
	if _, err := NewSessionIndexer(namespace, r.embedder, r.backend).Store(ctx, docs); err != nil {
		tracing.RecordError(span, err, errorType(err))
		return IndexHandle{}, err
	}

	r.logger.Debug().
		Str("namespace", namespace).
		Int("chunks", len(chunks)).
		Dur("duration", time.Since(start)).
		Msg("会话索引构建完成")
	return IndexHandle{Namespace: namespace, Chunks: len(chunks)}, nil
}

// Query 实现 QueryService
func (r *RetrievalQA) Query(ctx context.Context, handle IndexHandle, prompt string, topK int) (string, error) {
	ctx, span := tracing.Tracer().Start(ctx, "RetrievalQA.Query")
	defer span.End()
	span.SetAttributes(
		attribute.String("index.namespace", handle.Namespace),
		attribute.String("llm.prompt", tracing.SafePrompt(prompt)),
		attribute.Int("retrieval.top_k", topK),
	)

	if handle.Chunks == 0 {
		return "", ErrEmptyIndex
	}

	docs, err := NewSessionRetriever(handle.Namespace, r.embedder, r.backend, topK).
		Retrieve(ctx, prompt, retriever.WithTopK(max(topK, 1)))
	if err != nil {
		tracing.RecordError(span, err, errorType(err))
		return "", err
	}
	span.SetAttributes(attribute.Int("retrieval.results", len(docs)))

	parts := make([]string, 0, len(docs))
	for _, doc := range docs {
		parts = append(parts, doc.Content)
	}

	answer, err := r.generate(ctx, []*schema.Message{
		schema.SystemMessage(fmt.Sprintf(stuffSystemPrompt, strings.Join(parts, "\n\n"))),
		schema.UserMessage(prompt),
	})
	if err != nil {
		tracing.RecordError(span, err, errorType(err))
		return "", err
	}
	return answer, nil
}

// Delete 实现 QueryService
func (r *RetrievalQA) Delete(ctx context.Context, handle IndexHandle) error {
	if handle.Namespace == "" {
		return nil
	}
	if err := r.backend.Drop(ctx, handle.Namespace); err != nil {
		return fmt.Errorf("删除会话索引 %s 失败: %w", handle.Namespace, err)
	}
	return nil
}

// Complete 实现 QueryService
func (r *RetrievalQA) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, span := tracing.Tracer().Start(ctx, "RetrievalQA.Complete")
	defer span.End()
	span.SetAttributes(attribute.String("llm.prompt", tracing.SafePrompt(prompt)))

	answer, err := r.generate(ctx, []*schema.Message{schema.UserMessage(prompt)})
	if err != nil {
		tracing.RecordError(span, err, errorType(err))
		return "", err
	}
	return answer, nil
}

func (r *RetrievalQA) generate(ctx context.Context, messages []*schema.Message) (string, error) {
	msg, err := r.chat.Generate(ctx, messages, model.WithTemperature(0))
	if err != nil {
		return "", serviceError("语言模型调用失败", err)
	}
	if msg == nil {
		return "", nil
	}
	return strings.TrimSpace(msg.Content), nil
}

func errorType(err error) tracing.ErrorType {
	if errors.Is(err, llm.ErrRateLimited) {
		return tracing.ErrorTypeRateLimit
	}
	return tracing.ErrorTypeLLM
}
