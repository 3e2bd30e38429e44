package processor

import (
	"context"
	"fmt"
	"time"

	"resume-analyzer/internal/config"
	"resume-analyzer/internal/llm"
	"resume-analyzer/internal/logger"
	"resume-analyzer/internal/rag"
	"resume-analyzer/internal/storage"
	"resume-analyzer/pkg/ratelimit"
)

// Components 由配置构建出的分析组件
type Components struct {
	Analyzer *Analyzer
	Sweeper  *Sweeper
	QA       *rag.RetrievalQA
}

// CreateFromConfig 从配置创建分析器与清理器
// 语言模型与向量化客户端的凭据只来自 cfg，并分别包裹限流与有限重试。
func CreateFromConfig(ctx context.Context, cfg *config.Config, store *storage.Storage) (*Components, error) {
	if cfg == nil {
		return nil, fmt.Errorf("配置不能为空")
	}
	if store == nil {
		return nil, fmt.Errorf("存储管理器不能为空")
	}
	log := logger.Named("processor_init")

	// 1. 语言模型
	chatModel, err := llm.NewChatModel(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("创建语言模型失败: %w", err)
	}
	chatLimiter := ratelimit.NewLimiter(cfg.LLM.QPM,
		ratelimit.WithRetryPolicy(time.Second, cfg.LLM.MaxRetries),
		ratelimit.WithRetryable(llm.IsRetryable),
	)

	// 2. 向量化
	embedder, err := llm.NewEmbedder(cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("创建向量化客户端失败: %w", err)
	}
	embedLimiter := ratelimit.NewLimiter(cfg.Embedding.QPM,
		ratelimit.WithRetryPolicy(time.Second, cfg.LLM.MaxRetries),
		ratelimit.WithRetryable(llm.IsRetryable),
	)

	qa := rag.NewRetrievalQA(
		ratelimit.NewRateLimitedEmbedder(embedder, embedLimiter),
		ratelimit.NewRateLimitedChatModel(chatModel, chatLimiter),
		store.Vectors,
	)

	// 3. 文档读取与文本处理
	reader, err := BuildDocumentReader(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("创建文档读取器失败: %w", err)
	}
	chunker, err := ChunkerFromConfig(cfg.Analysis)
	if err != nil {
		return nil, fmt.Errorf("创建分块器失败: %w", err)
	}

	// 4. 会话与分析器
	sessions := NewSessionManager(store.Sessions, store.Registry, qa, store.CollectionPrefix)
	analyzer := NewAnalyzer(qa, sessions,
		WithDocumentReader(reader),
		WithChunker(chunker),
		WithSettings(SettingsFromConfig(cfg.Analysis)),
	)

	sweeper := NewSweeper(store.Sessions, store.Registry, store.Vectors, store.CollectionPrefix,
		config.GetDuration(cfg.Analysis.StaleSessionAge, DefaultStaleSessionAge))

	log.Info().
		Str("llm_model", cfg.LLM.Model).
		Str("embedding_provider", cfg.Embedding.Provider).
		Str("index_backend", cfg.Index.Backend).
		Bool("tika", cfg.Tika.Enabled).
		Bool("parallel_fields", cfg.Analysis.ParallelFields).
		Msg("分析组件初始化完成")

	return &Components{Analyzer: analyzer, Sweeper: sweeper, QA: qa}, nil
}
