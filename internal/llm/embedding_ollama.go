package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/rs/zerolog"
	"github.com/tmc/langchaingo/llms/ollama"

	"resume-analyzer/internal/config"
	"resume-analyzer/internal/logger"
)

const (
	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "nomic-embed-text:latest"
)

// ollamaClient 是 langchaingo ollama.LLM 中用到的部分
type ollamaClient interface {
	CreateEmbedding(ctx context.Context, inputTexts []string) ([][]float32, error)
}

// OllamaEmbedder 通过本地 Ollama 服务生成向量
type OllamaEmbedder struct {
	client    ollamaClient
	model     string
	batchSize int
	logger    zerolog.Logger
}

var _ embedding.Embedder = (*OllamaEmbedder)(nil)

// NewOllamaEmbedder 创建 Ollama Embedder
func NewOllamaEmbedder(embeddingCfg config.EmbeddingConfig) (*OllamaEmbedder, error) {
	model := embeddingCfg.Model
	if model == "" || strings.HasPrefix(model, "text-embedding-") {
		model = defaultOllamaModel
	}
	baseURL := embeddingCfg.BaseURL
	if baseURL == "" || baseURL == defaultEmbeddingURL {
		baseURL = defaultOllamaURL
	}

	client, err := ollama.New(ollama.WithModel(model), ollama.WithServerURL(baseURL))
	if err != nil {
		return nil, fmt.Errorf("初始化Ollama客户端失败: %w", err)
	}
	return newOllamaEmbedder(client, model, embeddingCfg.BatchSize), nil
}

func newOllamaEmbedder(client ollamaClient, model string, batchSize int) *OllamaEmbedder {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &OllamaEmbedder{
		client:    client,
		model:     model,
		batchSize: batchSize,
		logger:    logger.Named("ollama_embedder"),
	}
}

// EmbedStrings 实现 embedding.Embedder 接口
func (o *OllamaEmbedder) EmbedStrings(ctx context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}

	start := time.Now()
	out := make([][]float64, 0, len(texts))
	for lo := 0; lo < len(texts); lo += o.batchSize {
		hi := min(lo+o.batchSize, len(texts))
		vectors, err := o.client.CreateEmbedding(ctx, texts[lo:hi])
		if err != nil {
			return nil, TransportError(fmt.Errorf("ollama向量化失败: %w", err))
		}
		if len(vectors) != hi-lo {
			return nil, StatusError(http.StatusBadGateway, fmt.Sprintf("返回向量数量 %d 与输入数量 %d 不一致", len(vectors), hi-lo))
		}
		for _, v := range vectors {
			out = append(out, toFloat64(v))
		}
	}

	o.logger.Debug().
		Str("model", o.model).
		Int("texts", len(texts)).
		Int("dimensions", firstEmbeddingDim(out)).
		Dur("duration", time.Since(start)).
		Msg("文本向量化完成")
	return out, nil
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}

// NewEmbedder 按配置中的 provider 创建向量化客户端
func NewEmbedder(embeddingCfg config.EmbeddingConfig) (embedding.Embedder, error) {
	switch strings.ToLower(embeddingCfg.Provider) {
	case "", "openai":
		return NewOpenAIEmbedder(embeddingCfg)
	case "ollama":
		return NewOllamaEmbedder(embeddingCfg)
	default:
		return nil, fmt.Errorf("不支持的向量化服务: %s", embeddingCfg.Provider)
	}
}
