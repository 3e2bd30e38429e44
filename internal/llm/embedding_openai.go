package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/rs/zerolog"

	"resume-analyzer/internal/config"
	"resume-analyzer/internal/logger"
	"resume-analyzer/internal/tracing"
)

const (
	defaultEmbeddingURL   = "https://api.openai.com/v1/embeddings"
	defaultEmbeddingModel = "text-embedding-3-small"
	defaultBatchSize      = 16
)

// OpenAIEmbedder 实现 embedding.Embedder 接口 (OpenAI 兼容的 /v1/embeddings)
type OpenAIEmbedder struct {
	apiKey     string
	model      string
	dimensions int
	batchSize  int
	httpClient *http.Client
	baseURL    string
	logger     zerolog.Logger
}

var _ embedding.Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder 创建新的 OpenAI 兼容 Embedder
func NewOpenAIEmbedder(embeddingCfg config.EmbeddingConfig) (*OpenAIEmbedder, error) {
	if strings.TrimSpace(embeddingCfg.APIKey) == "" {
		return nil, fmt.Errorf("API密钥不能为空")
	}

	model := embeddingCfg.Model
	if model == "" {
		model = defaultEmbeddingModel
	}
	baseURL := embeddingCfg.BaseURL
	if baseURL == "" {
		baseURL = defaultEmbeddingURL
	}
	batchSize := embeddingCfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	return &OpenAIEmbedder{
		apiKey:     embeddingCfg.APIKey,
		model:      model,
		dimensions: embeddingCfg.Dimensions,
		batchSize:  batchSize,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    baseURL,
		logger:     logger.Named("openai_embedder"),
	}, nil
}

// GetDimensions 返回嵌入器配置的维度
func (a *OpenAIEmbedder) GetDimensions() int {
	return a.dimensions
}

type embeddingRequest struct {
	Input          []string `json:"input"`
	Model          string   `json:"model"`
	Dimensions     int      `json:"dimensions,omitempty"`
	EncodingFormat string   `json:"encoding_format,omitempty"`
}

type embeddingResponse struct {
	Object string `json:"object"`
	Data   []struct {
		Object    string    `json:"object"`
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
	Error *apiErrorBody `json:"error,omitempty"`
}

// EmbedStrings 将文本转换为向量，超过批大小时分批请求，结果顺序与输入一致
func (a *OpenAIEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	options := embedding.GetCommonOptions(&embedding.Options{}, opts...)
	effectiveModel := a.model
	if options.Model != nil && *options.Model != "" {
		effectiveModel = *options.Model
	}

	if len(texts) == 0 {
		return [][]float64{}, nil
	}

	start := time.Now()
	out := make([][]float64, 0, len(texts))
	for lo := 0; lo < len(texts); lo += a.batchSize {
		hi := min(lo+a.batchSize, len(texts))
		vectors, err := a.embedBatch(ctx, effectiveModel, texts[lo:hi])
		if err != nil {
			return nil, err
		}
		out = append(out, vectors...)
	}

	a.logger.Debug().
		Str("model", effectiveModel).
		Int("texts", len(texts)).
		Int("dimensions", firstEmbeddingDim(out)).
		Str("preview", truncateEmbedding(firstVector(out))).
		Dur("duration", time.Since(start)).
		Msg("文本向量化完成")
	return out, nil
}

func (a *OpenAIEmbedder) embedBatch(ctx context.Context, model string, texts []string) ([][]float64, error) {
	reqBody := embeddingRequest{
		Input:          texts,
		Model:          model,
		Dimensions:     a.dimensions,
		EncodingFormat: "float",
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("序列化请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("创建HTTP请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, TransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, TransportError(fmt.Errorf("读取响应体失败: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		a.logger.Warn().Int("status", resp.StatusCode).Str("body", tracing.TruncateString(string(body), tracing.DefaultMaxLength)).Msg("向量化API调用失败")
		return nil, StatusError(resp.StatusCode, errorMessage(body))
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("解析响应JSON失败: %w", err)
	}
	if parsed.Error != nil && parsed.Error.Message != "" {
		return nil, StatusError(http.StatusBadGateway, parsed.Error.Message)
	}
	if len(parsed.Data) != len(texts) {
		return nil, StatusError(http.StatusBadGateway, fmt.Sprintf("返回向量数量 %d 与输入数量 %d 不一致", len(parsed.Data), len(texts)))
	}

	// 按 index 还原输入顺序
	vectors := make([][]float64, len(texts))
	for _, entry := range parsed.Data {
		if entry.Index < 0 || entry.Index >= len(texts) {
			return nil, StatusError(http.StatusBadGateway, fmt.Sprintf("返回了越界的向量下标 %d", entry.Index))
		}
		vectors[entry.Index] = entry.Embedding
	}
	return vectors, nil
}

func firstVector(embeddings [][]float64) []float64 {
	if len(embeddings) > 0 {
		return embeddings[0]
	}
	return nil
}

// firstEmbeddingDim 安全地获取第一个向量的维度
func firstEmbeddingDim(embeddings [][]float64) int {
	if len(embeddings) > 0 {
		return len(embeddings[0])
	}
	return 0
}

// truncateEmbedding 截断嵌入向量的字符串表示形式
func truncateEmbedding(vector []float64) string {
	const maxLen = 6       // 如果向量长度大于此值，则截断
	const showEachSide = 3 // 截断时每边显示多少元素

	if len(vector) <= maxLen {
		return fmt.Sprintf("%v", vector)
	}

	truncated := make([]string, 0, showEachSide*2+1)
	for i := 0; i < showEachSide; i++ {
		truncated = append(truncated, fmt.Sprintf("%.4f", vector[i]))
	}
	truncated = append(truncated, "...")
	for i := len(vector) - showEachSide; i < len(vector); i++ {
		truncated = append(truncated, fmt.Sprintf("%.4f", vector[i]))
	}
	return fmt.Sprintf("[%s]", strings.Join(truncated, ", "))
}
