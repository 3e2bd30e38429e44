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

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"resume-analyzer/internal/config"
	"resume-analyzer/internal/logger"
	"resume-analyzer/internal/tracing"
)

const (
	defaultChatAPIURL = "https://api.openai.com/v1/chat/completions"
	defaultChatModel  = "gpt-4o-mini"
)

// --- OpenAI Compatible Request/Response Structures ---

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float32      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
}

type chatCompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string  `json:"role"`
			Content *string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage,omitempty"`
	Error *apiErrorBody `json:"error,omitempty"`
}

type apiErrorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

// ChatModel 通过 OpenAI 兼容接口调用对话模型
type ChatModel struct {
	apiKey      string
	modelName   string
	apiURL      string
	temperature float32
	maxTokens   int
	httpClient  *http.Client
	logger      zerolog.Logger
}

var _ model.BaseChatModel = (*ChatModel)(nil)

// NewChatModel 根据配置创建对话模型客户端，凭据只从配置注入
func NewChatModel(cfg config.LLMConfig) (*ChatModel, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("API 密钥不能为空")
	}

	mn := cfg.Model
	if strings.TrimSpace(mn) == "" {
		mn = defaultChatModel
	}
	url := cfg.APIURL
	if strings.TrimSpace(url) == "" {
		url = defaultChatAPIURL
	}

	m := &ChatModel{
		apiKey:      cfg.APIKey,
		modelName:   mn,
		apiURL:      url,
		temperature: float32(cfg.Temperature),
		maxTokens:   cfg.MaxTokens,
		httpClient:  &http.Client{Timeout: config.GetDuration(cfg.Timeout, 60*time.Second)},
		logger:      logger.Named("chat_model"),
	}
	m.logger.Info().Str("api_url", url).Str("model", mn).Msg("对话模型客户端初始化完成")
	return m, nil
}

// Generate 实现 model.BaseChatModel 接口
func (c *ChatModel) Generate(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	temperature := c.temperature
	maxTokens := c.maxTokens
	modelName := c.modelName
	options := model.GetCommonOptions(&model.Options{
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
		Model:       &modelName,
	}, opts...)

	reqPayload := chatCompletionRequest{
		Model:       *options.Model,
		Messages:    make([]chatMessage, 0, len(messages)),
		Temperature: options.Temperature,
		Stop:        options.Stop,
	}
	if options.MaxTokens != nil && *options.MaxTokens > 0 {
		reqPayload.MaxTokens = options.MaxTokens
	}
	for _, msg := range messages {
		reqPayload.Messages = append(reqPayload.Messages, chatMessage{Role: string(msg.Role), Content: msg.Content})
	}

	jsonData, err := json.Marshal(reqPayload)
	if err != nil {
		return nil, fmt.Errorf("序列化请求体失败: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("创建 HTTP 请求失败: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, TransportError(err)
	}
	defer httpResp.Body.Close()

	bodyBytes, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, TransportError(fmt.Errorf("读取响应体失败: %w", err))
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, StatusError(httpResp.StatusCode, errorMessage(bodyBytes))
	}

	var resp chatCompletionResponse
	if err := json.Unmarshal(bodyBytes, &resp); err != nil {
		return nil, fmt.Errorf("反序列化 API 响应失败: %w。响应体: %s", err, tracing.TruncateString(string(bodyBytes), tracing.DefaultMaxLength))
	}
	if resp.Error != nil && resp.Error.Message != "" {
		return nil, StatusError(http.StatusBadGateway, resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return nil, StatusError(http.StatusBadGateway, "API 返回空选项")
	}

	content := ""
	if resp.Choices[0].Message.Content != nil {
		content = *resp.Choices[0].Message.Content
	}

	event := c.logger.Debug().
		Str("model", reqPayload.Model).
		Int("messages", len(messages)).
		Dur("duration", time.Since(start)).
		Str("finish_reason", resp.Choices[0].FinishReason)
	if resp.Usage != nil {
		event = event.Int("total_tokens", resp.Usage.TotalTokens)
	}
	event.Msg("对话模型调用完成")

	return &schema.Message{
		Role:    schema.Assistant,
		Content: content,
		ResponseMeta: &schema.ResponseMeta{
			FinishReason: resp.Choices[0].FinishReason,
		},
	}, nil
}

// Stream 流式输出对简历字段提取没有意义，不予支持
func (c *ChatModel) Stream(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, fmt.Errorf("ChatModel 不支持 Stream 调用")
}

// errorMessage 从错误响应体中提取可读信息
func errorMessage(body []byte) string {
	var wrapped struct {
		Error *apiErrorBody `json:"error"`
	}
	if json.Unmarshal(body, &wrapped) == nil && wrapped.Error != nil && wrapped.Error.Message != "" {
		return wrapped.Error.Message
	}
	return tracing.TruncateString(strings.TrimSpace(string(body)), tracing.DefaultMaxLength)
}
