package ratelimit

import (
	"context"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// RateLimitedChatModel 对对话模型的调用进行限流的代理
type RateLimitedChatModel struct {
	original model.BaseChatModel
	limiter  *Limiter
}

var _ model.BaseChatModel = (*RateLimitedChatModel)(nil)

// NewRateLimitedChatModel 创建一个新的限流对话模型代理
func NewRateLimitedChatModel(original model.BaseChatModel, limiter *Limiter) *RateLimitedChatModel {
	return &RateLimitedChatModel{original: original, limiter: limiter}
}

// Generate 代理Generate方法，增加限流和重试逻辑
func (rl *RateLimitedChatModel) Generate(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.Message, error) {
	var response *schema.Message
	err := rl.limiter.RetryWithBackoff(ctx, func() error {
		var genErr error
		response, genErr = rl.original.Generate(ctx, messages, options...)
		return genErr
	})
	return response, err
}

// Stream 代理Stream方法，增加限流和重试逻辑
func (rl *RateLimitedChatModel) Stream(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	var stream *schema.StreamReader[*schema.Message]
	err := rl.limiter.RetryWithBackoff(ctx, func() error {
		var streamErr error
		stream, streamErr = rl.original.Stream(ctx, messages, options...)
		return streamErr
	})
	return stream, err
}

// RateLimitedEmbedder 对向量化调用进行限流的代理
type RateLimitedEmbedder struct {
	original embedding.Embedder
	limiter  *Limiter
}

var _ embedding.Embedder = (*RateLimitedEmbedder)(nil)

// NewRateLimitedEmbedder 创建一个新的限流向量化代理
func NewRateLimitedEmbedder(original embedding.Embedder, limiter *Limiter) *RateLimitedEmbedder {
	return &RateLimitedEmbedder{original: original, limiter: limiter}
}

// EmbedStrings 代理EmbedStrings方法，增加限流和重试逻辑
func (rl *RateLimitedEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	var vectors [][]float64
	err := rl.limiter.RetryWithBackoff(ctx, func() error {
		var embErr error
		vectors, embErr = rl.original.EmbedStrings(ctx, texts, opts...)
		return embErr
	})
	return vectors, err
}
