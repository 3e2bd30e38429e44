package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-analyzer/internal/llm"
	"resume-analyzer/internal/storage"
	"resume-analyzer/internal/types"
)

// keywordEmbedder 按关键词出现与否生成向量，足以让检索结果可预测
type keywordEmbedder struct {
	keywords []string
	err      error
}

func (k *keywordEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	if k.err != nil {
		return nil, k.err
	}
	out := make([][]float64, len(texts))
	for i, text := range texts {
		v := make([]float64, len(k.keywords)+1)
		v[len(k.keywords)] = 0.01
		for j, kw := range k.keywords {
			if strings.Contains(strings.ToLower(text), kw) {
				v[j] = 1
			}
		}
		out[i] = v
	}
	return out, nil
}

// recordingChat 记录最后一次调用的消息
type recordingChat struct {
	answer   string
	err      error
	messages []*schema.Message
}

func (r *recordingChat) Generate(_ context.Context, messages []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	r.messages = messages
	if r.err != nil {
		return nil, r.err
	}
	return schema.AssistantMessage(r.answer, nil), nil
}

func (r *recordingChat) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not supported")
}

func newTestQA(t *testing.T, chat *recordingChat, emb embedding.Embedder) *RetrievalQA {
	t.Helper()
	backend := storage.NewSQLiteIndex(t.TempDir(), "resume_")
	t.Cleanup(func() { _ = backend.Close() })
	return NewRetrievalQA(emb, chat, backend)
}

func TestRetrievalQA_IndexQueryDelete(t *testing.T) {
	chat := &recordingChat{answer: "  BSc Computer Science, 2019  "}
	emb := &keywordEmbedder{keywords: []string{"education", "experience", "skills"}}
	qa := newTestQA(t, chat, emb)
	ctx := context.Background()

	chunks := []types.Chunk{
		{Index: 0, Start: 0, Text: "Education: BSc Computer Science, 2019"},
		{Index: 1, Start: 800, Text: "Experience: Backend engineer at Acme"},
		{Index: 2, Start: 1600, Text: "Skills: Go, SQL"},
	}
	handle, err := qa.Index(ctx, chunks, "resume_s1")
	require.NoError(t, err)
	assert.Equal(t, 3, handle.Chunks)

	answer, err := qa.Query(ctx, handle, "What is the candidate's education?", 1)
	require.NoError(t, err)
	assert.Equal(t, "BSc Computer Science, 2019", answer)

	require.Len(t, chat.messages, 2)
	assert.Equal(t, schema.System, chat.messages[0].Role)
	assert.Contains(t, chat.messages[0].Content, "Education: BSc")
	assert.NotContains(t, chat.messages[0].Content, "Skills: Go", "top-k=1 只应带入最相近的分块")
	assert.Equal(t, "What is the candidate's education?", chat.messages[1].Content)

	require.NoError(t, qa.Delete(ctx, handle))
	require.NoError(t, qa.Delete(ctx, handle))
}

func TestRetrievalQA_IndexEmpty(t *testing.T) {
	qa := newTestQA(t, &recordingChat{}, &keywordEmbedder{})
	_, err := qa.Index(context.Background(), nil, "resume_empty")
	assert.ErrorIs(t, err, ErrEmptyIndex)
}

func TestRetrievalQA_ErrorsAreServiceErrors(t *testing.T) {
	ctx := context.Background()
	chunks := []types.Chunk{{Index: 0, Text: "Skills: Go"}}

	t.Run("向量化失败", func(t *testing.T) {
		qa := newTestQA(t, &recordingChat{}, &keywordEmbedder{err: errors.New("boom")})
		_, err := qa.Index(ctx, chunks, "resume_x")
		assert.ErrorIs(t, err, llm.ErrServiceUnavailable)
	})

	t.Run("限流保持分类", func(t *testing.T) {
		qa := newTestQA(t, &recordingChat{}, &keywordEmbedder{err: llm.StatusError(429, "slow down")})
		_, err := qa.Index(ctx, chunks, "resume_y")
		assert.ErrorIs(t, err, llm.ErrRateLimited)
	})

	t.Run("对话模型失败", func(t *testing.T) {
		qa := newTestQA(t, &recordingChat{err: errors.New("connection reset")}, &keywordEmbedder{keywords: []string{"skills"}})
		handle, err := qa.Index(ctx, chunks, "resume_z")
		require.NoError(t, err)
		_, err = qa.Query(ctx, handle, "skills?", 3)
		assert.ErrorIs(t, err, llm.ErrServiceUnavailable)
	})
}

func TestRetrievalQA_Complete(t *testing.T) {
	chat := &recordingChat{answer: "jane@example.com"}
	qa := newTestQA(t, chat, &keywordEmbedder{})

	answer, err := qa.Complete(context.Background(), "What is the email address?")
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", answer)
	require.Len(t, chat.messages, 1)
	assert.Equal(t, schema.User, chat.messages[0].Role)
}
