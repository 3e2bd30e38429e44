package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-analyzer/internal/config"
)

func TestOpenAIEmbedder_BatchesAndKeepsOrder(t *testing.T) {
	var batches [][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		batches = append(batches, req.Input)

		// 倒序返回，验证按 index 还原
		type entry struct {
			Embedding []float64 `json:"embedding"`
			Index     int       `json:"index"`
		}
		data := make([]entry, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, entry{Embedding: []float64{float64(len(req.Input[i]))}, Index: i})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
	defer srv.Close()

	emb, err := NewOpenAIEmbedder(config.EmbeddingConfig{
		APIKey:    "k",
		BaseURL:   srv.URL,
		BatchSize: 2,
	})
	require.NoError(t, err)

	vectors, err := emb.EmbedStrings(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1}, {2}, {3}}, vectors)
	assert.Equal(t, [][]string{{"a", "bb"}, {"ccc"}}, batches)
}

func TestOpenAIEmbedder_EmptyInput(t *testing.T) {
	emb, err := NewOpenAIEmbedder(config.EmbeddingConfig{APIKey: "k", BaseURL: "http://127.0.0.1:1"})
	require.NoError(t, err)

	vectors, err := emb.EmbedStrings(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vectors)
}

func TestOpenAIEmbedder_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	emb, err := NewOpenAIEmbedder(config.EmbeddingConfig{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = emb.EmbedStrings(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, ErrRateLimited)
}

type fakeOllama struct {
	vectors [][]float32
	err     error
	calls   int
}

func (f *fakeOllama) CreateEmbedding(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.vectors[:len(texts)], nil
}

func TestOllamaEmbedder(t *testing.T) {
	fake := &fakeOllama{vectors: [][]float32{{0.5, 1}, {2, 4}}}
	emb := newOllamaEmbedder(fake, "nomic-embed-text", 8)

	vectors, err := emb.EmbedStrings(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{0.5, 1}, {2, 4}}, vectors)
	assert.Equal(t, 1, fake.calls)
}

func TestOllamaEmbedder_ErrorIsServiceError(t *testing.T) {
	emb := newOllamaEmbedder(&fakeOllama{err: errors.New("connection refused")}, "m", 0)

	_, err := emb.EmbedStrings(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, ErrServiceUnavailable)
	assert.True(t, IsRetryable(err))
}

func TestNewEmbedder_UnknownProvider(t *testing.T) {
	_, err := NewEmbedder(config.EmbeddingConfig{Provider: "bogus"})
	assert.Error(t, err)
}
