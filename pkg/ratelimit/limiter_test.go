package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryWithBackoff_RetriesRetryableErrors(t *testing.T) {
	l := NewLimiter(0, WithRetryPolicy(time.Millisecond, 3))

	calls := 0
	err := l.RetryWithBackoff(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("429 Too Many Requests")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryWithBackoff_StopsOnPermanentError(t *testing.T) {
	l := NewLimiter(0, WithRetryPolicy(time.Millisecond, 3))

	calls := 0
	permanent := errors.New("invalid api key")
	err := l.RetryWithBackoff(context.Background(), func() error {
		calls++
		return permanent
	})

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestRetryWithBackoff_GivesUpAfterMaxRetries(t *testing.T) {
	l := NewLimiter(0, WithRetryPolicy(time.Millisecond, 2))

	calls := 0
	err := l.RetryWithBackoff(context.Background(), func() error {
		calls++
		return errors.New("connection refused")
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls, "首次调用加两次重试")
}

func TestRetryWithBackoff_CustomClassifier(t *testing.T) {
	sentinel := errors.New("busy")
	l := NewLimiter(0,
		WithRetryPolicy(time.Millisecond, 5),
		WithRetryable(func(err error) bool { return errors.Is(err, sentinel) }),
	)

	calls := 0
	err := l.RetryWithBackoff(context.Background(), func() error {
		calls++
		if calls == 1 {
			return sentinel
		}
		return errors.New("timeout")
	})

	require.Error(t, err)
	assert.Equal(t, 2, calls, "自定义判断下 timeout 不再重试")
}

func TestRetryWithBackoff_ContextCancelledDuringBackoff(t *testing.T) {
	l := NewLimiter(0, WithRetryPolicy(time.Hour, 3))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := l.RetryWithBackoff(ctx, func() error {
		return errors.New("timeout")
	})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewLimiter_Burst(t *testing.T) {
	l := NewLimiter(60)

	// 容量为 QPM 的一半
	for i := 0; i < 30; i++ {
		assert.True(t, l.Allow(), "第 %d 个请求应在突发容量内", i+1)
	}
	assert.False(t, l.Allow())
}

type countingEmbedder struct {
	calls int
	fail  int
}

func (c *countingEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	c.calls++
	if c.calls <= c.fail {
		return nil, errors.New("EOF")
	}
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = []float64{float64(i)}
	}
	return out, nil
}

func TestRateLimitedEmbedder(t *testing.T) {
	inner := &countingEmbedder{fail: 1}
	emb := NewRateLimitedEmbedder(inner, NewLimiter(0, WithRetryPolicy(time.Millisecond, 2)))

	vectors, err := emb.EmbedStrings(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vectors, 2)
	assert.Equal(t, 2, inner.calls)
}
