package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-analyzer/internal/config"
)

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	r, err := NewRedisAdapter(&config.RedisConfig{Address: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r, mr
}

func registryContract(t *testing.T, reg SessionRegistry) {
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0)

	require.NoError(t, reg.Register(ctx, "s1", base))
	require.NoError(t, reg.Register(ctx, "s2", base.Add(2*time.Hour)))
	assert.ErrorIs(t, reg.Register(ctx, "s1", base), ErrSessionExists)

	ids, err := reg.Older(ctx, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, ids)

	ids, err = reg.Older(ctx, base.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2"}, ids)

	require.NoError(t, reg.Unregister(ctx, "s1"))
	require.NoError(t, reg.Unregister(ctx, "missing"))
	ids, err = reg.Older(ctx, base.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"s2"}, ids)

	// 注销后可以重新登记
	require.NoError(t, reg.Register(ctx, "s1", base))
}

func TestMemorySessionRegistry(t *testing.T) {
	registryContract(t, NewMemorySessionRegistry())
}

func TestRedisSessionRegistry(t *testing.T) {
	r, mr := newTestRedis(t)
	registryContract(t, NewRedisSessionRegistry(r))

	members, err := mr.ZMembers("app:analysis:session:live")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"s1", "s2"}, members)
}

func TestNewRedisAdapter_Validation(t *testing.T) {
	_, err := NewRedisAdapter(nil)
	assert.Error(t, err)
	_, err = NewRedisAdapter(&config.RedisConfig{})
	assert.Error(t, err)
}
