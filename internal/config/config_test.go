package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoadConfigOverridesDefaults 验证 YAML 中的字段覆盖默认值，未出现的字段保留默认值
func TestLoadConfigOverridesDefaults(t *testing.T) {
	content := `
analysis:
  chunk_size: 500
  chunk_overlap: 100
  parallel_fields: true
index:
  backend: Qdrant
  qdrant:
    endpoint: "http://qdrant:6333"
llm:
  api_key: "from-file"
`
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644), "无法写入临时配置文件")

	config, err := LoadConfig(configPath)
	require.NoError(t, err, "加载合法配置不应返回错误")

	assert.Equal(t, 500, config.Analysis.ChunkSize)
	assert.Equal(t, 100, config.Analysis.ChunkOverlap)
	assert.True(t, config.Analysis.ParallelFields)
	assert.Equal(t, 3, config.Analysis.TopK, "未配置的 top_k 应保留默认值")
	assert.Equal(t, 2, config.Analysis.PersonalInfoAttempts)
	assert.Equal(t, "qdrant", config.Index.Backend, "backend 应被规范化为小写")
	assert.Equal(t, "from-file", config.Embedding.APIKey, "embedding.api_key 为空时应沿用 llm.api_key")
}

// TestLoadConfigEnvOverride 验证环境变量优先于配置文件
func TestLoadConfigEnvOverride(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("llm:\n  api_key: from-file\n"), 0644))

	t.Setenv("RESUME_LLM_API_KEY", "from-env")
	t.Setenv("RESUME_REDIS_ADDR", "127.0.0.1:6390")

	config, err := LoadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, "from-env", config.LLM.APIKey)
	assert.True(t, config.Redis.Enabled, "设置 RESUME_REDIS_ADDR 后应启用 Redis")
	assert.Equal(t, "127.0.0.1:6390", config.Redis.Address)
}

// TestLoadConfigMissingFile 验证显式指定的配置文件不存在时返回错误
func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "配置文件不存在")
}

// TestValidate 覆盖各类非法配置
func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"重叠大于块大小", func(c *Config) { c.Analysis.ChunkOverlap = c.Analysis.ChunkSize }},
		{"未知后端", func(c *Config) { c.Index.Backend = "chroma" }},
		{"qdrant缺少地址", func(c *Config) { c.Index.Backend = "qdrant"; c.Index.Qdrant.Endpoint = "" }},
		{"未知向量化服务", func(c *Config) { c.Embedding.Provider = "cohere" }},
		{"非法时间间隔", func(c *Config) { c.Analysis.StaleSessionAge = "one day" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}

	assert.NoError(t, DefaultConfig().Validate(), "默认配置应当合法")
}

func TestCreateSampleConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "configs", "config.yaml")
	require.NoError(t, CreateSampleConfig(path))

	config, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Analysis, config.Analysis)

	assert.Error(t, CreateSampleConfig(path), "已存在的文件不应被覆盖")
}

func TestGetDuration(t *testing.T) {
	assert.Equal(t, 24*time.Hour, GetDuration("24h", time.Minute))
	assert.Equal(t, time.Minute, GetDuration("", time.Minute))
	assert.Equal(t, time.Minute, GetDuration("bogus", time.Minute))
}
