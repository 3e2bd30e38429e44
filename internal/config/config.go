package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// RedisConfig holds configuration for Redis
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"` // 未启用时使用进程内会话登记表
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	// 连接池设置
	PoolSize     int `yaml:"pool_size"`      // 连接池大小
	MinIdleConns int `yaml:"min_idle_conns"` // 最小空闲连接数
	// 超时设置
	DialTimeoutSeconds  int `yaml:"dial_timeout_seconds"`  // 连接超时(秒)
	ReadTimeoutSeconds  int `yaml:"read_timeout_seconds"`  // 读取超时(秒)
	WriteTimeoutSeconds int `yaml:"write_timeout_seconds"` // 写入超时(秒)
	// 重试设置
	MaxRetries int `yaml:"max_retries"` // 最大重试次数
}

// Config 应用程序配置
type Config struct {
	// 语言模型配置 (OpenAI 兼容接口)
	LLM LLMConfig `yaml:"llm"`

	// 向量化配置
	Embedding EmbeddingConfig `yaml:"embedding"`

	// 会话索引配置
	Index IndexConfig `yaml:"index"`

	// Tika服务器配置
	Tika TikaConfig `yaml:"tika"`

	// Redis配置
	Redis RedisConfig `yaml:"redis"`

	// 服务器配置
	Server ServerConfig `yaml:"server"`

	// 简历分析参数
	Analysis AnalysisConfig `yaml:"analysis"`

	// 日志配置
	Logger LoggerConfig `yaml:"logger"`

	// 链路追踪配置
	Tracing TracingConfig `yaml:"tracing"`
}

// LLMConfig 对话模型配置
type LLMConfig struct {
	APIKey      string  `yaml:"api_key"`
	APIURL      string  `yaml:"api_url"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	Timeout     string  `yaml:"timeout"`     // 单次请求超时，例如 "60s"
	QPM         int     `yaml:"qpm"`         // 每分钟请求数限制
	MaxRetries  int     `yaml:"max_retries"` // 可重试错误的最大重试次数
}

// EmbeddingConfig 向量化配置
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"` // openai 或 ollama
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	BaseURL    string `yaml:"base_url"`
	// 为空时沿用 LLM.APIKey
	APIKey    string `yaml:"api_key,omitempty"`
	BatchSize int    `yaml:"batch_size"`
	QPM       int    `yaml:"qpm"`
}

// IndexConfig 会话级临时索引配置
type IndexConfig struct {
	Backend     string       `yaml:"backend"`      // local 或 qdrant
	StorageRoot string       `yaml:"storage_root"` // 会话存储根目录
	Qdrant      QdrantConfig `yaml:"qdrant"`
}

// QdrantConfig Qdrant向量数据库配置
type QdrantConfig struct {
	Endpoint         string `yaml:"endpoint"`          // Qdrant REST 服务地址
	APIKey           string `yaml:"api_key,omitempty"` // (可选) Qdrant API Key
	CollectionPrefix string `yaml:"collection_prefix"` // 会话集合名前缀
	TimeoutSeconds   int    `yaml:"timeout_seconds"`
}

// TikaConfig Tika服务器配置结构
type TikaConfig struct {
	Enabled   bool   `yaml:"enabled"`         // 启用后优先使用Tika解析PDF/DOCX
	ServerURL string `yaml:"server_url"`      // Tika服务器URL
	Timeout   int    `yaml:"timeout_seconds"` // 超时时间(秒)
}

// ServerConfig 定义服务器配置
type ServerConfig struct {
	Address     string `yaml:"address"`       // 例如 ":8080" or "0.0.0.0:8080"
	MaxUploadMB int    `yaml:"max_upload_mb"` // 上传文件大小上限
}

// AnalysisConfig 简历分析流水线参数
type AnalysisConfig struct {
	ChunkSize            int    `yaml:"chunk_size"`
	ChunkOverlap         int    `yaml:"chunk_overlap"`
	TopK                 int    `yaml:"top_k"`
	PersonalInfoAttempts int    `yaml:"personal_info_attempts"`
	StaleSessionAge      string `yaml:"stale_session_age"` // 例如 "24h"
	SweepInterval        string `yaml:"sweep_interval"`    // 后台清理周期，例如 "1h"
	ParallelFields       bool   `yaml:"parallel_fields"`   // 是否并发提取各字段
	AnalysisTimeout      string `yaml:"analysis_timeout"`  // 单份简历整体超时
}

// LoggerConfig 日志配置
type LoggerConfig struct {
	Level        string `yaml:"level"`         // debug, info, warn, error
	Format       string `yaml:"format"`        // json, pretty
	TimeFormat   string `yaml:"time_format"`   // 时间格式
	ReportCaller bool   `yaml:"report_caller"` // 是否报告调用位置
	File         string `yaml:"file"`          // 额外写入的日志文件，为空则只输出到标准输出
}

// TracingConfig OpenTelemetry 配置
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	ServiceName  string  `yaml:"service_name"`
	OTLPEndpoint string  `yaml:"otlp_endpoint"` // 例如 "localhost:4317"
	Insecure     bool    `yaml:"insecure"`
	SampleRatio  float64 `yaml:"sample_ratio"`
}

// LoadConfig 从文件加载配置
// configPath 为空时依次在常见位置查找；找不到则使用默认配置。
func LoadConfig(configPath string) (*Config, error) {
	if configPath == "" {
		searchPaths := []string{
			"config.yaml",
			"./configs/config.yaml",
			filepath.Join(os.Getenv("HOME"), ".resume-analyzer", "config.yaml"),
		}
		// 获取当前可执行文件路径
		if execPath, err := os.Executable(); err == nil {
			searchPaths = append(searchPaths, filepath.Join(filepath.Dir(execPath), "config.yaml"))
		}
		for _, path := range searchPaths {
			if _, err := os.Stat(path); err == nil {
				configPath = path
				break
			}
		}
	}

	config := DefaultConfig()
	if configPath != "" {
		// 检查文件是否存在
		if _, err := os.Stat(configPath); err != nil {
			return nil, fmt.Errorf("配置文件不存在: %s", configPath)
		}

		// 读取配置文件
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}

		// 解析配置文件，未出现的字段保留默认值
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("解析配置文件失败: %w", err)
		}
	}

	applyEnvOverrides(config)
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// applyEnvOverrides 从环境变量覆盖配置（如果存在）
func applyEnvOverrides(config *Config) {
	if envKey := os.Getenv("RESUME_LLM_API_KEY"); envKey != "" {
		config.LLM.APIKey = envKey
	} else if envKey := os.Getenv("OPENAI_API_KEY"); envKey != "" && config.LLM.APIKey == "" {
		config.LLM.APIKey = envKey
	}
	if envURL := os.Getenv("RESUME_LLM_BASE_URL"); envURL != "" {
		config.LLM.APIURL = envURL
	}
	if envModel := os.Getenv("RESUME_LLM_MODEL"); envModel != "" {
		config.LLM.Model = envModel
	}
	if envKey := os.Getenv("RESUME_EMBEDDING_API_KEY"); envKey != "" {
		config.Embedding.APIKey = envKey
	}
	if envAddr := os.Getenv("RESUME_REDIS_ADDR"); envAddr != "" {
		config.Redis.Address = envAddr
		config.Redis.Enabled = true
	}
	if envEndpoint := os.Getenv("RESUME_QDRANT_ENDPOINT"); envEndpoint != "" {
		config.Index.Qdrant.Endpoint = envEndpoint
	}
}

// applyDefaults 为 YAML 中显式置零的关键字段补回默认值
func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.Server.Address == "" {
		c.Server.Address = def.Server.Address
	}
	if c.Analysis.ChunkSize <= 0 {
		c.Analysis.ChunkSize = def.Analysis.ChunkSize
	}
	if c.Analysis.TopK <= 0 {
		c.Analysis.TopK = def.Analysis.TopK
	}
	if c.Analysis.PersonalInfoAttempts <= 0 {
		c.Analysis.PersonalInfoAttempts = def.Analysis.PersonalInfoAttempts
	}
	if c.Embedding.APIKey == "" {
		c.Embedding.APIKey = c.LLM.APIKey
	}
	if c.Index.StorageRoot == "" {
		c.Index.StorageRoot = def.Index.StorageRoot
	}
	c.Index.Backend = strings.ToLower(strings.TrimSpace(c.Index.Backend))
	if c.Index.Backend == "" {
		c.Index.Backend = def.Index.Backend
	}
	c.Embedding.Provider = strings.ToLower(strings.TrimSpace(c.Embedding.Provider))
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = def.Embedding.Provider
	}
}

// Validate 校验配置的一致性
func (c *Config) Validate() error {
	if c.Analysis.ChunkOverlap < 0 || c.Analysis.ChunkOverlap >= c.Analysis.ChunkSize {
		return fmt.Errorf("analysis.chunk_overlap 必须在 [0, chunk_size) 范围内: overlap=%d, size=%d",
			c.Analysis.ChunkOverlap, c.Analysis.ChunkSize)
	}
	switch c.Index.Backend {
	case "local":
	case "qdrant":
		if c.Index.Qdrant.Endpoint == "" {
			return fmt.Errorf("index.backend 为 qdrant 时必须配置 index.qdrant.endpoint")
		}
	default:
		return fmt.Errorf("不支持的 index.backend: %s", c.Index.Backend)
	}
	switch c.Embedding.Provider {
	case "openai", "ollama":
	default:
		return fmt.Errorf("不支持的 embedding.provider: %s", c.Embedding.Provider)
	}
	for name, value := range map[string]string{
		"analysis.stale_session_age": c.Analysis.StaleSessionAge,
		"analysis.sweep_interval":    c.Analysis.SweepInterval,
		"analysis.analysis_timeout":  c.Analysis.AnalysisTimeout,
		"llm.timeout":                c.LLM.Timeout,
	} {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("%s 不是合法的时间间隔 %q: %w", name, value, err)
		}
	}
	return nil
}

// DefaultConfig 返回带默认值的配置
func DefaultConfig() *Config {
	config := &Config{}

	config.LLM.APIURL = "https://api.openai.com/v1/chat/completions"
	config.LLM.Model = "gpt-4o-mini"
	config.LLM.Temperature = 0
	config.LLM.MaxTokens = 512
	config.LLM.Timeout = "60s"
	config.LLM.QPM = 60
	config.LLM.MaxRetries = 3

	config.Embedding.Provider = "openai"
	config.Embedding.Model = "text-embedding-3-small"
	config.Embedding.Dimensions = 1536
	config.Embedding.BaseURL = "https://api.openai.com/v1/embeddings"
	config.Embedding.BatchSize = 16
	config.Embedding.QPM = 300

	config.Index.Backend = "local"
	config.Index.StorageRoot = "temp_dbs"
	config.Index.Qdrant.Endpoint = "http://localhost:6333"
	config.Index.Qdrant.CollectionPrefix = "resume_"
	config.Index.Qdrant.TimeoutSeconds = 30

	// Tika默认配置
	config.Tika.ServerURL = "http://localhost:9998"
	config.Tika.Timeout = 60

	// Redis默认配置
	config.Redis.Address = "localhost:6379"
	config.Redis.PoolSize = 10
	config.Redis.MinIdleConns = 2
	config.Redis.DialTimeoutSeconds = 5
	config.Redis.ReadTimeoutSeconds = 3
	config.Redis.WriteTimeoutSeconds = 3
	config.Redis.MaxRetries = 3

	config.Server.Address = ":8080"
	config.Server.MaxUploadMB = 10

	config.Analysis.ChunkSize = 1000
	config.Analysis.ChunkOverlap = 200
	config.Analysis.TopK = 3
	config.Analysis.PersonalInfoAttempts = 2
	config.Analysis.StaleSessionAge = "24h"
	config.Analysis.SweepInterval = "1h"
	config.Analysis.AnalysisTimeout = "120s"

	// 日志默认配置
	config.Logger.Level = "info"
	config.Logger.Format = "json"
	config.Logger.TimeFormat = time.RFC3339

	config.Tracing.ServiceName = "resume-analyzer"
	config.Tracing.OTLPEndpoint = "localhost:4317"
	config.Tracing.Insecure = true
	config.Tracing.SampleRatio = 1.0

	return config
}

// CreateSampleConfig 将默认配置写入指定路径，已存在的文件不会被覆盖
func CreateSampleConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("配置文件已存在: %s", path)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("序列化默认配置失败: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("创建配置目录失败: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("写入配置文件失败: %w", err)
	}
	return nil
}

// GetDuration 解析时间字符串，失败时返回默认值
func GetDuration(durationStr string, defaultDuration time.Duration) time.Duration {
	if durationStr == "" {
		return defaultDuration
	}
	duration, err := time.ParseDuration(durationStr)
	if err != nil {
		return defaultDuration
	}
	return duration
}
