package processor

import (
	"github.com/rs/zerolog"

	"resume-analyzer/internal/config"
	"resume-analyzer/internal/parser"
)

// Settings 分析流水线参数
type Settings struct {
	// 每次检索带入的分块数
	TopK int

	// 个人信息每个问题的最大尝试次数
	PersonalInfoAttempts int

	// 是否并发提取各字段
	ParallelFields bool
}

// DefaultSettings 返回默认参数
func DefaultSettings() Settings {
	return Settings{
		TopK:                 3,
		PersonalInfoAttempts: 2,
	}
}

// SettingsFromConfig 从分析配置生成参数，非法值回退为默认值
func SettingsFromConfig(cfg config.AnalysisConfig) Settings {
	s := DefaultSettings()
	if cfg.TopK > 0 {
		s.TopK = cfg.TopK
	}
	if cfg.PersonalInfoAttempts > 0 {
		s.PersonalInfoAttempts = cfg.PersonalInfoAttempts
	}
	s.ParallelFields = cfg.ParallelFields
	return s
}

// AnalyzerOption 分析器选项
type AnalyzerOption func(*Analyzer)

// WithDocumentReader 设置文档读取器
func WithDocumentReader(reader DocumentReader) AnalyzerOption {
	return func(a *Analyzer) {
		a.reader = reader
	}
}

// WithContactExtractor 设置联系方式提取器
func WithContactExtractor(extractor ContactExtractor) AnalyzerOption {
	return func(a *Analyzer) {
		a.contacts = extractor
	}
}

// WithChunker 设置分块器
func WithChunker(chunker Chunker) AnalyzerOption {
	return func(a *Analyzer) {
		a.chunker = chunker
	}
}

// WithSettings 设置分析参数
func WithSettings(settings Settings) AnalyzerOption {
	return func(a *Analyzer) {
		a.settings = settings
	}
}

// WithAnalyzerLogger 设置日志记录器
func WithAnalyzerLogger(l zerolog.Logger) AnalyzerOption {
	return func(a *Analyzer) {
		a.logger = l
	}
}

// ChunkerFromConfig 按分析配置创建滑动窗口分块器
func ChunkerFromConfig(cfg config.AnalysisConfig) (*parser.WindowChunker, error) {
	size, overlap := cfg.ChunkSize, cfg.ChunkOverlap
	if size <= 0 {
		size, overlap = parser.DefaultChunkSize, parser.DefaultChunkOverlap
	}
	return parser.NewWindowChunker(size, overlap)
}
