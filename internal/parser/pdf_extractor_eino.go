package parser

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/document/parser/pdf"
	einoParser "github.com/cloudwego/eino/components/document/parser"
	"github.com/rs/zerolog"

	"resume-analyzer/internal/logger"
)

// EinoPDFTextExtractor 使用 Eino PDF Parser 提取文本
type EinoPDFTextExtractor struct {
	parser  einoParser.Parser
	timeout time.Duration
	logger  zerolog.Logger
}

// EinoPDFOption PDF提取器的配置选项
type EinoPDFOption func(*EinoPDFTextExtractor)

// WithEinoLogger 配置自定义日志记录器
func WithEinoLogger(l zerolog.Logger) EinoPDFOption {
	return func(e *EinoPDFTextExtractor) {
		e.logger = l
	}
}

// WithEinoTimeout 配置单次解析的超时时间
func WithEinoTimeout(timeout time.Duration) EinoPDFOption {
	return func(e *EinoPDFTextExtractor) {
		e.timeout = timeout
	}
}

// withEinoParser 替换底层解析器，供测试使用
func withEinoParser(p einoParser.Parser) EinoPDFOption {
	return func(e *EinoPDFTextExtractor) {
		e.parser = p
	}
}

var _ TextExtractor = (*EinoPDFTextExtractor)(nil)

// NewEinoPDFTextExtractor 初始化 Eino PDF 文本提取器
// 默认配置为不按页面分割，以获取整个文档的连续文本
func NewEinoPDFTextExtractor(ctx context.Context, options ...EinoPDFOption) (*EinoPDFTextExtractor, error) {
	p, err := pdf.NewPDFParser(ctx, &pdf.Config{
		ToPages: false, // 非常重要：我们希望获取整个PDF的文本作为单个字符串
	})
	if err != nil {
		return nil, fmt.Errorf("创建Eino PDF解析器失败: %w", err)
	}

	extractor := &EinoPDFTextExtractor{
		parser:  p,
		timeout: 30 * time.Second,
		logger:  logger.Named("eino_pdf"),
	}

	// 应用选项
	for _, option := range options {
		option(extractor)
	}

	return extractor, nil
}

// ExtractText 从PDF字节中提取完整文本
func (e *EinoPDFTextExtractor) ExtractText(ctx context.Context, data []byte, uri string) (string, error) {
	startTime := time.Now()
	e.logger.Debug().Str("uri", uri).Float64("size_mb", float64(len(data))/1024/1024).Msg("开始提取PDF文本")

	// 创建带超时的上下文
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	docs, err := e.parser.Parse(ctx, bytes.NewReader(data),
		einoParser.WithURI(uri),
		einoParser.WithExtraMeta(map[string]any{
			"extraction_time": startTime.Format(time.RFC3339),
		}),
	)
	if err != nil {
		return "", fmt.Errorf("eino PDF解析失败 (URI: %s): %w", uri, err)
	}
	if len(docs) == 0 {
		return "", fmt.Errorf("%w: eino PDF解析无结果 (URI: %s)", ErrExtractionFailure, uri)
	}

	// 合并所有文档的内容（以防万一返回了多个）
	parts := make([]string, 0, len(docs))
	for _, doc := range docs {
		parts = append(parts, doc.Content)
	}
	fullContent := strings.Join(parts, "\n\n")

	e.logger.Debug().
		Str("uri", uri).
		Int("document_count", len(docs)).
		Int("text_length", len(fullContent)).
		Dur("duration", time.Since(startTime)).
		Msg("PDF文本提取完成")
	return fullContent, nil
}
