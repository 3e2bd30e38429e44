package parser

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"resume-analyzer/internal/logger"
	"resume-analyzer/internal/tracing"
	"resume-analyzer/internal/types"
)

var (
	// ErrUnsupportedFormat 不支持的文档格式
	ErrUnsupportedFormat = errors.New("不支持的文档格式")
	// ErrExtractionFailure 文档无法读取或提取结果为空
	ErrExtractionFailure = errors.New("文档文本提取失败")
)

// TextExtractor 从某一种格式的原始字节中提取文本
type TextExtractor interface {
	ExtractText(ctx context.Context, data []byte, uri string) (string, error)
}

// ParseFormat 根据文件名或声明的格式得到文档格式
// 既接受 "resume.PDF" 这样的文件名，也接受 "docx" 这样的格式名。
func ParseFormat(nameOrFormat string) (types.DocumentFormat, error) {
	s := strings.ToLower(strings.TrimSpace(nameOrFormat))
	if ext := filepath.Ext(s); ext != "" {
		s = ext
	}
	switch strings.TrimPrefix(s, ".") {
	case string(types.FormatPDF):
		return types.FormatPDF, nil
	case string(types.FormatDOCX):
		return types.FormatDOCX, nil
	}
	return "", fmt.Errorf("%w: %q，仅支持 pdf 和 docx", ErrUnsupportedFormat, nameOrFormat)
}

// DocumentReader 按格式分派到对应的文本提取器
type DocumentReader struct {
	extractors map[types.DocumentFormat]TextExtractor
	logger     zerolog.Logger
}

// ReaderOption 文档读取器配置选项
type ReaderOption func(*DocumentReader)

// WithExtractor 为某一格式注册提取器，后注册的覆盖先注册的
func WithExtractor(format types.DocumentFormat, extractor TextExtractor) ReaderOption {
	return func(r *DocumentReader) {
		r.extractors[format] = extractor
	}
}

// NewDocumentReader 创建文档读取器
func NewDocumentReader(options ...ReaderOption) *DocumentReader {
	r := &DocumentReader{
		extractors: make(map[types.DocumentFormat]TextExtractor),
		logger:     logger.Named("document_reader"),
	}
	for _, option := range options {
		option(r)
	}
	return r
}

// Read 读取文档原始文本
// 格式不受支持时返回 ErrUnsupportedFormat，解析失败或结果为空时返回 ErrExtractionFailure。
func (r *DocumentReader) Read(ctx context.Context, doc types.Document) (string, error) {
	ctx, span := tracing.Tracer().Start(ctx, "DocumentReader.Read")
	defer span.End()
	span.SetAttributes(
		attribute.String("document.format", string(doc.Format)),
		attribute.Int("document.size", len(doc.Data)),
	)

	extractor, ok := r.extractors[doc.Format]
	if !ok {
		err := fmt.Errorf("%w: %q", ErrUnsupportedFormat, doc.Format)
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return "", err
	}
	if len(doc.Data) == 0 {
		err := fmt.Errorf("%w: 文档内容为空", ErrExtractionFailure)
		tracing.RecordError(span, err, tracing.ErrorTypeReader)
		return "", err
	}

	start := time.Now()
	text, err := extractor.ExtractText(ctx, doc.Data, doc.Name)
	if err != nil {
		if !errors.Is(err, ErrExtractionFailure) {
			err = fmt.Errorf("%w: %v", ErrExtractionFailure, err)
		}
		tracing.RecordError(span, err, tracing.ErrorTypeReader)
		r.logger.Error().Err(err).Str("name", doc.Name).Str("format", string(doc.Format)).Msg("文档文本提取失败")
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		err := fmt.Errorf("%w: 未提取到任何文本", ErrExtractionFailure)
		tracing.RecordError(span, err, tracing.ErrorTypeReader)
		return "", err
	}

	span.SetAttributes(attribute.Int("document.text_length", len(text)))
	r.logger.Info().
		Str("name", doc.Name).
		Str("format", string(doc.Format)).
		Int("text_length", len(text)).
		Dur("duration", time.Since(start)).
		Msg("文档文本提取完成")
	return text, nil
}
