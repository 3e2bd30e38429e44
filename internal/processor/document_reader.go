package processor

import (
	"context"
	"time"

	"resume-analyzer/internal/config"
	"resume-analyzer/internal/logger"
	"resume-analyzer/internal/parser"
	"resume-analyzer/internal/types"
)

// BuildDocumentReader 统一构建文档读取器的逻辑
// 启用 Tika 时 PDF 和 DOCX 都交给 Tika，否则 PDF 使用 Eino、DOCX 使用内置解析器。
func BuildDocumentReader(ctx context.Context, cfg *config.Config) (*parser.DocumentReader, error) {
	initLogger := logger.Named("reader_init")

	if cfg.Tika.Enabled && cfg.Tika.ServerURL != "" {
		initLogger.Info().Str("server", cfg.Tika.ServerURL).Msg("检测到Tika配置，使用Tika解析PDF与DOCX")
		var tikaOptions []parser.TikaOption
		if cfg.Tika.Timeout > 0 {
			tikaOptions = append(tikaOptions, parser.WithTimeout(time.Duration(cfg.Tika.Timeout)*time.Second))
		}
		return parser.NewDocumentReader(
			parser.WithExtractor(types.FormatPDF, parser.NewTikaExtractor(cfg.Tika.ServerURL, types.FormatPDF, tikaOptions...)),
			parser.WithExtractor(types.FormatDOCX, parser.NewTikaExtractor(cfg.Tika.ServerURL, types.FormatDOCX, tikaOptions...)),
		), nil
	}

	initLogger.Info().Msg("未启用Tika，PDF使用Eino解析器，DOCX使用内置解析器")
	pdfExtractor, err := parser.NewEinoPDFTextExtractor(ctx)
	if err != nil {
		return nil, err
	}
	return parser.NewDocumentReader(
		parser.WithExtractor(types.FormatPDF, pdfExtractor),
		parser.WithExtractor(types.FormatDOCX, parser.DocxExtractor{}),
	), nil
}
