package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/rs/zerolog"

	"resume-analyzer/internal/config"
	"resume-analyzer/internal/logger"
	"resume-analyzer/internal/parser"
	"resume-analyzer/internal/processor"
	"resume-analyzer/internal/types"
)

// DocumentAnalyzer 分析上传的简历文档
type DocumentAnalyzer interface {
	AnalyzeDocument(ctx context.Context, doc types.Document, options []string) (*types.AnalysisResult, error)
}

// SweepTrigger 请求结束后触发一次后台清理
type SweepTrigger interface {
	TriggerAsync() bool
}

// ResumeHandler 简历解析接口
type ResumeHandler struct {
	analyzer       DocumentAnalyzer
	sweeper        SweepTrigger
	timeout        time.Duration
	maxUploadBytes int64
	logger         zerolog.Logger
}

// NewResumeHandler 创建简历解析接口；sweeper 可以为 nil
func NewResumeHandler(cfg *config.Config, analyzer DocumentAnalyzer, sweeper SweepTrigger) *ResumeHandler {
	h := &ResumeHandler{
		analyzer: analyzer,
		sweeper:  sweeper,
		timeout:  2 * time.Minute,
		logger:   logger.Named("resume_handler"),
	}
	if cfg != nil {
		h.timeout = config.GetDuration(cfg.Analysis.AnalysisTimeout, h.timeout)
		h.maxUploadBytes = int64(cfg.Server.MaxUploadMB) << 20
	}
	return h
}

// HandleParse 解析上传的简历
// 表单字段 file 为 PDF 或 DOCX 文件，options 为字段名的 JSON 数组，缺省时提取全部字段。
func (h *ResumeHandler) HandleParse(ctx context.Context, c *app.RequestContext) {
	if h.sweeper != nil {
		defer h.sweeper.TriggerAsync()
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "文件未找到"})
		return
	}
	if h.maxUploadBytes > 0 && fileHeader.Size > h.maxUploadBytes {
		c.JSON(consts.StatusRequestEntityTooLarge, utils.H{
			"error": fmt.Sprintf("文件大小超过限制 %d MB", h.maxUploadBytes>>20),
		})
		return
	}

	format, err := parser.ParseFormat(fileHeader.Filename)
	if err != nil {
		c.JSON(consts.StatusBadRequest, utils.H{"error": err.Error()})
		return
	}

	options, err := ParseOptions(c.PostForm("options"))
	if err != nil {
		c.JSON(consts.StatusBadRequest, utils.H{"error": err.Error()})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "打开文件失败"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(consts.StatusInternalServerError, utils.H{"error": "读取文件失败"})
		return
	}

	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := h.analyzer.AnalyzeDocument(ctx, types.Document{
		Name:   fileHeader.Filename,
		Format: format,
		Data:   data,
	}, options)
	if err != nil {
		status := StatusFor(err)
		h.logger.Error().
			Err(err).
			Str("filename", fileHeader.Filename).
			Int("status", status).
			Msg("简历解析失败")
		c.JSON(status, utils.H{"error": err.Error()})
		return
	}

	h.logger.Info().
		Str("filename", fileHeader.Filename).
		Strs("options", options).
		Int("field_errors", len(result.Errors)).
		Dur("duration", time.Since(start)).
		Msg("简历解析完成")
	c.JSON(consts.StatusOK, result)
}

// HandleFields 返回受支持的字段名
func (h *ResumeHandler) HandleFields(_ context.Context, c *app.RequestContext) {
	c.JSON(consts.StatusOK, utils.H{"fields": processor.FieldNames()})
}

// ParseOptions 解析字段名的 JSON 数组；为空时返回全部字段，包含未知字段时报错
func ParseOptions(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return processor.FieldNames(), nil
	}

	var options []string
	if err := json.Unmarshal([]byte(raw), &options); err != nil {
		return nil, fmt.Errorf("options 必须是字段名的 JSON 数组: %w", err)
	}
	for _, opt := range options {
		if !types.FieldName(strings.ToLower(strings.TrimSpace(opt))).IsValid() {
			return nil, fmt.Errorf("不支持的字段: %q，可选值: %s", opt, strings.Join(processor.FieldNames(), ", "))
		}
	}
	return options, nil
}

// StatusFor 将分析错误映射为 HTTP 状态码
func StatusFor(err error) int {
	switch {
	case errors.Is(err, processor.ErrUnsupportedFormat):
		return consts.StatusBadRequest
	case errors.Is(err, processor.ErrExtractionFailure):
		return consts.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return consts.StatusGatewayTimeout
	default:
		return consts.StatusInternalServerError
	}
}
