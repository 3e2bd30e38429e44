package processor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"resume-analyzer/internal/logger"
	"resume-analyzer/internal/parser"
	"resume-analyzer/internal/rag"
	"resume-analyzer/internal/tracing"
	"resume-analyzer/internal/types"
)

// 定义tracer
var tracer = otel.Tracer("processor")

// Analyzer 简历分析流水线
// 联系方式直接从规范化文本提取，其余字段在一次性会话索引上检索问答。
type Analyzer struct {
	reader   DocumentReader
	contacts ContactExtractor
	chunker  Chunker
	qa       rag.QueryService
	sessions *SessionManager
	settings Settings
	logger   zerolog.Logger
}

// NewAnalyzer 创建分析器
// 未指定联系方式提取器时使用正则级联提取器，并以 qa 作为邮箱兜底。
func NewAnalyzer(qa rag.QueryService, sessions *SessionManager, options ...AnalyzerOption) *Analyzer {
	a := &Analyzer{
		qa:       qa,
		sessions: sessions,
		settings: DefaultSettings(),
		logger:   logger.Named("analyzer"),
	}
	for _, option := range options {
		option(a)
	}

	if a.contacts == nil {
		a.contacts = parser.NewContactExtractor(parser.WithEmailCompleter(qa))
	}
	if a.chunker == nil {
		a.chunker, _ = parser.NewWindowChunker(parser.DefaultChunkSize, parser.DefaultChunkOverlap)
	}
	if a.settings.TopK <= 0 {
		a.settings.TopK = DefaultSettings().TopK
	}
	return a
}

// fieldOutcome 单个字段的提取结果
type fieldOutcome struct {
	field    types.FieldName
	text     string
	personal *types.PersonalInfo
	err      error
}

func (o fieldOutcome) apply(r *types.AnalysisResult) {
	if o.field == types.FieldPersonalInfo {
		info := o.personal
		if info == nil {
			v := fieldErrorValue(o.err)
			info = &types.PersonalInfo{Name: v, Location: v}
		}
		r.PersonalInfo = info
	} else if o.err != nil {
		r.SetText(o.field, fieldErrorValue(o.err))
	} else {
		r.SetText(o.field, o.text)
	}
	if o.err != nil {
		r.SetError(o.field, o.err)
	}
}

// attributes 写入 span 的答案摘要，姓名与所在地经过掩码
func (o fieldOutcome) attributes() []attribute.KeyValue {
	if o.err != nil {
		return nil
	}
	if o.personal != nil {
		return []attribute.KeyValue{
			attribute.String("analysis.answer.name", tracing.SafeAttributeValue("name", o.personal.Name, tracing.DefaultMaxLength)),
			attribute.String("analysis.answer.location", tracing.SafeAttributeValue("location", o.personal.Location, tracing.DefaultMaxLength)),
		}
	}
	key := "analysis.answer." + string(o.field)
	return []attribute.KeyValue{attribute.String(key, tracing.SafeAttributeValue(key, o.text, tracing.DefaultMaxLength))}
}

// AnalyzeDocument 读取文档后分析
// 格式不受支持或文档无法读取时整体失败，其余错误都收敛到字段上。
func (a *Analyzer) AnalyzeDocument(ctx context.Context, doc types.Document, options []string) (*types.AnalysisResult, error) {
	if a.reader == nil {
		return nil, NewReadError(doc.Name, fmt.Errorf("%w: 未配置文档读取器", ErrExtractionFailure))
	}
	text, err := a.reader.Read(ctx, doc)
	if err != nil {
		return nil, NewReadError(doc.Name, err)
	}
	return a.Analyze(ctx, text, options)
}

// Analyze 分析简历文本，只填充 options 中请求的字段
// 未知字段名被忽略；仅在上下文已结束时返回错误。
func (a *Analyzer) Analyze(ctx context.Context, text string, options []string) (*types.AnalysisResult, error) {
	ctx, span := tracer.Start(ctx, "Analyzer.Analyze")
	defer span.End()

	if err := ctx.Err(); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeTimeout)
		return nil, err
	}

	fields, unknown := parseFields(options)
	if len(unknown) > 0 {
		a.logger.Warn().Strs("unknown", unknown).Msg("忽略未知的分析字段")
	}
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = string(f)
	}
	span.SetAttributes(
		attribute.StringSlice("analysis.fields", names),
		attribute.Int("analysis.text_length", len(text)),
	)

	start := time.Now()
	normalized := parser.NormalizeText(text)
	result := &types.AnalysisResult{}

	for _, f := range fields {
		if f == types.FieldContactInfo {
			a.extractContact(ctx, normalized, result)
		}
	}

	if idx := indexFields(fields); len(idx) > 0 {
		a.analyzeWithSession(ctx, normalized, idx, result)
	}

	span.SetAttributes(attribute.Int("analysis.field_errors", len(result.Errors)))
	span.SetStatus(codes.Ok, "")
	a.logger.Info().
		Strs("fields", names).
		Int("field_errors", len(result.Errors)).
		Dur("duration", time.Since(start)).
		Msg("简历分析完成")
	return result, nil
}

func (a *Analyzer) extractContact(ctx context.Context, text string, result *types.AnalysisResult) {
	info, err := a.contacts.Extract(ctx, text)
	result.ContactInfo = &info
	if err != nil {
		result.SetError(types.FieldContactInfo, NewFieldError("", types.FieldContactInfo, err))
	}
}

// analyzeWithSession 在会话索引上提取字段，任何退出路径都会清理会话
func (a *Analyzer) analyzeWithSession(ctx context.Context, text string, fields []types.FieldName, result *types.AnalysisResult) {
	session, err := a.sessions.Open(ctx)
	if err != nil {
		a.logger.Error().Err(err).Msg("分析会话创建失败")
		failFields(result, fields, err)
		return
	}
	defer func() {
		// 清理错误已由会话管理器记录，不影响分析结果
		_ = a.sessions.Close(context.WithoutCancel(ctx), session)
	}()

	chunks := a.chunker.Split(text)
	handle, err := a.qa.Index(ctx, chunks, session.Namespace)
	if err != nil {
		err = NewSessionError(session.ID, err)
		a.logger.Error().Err(err).Int("chunks", len(chunks)).Msg("会话索引构建失败")
		failFields(result, fields, err)
		return
	}
	session.Handle = handle

	outcomes := make([]fieldOutcome, len(fields))
	if a.settings.ParallelFields {
		var g errgroup.Group
		for i, f := range fields {
			g.Go(func() error {
				outcomes[i] = a.extractField(ctx, session, f)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i, f := range fields {
			outcomes[i] = a.extractField(ctx, session, f)
		}
	}

	for _, o := range outcomes {
		o.apply(result)
	}
}

func (a *Analyzer) extractField(ctx context.Context, session *Session, field types.FieldName) fieldOutcome {
	ctx, span := tracer.Start(ctx, "Analyzer.extract."+string(field))
	defer span.End()
	span.SetAttributes(attribute.String("session.id", session.ID))

	var out fieldOutcome
	if field == types.FieldPersonalInfo {
		out = a.extractPersonalInfo(ctx, session)
	} else {
		out = fieldOutcome{field: field}
		answer, err := a.qa.Query(ctx, session.Handle, fieldQueries[field], a.settings.TopK)
		if err != nil {
			out.err = NewFieldError(session.ID, field, err)
		} else {
			out.text = answer
		}
	}

	if out.err != nil {
		errType := tracing.ErrorTypeLLM
		if errors.Is(out.err, ErrRateLimited) {
			errType = tracing.ErrorTypeRateLimit
		}
		tracing.RecordErrorWithInfo(span, out.err, errType, attribute.String("analysis.field", string(field)))
		a.logger.Warn().Err(out.err).Str("field", string(field)).Msg("字段提取失败")
	} else {
		span.SetAttributes(out.attributes()...)
		span.SetStatus(codes.Ok, "")
	}
	return out
}

// extractPersonalInfo 姓名和所在地各自检索，答案为空或 "not found" 时重试
func (a *Analyzer) extractPersonalInfo(ctx context.Context, session *Session) fieldOutcome {
	ask := func(what, query string) (string, error) {
		answer, attempts, err := Retry(ctx, a.settings.PersonalInfoAttempts,
			func(ctx context.Context, attempt int) (string, error) {
				return a.qa.Query(ctx, session.Handle, query, a.settings.TopK)
			}, resolved)
		a.logger.Debug().Str("item", what).Int("attempts", attempts).Err(err).Msg("个人信息检索结束")

		if errors.Is(err, ErrExhausted) {
			return types.NotFound, nil
		}
		if err != nil {
			return "", fmt.Errorf("%s: %w", what, err)
		}
		return strings.TrimSpace(answer), nil
	}

	name, nameErr := ask("name", nameQuery)
	location, locErr := ask("location", locationQuery)

	info := &types.PersonalInfo{Name: name, Location: location}
	if nameErr != nil {
		info.Name = types.FieldErrorValue(nameErr)
	}
	if locErr != nil {
		info.Location = types.FieldErrorValue(locErr)
	}

	out := fieldOutcome{field: types.FieldPersonalInfo, personal: info}
	if err := errors.Join(nameErr, locErr); err != nil {
		out.err = NewFieldError(session.ID, types.FieldPersonalInfo, err)
	}
	return out
}

// failFields 会话级失败：所有索引字段都标记为错误
func failFields(result *types.AnalysisResult, fields []types.FieldName, err error) {
	for _, f := range fields {
		fieldOutcome{field: f, err: err}.apply(result)
	}
}
