package parser

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"resume-analyzer/internal/logger"
	"resume-analyzer/internal/tracing"
	"resume-analyzer/internal/types"
)

// Completer 直接向语言模型发起一次问答，用于邮箱提取的最后兜底
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// matcher 一个提取策略：命中返回规范化后的值
type matcher func(text string) (string, bool)

// firstMatch 依次执行策略，第一个命中的结果胜出
func firstMatch(text string, matchers []matcher) (string, bool) {
	for _, m := range matchers {
		if v, ok := m(text); ok {
			return v, true
		}
	}
	return "", false
}

var (
	// 邮箱正则按精确度从高到低排列，越靠前越严格
	emailPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)[A-Za-z]+_[A-Za-z0-9]+@outlook\.com`),
		regexp.MustCompile(`(?i)\w+_\w+@[\w.-]+\.[A-Za-z]{2,}`),
		regexp.MustCompile(`(?i)[\w._+-]+@[\w.-]+\.[A-Za-z]{2,}`),
	}

	// strictEmailPattern 用于过滤语言模型返回的文本，避免把整句话当作邮箱
	strictEmailPattern = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)

	phonePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\+91[-\s]*\d{5}[-\s]*\d{5}`),
		regexp.MustCompile(`\+91[-\s]*\d{10}`),
		regexp.MustCompile(`91[-\s]*\d{10}`),
		regexp.MustCompile(`\b\d{5}[-\s]*\d{5}\b`),
		regexp.MustCompile(`\b\d{10}\b`),
	}

	linkedinPatterns = []struct {
		kind    string
		pattern *regexp.Regexp
	}{
		{"in", regexp.MustCompile(`(?i)linkedin\.com/in/([\w-]+)/?`)},
		{"profile", regexp.MustCompile(`(?i)linkedin\.com/profile/([\w-]+)/?`)},
		{"in", regexp.MustCompile(`(?i)@linkedin\.com/in/([\w-]+)/?`)},
	}
)

// emailTokenTrim 在 token 扫描时需要从两端剥离的字符
const emailTokenTrim = ".,;:()[]{}\"' \t"

const emailPrompt = `What is the email address in this text?
Look for patterns like xxx@xxx.xxx or anything containing @ symbol.
Return only the email address without any additional text.

Text: `

// ContactExtractor 联系方式提取器
// 每个字段由一组有序策略组成，依次尝试，第一个命中的策略胜出。
type ContactExtractor struct {
	emailMatchers    []matcher
	phoneMatchers    []matcher
	linkedinMatchers []matcher
	completer        Completer
	logger           zerolog.Logger
}

// ContactOption 联系方式提取器的配置选项
type ContactOption func(*ContactExtractor)

// WithEmailCompleter 配置邮箱提取的语言模型兜底
func WithEmailCompleter(c Completer) ContactOption {
	return func(e *ContactExtractor) {
		e.completer = c
	}
}

// WithContactLogger 配置自定义日志记录器
func WithContactLogger(l zerolog.Logger) ContactOption {
	return func(e *ContactExtractor) {
		e.logger = l
	}
}

// NewContactExtractor 创建联系方式提取器
func NewContactExtractor(options ...ContactOption) *ContactExtractor {
	e := &ContactExtractor{
		logger: logger.Named("contact_extractor"),
	}
	for _, p := range emailPatterns {
		e.emailMatchers = append(e.emailMatchers, regexMatcher(p))
	}
	e.emailMatchers = append(e.emailMatchers, scanEmailTokens)
	for _, p := range phonePatterns {
		e.phoneMatchers = append(e.phoneMatchers, phoneMatcher(p))
	}
	for _, lp := range linkedinPatterns {
		e.linkedinMatchers = append(e.linkedinMatchers, linkedinMatcher(lp.kind, lp.pattern))
	}

	for _, option := range options {
		option(e)
	}
	return e
}

// Extract 从规范化文本中提取联系方式
// 提取过程中的异常不会向上传播：整体降级为 Error 标记，并通过 error 返回原因。
func (e *ContactExtractor) Extract(ctx context.Context, text string) (info types.ContactInfo, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("提取联系方式异常: %v", r)
			e.logger.Error().Err(err).Msg("联系方式提取失败，返回降级结果")
			info = types.ErrorContactInfo()
		}
	}()

	e.logger.Debug().Int("text_length", len(text)).Msg("开始提取联系方式")

	info = types.ContactInfo{
		Email:    e.ExtractEmail(ctx, text),
		Phone:    e.ExtractPhone(text),
		LinkedIn: e.ExtractLinkedIn(text),
	}

	e.logger.Info().
		Str("email", tracing.MaskPII(info.Email)).
		Str("phone", tracing.MaskPII(info.Phone)).
		Str("linkedin", info.LinkedIn).
		Msg("联系方式提取完成")
	return info, nil
}

// ExtractEmail 提取邮箱：正则级联 -> token 扫描 -> 语言模型兜底
func (e *ContactExtractor) ExtractEmail(ctx context.Context, text string) string {
	if email, ok := firstMatch(text, e.emailMatchers); ok {
		return email
	}

	if e.completer == nil || strings.TrimSpace(text) == "" {
		return types.NotFound
	}

	e.logger.Debug().Msg("正则与扫描均未找到邮箱，尝试语言模型")
	answer, err := e.completer.Complete(ctx, emailPrompt+text)
	if err != nil {
		e.logger.Warn().Err(err).Msg("语言模型提取邮箱失败")
		return types.NotFound
	}
	if email := strictEmailPattern.FindString(answer); email != "" {
		return email
	}
	return types.NotFound
}

// ExtractPhone 提取并格式化电话号码
func (e *ContactExtractor) ExtractPhone(text string) string {
	if phone, ok := firstMatch(text, e.phoneMatchers); ok {
		return phone
	}
	return types.NotFound
}

// ExtractLinkedIn 提取 LinkedIn 地址并规范化为 https://www.linkedin.com/... 形式
func (e *ContactExtractor) ExtractLinkedIn(text string) string {
	if url, ok := firstMatch(text, e.linkedinMatchers); ok {
		return url
	}
	return types.NotFound
}

func regexMatcher(p *regexp.Regexp) matcher {
	return func(text string) (string, bool) {
		m := p.FindString(text)
		if m == "" {
			return "", false
		}
		return strings.TrimSpace(m), true
	}
}

// scanEmailTokens 按空白切分，接受 "@" 之后含有 "." 的 token
func scanEmailTokens(text string) (string, bool) {
	for _, token := range strings.Fields(text) {
		if !strings.Contains(token, "@") {
			continue
		}
		candidate := strings.Trim(token, emailTokenTrim)
		_, domain, found := strings.Cut(candidate, "@")
		if !found {
			continue
		}
		if i := strings.IndexByte(domain, '@'); i >= 0 {
			domain = domain[:i]
		}
		if strings.Contains(domain, ".") {
			return candidate, true
		}
	}
	return "", false
}

func phoneMatcher(p *regexp.Regexp) matcher {
	return func(text string) (string, bool) {
		m := p.FindString(text)
		if m == "" {
			return "", false
		}
		return FormatPhone(m)
	}
}

// FormatPhone 按号码前缀格式化；位数不符合时返回 false，由下一个策略继续尝试
func FormatPhone(raw string) (string, bool) {
	var b strings.Builder
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == '+' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	switch {
	case strings.HasPrefix(digits, "+91") && len(digits) == 13:
		return "+91-" + digits[3:8] + "-" + digits[8:], true
	case strings.HasPrefix(digits, "91") && len(digits) == 12:
		return "+91-" + digits[2:7] + "-" + digits[7:], true
	case len(digits) == 10 && !strings.HasPrefix(digits, "+"):
		return digits[:5] + "-" + digits[5:], true
	}
	return "", false
}

func linkedinMatcher(kind string, p *regexp.Regexp) matcher {
	return func(text string) (string, bool) {
		m := p.FindStringSubmatch(text)
		if m == nil {
			return "", false
		}
		return "https://www.linkedin.com/" + kind + "/" + strings.ToLower(m[1]), true
	}
}
