package parser_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-analyzer/internal/parser"
	"resume-analyzer/internal/types"
)

// MockCompleter 模拟语言模型问答
type MockCompleter struct {
	Answer  string
	Err     error
	Prompts []string
	PanicOn bool
}

func (m *MockCompleter) Complete(_ context.Context, prompt string) (string, error) {
	m.Prompts = append(m.Prompts, prompt)
	if m.PanicOn {
		panic("completer exploded")
	}
	return m.Answer, m.Err
}

func TestExtractEmailCascade(t *testing.T) {
	extractor := parser.NewContactExtractor()
	ctx := context.Background()

	tests := []struct {
		name string
		text string
		want string
	}{
		{"标签前缀", "Contact: Aries_aakash786@outlook.com", "Aries_aakash786@outlook.com"},
		{"尖括号", "<Aries_aakash786@outlook.com>", "Aries_aakash786@outlook.com"},
		{"结尾句号", "Aries_aakash786@outlook.com.", "Aries_aakash786@outlook.com"},
		{"冒号无空格", "Email:Aries_aakash786@outlook.com", "Aries_aakash786@outlook.com"},
		{"普通邮箱", "Mail me at jane.doe+cv@example.co.uk today", "jane.doe+cv@example.co.uk"},
		{"下划线优先于普通", "first a.b@site.org then john_smith@corp.io", "john_smith@corp.io"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractor.ExtractEmail(ctx, tt.text))
		})
	}
}

// TestExtractEmailTokenScan 正则无法匹配时退回到 token 扫描
func TestExtractEmailTokenScan(t *testing.T) {
	extractor := parser.NewContactExtractor()
	// 顶级域名只有一个字母，正则要求至少两个字母
	got := extractor.ExtractEmail(context.Background(), `reach "me@host.x"; thanks`)
	assert.Equal(t, "me@host.x", got)

	// "@" 之后没有 "." 的 token 不被接受
	assert.Equal(t, types.NotFound, extractor.ExtractEmail(context.Background(), "twitter @handle user@localhost"))
}

func TestExtractEmailLLMFallback(t *testing.T) {
	ctx := context.Background()

	t.Run("严格正则过滤模型回答", func(t *testing.T) {
		completer := &MockCompleter{Answer: "The email address is candidate@mail.com."}
		extractor := parser.NewContactExtractor(parser.WithEmailCompleter(completer))

		got := extractor.ExtractEmail(ctx, "no address here")
		assert.Equal(t, "candidate@mail.com", got)
		require.Len(t, completer.Prompts, 1)
		assert.Contains(t, completer.Prompts[0], "What is the email address")
		assert.Contains(t, completer.Prompts[0], "no address here")
	})

	t.Run("模型返回散文", func(t *testing.T) {
		completer := &MockCompleter{Answer: "I could not find any email address."}
		extractor := parser.NewContactExtractor(parser.WithEmailCompleter(completer))
		assert.Equal(t, types.NotFound, extractor.ExtractEmail(ctx, "nothing"))
	})

	t.Run("模型调用失败", func(t *testing.T) {
		completer := &MockCompleter{Err: errors.New("service unavailable")}
		extractor := parser.NewContactExtractor(parser.WithEmailCompleter(completer))
		assert.Equal(t, types.NotFound, extractor.ExtractEmail(ctx, "nothing"))
	})

	t.Run("正则命中时不调用模型", func(t *testing.T) {
		completer := &MockCompleter{Answer: "other@mail.com"}
		extractor := parser.NewContactExtractor(parser.WithEmailCompleter(completer))
		assert.Equal(t, "a@b.com", extractor.ExtractEmail(ctx, "a@b.com"))
		assert.Empty(t, completer.Prompts)
	})
}

func TestExtractPhone(t *testing.T) {
	extractor := parser.NewContactExtractor()

	tests := []struct {
		name string
		text string
		want string
	}{
		{"91前缀", "Phone 919876543210", "+91-98765-43210"},
		{"+91空格分隔", "Phone: +91 70949 87073", "+91-70949-87073"},
		{"+91连字符", "+91-9876543210", "+91-98765-43210"},
		{"+91分组连字符", "Mobile: +91-98765-43210.", "+91-98765-43210"},
		{"十位数字", "Call 9876543210", "98765-43210"},
		{"5+5分隔", "Mobile: 98765 43210", "98765-43210"},
		{"以91开头的十位数字", "9123456789", "91234-56789"},
		{"七位数字", "Ext 1234567", types.NotFound},
		{"无号码", "no digits", types.NotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractor.ExtractPhone(tt.text))
		})
	}
}

func TestFormatPhone(t *testing.T) {
	got, ok := parser.FormatPhone("+91 98765 43210")
	assert.True(t, ok)
	assert.Equal(t, "+91-98765-43210", got)

	_, ok = parser.FormatPhone("12345678901")
	assert.False(t, ok, "十一位无前缀号码应被跳过")
}

func TestExtractLinkedIn(t *testing.T) {
	extractor := parser.NewContactExtractor()

	assert.Equal(t, "https://www.linkedin.com/in/jane-doe", extractor.ExtractLinkedIn("linkedin.com/in/jane-doe"))
	assert.Equal(t, "https://www.linkedin.com/in/jane-doe", extractor.ExtractLinkedIn("https://www.LinkedIn.com/in/Jane-Doe/"))
	assert.Equal(t, "https://www.linkedin.com/profile/jd42", extractor.ExtractLinkedIn("see linkedin.com/profile/jd42"))
	assert.Equal(t, "https://www.linkedin.com/in/x1", extractor.ExtractLinkedIn("me@linkedin.com/in/x1"))
	assert.Equal(t, types.NotFound, extractor.ExtractLinkedIn("github.com/jane"))
}

func TestExtractContactInfo(t *testing.T) {
	extractor := parser.NewContactExtractor()
	text := parser.NormalizeText(`
		Jane Doe
		Email: jane_doe@example.com | Phone: +91 98765 43210
		linkedin.com/in/jane-doe
	`)

	info, err := extractor.Extract(context.Background(), text)
	require.NoError(t, err)
	assert.Equal(t, types.ContactInfo{
		Email:    "jane_doe@example.com",
		Phone:    "+91-98765-43210",
		LinkedIn: "https://www.linkedin.com/in/jane-doe",
	}, info)
}

// TestExtractContactInfoDegrades 提取过程出现异常时整体降级为 Error 标记
func TestExtractContactInfoDegrades(t *testing.T) {
	extractor := parser.NewContactExtractor(parser.WithEmailCompleter(&MockCompleter{PanicOn: true}))

	info, err := extractor.Extract(context.Background(), "nothing useful")
	require.Error(t, err)
	assert.Equal(t, types.ErrorContactInfo(), info)
}
