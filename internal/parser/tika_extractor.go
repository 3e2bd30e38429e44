package parser

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"resume-analyzer/internal/logger"
	"resume-analyzer/internal/types"
)

// tikaContentTypes 各格式上传给Tika时使用的Content-Type
var tikaContentTypes = map[types.DocumentFormat]string{
	types.FormatPDF:  "application/pdf",
	types.FormatDOCX: "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// TikaExtractor 是基于Apache Tika服务器的文本提取器
// 请求XHTML输出，再按段落与表格行还原出带行结构的纯文本。
type TikaExtractor struct {
	// Tika服务器地址，例如 http://localhost:9998
	ServerURL string
	// HTTP客户端，可配置超时等参数
	Client *http.Client
	// 上传时声明的文档格式
	format types.DocumentFormat
	// 是否提取链接注释文本
	extractAnnotations bool
	logger             zerolog.Logger
}

// TikaOption 定义配置选项函数
type TikaOption func(*TikaExtractor)

// WithAnnotations 配置是否提取PDF链接注释文本
func WithAnnotations(extract bool) TikaOption {
	return func(e *TikaExtractor) {
		e.extractAnnotations = extract
	}
}

// WithTikaLogger 配置自定义日志记录器
func WithTikaLogger(l zerolog.Logger) TikaOption {
	return func(e *TikaExtractor) {
		e.logger = l
	}
}

// WithTimeout 配置HTTP客户端超时时间
func WithTimeout(timeout time.Duration) TikaOption {
	return func(e *TikaExtractor) {
		e.Client.Timeout = timeout
	}
}

// 确保TikaExtractor实现了TextExtractor接口
var _ TextExtractor = (*TikaExtractor)(nil)

// NewTikaExtractor 创建一个新的Tika提取器
func NewTikaExtractor(serverURL string, format types.DocumentFormat, options ...TikaOption) *TikaExtractor {
	extractor := &TikaExtractor{
		ServerURL:          strings.TrimRight(serverURL, "/"),
		Client:             &http.Client{Timeout: 60 * time.Second}, // 设置60秒超时
		format:             format,
		extractAnnotations: true, // 默认提取注释文本，LinkedIn 链接常出现在注释中
		logger:             logger.Named("tika"),
	}

	// 应用选项
	for _, option := range options {
		option(extractor)
	}

	return extractor
}

// ExtractText 将文档上传到Tika并解析返回的XHTML
func (e *TikaExtractor) ExtractText(ctx context.Context, data []byte, uri string) (string, error) {
	startTime := time.Now()

	contentType, ok := tikaContentTypes[e.format]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, e.format)
	}

	// 构建请求URL - XHTML模式，保留段落与表格结构
	url := fmt.Sprintf("%s/tika", e.ServerURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("创建HTTP请求失败: %w", err)
	}

	// 设置头信息
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "text/html")
	if uri != "" {
		req.Header.Set("X-Tika-Resource-Name", uri)
	}
	if !e.extractAnnotations {
		req.Header.Set("X-Tika-PDFExtractAnnotationText", "false")
	}

	resp, err := e.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("发送请求到Tika服务器失败: %w", err)
	}
	defer resp.Body.Close()

	// 422 表示文档本身无法解析
	if resp.StatusCode == http.StatusUnprocessableEntity {
		return "", fmt.Errorf("%w: tika无法解析文档 (URI: %s)", ErrExtractionFailure, uri)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("tika服务器返回错误状态码: %d, 响应: %s", resp.StatusCode, string(body))
	}

	text, err := HTMLToText(resp.Body)
	if err != nil {
		return "", fmt.Errorf("解析Tika响应失败: %w", err)
	}

	e.logger.Debug().
		Str("uri", uri).
		Str("format", string(e.format)).
		Int("text_length", len(text)).
		Dur("duration", time.Since(startTime)).
		Msg("Tika文本提取完成")
	return text, nil
}

// HTMLToText 将XHTML还原为按行组织的纯文本
// 段落、标题与列表项各占一行；表格每行的单元格以 " | " 连接。
func HTMLToText(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", err
	}

	var lines []string
	doc.Find("p, h1, h2, h3, h4, h5, h6, li, tr").Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s) == "tr" {
			var cells []string
			s.ChildrenFiltered("td, th").Each(func(_ int, cell *goquery.Selection) {
				if text := collapse(cell.Text()); text != "" {
					cells = append(cells, text)
				}
			})
			if len(cells) > 0 {
				lines = append(lines, strings.Join(cells, " | "))
			}
			return
		}
		// 单元格内的段落已随所在行输出
		if s.ParentsFiltered("td, th").Length() > 0 {
			return
		}
		if text := collapse(s.Text()); text != "" {
			lines = append(lines, text)
		}
	})

	if len(lines) == 0 {
		// 没有结构化标签时退回到正文全文
		return strings.TrimSpace(doc.Find("body").Text()), nil
	}
	return strings.Join(lines, "\n"), nil
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
