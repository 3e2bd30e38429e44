package parser

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

const docxBodyPart = "word/document.xml"

// DocxExtractor 直接解析 DOCX 包中的 word/document.xml
type DocxExtractor struct{}

var _ TextExtractor = DocxExtractor{}

// ExtractText 按文档顺序输出段落；表格每行的单元格以 " | " 连接，各部分之间空一行
func (DocxExtractor) ExtractText(_ context.Context, data []byte, uri string) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: 无法打开DOCX压缩包 %s: %v", ErrExtractionFailure, uri, err)
	}

	var body *zip.File
	for _, f := range zr.File {
		if f.Name == docxBodyPart {
			body = f
			break
		}
	}
	if body == nil {
		return "", fmt.Errorf("%w: DOCX中缺少 %s", ErrExtractionFailure, docxBodyPart)
	}

	rc, err := body.Open()
	if err != nil {
		return "", fmt.Errorf("%w: 读取 %s 失败: %v", ErrExtractionFailure, docxBodyPart, err)
	}
	defer rc.Close()

	parts, err := docxParts(rc)
	if err != nil {
		return "", fmt.Errorf("%w: 解析 %s 失败: %v", ErrExtractionFailure, docxBodyPart, err)
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("%w: DOCX中没有文本内容", ErrExtractionFailure)
	}
	return strings.Join(parts, "\n\n"), nil
}

// docxParts 流式遍历 WordprocessingML，收集段落与表格行
func docxParts(r io.Reader) ([]string, error) {
	dec := xml.NewDecoder(r)

	var (
		parts      []string
		para       strings.Builder
		row, cell  []string
		tableDepth int
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "tbl":
				tableDepth++
			case "tr":
				if tableDepth == 1 {
					row = row[:0]
				}
			case "tc":
				if tableDepth == 1 {
					cell = cell[:0]
				}
			case "p":
				para.Reset()
			case "tab":
				para.WriteByte('\t')
			case "br", "cr":
				para.WriteByte(' ')
			case "t":
				var s string
				if err := dec.DecodeElement(&s, &t); err != nil {
					return nil, err
				}
				para.WriteString(s)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "p":
				text := strings.TrimSpace(para.String())
				para.Reset()
				if text == "" {
					continue
				}
				if tableDepth > 0 {
					cell = append(cell, text)
				} else {
					parts = append(parts, text)
				}
			case "tc":
				if tableDepth == 1 && len(cell) > 0 {
					row = append(row, strings.Join(cell, " "))
				}
			case "tr":
				if tableDepth == 1 && len(row) > 0 {
					parts = append(parts, strings.Join(row, " | "))
				}
			case "tbl":
				tableDepth--
			}
		}
	}
	return parts, nil
}
