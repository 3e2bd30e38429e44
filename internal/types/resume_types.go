package types

import "strings"

// NotFound 字段未能解析时的占位值，与提取错误严格区分
const NotFound = "Not found"

// ErrorMarker 联系方式整体降级时各字段的取值
const ErrorMarker = "Error"

// FieldName 表示调用方可请求的分析字段
type FieldName string

const (
	// FieldContactInfo 联系方式（邮箱/电话/LinkedIn），直接基于规范化文本提取
	FieldContactInfo FieldName = "contact_info"
	// FieldPersonalInfo 个人信息（姓名/所在地）
	FieldPersonalInfo FieldName = "personal_info"
	// FieldEducation 教育经历
	FieldEducation FieldName = "education"
	// FieldExperience 工作经历
	FieldExperience FieldName = "experience"
	// FieldSkills 技能
	FieldSkills FieldName = "skills"
	// FieldSummary 个人总结
	FieldSummary FieldName = "summary"
	// FieldKeywords 关键词
	FieldKeywords FieldName = "keywords"
)

// AllFields 返回所有受支持的字段，顺序即默认提取顺序
func AllFields() []FieldName {
	return []FieldName{
		FieldContactInfo,
		FieldPersonalInfo,
		FieldEducation,
		FieldExperience,
		FieldSkills,
		FieldSummary,
		FieldKeywords,
	}
}

// IsValid 判断字段名是否受支持
func (f FieldName) IsValid() bool {
	for _, known := range AllFields() {
		if f == known {
			return true
		}
	}
	return false
}

// DocumentFormat 上传文档的格式
type DocumentFormat string

const (
	FormatPDF  DocumentFormat = "pdf"
	FormatDOCX DocumentFormat = "docx"
)

// Document 单次请求内的原始文档
type Document struct {
	Name   string         // 原始文件名，仅用于日志与解析器URI
	Format DocumentFormat // 声明的格式
	Data   []byte         // 原始字节
}

// ContactInfo 联系方式，各字段独立解析
type ContactInfo struct {
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	LinkedIn string `json:"linkedin"`
}

// ErrorContactInfo 联系方式提取整体失败时返回的降级结果
func ErrorContactInfo() ContactInfo {
	return ContactInfo{Email: ErrorMarker, Phone: ErrorMarker, LinkedIn: ErrorMarker}
}

// PersonalInfo 个人信息
type PersonalInfo struct {
	Name     string `json:"name"`
	Location string `json:"location"`
}

// Chunk 规范化文本的一个窗口
type Chunk struct {
	Index int    `json:"index"` // 在序列中的位置
	Start int    `json:"start"` // 在原文中的起始偏移（按字符计）
	Text  string `json:"text"`
}

// AnalysisResult 单份简历的分析结果，只填充调用方请求的字段
type AnalysisResult struct {
	ContactInfo  *ContactInfo  `json:"contact_info,omitempty"`
	PersonalInfo *PersonalInfo `json:"personal_info,omitempty"`
	Education    *string       `json:"education,omitempty"`
	Experience   *string       `json:"experience,omitempty"`
	Skills       *string       `json:"skills,omitempty"`
	Summary      *string       `json:"summary,omitempty"`
	Keywords     *string       `json:"keywords,omitempty"`

	// Errors 记录字段级错误的详细原因，键为字段名
	Errors map[FieldName]string `json:"errors,omitempty"`
}

// SetText 写入一个纯文本字段，未知字段忽略
func (r *AnalysisResult) SetText(field FieldName, value string) {
	v := value
	switch field {
	case FieldEducation:
		r.Education = &v
	case FieldExperience:
		r.Experience = &v
	case FieldSkills:
		r.Skills = &v
	case FieldSummary:
		r.Summary = &v
	case FieldKeywords:
		r.Keywords = &v
	}
}

// Text 读取一个纯文本字段
func (r *AnalysisResult) Text(field FieldName) (string, bool) {
	var p *string
	switch field {
	case FieldEducation:
		p = r.Education
	case FieldExperience:
		p = r.Experience
	case FieldSkills:
		p = r.Skills
	case FieldSummary:
		p = r.Summary
	case FieldKeywords:
		p = r.Keywords
	}
	if p == nil {
		return "", false
	}
	return *p, true
}

// SetError 记录字段级错误
func (r *AnalysisResult) SetError(field FieldName, err error) {
	if r.Errors == nil {
		r.Errors = make(map[FieldName]string)
	}
	r.Errors[field] = err.Error()
}

// FieldErrorValue 字段级错误在结果中的取值，可与 NotFound 区分
func FieldErrorValue(err error) string {
	return ErrorMarker + ": " + err.Error()
}

// IsFieldError 判断一个字段值是否为错误标记
func IsFieldError(value string) bool {
	return value == ErrorMarker || strings.HasPrefix(value, ErrorMarker+": ")
}
