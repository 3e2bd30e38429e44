package processor

import (
	"strings"

	"resume-analyzer/internal/types"
)

// fieldQueries 各纯文本字段的固定检索问题，答案原样返回
var fieldQueries = map[types.FieldName]string{
	types.FieldEducation: `Extract all education information including:
- Degree/Certificate name
- Institution name
- Graduation year
- GPA (if mentioned)
- Major/Specialization
Please format as a list of educational experiences.`,

	types.FieldExperience: `Extract all work experiences including:
- Company name
- Position/Title
- Duration (start and end dates)
- Key responsibilities and achievements
Please format as a chronological list, starting with the most recent.`,

	types.FieldSkills: `Categorize the skills mentioned in the resume into:
- Technical Skills
- Soft Skills
- Languages
- Tools/Software
- Certifications
Please provide them as separate categories.`,

	types.FieldSummary: `Generate a concise professional summary that includes:
- Years of experience
- Key expertise areas
- Major achievements
- Career highlights
Limit to 3-4 sentences.`,

	types.FieldKeywords: `Extract the most important keywords from the resume that are relevant for:
- Job search
- Industry relevance
- Technical expertise
Please provide them as a list of keywords.`,
}

const nameQuery = `What is the person's full name from this resume?
Look for:
1. Name at the top/header of the resume
2. Name after 'Name:' or similar labels
3. Name in contact/personal information section
Return ONLY the name, nothing else. If no name is found, return 'Not found'.`

const locationQuery = `What is the person's current location/address from this resume?
Look for:
1. Address in contact information
2. City and state/country
3. Location mentioned with current position
Return ONLY the location, nothing else. If no location is found, return 'Not found'.`

// resolved 答案非空且不是 "not found"
func resolved(answer string) bool {
	a := strings.TrimSpace(answer)
	return a != "" && !strings.EqualFold(a, types.NotFound)
}

// parseFields 解析调用方请求的字段，去重并保持原有顺序，未知字段单独返回
func parseFields(options []string) (fields []types.FieldName, unknown []string) {
	seen := make(map[types.FieldName]bool, len(options))
	for _, opt := range options {
		f := types.FieldName(strings.ToLower(strings.TrimSpace(opt)))
		if !f.IsValid() {
			unknown = append(unknown, opt)
			continue
		}
		if seen[f] {
			continue
		}
		seen[f] = true
		fields = append(fields, f)
	}
	return fields, unknown
}

// indexFields 需要会话索引的字段，即除联系方式外的全部字段
func indexFields(fields []types.FieldName) []types.FieldName {
	var out []types.FieldName
	for _, f := range fields {
		if f != types.FieldContactInfo {
			out = append(out, f)
		}
	}
	return out
}

// FieldNames 返回所有受支持字段的名称
func FieldNames() []string {
	all := types.AllFields()
	names := make([]string, len(all))
	for i, f := range all {
		names[i] = string(f)
	}
	return names
}
