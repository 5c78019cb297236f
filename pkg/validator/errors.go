package validator

import "strings"

// FieldError 单个字段的校验失败，Message 已按请求语言翻译。
type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message"`
}

// ValidationErrors 一次校验的全部失败项，保持 validator 报告的顺序。
type ValidationErrors struct {
	Errors []FieldError `json:"errors"`
}

func (v *ValidationErrors) empty() bool {
	return v == nil || len(v.Errors) == 0
}

func (v *ValidationErrors) Error() string {
	if v.empty() {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("validation failed: ")
	for i, fe := range v.Errors {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(fe.Message)
	}
	return sb.String()
}

// First 返回第一条消息，用作响应的 message。
func (v *ValidationErrors) First() string {
	if v.empty() {
		return ""
	}
	return v.Errors[0].Message
}

// ByField 按字段归组消息。
func (v *ValidationErrors) ByField() map[string][]string {
	out := map[string][]string{}
	if v.empty() {
		return out
	}
	for _, fe := range v.Errors {
		out[fe.Field] = append(out[fe.Field], fe.Message)
	}
	return out
}
