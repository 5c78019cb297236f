package store

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Matches 判断元数据 doc 是否包含过滤条件 filter。
//
// 对象按键递归比较；数组要求 filter 中的每个元素都能在 doc 数组中找到包含它的元素；
// 标量要求相等，doc 为数组时要求数组中存在相等的元素。数值统一按 float64 比较。
func Matches(doc, filter map[string]any) bool {
	return contains(doc, filter)
}

func contains(have, want any) bool {
	switch w := want.(type) {
	case nil:
		return have == nil
	case map[string]any:
		h, ok := have.(map[string]any)
		if !ok {
			return false
		}
		for k, wv := range w {
			hv, ok := h[k]
			if !ok || !contains(hv, wv) {
				return false
			}
		}
		return true
	case []string:
		return contains(have, stringsToAny(w))
	case []any:
		h, ok := asSlice(have)
		if !ok {
			return false
		}
		for _, we := range w {
			if !anyContains(h, we) {
				return false
			}
		}
		return true
	}

	if h, ok := asSlice(have); ok {
		return anyContains(h, want)
	}
	return scalarEqual(have, want)
}

func anyContains(list []any, want any) bool {
	for _, item := range list {
		if contains(item, want) {
			return true
		}
	}
	return false
}

func asSlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case []string:
		return stringsToAny(s), true
	}
	return nil, false
}

func stringsToAny(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

func scalarEqual(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	return a == b
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

var exprKey = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// buildExpr 将过滤条件中可下推的部分翻译为 Milvus JSON 字段表达式。
// complete 为 false 表示部分条件无法下推，需要由调用方在结果上再次过滤。
func buildExpr(field string, filter map[string]any) (expr string, complete bool) {
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	complete = true
	var parts []string
	for _, k := range keys {
		if !exprKey.MatchString(k) {
			complete = false
			continue
		}
		target := fmt.Sprintf("%s[%q]", field, k)
		switch v := filter[k].(type) {
		case []string:
			parts = append(parts, containsAllExpr(target, stringsToAny(v)))
		case []any:
			if !allScalars(v) {
				complete = false
				continue
			}
			parts = append(parts, containsAllExpr(target, v))
		default:
			lit, ok := literal(v)
			if !ok {
				complete = false
				continue
			}
			parts = append(parts, fmt.Sprintf("(%s == %s or json_contains(%s, %s))", target, lit, target, lit))
		}
	}
	return strings.Join(parts, " and "), complete
}

func containsAllExpr(target string, values []any) string {
	lits := make([]string, 0, len(values))
	for _, v := range values {
		lit, _ := literal(v)
		lits = append(lits, lit)
	}
	return fmt.Sprintf("json_contains_all(%s, [%s])", target, strings.Join(lits, ", "))
}

func allScalars(values []any) bool {
	for _, v := range values {
		if _, ok := literal(v); !ok {
			return false
		}
	}
	return true
}

func literal(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return strconv.Quote(x), true
	case bool:
		return strconv.FormatBool(x), true
	}
	if f, ok := toFloat(v); ok {
		return strconv.FormatFloat(f, 'f', -1, 64), true
	}
	return "", false
}
