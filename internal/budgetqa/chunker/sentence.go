package chunker

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// dotMark 临时替换缩写中的句点，切分后还原。
const dotMark = "\uE000"

var abbreviations = []*regexp.Regexp{
	regexp.MustCompile(`\bDr\.`),
	regexp.MustCompile(`\bMr\.`),
	regexp.MustCompile(`\bMrs\.`),
	regexp.MustCompile(`\bMs\.`),
	regexp.MustCompile(`\bNo\.`),
	regexp.MustCompile(`\bvs\.`),
	regexp.MustCompile(`\betc\.`),
	regexp.MustCompile(`\bi\.e\.`),
	regexp.MustCompile(`\be\.g\.`),
}

func protect(text string) string {
	for _, re := range abbreviations {
		text = re.ReplaceAllStringFunc(text, func(m string) string {
			return strings.ReplaceAll(m, ".", dotMark)
		})
	}
	return text
}

// SplitSentences 按句末标点切分句子：'.', '!', '?' 之后跟空白，
// 且空白之后是大写字母或数字时切分。常见缩写不会被误切。
func SplitSentences(text string) []string {
	text = protect(text)

	var (
		out   []string
		start int
	)
	emit := func(s string) {
		s = strings.TrimSpace(strings.ReplaceAll(s, dotMark, "."))
		if s != "" {
			out = append(out, s)
		}
	}

	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		end := i + size
		if r != '.' && r != '!' && r != '?' {
			i = end
			continue
		}

		j := end
		for j < len(text) {
			ws, wsize := utf8.DecodeRuneInString(text[j:])
			if !unicode.IsSpace(ws) {
				break
			}
			j += wsize
		}
		if j > end && j < len(text) && isSentenceStart(text[j]) {
			emit(text[start:end])
			start = j
		}
		i = j
	}
	emit(text[start:])
	return out
}

func isSentenceStart(b byte) bool {
	return (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}
