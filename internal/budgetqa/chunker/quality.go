package chunker

import (
	"math"
	"strings"
	"unicode"
	"unicode/utf8"
)

// QualityScore 计算分块质量分（0-1），仅依赖文本本身。
// 过短或过长、字母占比过低、平均词长异常都会降低分数，含数字略加分。
func QualityScore(text string) float64 {
	if text == "" {
		return 0
	}

	score := 1.0
	words := strings.Fields(text)
	switch n := len(words); {
	case n < 20:
		score *= 0.5
	case n < 50:
		score *= 0.8
	case n > 600:
		score *= 0.9
	}

	var letters, digits int
	for _, r := range text {
		if unicode.IsLetter(r) {
			letters++
		}
		if unicode.IsDigit(r) {
			digits++
		}
	}
	if float64(letters)/float64(utf8.RuneCountInString(text)) < 0.4 {
		score *= 0.6
	}
	if digits > 0 {
		score = math.Min(1.0, score*1.1)
	}

	if len(words) > 0 {
		var total int
		for _, w := range words {
			total += utf8.RuneCountInString(w)
		}
		avg := float64(total) / float64(len(words))
		if avg < 2 || avg > 20 {
			score *= 0.7
		}
	}

	score = math.Max(0, math.Min(1, score))
	return math.Round(score*1000) / 1000
}
