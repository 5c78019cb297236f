// Package tagger 基于关键词词典为分块打上主题、用户类型、行业与收入区间标签。
package tagger

import (
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/kart-io/logger"

	"github.com/kart-io/budgetqa/internal/model"
)

// PipelineVersion 标注流水线版本，写入每个分块的元数据。
const PipelineVersion = "v1.0"

const topKeywords = 10

var wordPattern = regexp.MustCompile(`\b[a-z]{3,}\b`)

var stopWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`the be to of and a in that have i it for not on with he as you do at
		this but his by from they we say her she or an will my one all would there their
		is are was were been has had can may shall`) {
		stopWords[w] = struct{}{}
	}
}

// Tagger 规则标注器。创建后只读，可并发使用。
type Tagger struct {
	dict *Dictionaries
	now  func() time.Time
}

// Option 标注器选项。
type Option func(*Tagger)

// WithClock 替换时间来源，用于生成 created_at。
func WithClock(now func() time.Time) Option {
	return func(t *Tagger) { t.now = now }
}

// New 创建标注器，dict 为 nil 时使用内置词典。
func New(dict *Dictionaries, opts ...Option) (*Tagger, error) {
	if dict == nil {
		dict = DefaultDictionaries()
	}
	if err := dict.Validate(); err != nil {
		return nil, err
	}
	t := &Tagger{dict: dict, now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Tag 为一段文本生成元数据。除 created_at 外结果只依赖输入文本。
func (t *Tagger) Tag(text string) model.ChunkMetadata {
	lower := strings.ToLower(text)

	topics := t.hierarchical(match(lower, t.dict.Topics))
	if len(topics) == 0 {
		topics = []model.Topic{{Main: "General", Sub: "Uncategorized"}}
	}

	incomes := match(lower, t.dict.IncomeRanges)
	sort.Strings(incomes)

	return model.ChunkMetadata{
		Topics:          topics,
		UserTypes:       match(lower, t.dict.UserTypes),
		Sectors:         match(lower, t.dict.Sectors),
		IncomeRanges:    incomes,
		Keywords:        Keywords(lower, topKeywords),
		PipelineVersion: PipelineVersion,
		CreatedAt:       t.now().UTC().Format(time.RFC3339),
	}
}

// TagChunks 为一组分块附加元数据，输出顺序与输入一致。
func (t *Tagger) TagChunks(chunks []model.TextChunk) []model.TaggedChunk {
	logger.Infow("Tagging chunks with metadata", "chunk_count", len(chunks))

	out := make([]model.TaggedChunk, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, model.TaggedChunk{TextChunk: c, Metadata: t.Tag(c.Text)})
	}
	return out
}

func (t *Tagger) hierarchical(keys []string) []model.Topic {
	topics := make([]model.Topic, 0, len(keys))
	for _, k := range keys {
		if topic, ok := t.dict.Hierarchy[k]; ok {
			topics = append(topics, topic)
			continue
		}
		topics = append(topics, model.Topic{Main: "General", Sub: titleize(k)})
	}
	return topics
}

// match 返回命中的类别，每个类别最多出现一次。
func match(lower string, entries []Entry) []string {
	matched := []string{}
	for _, e := range entries {
		for _, kw := range e.Keywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				matched = append(matched, e.Key)
				break
			}
		}
	}
	return matched
}

// Keywords 按词频降序取前 n 个关键词，词频相同时按首次出现顺序。
func Keywords(text string, n int) []string {
	words := wordPattern.FindAllString(strings.ToLower(text), -1)

	freq := make(map[string]int)
	var order []string
	for _, w := range words {
		if len(w) <= 3 {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		if freq[w] == 0 {
			order = append(order, w)
		}
		freq[w]++
	}

	sort.SliceStable(order, func(i, j int) bool {
		return freq[order[i]] > freq[order[j]]
	})
	if len(order) > n {
		order = order[:n]
	}
	if order == nil {
		return []string{}
	}
	return order
}

func titleize(key string) string {
	parts := strings.Fields(strings.ReplaceAll(key, "_", " "))
	for i, p := range parts {
		r := []rune(strings.ToLower(p))
		r[0] = unicode.ToUpper(r[0])
		parts[i] = string(r)
	}
	return strings.Join(parts, " ")
}
