// Package metrics 收集问答与导入流程的业务指标，并以 Prometheus 文本格式导出。
package metrics

import (
	"fmt"
	"math"
	"strings"
	"sync/atomic"
	"time"
)

// Metrics 业务指标。所有方法并发安全，nil 接收者上的记录调用为空操作。
type Metrics struct {
	queriesTotal atomic.Uint64
	cacheHits    atomic.Uint64
	cacheMisses  atomic.Uint64

	retrievalTotal    atomic.Uint64
	retrievalErrors   atomic.Uint64
	retrievalEmpty    atomic.Uint64
	retrievalDuration atomicFloat

	llmCalls     atomic.Uint64
	llmErrors    atomic.Uint64
	llmRetries   atomic.Uint64
	llmFallbacks atomic.Uint64
	llmDuration  atomicFloat

	breakerOpens atomic.Uint64

	documentsIngested atomic.Uint64
	documentsSkipped  atomic.Uint64
	documentsFailed   atomic.Uint64
	chunksIngested    atomic.Uint64
	chunksFailed      atomic.Uint64

	startTime time.Time
}

// New 创建指标实例。
func New() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// atomicFloat 以 CAS 累加的 float64。
type atomicFloat struct {
	bits atomic.Uint64
}

func (f *atomicFloat) Add(v float64) {
	for {
		old := f.bits.Load()
		if f.bits.CompareAndSwap(old, math.Float64bits(math.Float64frombits(old)+v)) {
			return
		}
	}
}

func (f *atomicFloat) Load() float64 {
	return math.Float64frombits(f.bits.Load())
}

// RecordQuery 记录一次问答请求。
func (m *Metrics) RecordQuery(cacheHit bool) {
	if m == nil {
		return
	}
	m.queriesTotal.Add(1)
	if cacheHit {
		m.cacheHits.Add(1)
	} else {
		m.cacheMisses.Add(1)
	}
}

// RecordRetrieval 记录一次检索，hits 为命中数。
func (m *Metrics) RecordRetrieval(d time.Duration, hits int, err error) {
	if m == nil {
		return
	}
	m.retrievalTotal.Add(1)
	m.retrievalDuration.Add(d.Seconds())
	switch {
	case err != nil:
		m.retrievalErrors.Add(1)
	case hits == 0:
		m.retrievalEmpty.Add(1)
	}
}

// RecordLLMCall 记录一次模型调用。
func (m *Metrics) RecordLLMCall(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.llmCalls.Add(1)
	m.llmDuration.Add(d.Seconds())
	if err != nil {
		m.llmErrors.Add(1)
	}
}

// RecordLLMRetry 记录一次限流后的重试。
func (m *Metrics) RecordLLMRetry() {
	if m == nil {
		return
	}
	m.llmRetries.Add(1)
}

// RecordLLMFallback 记录一次返回兜底答复。
func (m *Metrics) RecordLLMFallback() {
	if m == nil {
		return
	}
	m.llmFallbacks.Add(1)
}

// RecordBreakerOpen 记录熔断器打开。
func (m *Metrics) RecordBreakerOpen() {
	if m == nil {
		return
	}
	m.breakerOpens.Add(1)
}

// RecordDocument 记录一个文档的导入结果。
func (m *Metrics) RecordDocument(skipped bool, upserted, failed int) {
	if m == nil {
		return
	}
	if skipped {
		m.documentsSkipped.Add(1)
		return
	}
	m.documentsIngested.Add(1)
	m.chunksIngested.Add(uint64(upserted))
	m.chunksFailed.Add(uint64(failed))
}

// RecordDocumentFailure 记录一个无法提取的文件。
func (m *Metrics) RecordDocumentFailure() {
	if m == nil {
		return
	}
	m.documentsFailed.Add(1)
}

type sample struct {
	name, help, typ string
	value           string
}

func counter(name, help string, v uint64) sample {
	return sample{name: name, help: help, typ: "counter", value: fmt.Sprintf("%d", v)}
}

func gauge(name, help string, v float64) sample {
	return sample{name: name, help: help, typ: "gauge", value: fmt.Sprintf("%.6f", v)}
}

// Export 导出 Prometheus 文本格式指标。
func (m *Metrics) Export(namespace string) string {
	hits, misses := m.cacheHits.Load(), m.cacheMisses.Load()
	hitRate := 0.0
	if hits+misses > 0 {
		hitRate = float64(hits) / float64(hits+misses)
	}

	samples := []sample{
		counter("queries_total", "Total number of chat queries.", m.queriesTotal.Load()),
		counter("cache_hits_total", "Chat queries answered from the cache.", hits),
		counter("cache_misses_total", "Chat queries not found in the cache.", misses),
		gauge("cache_hit_rate", "Cache hit rate (0-1).", hitRate),
		counter("retrieval_total", "Total number of retrievals.", m.retrievalTotal.Load()),
		counter("retrieval_errors_total", "Retrievals that failed and returned no context.", m.retrievalErrors.Load()),
		counter("retrieval_empty_total", "Retrievals with no chunk above the threshold.", m.retrievalEmpty.Load()),
		{name: "retrieval_duration_seconds_total", help: "Total retrieval duration.", typ: "counter", value: fmt.Sprintf("%.6f", m.retrievalDuration.Load())},
		counter("llm_calls_total", "Total number of completion calls.", m.llmCalls.Load()),
		counter("llm_errors_total", "Completion calls that failed.", m.llmErrors.Load()),
		counter("llm_retries_total", "Completion retries after a rate limit.", m.llmRetries.Load()),
		counter("llm_fallbacks_total", "Answers replaced by the static apology.", m.llmFallbacks.Load()),
		{name: "llm_duration_seconds_total", help: "Total completion call duration.", typ: "counter", value: fmt.Sprintf("%.6f", m.llmDuration.Load())},
		counter("circuit_breaker_opens_total", "Number of circuit breaker opens.", m.breakerOpens.Load()),
		counter("documents_ingested_total", "Documents chunked and stored.", m.documentsIngested.Load()),
		counter("documents_skipped_total", "Documents skipped because they were already registered.", m.documentsSkipped.Load()),
		counter("documents_failed_total", "Files that could not be extracted.", m.documentsFailed.Load()),
		counter("chunks_ingested_total", "Chunks upserted into the vector store.", m.chunksIngested.Load()),
		counter("chunks_failed_total", "Chunks that failed to upsert.", m.chunksFailed.Load()),
		gauge("uptime_seconds", "Process uptime in seconds.", time.Since(m.startTime).Seconds()),
	}

	var sb strings.Builder
	for _, s := range samples {
		name := namespace + "_" + s.name
		fmt.Fprintf(&sb, "# HELP %s %s\n# TYPE %s %s\n%s %s\n", name, s.help, name, s.typ, name, s.value)
	}
	return sb.String()
}
