package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	registerOnce        sync.Once
	fetchPages          *prometheus.CounterVec
	fetchEvents         prometheus.Counter
	fetchDuration       *prometheus.HistogramVec
	recordsExtracted    prometheus.Counter
	recordsDeduplicated prometheus.Counter
	enrichmentResults   *prometheus.CounterVec

	defaultDurationBuckets = prometheus.DefBuckets
)

const (
	namespaceMetrics = "traceability"
)

// MustRegister 初始化 Prometheus 指标并注册 Go 运行时采样器，需在启动阶段调用一次。
func MustRegister() {
	registerOnce.Do(func() {
		fetchPages = registerCounterVec(
			prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespaceMetrics,
					Subsystem: "audit_fetch",
					Name:      "pages_total",
					Help:      "审计事件分页请求次数，按请求结果统计。",
				},
				[]string{"result"},
			),
		)
		fetchEvents = registerCounter(
			prometheus.NewCounter(
				prometheus.CounterOpts{
					Namespace: namespaceMetrics,
					Subsystem: "audit_fetch",
					Name:      "events_total",
					Help:      "从平台拉取到的审计事件总数。",
				},
			),
		)
		fetchDuration = registerHistogramVec(
			prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: namespaceMetrics,
					Subsystem: "audit_fetch",
					Name:      "duration_seconds",
					Help:      "一次完整审计事件拉取的耗时，按数据源区分。",
					Buckets:   defaultDurationBuckets,
				},
				[]string{"source"},
			),
		)
		recordsExtracted = registerCounter(
			prometheus.NewCounter(
				prometheus.CounterOpts{
					Namespace: namespaceMetrics,
					Subsystem: "pipeline",
					Name:      "records_extracted_total",
					Help:      "从审计事件中提取出的运行记录数量。",
				},
			),
		)
		recordsDeduplicated = registerCounter(
			prometheus.NewCounter(
				prometheus.CounterOpts{
					Namespace: namespaceMetrics,
					Subsystem: "pipeline",
					Name:      "records_deduplicated_total",
					Help:      "按运行标识合并后剩余的运行记录数量。",
				},
			),
		)
		enrichmentResults = registerCounterVec(
			prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespaceMetrics,
					Subsystem: "enrichment",
					Name:      "requests_total",
					Help:      "运行详情回填的请求次数，按结果分类。",
				},
				[]string{"result"},
			),
		)

		registerRuntimeCollectors()
	})
}

// ObserveFetchPage 记录一次分页请求的结果，并累加本页拉到的事件数。
func ObserveFetchPage(result string, eventCount int) {
	if fetchPages == nil || fetchEvents == nil {
		return
	}
	fetchPages.WithLabelValues(normalizeLabel(result, "unknown")).Inc()
	if eventCount > 0 {
		fetchEvents.Add(float64(eventCount))
	}
}

// ObserveFetchDuration 记录一次完整拉取的耗时，source 区分平台 API 与样例数据。
func ObserveFetchDuration(source string, duration time.Duration) {
	if fetchDuration == nil {
		return
	}
	fetchDuration.WithLabelValues(normalizeLabel(source, "unspecified")).Observe(duration.Seconds())
}

// RecordPipeline 记录一轮流水线的提取与合并产出。
func RecordPipeline(extracted, deduplicated int) {
	if recordsExtracted == nil || recordsDeduplicated == nil {
		return
	}
	if extracted > 0 {
		recordsExtracted.Add(float64(extracted))
	}
	if deduplicated > 0 {
		recordsDeduplicated.Add(float64(deduplicated))
	}
}

// RecordEnrichment 记录一次运行详情回填的结果分布。
func RecordEnrichment(result string) {
	if enrichmentResults == nil {
		return
	}
	enrichmentResults.WithLabelValues(normalizeLabel(result, "unknown")).Inc()
}

func normalizeLabel(value string, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}

func registerCounter(counter prometheus.Counter) prometheus.Counter {
	if err := prometheus.Register(counter); err != nil {
		if existing := alreadyRegisteredCounter(err); existing != nil {
			return existing
		}
		panic(err)
	}
	return counter
}

func registerCounterVec(vec *prometheus.CounterVec) *prometheus.CounterVec {
	if err := prometheus.Register(vec); err != nil {
		if existing := alreadyRegisteredCounterVec(err); existing != nil {
			return existing
		}
		panic(err)
	}
	return vec
}

func registerHistogramVec(vec *prometheus.HistogramVec) *prometheus.HistogramVec {
	if err := prometheus.Register(vec); err != nil {
		if existing := alreadyRegisteredHistogramVec(err); existing != nil {
			return existing
		}
		panic(err)
	}
	return vec
}

func registerRuntimeCollectors() {
	if err := prometheus.Register(collectors.NewGoCollector()); err != nil {
		if !isAlreadyRegistered(err) {
			panic(err)
		}
	}
	if err := prometheus.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		if !isAlreadyRegistered(err) {
			panic(err)
		}
	}
}

func alreadyRegisteredCounter(err error) prometheus.Counter {
	if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
		if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
			return existing
		}
	}
	return nil
}

func alreadyRegisteredCounterVec(err error) *prometheus.CounterVec {
	if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
		if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
			return existing
		}
	}
	return nil
}

func alreadyRegisteredHistogramVec(err error) *prometheus.HistogramVec {
	if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
		if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
			return existing
		}
	}
	return nil
}

func isAlreadyRegistered(err error) bool {
	_, ok := err.(prometheus.AlreadyRegisteredError)
	return ok
}
