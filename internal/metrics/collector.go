// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// 结构化调用指标
	callsTotal    *prometheus.CounterVec
	callDuration  *prometheus.HistogramVec
	attemptsTotal *prometheus.CounterVec
	retriesTotal  *prometheus.CounterVec

	// 缓存指标
	cacheLookups   *prometheus.CounterVec
	cacheEvictions prometheus.Counter

	// 生成器(上游 HTTP)指标
	llmRequestsTotal   *prometheus.CounterVec
	llmRequestDuration *prometheus.HistogramVec
	llmTokensUsed      *prometheus.CounterVec

	logger *zap.Logger
}

// Option 配置 Collector
type Option func(*options)

type options struct {
	registerer prometheus.Registerer
}

// WithRegisterer 指定注册表, 默认使用 prometheus.DefaultRegisterer
func WithRegisterer(r prometheus.Registerer) Option {
	return func(o *options) { o.registerer = r }
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger, opts ...Option) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{registerer: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(&o)
	}
	factory := promauto.With(o.registerer)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// 结构化调用指标
	c.callsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "structured_calls_total",
			Help:      "Total number of structured generate calls by outcome",
		},
		[]string{"schema", "outcome"}, // outcome: success, exhausted, non_retryable, cancelled, invalid
	)

	c.callDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "structured_call_duration_seconds",
			Help:      "Structured generate call duration in seconds, cache hits included",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"schema"},
	)

	c.attemptsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_attempts_total",
			Help:      "Total number of raw generation attempts by outcome",
		},
		[]string{"outcome"}, // success, validation_failure, transport_failure
	)

	c.retriesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_retries_total",
			Help:      "Total number of retries scheduled after a failed attempt",
		},
		[]string{"reason"},
	)

	// 缓存指标
	c.cacheLookups = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Total number of response cache lookups by outcome",
		},
		[]string{"outcome"}, // hit, l2_hit, miss, join
	)

	c.cacheEvictions = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_evictions_total",
			Help:      "Total number of entries evicted by the LRU bound",
		},
	)

	// 生成器指标
	c.llmRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of upstream generation requests",
		},
		[]string{"provider", "model", "status"},
	)

	c.llmRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "Upstream generation request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider", "model"},
	)

	c.llmTokensUsed = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_used_total",
			Help:      "Total number of tokens reported by the upstream",
		},
		[]string{"provider", "model", "type"}, // type: prompt, completion
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 结构化调用指标记录
// =============================================================================

// RecordCall 记录一次 Generate 调用
func (c *Collector) RecordCall(schema, outcome string, duration time.Duration) {
	c.callsTotal.WithLabelValues(schema, outcome).Inc()
	c.callDuration.WithLabelValues(schema).Observe(duration.Seconds())
}

// RecordAttempt 记录一次生成尝试
func (c *Collector) RecordAttempt(outcome string) {
	c.attemptsTotal.WithLabelValues(outcome).Inc()
}

// RecordRetry 记录一次已安排的重试
func (c *Collector) RecordRetry(reason string) {
	c.retriesTotal.WithLabelValues(reason).Inc()
}

// =============================================================================
// 💾 缓存指标记录
// =============================================================================

// RecordCacheLookup 记录一次缓存查找
func (c *Collector) RecordCacheLookup(outcome string) {
	c.cacheLookups.WithLabelValues(outcome).Inc()
}

// RecordCacheEviction 记录 LRU 淘汰
func (c *Collector) RecordCacheEviction(count int) {
	c.cacheEvictions.Add(float64(count))
}

// =============================================================================
// 🤖 生成器指标记录
// =============================================================================

// RecordLLMRequest 记录一次上游请求
func (c *Collector) RecordLLMRequest(provider, model string, status int, duration time.Duration, promptTokens, completionTokens int) {
	c.llmRequestsTotal.WithLabelValues(provider, model, statusCode(status)).Inc()
	c.llmRequestDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
	if promptTokens > 0 {
		c.llmTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		c.llmTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	}
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串, 0 表示请求未获得响应
func statusCode(code int) string {
	switch {
	case code == 0:
		return "error"
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
