package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func newTestCollector(t *testing.T) *Collector {
	t.Helper()
	return NewCollector("test", zap.NewNop(), WithRegisterer(prometheus.NewRegistry()))
}

func TestNewCollector(t *testing.T) {
	collector := newTestCollector(t)

	assert.NotNil(t, collector.callsTotal)
	assert.NotNil(t, collector.callDuration)
	assert.NotNil(t, collector.cacheLookups)
	assert.NotNil(t, collector.llmRequestsTotal)

	// nil logger 可用
	assert.NotNil(t, NewCollector("test", nil, WithRegisterer(prometheus.NewRegistry())))
}

func TestCollector_RecordCall(t *testing.T) {
	collector := newTestCollector(t)

	collector.RecordCall("sentiment", "success", 20*time.Millisecond)
	collector.RecordCall("sentiment", "success", 30*time.Millisecond)
	collector.RecordCall("sentiment", "exhausted", time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.callsTotal.WithLabelValues("sentiment", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.callsTotal.WithLabelValues("sentiment", "exhausted")))
	assert.Equal(t, 1, testutil.CollectAndCount(collector.callDuration))
}

func TestCollector_RecordAttemptsAndRetries(t *testing.T) {
	collector := newTestCollector(t)

	collector.RecordAttempt("validation_failure")
	collector.RecordAttempt("success")
	collector.RecordRetry("validation_failure")

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.attemptsTotal.WithLabelValues("validation_failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.attemptsTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.retriesTotal.WithLabelValues("validation_failure")))
}

func TestCollector_RecordCache(t *testing.T) {
	collector := newTestCollector(t)

	collector.RecordCacheLookup("hit")
	collector.RecordCacheLookup("hit")
	collector.RecordCacheLookup("miss")
	collector.RecordCacheEviction(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.cacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.cacheLookups.WithLabelValues("miss")))
	assert.Equal(t, 3.0, testutil.ToFloat64(collector.cacheEvictions))
}

func TestCollector_RecordLLMRequest(t *testing.T) {
	collector := newTestCollector(t)

	collector.RecordLLMRequest("openai", "gpt-4o-mini", 200, time.Second, 100, 20)
	collector.RecordLLMRequest("openai", "gpt-4o-mini", 0, time.Second, 0, 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.llmRequestsTotal.WithLabelValues("openai", "gpt-4o-mini", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.llmRequestsTotal.WithLabelValues("openai", "gpt-4o-mini", "error")))
	assert.Equal(t, 100.0, testutil.ToFloat64(collector.llmTokensUsed.WithLabelValues("openai", "gpt-4o-mini", "prompt")))
	assert.Equal(t, 20.0, testutil.ToFloat64(collector.llmTokensUsed.WithLabelValues("openai", "gpt-4o-mini", "completion")))
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{0, "error"},
		{200, "2xx"},
		{301, "3xx"},
		{429, "4xx"},
		{503, "5xx"},
		{99, "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusCode(tt.code))
	}
}
