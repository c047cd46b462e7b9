package structured

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/BaSui01/structflow/internal/metrics"
	"github.com/BaSui01/structflow/llm"
	"github.com/BaSui01/structflow/testutil"
	"github.com/BaSui01/structflow/testutil/mocks"
)

// fakeMetrics 记录所有事件, 便于断言
type fakeMetrics struct {
	mu       sync.Mutex
	calls    []string
	attempts []string
	retries  []string
	lookups  []string
}

func (f *fakeMetrics) RecordCall(schema, outcome string, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, schema+"/"+outcome)
}

func (f *fakeMetrics) RecordAttempt(outcome string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, outcome)
}

func (f *fakeMetrics) RecordRetry(reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retries = append(f.retries, reason)
}

func (f *fakeMetrics) RecordCacheLookup(outcome string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups = append(f.lookups, outcome)
}

func (f *fakeMetrics) RecordCacheEviction(int) {}

func TestClient_RecordsMetrics(t *testing.T) {
	m := &fakeMetrics{}
	gen := mocks.NewScriptedGenerator(mocks.Reply(outOfRange), mocks.Reply(valid))
	c := newTestClient(t, gen, WithMetrics(m))
	ctx := context.Background()
	s := testutil.SentimentSchema()

	_, err := c.Generate(ctx, llm.NewRequest("Analyze"), s)
	require.NoError(t, err)
	_, err = c.Generate(ctx, llm.NewRequest("Analyze"), s)
	require.NoError(t, err)
	_, err = c.Generate(ctx, nil, s)
	require.Error(t, err)

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Equal(t, []string{"SentimentResult/success", "SentimentResult/success", "SentimentResult/invalid"}, m.calls)
	assert.Equal(t, []string{"validation_failure", "success"}, m.attempts)
	assert.Equal(t, []string{"validation_failure"}, m.retries)
	assert.Equal(t, []string{"miss", "hit"}, m.lookups)
}

func TestClient_PrometheusCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector("test", nil, metrics.WithRegisterer(reg))

	gen := mocks.NewScriptedGenerator(mocks.Reply(outOfRange))
	c := newTestClient(t, gen, WithMetrics(collector))

	_, err := c.Generate(context.Background(), llm.NewRequest("Analyze"), testutil.SentimentSchema(), WithMaxAttempts(2))
	require.Error(t, err)

	n, err := promtestutil.GatherAndCount(reg, "test_structured_calls_total", "test_generation_attempts_total", "test_generation_retries_total")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = promtestutil.GatherAndCount(reg, "test_cache_lookups_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func attrValue(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestClient_Spans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	gen := mocks.NewScriptedGenerator(mocks.Reply(valid), mocks.Reply(outOfRange))
	c := newTestClient(t, gen, WithTracer(tp.Tracer("test")))
	s := testutil.SentimentSchema()
	req := llm.NewRequest("Analyze")

	_, err := c.Generate(context.Background(), req, s)
	require.NoError(t, err)
	_, err = c.Generate(context.Background(), llm.NewRequest("other"), s, WithMaxAttempts(1))
	require.Error(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 2)

	ok := spans[0]
	assert.Equal(t, "structured.generate", ok.Name())
	assert.Equal(t, codes.Ok, ok.Status().Code)
	fp, found := attrValue(ok.Attributes(), "structflow.fingerprint")
	require.True(t, found)
	assert.Equal(t, c.Fingerprint(req, s), fp.AsString())
	outcome, _ := attrValue(ok.Attributes(), "structflow.outcome")
	assert.Equal(t, OutcomeSuccess, outcome.AsString())

	failed := spans[1]
	assert.Equal(t, codes.Error, failed.Status().Code)
	attempts, found := attrValue(failed.Attributes(), "structflow.attempts")
	require.True(t, found)
	assert.Equal(t, int64(1), attempts.AsInt64())
	assert.NotEmpty(t, failed.Events(), "error should be recorded as a span event")
}
