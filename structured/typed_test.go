package structured

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/BaSui01/structflow/config"
	"github.com/BaSui01/structflow/llm"
	"github.com/BaSui01/structflow/llm/cache"
	"github.com/BaSui01/structflow/llm/circuitbreaker"
	"github.com/BaSui01/structflow/testutil"
	"github.com/BaSui01/structflow/testutil/mocks"
)

type reviewAnalysis struct {
	Rating         int      `json:"rating" schema:"required,min=1,max=5"`
	Pros           []string `json:"pros" schema:"default=[]"`
	Cons           []string `json:"cons" schema:"default=[]"`
	Recommendation bool     `json:"recommendation" schema:"required"`
}

func TestGenerateInto(t *testing.T) {
	gen := mocks.NewScriptedGenerator(
		mocks.Reply("```json\n{\"rating\": 7, \"recommendation\": true}\n```"),
		mocks.Reply("```json\n{\"rating\": 4, \"pros\": [\"battery\"], \"recommendation\": true}\n```"),
	)
	c := newTestClient(t, gen)

	got, err := GenerateInto[reviewAnalysis](context.Background(), c, llm.NewRequest("Review: solid phone"))
	require.NoError(t, err)

	assert.Equal(t, 2, gen.Calls())
	assert.Equal(t, 4, got.Rating)
	assert.Equal(t, []string{"battery"}, got.Pros)
	assert.Equal(t, []string{}, got.Cons)
	assert.True(t, got.Recommendation)
}

func TestGenerateInto_Error(t *testing.T) {
	gen := mocks.NewScriptedGenerator(mocks.Reply(`{"rating": 0, "recommendation": true}`))
	c := newTestClient(t, gen)

	got, err := GenerateInto[reviewAnalysis](context.Background(), c, llm.NewRequest("Review"), WithMaxAttempts(1))
	require.Error(t, err)
	assert.Zero(t, got)
	assert.Equal(t, OutcomeExhausted, asClientError(t, err).Outcome())
}

func TestSchemaOf_Cached(t *testing.T) {
	a, err := SchemaOf[reviewAnalysis]()
	require.NoError(t, err)
	b, err := SchemaOf[reviewAnalysis]()
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.True(t, a.IsRequired("rating"))
}

func TestGenerateAs(t *testing.T) {
	type sentiment struct {
		Label      string   `json:"label"`
		Confidence float64  `json:"confidence"`
		Keywords   []string `json:"keywords"`
	}
	gen := mocks.NewScriptedGenerator(mocks.Reply(valid))
	c := newTestClient(t, gen)

	got, err := GenerateAs[sentiment](context.Background(), c, llm.NewRequest("Analyze"), testutil.SentimentSchema())
	require.NoError(t, err)
	assert.Equal(t, "positive", got.Label)
	assert.Equal(t, 0.9, got.Confidence)
	assert.Empty(t, got.Keywords)
}

func TestConfigOptions(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Client.MaxAttempts = 1
	cfg.Client.RejectAdditional = true
	cfg.Client.SchemaInstructions = false
	cfg.Cache.Enabled = false

	gen := mocks.NewScriptedGenerator(mocks.Reply(`{"label":"positive","confidence":0.9,"summary":"x","extra":1}`))
	c, err := New(gen, ConfigOptions(cfg)...)
	require.NoError(t, err)

	assert.Equal(t, 1, c.Policy().MaxAttempts)
	_, ok := c.CacheStats()
	assert.False(t, ok)

	_, err = c.Generate(context.Background(), llm.NewRequest("Analyze"), testutil.SentimentSchema())
	require.Error(t, err)
	verr, ok := asClientError(t, err).ValidationError()
	require.True(t, ok)
	assert.True(t, verr.HasPath("extra"))
	assert.Empty(t, gen.LastRequest().SystemPrompt)

	assert.Nil(t, ConfigOptions(nil))
}

func TestConfigOptions_CacheSection(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Cache.Capacity = 2
	cfg.Cache.KeyStrategy = "hierarchical"

	c, err := New(mocks.NewScriptedGenerator(mocks.Reply(valid)), ConfigOptions(cfg)...)
	require.NoError(t, err)

	stats, ok := c.CacheStats()
	require.True(t, ok)
	assert.Equal(t, 2, stats.Capacity)
	s := testutil.SentimentSchema()
	prefix := cache.NewHierarchicalKeyStrategy().SchemaPrefix(s)
	assert.True(t, strings.HasPrefix(c.Fingerprint(llm.NewRequest("a"), s), prefix+"default:"))
}

// 任意请求的指纹与其深拷贝一致, 且第二次调用总是命中缓存
func TestClient_FingerprintProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		prompt := rapid.StringMatching(`[a-z ]{1,40}[a-z]`).Draw(rt, "prompt")
		system := rapid.String().Draw(rt, "system")

		gen := mocks.NewScriptedGenerator(mocks.Reply(valid))
		c, err := New(gen)
		if err != nil {
			rt.Fatalf("new: %v", err)
		}
		req := llm.NewRequest(prompt).WithSystemPrompt(system)
		s := testutil.SentimentSchema()

		if c.Fingerprint(req, s) != c.Fingerprint(req.Clone(), s) {
			rt.Fatalf("fingerprint differs for clone")
		}
		for i := 0; i < 2; i++ {
			if _, err := c.Generate(context.Background(), req, s); err != nil {
				rt.Fatalf("generate: %v", err)
			}
		}
		if gen.Calls() != 1 {
			rt.Fatalf("expected 1 generator call, got %d", gen.Calls())
		}
	})
}

func TestConfigOptions_CircuitBreaker(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Client.BaseDelay = time.Millisecond
	cfg.Client.BreakerThreshold = 1
	cfg.Client.BreakerResetTimeout = time.Hour

	gen := mocks.NewScriptedGenerator(mocks.Fail(errors.New("connection refused")))
	c, err := New(gen, ConfigOptions(cfg)...)
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), llm.NewRequest("Analyze"), testutil.SentimentSchema())
	require.Error(t, err)
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.Equal(t, 1, gen.Calls(), "later attempts are rejected by the open breaker")
}
