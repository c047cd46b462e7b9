package retry

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestDelayForAttempt_Bounds(t *testing.T) {
	base := 100 * time.Millisecond
	for attempt := 0; attempt < 6; attempt++ {
		floor := base << uint(attempt)
		for i := 0; i < 50; i++ {
			d := DelayForAttempt(attempt, base)
			assert.GreaterOrEqual(t, d, floor, "attempt %d", attempt)
			assert.Less(t, d, floor+base, "attempt %d", attempt)
		}
	}
}

func TestDelayForAttempt_Edges(t *testing.T) {
	assert.Equal(t, time.Duration(0), DelayForAttempt(3, 0))
	assert.Equal(t, time.Duration(0), DelayForAttempt(0, -time.Second))

	// 负数按 0 处理
	d := DelayForAttempt(-1, time.Millisecond)
	assert.Less(t, d, 2*time.Millisecond)

	// 大指数饱和而不是回绕
	assert.Equal(t, maxDuration, DelayForAttempt(200, time.Second))
	assert.Equal(t, maxDuration, DelayForAttempt(40, time.Hour))
}

func TestPolicy_DelayCap(t *testing.T) {
	p := Policy{MaxAttempts: 10, BaseDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond}
	for attempt := 0; attempt < 10; attempt++ {
		d := p.Delay(attempt)
		assert.Less(t, d, 60*time.Millisecond, "cap applies before jitter")
	}
	assert.GreaterOrEqual(t, p.Delay(9), 50*time.Millisecond)
}

func TestPolicy_Validate(t *testing.T) {
	assert.NoError(t, DefaultPolicy().Validate())
	assert.Equal(t, 3, DefaultPolicy().MaxAttempts)
	assert.Equal(t, time.Second, DefaultPolicy().BaseDelay)

	assert.Error(t, Policy{MaxAttempts: 0}.Validate())
	assert.Error(t, Policy{MaxAttempts: 1, BaseDelay: -1}.Validate())
	assert.Error(t, Policy{MaxAttempts: 1, MaxDelay: -1}.Validate())
}

// 退避延迟随尝试次数严格递增, 且落在 [base*2^n, base*2^n+base) 内
func TestProperty_DelayMonotonic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("delay(n+1) > delay(n)", prop.ForAll(
		func(baseMs int64, attempt int) bool {
			base := time.Duration(baseMs) * time.Millisecond
			cur := DelayForAttempt(attempt, base)
			next := DelayForAttempt(attempt+1, base)
			floor := base << uint(attempt)
			return next > cur && cur >= floor && cur < floor+base
		},
		gen.Int64Range(1, 5000),
		gen.IntRange(0, 20),
	))

	properties.TestingRun(t)
}
