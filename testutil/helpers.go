// =============================================================================
// 🧪 测试辅助函数
// =============================================================================
// 提供通用的测试辅助函数和断言
//
// 使用方法:
//
//	testutil.AssertValidationPaths(t, err, "confidence")
//	testutil.AssertEventuallyTrue(t, func() bool { return gen.Calls() == 1 }, time.Second)
// =============================================================================
package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/structflow/schema"
)

// =============================================================================
// 🎯 上下文辅助
// =============================================================================

// TestContext 返回带超时的测试上下文
func TestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// TestContextWithTimeout 返回带自定义超时的测试上下文
func TestContextWithTimeout(t *testing.T, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// CancelledContext 返回已取消的上下文
func CancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// =============================================================================
// 🔍 断言辅助
// =============================================================================

// AssertValidationPaths 断言 err 是 *schema.ValidationError 且包含全部给定路径
func AssertValidationPaths(t *testing.T, err error, paths ...string) {
	t.Helper()

	var verr *schema.ValidationError
	require.True(t, errors.As(err, &verr), "expected *schema.ValidationError, got %T: %v", err, err)
	for _, p := range paths {
		assert.True(t, verr.HasPath(p), "missing violation for %q in %v", p, verr.Paths())
	}
}

// AssertResultJSON 断言结果的规范 JSON 与 expected 等价
func AssertResultJSON(t *testing.T, expected string, res *schema.Result) {
	t.Helper()

	require.NotNil(t, res)
	assert.JSONEq(t, expected, res.String())
}

// AssertEventuallyTrue 断言条件最终为真
func AssertEventuallyTrue(t *testing.T, condition func() bool, timeout time.Duration) {
	t.Helper()

	if !WaitFor(condition, timeout) {
		t.Errorf("condition did not become true within %v", timeout)
	}
}

// =============================================================================
// ⏱️ 时间辅助
// =============================================================================

// WaitFor 等待条件满足或超时
func WaitFor(condition func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return condition()
}

// WaitForChannel 等待通道接收或超时
func WaitForChannel[T any](ch <-chan T, timeout time.Duration) (T, bool) {
	select {
	case v := <-ch:
		return v, true
	case <-time.After(timeout):
		var zero T
		return zero, false
	}
}

// =============================================================================
// 🔧 测试数据辅助
// =============================================================================

// MustJSON 将值转换为 JSON 字符串，失败时 panic
func MustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}

// SentimentSchema 返回情感分析示例 schema:
// label ∈ {positive, negative, neutral}, confidence ∈ [0,1], keywords 默认 [], summary 必填
func SentimentSchema() *schema.JSONSchema {
	return schema.NewObjectSchema().
		WithTitle("SentimentResult").
		AddProperty("label", schema.NewEnumSchema("positive", "negative", "neutral")).
		AddProperty("confidence", schema.NewNumberSchema().WithRange(0, 1)).
		AddProperty("keywords", schema.NewArraySchema(schema.NewStringSchema()).WithDefault([]any{})).
		AddProperty("summary", schema.NewStringSchema()).
		AddRequired("label", "confidence", "summary")
}
