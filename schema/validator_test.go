package schema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sentimentSchema() *JSONSchema {
	return NewObjectSchema().
		WithTitle("SentimentResult").
		AddProperty("label", NewEnumSchema("positive", "negative", "neutral")).
		AddProperty("confidence", NewNumberSchema().WithRange(0, 1)).
		AddProperty("keywords", NewArraySchema(NewStringSchema()).WithDefault([]any{})).
		AddProperty("summary", NewStringSchema().WithMaxLength(200)).
		AddRequired("label", "confidence", "summary")
}

func orderSchema() *JSONSchema {
	item := NewObjectSchema().
		AddProperty("sku", NewStringSchema().WithMinLength(1)).
		AddProperty("quantity", NewIntegerSchema().WithMinimum(1)).
		AddRequired("sku", "quantity")
	order := NewObjectSchema().
		AddProperty("id", NewStringSchema()).
		AddProperty("items", NewArraySchema(item).WithMinItems(1)).
		AddRequired("id", "items")
	return NewObjectSchema().
		AddProperty("order", order).
		AddRequired("order")
}

func requireValidationError(t *testing.T, err error) *ValidationError {
	t.Helper()
	require.Error(t, err)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "expected *ValidationError, got %T", err)
	require.NotEmpty(t, verr.Errors)
	return verr
}

func TestValidator_Sentiment(t *testing.T) {
	v := NewValidator()
	s := sentimentSchema()

	res, err := v.Validate(`{"label":"positive","confidence":0.93,"keywords":["fast","cheap"],"summary":"Good."}`, s)
	require.NoError(t, err)
	assert.Equal(t, s.Identity(), res.SchemaID)

	label, ok := res.Field("label")
	require.True(t, ok)
	assert.Equal(t, "positive", label)

	type sentiment struct {
		Label      string   `json:"label"`
		Confidence float64  `json:"confidence"`
		Keywords   []string `json:"keywords"`
		Summary    string   `json:"summary"`
	}
	out, err := As[sentiment](res)
	require.NoError(t, err)
	assert.Equal(t, 0.93, out.Confidence)
	assert.Equal(t, []string{"fast", "cheap"}, out.Keywords)
}

func TestValidator_Violations(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		wantPath string
	}{
		{"confidence above range", `{"label":"positive","confidence":1.5,"summary":"x"}`, "confidence"},
		{"label outside enum", `{"label":"happy","confidence":0.5,"summary":"x"}`, "label"},
		{"missing required", `{"label":"neutral","confidence":0.5}`, "summary"},
		{"null required", `{"label":"neutral","confidence":null,"summary":"x"}`, "confidence"},
		{"wrong type", `{"label":"neutral","confidence":"high","summary":"x"}`, "confidence"},
		{"keyword not a string", `{"label":"neutral","confidence":0.5,"summary":"x","keywords":["a",3]}`, "keywords[1]"},
	}

	v := NewValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Validate(tt.payload, sentimentSchema())
			verr := requireValidationError(t, err)
			assert.True(t, verr.HasPath(tt.wantPath), "paths: %v", verr.Paths())
			assert.NotEmpty(t, verr.Errors[0].Expected)
			assert.NotEmpty(t, verr.Errors[0].Message)
		})
	}
}

func TestValidator_ReportsEveryViolation(t *testing.T) {
	_, err := NewValidator().Validate(`{"label":"happy","confidence":7}`, sentimentSchema())
	verr := requireValidationError(t, err)
	assert.ElementsMatch(t, []string{"confidence", "label", "summary"}, verr.Paths())
}

func TestValidator_NestedPaths(t *testing.T) {
	v := NewValidator()
	s := orderSchema()

	_, err := v.Validate(`{"order":{"id":"o-1","items":[
		{"sku":"a","quantity":1},
		{"sku":"b","quantity":2},
		{"sku":"c","quantity":0}
	]}}`, s)
	verr := requireValidationError(t, err)
	assert.Equal(t, []string{"order.items[2].quantity"}, verr.Paths())
	assert.Contains(t, verr.Error(), "order.items[2].quantity")

	_, err = v.Validate(`{"order":{"id":"o-1","items":[{"sku":"a","quantity":1.5}]}}`, s)
	verr = requireValidationError(t, err)
	assert.Equal(t, "order.items[0].quantity", verr.Errors[0].Path)

	_, err = v.Validate(`{"order":{"id":"o-1","items":[]}}`, s)
	verr = requireValidationError(t, err)
	assert.Equal(t, "order.items", verr.Errors[0].Path)
}

func TestValidator_ParseFailures(t *testing.T) {
	v := NewValidator()
	for _, raw := range []string{"", "not json at all", `{"label": "positive",`} {
		_, err := v.Validate(raw, sentimentSchema())
		verr := requireValidationError(t, err)
		assert.Equal(t, "", verr.Errors[0].Path)
		assert.Contains(t, verr.Error(), "(root)")
	}
}

func TestValidator_ExtractsWrappedJSON(t *testing.T) {
	raw := "Here you go:\n```json\n{\"label\":\"negative\",\"confidence\":0.2,\"summary\":\"Bad.\"}\n```\nAnything else?"

	res, err := NewValidator().Validate(raw, sentimentSchema())
	require.NoError(t, err)
	label, _ := res.Field("label")
	assert.Equal(t, "negative", label)

	_, err = NewValidator(WithStrictJSON()).Validate(raw, sentimentSchema())
	requireValidationError(t, err)
}

func TestValidator_AdditionalFields(t *testing.T) {
	payload := `{"label":"neutral","confidence":0.5,"summary":"x","extra":true}`

	t.Run("ignored and stripped by default", func(t *testing.T) {
		res, err := NewValidator().Validate(payload, sentimentSchema())
		require.NoError(t, err)
		_, ok := res.Field("extra")
		assert.False(t, ok)
		assert.NotContains(t, res.String(), "extra")
	})

	t.Run("rejected by option", func(t *testing.T) {
		_, err := NewValidator(WithAdditionalFields(RejectAdditional)).Validate(payload, sentimentSchema())
		verr := requireValidationError(t, err)
		assert.Equal(t, []string{"extra"}, verr.Paths())
	})

	t.Run("schema forbids", func(t *testing.T) {
		_, err := NewValidator().Validate(payload, sentimentSchema().WithAdditionalProperties(false))
		requireValidationError(t, err)
	})

	t.Run("schema allows", func(t *testing.T) {
		res, err := NewValidator(WithAdditionalFields(RejectAdditional)).
			Validate(payload, sentimentSchema().WithAdditionalProperties(true))
		require.NoError(t, err)
		extra, ok := res.Field("extra")
		require.True(t, ok)
		assert.Equal(t, true, extra)
	})
}

func TestValidator_Defaults(t *testing.T) {
	s := sentimentSchema()
	v := NewValidator()

	res, err := v.Validate(`{"label":"neutral","confidence":0.5,"summary":"x"}`, s)
	require.NoError(t, err)
	keywords, ok := res.Field("keywords")
	require.True(t, ok)
	assert.Equal(t, []any{}, keywords)

	// Explicit null on an optional field behaves like absence.
	res, err = v.Validate(`{"label":"neutral","confidence":0.5,"summary":"x","keywords":null}`, s)
	require.NoError(t, err)
	keywords, _ = res.Field("keywords")
	assert.Equal(t, []any{}, keywords)

	// The default must not alias across results.
	first, _ := v.Validate(`{"label":"neutral","confidence":0.5,"summary":"x"}`, s)
	second, _ := v.Validate(`{"label":"neutral","confidence":0.5,"summary":"x"}`, s)
	a, _ := first.Field("keywords")
	b, _ := second.Field("keywords")
	a = append(a.([]any), "mutated")
	assert.Len(t, a, 1)
	assert.Equal(t, []any{}, b)
}

func TestValidator_StringLengthCountsRunes(t *testing.T) {
	s := NewObjectSchema().
		AddProperty("name", NewStringSchema().WithLength(2, 3)).
		AddRequired("name")

	_, err := NewValidator().Validate(`{"name":"日本語"}`, s)
	require.NoError(t, err)

	_, err = NewValidator().Validate(`{"name":"日本語です"}`, s)
	requireValidationError(t, err)
}

func TestValidator_TopLevelArray(t *testing.T) {
	s := NewArraySchema(NewIntegerSchema()).WithMaxItems(2)

	res, err := NewValidator().Validate(`[1, 2]`, s)
	require.NoError(t, err)
	assert.JSONEq(t, `[1,2]`, res.String())

	_, err = NewValidator().Validate(`[1, 2, 3]`, s)
	verr := requireValidationError(t, err)
	assert.Equal(t, "", verr.Errors[0].Path)
}

func TestValidator_NilSchema(t *testing.T) {
	_, err := NewValidator().Validate(`{}`, nil)
	requireValidationError(t, err)
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"bare object", `  {"a":1}  `, `{"a":1}`},
		{"bare array", `[1,2]`, `[1,2]`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"fenced without language", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"prose around object", `Sure! {"a":{"b":2}} Hope that helps.`, `{"a":{"b":2}}`},
		{"prose around array", `result: [1,2,3].`, `[1,2,3]`},
		{"nothing", `no json here`, `no json here`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractJSON(tt.raw))
		})
	}
}

func TestValidator_TypelessObjectFailsClosed(t *testing.T) {
	s, err := FromJSON([]byte(`{
	  "properties": {"confidence": {"type": "number", "minimum": 0, "maximum": 1}},
	  "required": ["confidence"]
	}`))
	require.NoError(t, err)

	v := NewValidator()
	verr := requireValidationError(t, mustFail(v.Validate(`{"unrelated":true}`, s)))
	assert.True(t, verr.HasPath("confidence"))

	_, err = v.Validate(`{"confidence":3}`, s)
	requireValidationError(t, err)

	_, err = v.Validate(`[1,2]`, s)
	requireValidationError(t, err)

	res, err := v.Validate(`{"confidence":0.4,"extra":1}`, s)
	require.NoError(t, err)
	assert.JSONEq(t, `{"confidence":0.4}`, string(res.JSON))
}

func TestValidator_TypelessArrayValidatesItems(t *testing.T) {
	s := &JSONSchema{Items: NewIntegerSchema()}
	_, err := NewValidator().Validate(`[1,"two"]`, s)
	verr := requireValidationError(t, err)
	assert.True(t, verr.HasPath("[1]"))
}

func TestValidator_PatternAndFormat(t *testing.T) {
	s, err := FromJSON([]byte(`{
	  "type": "object",
	  "properties": {"start": {"type": "string", "format": "date", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"}},
	  "required": ["start"]
	}`))
	require.NoError(t, err)
	v := NewValidator()

	_, err = v.Validate(`{"start":"not a date"}`, s)
	verr := requireValidationError(t, err)
	require.Len(t, verr.Errors, 2)
	assert.Contains(t, verr.Errors[0].Message, "pattern")
	assert.Contains(t, verr.Errors[1].Message, "format")

	// 形如日期但不存在的日子
	_, err = v.Validate(`{"start":"2024-02-30"}`, s)
	verr = requireValidationError(t, err)
	assert.Contains(t, verr.Error(), `format "date"`)

	_, err = v.Validate(`{"start":"2024-02-29"}`, s)
	assert.NoError(t, err)
}

func TestValidator_BuiltinFormats(t *testing.T) {
	tests := []struct {
		format StringFormat
		good   string
		bad    string
	}{
		{FormatDateTime, "2024-05-01T10:00:00Z", "2024-05-01 10:00"},
		{FormatDate, "2024-05-01", "05/01/2024"},
		{FormatTime, "10:00:00", "25:00:00"},
		{FormatEmail, "a.b@example.com", "not-an-email"},
		{FormatURI, "https://example.com/x", "example.com"},
		{FormatUUID, "123e4567-e89b-12d3-a456-426614174000", "123e4567"},
		{FormatHostname, "api.example.com", "-bad-.com"},
		{FormatIPv4, "192.168.0.1", "256.1.1.1"},
		{FormatIPv6, "2001:db8::1", "192.168.0.1"},
	}
	v := NewValidator()
	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			s := NewStringSchema().WithFormat(tt.format)
			_, err := v.Validate(`"`+tt.good+`"`, s)
			assert.NoError(t, err)
			_, err = v.Validate(`"`+tt.bad+`"`, s)
			requireValidationError(t, err)
		})
	}
}

func TestValidator_CustomFormat(t *testing.T) {
	s := NewStringSchema().WithFormat("sku")

	// 未注册的格式按违规处理
	_, err := NewValidator().Validate(`"AB-1"`, s)
	verr := requireValidationError(t, err)
	assert.Contains(t, verr.Error(), "unknown format")

	isSKU := func(v string) bool { return len(v) == 4 && v[2] == '-' }
	v := NewValidator(WithFormatChecker("sku", isSKU))
	_, err = v.Validate(`"AB-1"`, s)
	assert.NoError(t, err)

	v = NewValidator()
	v.RegisterFormat("sku", isSKU)
	_, err = v.Validate(`"AB1"`, s)
	requireValidationError(t, err)
}

func TestValidator_Rules(t *testing.T) {
	s := NewObjectSchema().
		AddProperty("start", NewStringSchema().WithFormat(FormatDate)).
		AddProperty("end", NewStringSchema().WithFormat(FormatDate)).
		AddRequired("start", "end")

	endAfterStart := func(value any, _ *JSONSchema) []FieldError {
		obj := value.(map[string]any)
		if obj["end"].(string) < obj["start"].(string) {
			return []FieldError{{Path: "end", Expected: "date after start", Message: "end precedes start"}}
		}
		return nil
	}
	called := 0
	counting := func(any, *JSONSchema) []FieldError {
		called++
		return nil
	}
	v := NewValidator(WithRules(endAfterStart, counting))

	_, err := v.Validate(`{"start":"2024-05-02","end":"2024-05-01"}`, s)
	verr := requireValidationError(t, err)
	assert.Equal(t, []string{"end"}, verr.Paths())

	_, err = v.Validate(`{"start":"2024-05-01","end":"2024-05-02"}`, s)
	require.NoError(t, err)

	// 结构校验失败时不运行规则
	_, err = v.Validate(`{"start":"2024-05-01"}`, s)
	requireValidationError(t, err)
	assert.Equal(t, 2, called)
}

func mustFail(_ *Result, err error) error { return err }
