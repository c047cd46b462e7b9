package providers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/BaSui01/structflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapHTTPError(t *testing.T) {
	tests := []struct {
		status    int
		msg       string
		code      types.ErrorCode
		retryable bool
	}{
		{http.StatusUnauthorized, "bad key", types.ErrUnauthorized, false},
		{http.StatusForbidden, "nope", types.ErrForbidden, false},
		{http.StatusTooManyRequests, "slow", types.ErrRateLimited, true},
		{http.StatusBadRequest, "Insufficient quota", types.ErrQuotaExceeded, false},
		{http.StatusBadRequest, "out of credit", types.ErrQuotaExceeded, false},
		{http.StatusBadRequest, "bad field", types.ErrInvalidRequest, false},
		{http.StatusRequestTimeout, "timeout", types.ErrUpstreamTimeout, true},
		{http.StatusGatewayTimeout, "timeout", types.ErrUpstreamTimeout, true},
		{http.StatusBadGateway, "bad gateway", types.ErrUpstreamError, true},
		{http.StatusServiceUnavailable, "down", types.ErrUpstreamError, true},
		{529, "overloaded", types.ErrModelOverloaded, true},
		{http.StatusInternalServerError, "boom", types.ErrUpstreamError, true},
		{http.StatusNotFound, "missing", types.ErrUpstreamError, false},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status)+"/"+tt.msg, func(t *testing.T) {
			err := MapHTTPError(tt.status, tt.msg, "p")
			assert.Equal(t, tt.code, err.Code)
			assert.Equal(t, tt.retryable, err.Retryable)
			assert.Equal(t, tt.status, err.HTTPStatus)
			assert.Equal(t, "p", err.Provider)
			assert.Equal(t, tt.msg, err.Message)
		})
	}
}

func TestReadErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"openai style", `{"error":{"message":"bad key"}}`, "bad key"},
		{"with type", `{"error":{"message":"bad","type":"invalid_request_error"}}`, "bad (type: invalid_request_error)"},
		{"plain text", "  gateway exploded \n", "gateway exploded"},
		{"json without message", `{"detail":"x"}`, `{"detail":"x"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ReadErrorMessage(strings.NewReader(tt.body)))
		})
	}
}

func TestReadErrorMessage_Truncates(t *testing.T) {
	msg := ReadErrorMessage(strings.NewReader(strings.Repeat("x", maxErrorBody*2)))
	assert.Len(t, msg, maxErrorBody)
}

func TestChooseModel(t *testing.T) {
	assert.Equal(t, "req", ChooseModel("req", "def", "fb"))
	assert.Equal(t, "def", ChooseModel("", "def", "fb"))
	assert.Equal(t, "fb", ChooseModel("", "", "fb"))
}

func TestBearerTokenHeaders(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	BearerTokenHeaders(r, "sk")
	assert.Equal(t, "Bearer sk", r.Header.Get("Authorization"))
	assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

	r = httptest.NewRequest(http.MethodPost, "/", nil)
	BearerTokenHeaders(r, "")
	assert.Empty(t, r.Header.Get("Authorization"))
}

func TestLookupPreset(t *testing.T) {
	p, ok := LookupPreset(" DeepSeek ")
	require.True(t, ok)
	assert.Equal(t, "https://api.deepseek.com", p.BaseURL)

	_, ok = LookupPreset("unknown")
	assert.False(t, ok)

	names := PresetNames()
	assert.Contains(t, names, "openai")
	assert.IsIncreasing(t, names)
}
