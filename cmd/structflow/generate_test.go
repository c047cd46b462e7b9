package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/structflow/llm/providers"
)

const sentimentSchemaJSON = `{
  "type": "object",
  "title": "SentimentResult",
  "properties": {
    "label": {"type": "string", "enum": ["positive", "negative", "neutral"]},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "summary": {"type": "string"}
  },
  "required": ["label", "confidence", "summary"]
}`

// fakeUpstream 模拟 OpenAI 兼容接口: 提示词含 "broken" 时总是返回越界的置信度
func fakeUpstream(t *testing.T, calls *atomic.Int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req providers.ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		user := req.Messages[len(req.Messages)-1].Content

		content := `{"label":"positive","confidence":0.8,"summary":"` + user + `"}`
		if strings.Contains(user, "broken") {
			content = `{"label":"positive","confidence":7,"summary":"x"}`
		}
		_ = json.NewEncoder(w).Encode(providers.ChatResponse{
			ID:      "chatcmpl-test",
			Model:   req.Model,
			Choices: []providers.ChatChoice{{Message: providers.ChatMessage{Role: "assistant", Content: content}}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func setupFiles(t *testing.T, upstream string) (configPath, schemaPath string) {
	t.Helper()
	dir := t.TempDir()
	configPath = writeFile(t, dir, "structflow.yaml", `
client:
  max_attempts: 2
  base_delay: 1ms
provider:
  base_url: "`+upstream+`"
  model: test-model
log:
  level: error
`)
	schemaPath = writeFile(t, dir, "sentiment.json", sentimentSchemaJSON)
	return configPath, schemaPath
}

func TestRunGenerate_Batch(t *testing.T) {
	var calls atomic.Int64
	srv := fakeUpstream(t, &calls)
	configPath, schemaPath := setupFiles(t, srv.URL)
	promptsPath := writeFile(t, t.TempDir(), "prompts.txt", "# comment\nfirst\n\nsecond\nfirst\n")

	var out bytes.Buffer
	err := runGenerate(context.Background(), []string{
		"--config", configPath,
		"--schema", schemaPath,
		"--prompts", promptsPath,
		"--concurrency", "1",
	}, &out)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.JSONEq(t, `{"label":"positive","confidence":0.8,"summary":"first"}`, lines[0])
	assert.JSONEq(t, `{"label":"positive","confidence":0.8,"summary":"second"}`, lines[1])
	assert.Equal(t, lines[0], lines[2])
	// 重复的提示词命中缓存
	assert.Equal(t, int64(2), calls.Load())
}

func TestRunGenerate_PartialFailure(t *testing.T) {
	var calls atomic.Int64
	srv := fakeUpstream(t, &calls)
	configPath, schemaPath := setupFiles(t, srv.URL)
	promptsPath := writeFile(t, t.TempDir(), "prompts.txt", "fine\nbroken\n")

	var out bytes.Buffer
	err := runGenerate(context.Background(), []string{
		"--config", configPath,
		"--schema", schemaPath,
		"--prompts", promptsPath,
	}, &out)
	require.ErrorIs(t, err, errPartialFailure)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"fine"`)
	// 1 次成功 + 2 次失败尝试
	assert.Equal(t, int64(3), calls.Load())
}

func TestRunGenerate_SinglePromptOverrides(t *testing.T) {
	var calls atomic.Int64
	srv := fakeUpstream(t, &calls)
	configPath, schemaPath := setupFiles(t, srv.URL)

	var out bytes.Buffer
	err := runGenerate(context.Background(), []string{
		"--config", configPath,
		"--schema", schemaPath,
		"--prompt", "broken",
		"--max-attempts", "1",
		"--no-cache",
	}, &out)
	require.ErrorIs(t, err, errPartialFailure)
	assert.Empty(t, out.String())
	assert.Equal(t, int64(1), calls.Load())
}

func TestRunGenerate_BadInputs(t *testing.T) {
	dir := t.TempDir()
	badSchema := writeFile(t, dir, "bad.json", `{"type":"array"}`)
	emptyPrompts := writeFile(t, dir, "empty.txt", "# nothing\n")
	goodSchema := writeFile(t, dir, "good.json", sentimentSchemaJSON)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "missing schema", args: []string{"--prompt", "x"}, wantErr: "--schema"},
		{name: "missing prompt", args: []string{"--schema", goodSchema}, wantErr: "--prompt"},
		{name: "both prompts", args: []string{"--schema", goodSchema, "--prompt", "x", "--prompts", emptyPrompts}, wantErr: "mutually exclusive"},
		{name: "bad concurrency", args: []string{"--schema", goodSchema, "--prompt", "x", "--concurrency", "0"}, wantErr: "--concurrency"},
		{name: "malformed schema", args: []string{"--schema", badSchema, "--prompt", "x"}, wantErr: "items"},
		{name: "no prompts", args: []string{"--schema", goodSchema, "--prompts", emptyPrompts}, wantErr: "no prompts"},
		{name: "missing file", args: []string{"--schema", filepath.Join(dir, "nope.json"), "--prompt", "x"}, wantErr: "read schema"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := runGenerate(context.Background(), tt.args, &bytes.Buffer{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestReadPrompts(t *testing.T) {
	input := strings.Join([]string{
		"  plain prompt  ",
		"# skipped",
		"",
		`"line one\nline two"`,
	}, "\n")

	prompts, err := readPrompts(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []string{"plain prompt", "line one\nline two"}, prompts)

	_, err = readPrompts(strings.NewReader(`"unterminated`))
	assert.Error(t, err)
}
