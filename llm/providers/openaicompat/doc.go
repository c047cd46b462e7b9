// Package openaicompat implements llm.Generator for any endpoint that speaks
// the OpenAI Chat Completions format (OpenAI, DeepSeek, Qwen, GLM, vLLM, ...).
//
// The generator returns the raw content of the first choice. It applies an
// optional client-side rate limit (golang.org/x/time/rate), can request JSON
// mode, and maps HTTP failures to types.Error with a retryable flag so the
// retry layer can tell transient failures from permanent ones.
//
// Usage:
//
//	gen := openaicompat.New(openaicompat.FromConfig(cfg.Provider), logger,
//	    openaicompat.WithRecorder(collector),
//	)
package openaicompat
