package llm

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/BaSui01/structflow/types"
)

// GenerationOptions are the sampling parameters forwarded to the backend.
// They take part in the request fingerprint, so two requests that differ only
// in temperature never share a cached result.
type GenerationOptions struct {
	Model       string         `json:"model,omitempty" yaml:"model"`
	MaxTokens   int            `json:"max_tokens,omitempty" yaml:"max_tokens"`
	Temperature *float64       `json:"temperature,omitempty" yaml:"temperature"`
	TopP        *float64       `json:"top_p,omitempty" yaml:"top_p"`
	Stop        []string       `json:"stop,omitempty" yaml:"stop"`
	Extra       map[string]any `json:"extra,omitempty" yaml:"extra"`
}

// Request is one structured generation request. It is treated as immutable
// once handed to a client.
type Request struct {
	Prompt       string            `json:"prompt"`
	SystemPrompt string            `json:"system_prompt,omitempty"`
	Options      GenerationOptions `json:"options"`
}

// NewRequest creates a request for prompt.
func NewRequest(prompt string) *Request {
	return &Request{Prompt: prompt}
}

// WithSystemPrompt sets the system prompt and returns the request for chaining.
func (r *Request) WithSystemPrompt(system string) *Request {
	r.SystemPrompt = system
	return r
}

// WithModel sets the model and returns the request for chaining.
func (r *Request) WithModel(model string) *Request {
	r.Options.Model = model
	return r
}

// WithTemperature sets the sampling temperature and returns the request for chaining.
func (r *Request) WithTemperature(t float64) *Request {
	r.Options.Temperature = &t
	return r
}

// Validate reports requests that can never succeed.
func (r *Request) Validate() error {
	if r == nil {
		return types.NewError(types.ErrInvalidRequest, "request is nil")
	}
	if strings.TrimSpace(r.Prompt) == "" {
		return types.NewError(types.ErrInvalidRequest, "prompt is empty")
	}
	if r.Options.MaxTokens < 0 {
		return types.NewError(types.ErrInvalidRequest, "max_tokens must not be negative")
	}
	// 选项参与指纹计算, 必须能稳定地编码为 JSON
	if _, err := json.Marshal(r.Options); err != nil {
		return types.NewError(types.ErrInvalidRequest, "options are not JSON-encodable").WithCause(err)
	}
	return nil
}

// Clone returns a deep copy, so a caller can derive a variant without
// touching a request another goroutine may still be reading.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	c := *r
	if r.Options.Temperature != nil {
		t := *r.Options.Temperature
		c.Options.Temperature = &t
	}
	if r.Options.TopP != nil {
		p := *r.Options.TopP
		c.Options.TopP = &p
	}
	if r.Options.Stop != nil {
		c.Options.Stop = append([]string(nil), r.Options.Stop...)
	}
	if r.Options.Extra != nil {
		c.Options.Extra = make(map[string]any, len(r.Options.Extra))
		for k, v := range r.Options.Extra {
			c.Options.Extra[k] = v
		}
	}
	return &c
}

// Generator produces one raw text payload per call. Implementations must be
// safe for concurrent use and honour ctx.
type Generator interface {
	Generate(ctx context.Context, req *Request) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req *Request) (string, error)

// Generate implements Generator.
func (f GeneratorFunc) Generate(ctx context.Context, req *Request) (string, error) {
	return f(ctx, req)
}
