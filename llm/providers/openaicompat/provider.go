// =============================================================================
// StructFlow OpenAI-Compatible Generator
// =============================================================================
// Raw text generator for any endpoint that speaks the OpenAI Chat Completions
// format. Returns the first choice's content untouched; validation and retry
// live in the layers above.
// =============================================================================

package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/structflow/config"
	"github.com/BaSui01/structflow/internal/tlsutil"
	"github.com/BaSui01/structflow/llm"
	"github.com/BaSui01/structflow/llm/providers"
	"github.com/BaSui01/structflow/types"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultEndpointPath = "/v1/chat/completions"
)

// Config holds the configuration for an OpenAI-compatible endpoint.
type Config struct {
	// ProviderName labels errors, logs and metrics (e.g. "deepseek").
	ProviderName string

	APIKey  string
	BaseURL string

	// DefaultModel is used when the request does not name a model.
	DefaultModel string

	// FallbackModel is used when both request and DefaultModel are empty.
	FallbackModel string

	// Timeout is the HTTP client timeout. Defaults to 30s if zero.
	Timeout time.Duration

	// EndpointPath defaults to "/v1/chat/completions".
	EndpointPath string

	// RequestsPerSecond enables a client-side token bucket when positive.
	RequestsPerSecond float64
	Burst             int

	// JSONMode sets response_format to json_object.
	JSONMode bool

	// BuildHeaders overrides the default bearer token headers.
	BuildHeaders func(req *http.Request, apiKey string)

	// RequestHook can adjust the wire body before it is sent.
	RequestHook func(req *llm.Request, body *providers.ChatRequest)
}

// FromConfig 把 provider 配置段转换为 Config，空字段由同名预设补齐
func FromConfig(cfg config.ProviderConfig) Config {
	out := Config{
		ProviderName:      cfg.Name,
		APIKey:            cfg.APIKey,
		BaseURL:           cfg.BaseURL,
		DefaultModel:      cfg.Model,
		Timeout:           cfg.Timeout,
		EndpointPath:      cfg.EndpointPath,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
		JSONMode:          cfg.JSONMode,
	}
	if preset, ok := providers.LookupPreset(cfg.Name); ok {
		if out.BaseURL == "" {
			out.BaseURL = preset.BaseURL
		}
		if out.EndpointPath == "" {
			out.EndpointPath = preset.EndpointPath
		}
		out.FallbackModel = preset.FallbackModel
	}
	return out
}

// RequestRecorder receives one observation per HTTP round trip.
// *metrics.Collector satisfies it.
type RequestRecorder interface {
	RecordLLMRequest(provider, model string, status int, duration time.Duration, promptTokens, completionTokens int)
}

// Option configures a Provider.
type Option func(*Provider)

// WithHTTPClient replaces the hardened default client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		if c != nil {
			p.Client = c
		}
	}
}

// WithRecorder attaches a request recorder.
func WithRecorder(r RequestRecorder) Option {
	return func(p *Provider) { p.recorder = r }
}

// Provider implements llm.Generator over an OpenAI-compatible endpoint.
type Provider struct {
	Cfg      Config
	Client   *http.Client
	Logger   *zap.Logger
	limiter  *rate.Limiter
	recorder RequestRecorder
}

var _ llm.Generator = (*Provider)(nil)

// New creates a Provider with the given config.
func New(cfg Config, logger *zap.Logger, opts ...Option) *Provider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = defaultEndpointPath
	}
	if cfg.ProviderName == "" {
		cfg.ProviderName = "openai-compatible"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Provider{
		Cfg:    cfg,
		Client: tlsutil.SecureHTTPClient(timeout),
		Logger: logger.With(zap.String("component", "provider"), zap.String("provider", cfg.ProviderName)),
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the provider name.
func (p *Provider) Name() string { return p.Cfg.ProviderName }

func (p *Provider) buildHeaders(req *http.Request) {
	if p.Cfg.BuildHeaders != nil {
		p.Cfg.BuildHeaders(req, p.Cfg.APIKey)
		return
	}
	providers.BearerTokenHeaders(req, p.Cfg.APIKey)
}

func (p *Provider) endpoint() string {
	return strings.TrimRight(p.Cfg.BaseURL, "/") + p.Cfg.EndpointPath
}

// Generate sends one chat completion and returns the raw content of the
// first choice.
func (p *Provider) Generate(ctx context.Context, req *llm.Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", types.NewCancelledError(ctxErr)
			}
			// 等待时间超过截止时间
			return "", types.NewError(types.ErrRateLimited, err.Error()).
				WithRetryable(true).
				WithProvider(p.Name())
		}
	}

	body := p.buildBody(req)
	payload, err := marshalBody(body, req.Options.Extra)
	if err != nil {
		return "", types.NewError(types.ErrInvalidRequest, "failed to marshal request").
			WithCause(err).
			WithProvider(p.Name())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(), bytes.NewReader(payload))
	if err != nil {
		return "", types.NewError(types.ErrInvalidRequest, "failed to create request").
			WithCause(err).
			WithProvider(p.Name())
	}
	p.buildHeaders(httpReq)

	start := time.Now()
	resp, err := p.Client.Do(httpReq)
	if err != nil {
		p.record(body.Model, 0, start, nil)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", types.NewCancelledError(ctxErr)
		}
		return "", types.NewTransportError("request failed", err).
			WithHTTPStatus(http.StatusBadGateway).
			WithProvider(p.Name())
	}
	defer providers.SafeCloseBody(resp.Body)

	if resp.StatusCode >= 400 {
		p.record(body.Model, resp.StatusCode, start, nil)
		msg := providers.ReadErrorMessage(resp.Body)
		p.Logger.Debug("upstream returned error",
			zap.Int("status", resp.StatusCode),
			zap.String("message", msg),
		)
		return "", providers.MapHTTPError(resp.StatusCode, msg, p.Name())
	}

	var oaResp providers.ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&oaResp); err != nil {
		p.record(body.Model, resp.StatusCode, start, nil)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", types.NewCancelledError(ctxErr)
		}
		return "", types.NewTransportError("failed to decode response", err).
			WithHTTPStatus(http.StatusBadGateway).
			WithProvider(p.Name())
	}
	p.record(body.Model, resp.StatusCode, start, oaResp.Usage)

	if len(oaResp.Choices) == 0 {
		return "", types.NewTransportError("response has no choices", errors.New("empty choices")).
			WithProvider(p.Name())
	}
	return oaResp.Choices[0].Message.Content, nil
}

func (p *Provider) buildBody(req *llm.Request) providers.ChatRequest {
	messages := make([]providers.ChatMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, providers.ChatMessage{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, providers.ChatMessage{Role: "user", Content: req.Prompt})

	body := providers.ChatRequest{
		Model:       providers.ChooseModel(req.Options.Model, p.Cfg.DefaultModel, p.Cfg.FallbackModel),
		Messages:    messages,
		MaxTokens:   req.Options.MaxTokens,
		Temperature: req.Options.Temperature,
		TopP:        req.Options.TopP,
		Stop:        req.Options.Stop,
	}
	if p.Cfg.JSONMode {
		body.ResponseFormat = &providers.ResponseFormat{Type: "json_object"}
	}
	if p.Cfg.RequestHook != nil {
		p.Cfg.RequestHook(req, &body)
	}
	return body
}

// marshalBody 序列化请求体，Extra 中的字段只补充、不覆盖已有字段
func marshalBody(body providers.ChatRequest, extra map[string]any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil || len(extra) == 0 {
		return payload, err
	}

	var merged map[string]any
	if err := json.Unmarshal(payload, &merged); err != nil {
		return nil, err
	}
	for k, v := range extra {
		if _, exists := merged[k]; !exists {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

func (p *Provider) record(model string, status int, start time.Time, usage *providers.ChatUsage) {
	if p.recorder == nil {
		return
	}
	var promptTokens, completionTokens int
	if usage != nil {
		promptTokens, completionTokens = usage.PromptTokens, usage.CompletionTokens
	}
	p.recorder.RecordLLMRequest(p.Name(), model, status, time.Since(start), promptTokens, completionTokens)
}

// String is used in log lines.
func (p *Provider) String() string {
	return fmt.Sprintf("%s(%s)", p.Name(), p.endpoint())
}
