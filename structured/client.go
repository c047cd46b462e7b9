package structured

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/BaSui01/structflow/llm"
	"github.com/BaSui01/structflow/llm/cache"
	"github.com/BaSui01/structflow/llm/retry"
	"github.com/BaSui01/structflow/schema"
	"github.com/BaSui01/structflow/types"
)

// TracerName 默认 tracer 名称
const TracerName = "github.com/BaSui01/structflow/structured"

// MetricsRecorder 接收调用、尝试、重试与缓存事件
type MetricsRecorder interface {
	cache.MetricsRecorder
	RecordCall(schema, outcome string, duration time.Duration)
	RecordAttempt(outcome string)
	RecordRetry(reason string)
}

// Client 组合 校验 → 重试 → 缓存 三层，对外只暴露 Generate。
// 可被多个 goroutine 并发使用。
type Client struct {
	gen          llm.Generator
	caller       *retry.Caller
	cache        *cache.ResponseCache
	keys         cache.KeyStrategy
	policy       retry.Policy
	logger       *zap.Logger
	metrics      MetricsRecorder
	tracer       trace.Tracer
	instructions bool
}

// New 用原始生成器创建 Client
func New(gen llm.Generator, opts ...Option) (*Client, error) {
	if gen == nil {
		return nil, types.NewError(types.ErrInvalidRequest, "generator cannot be nil")
	}

	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}
	if err := s.policy.Validate(); err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "invalid default policy").WithCause(err)
	}
	if s.store != nil && !s.cacheEnabled {
		return nil, types.NewError(types.ErrInvalidRequest, "store requires the cache to be enabled")
	}

	logger := s.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "structured"))

	metrics := s.metrics
	if metrics == nil {
		metrics = nopMetrics{}
	}
	tracer := s.tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer(TracerName)
	}
	keys := s.keys
	if keys == nil {
		keys = cache.NewHashKeyStrategy()
	}
	validator := s.validator
	if validator == nil {
		validator = schema.NewValidator()
	}

	chain := llm.NewChain(s.middleware...)
	chain.Use(llm.RecoveryMiddleware(func(v any) {
		logger.Error("generator panicked", zap.Any("panic", v))
	}))
	chain.Use(llm.TimeoutMiddleware(s.attemptTimeout))
	chain.Use(transportMetricsMiddleware(metrics))
	chain.Use(llm.LoggingMiddleware(logger))

	c := &Client{
		gen:          chain.Then(gen),
		caller:       retry.NewCaller(recordingValidator{inner: validator, metrics: metrics}, logger),
		keys:         keys,
		policy:       s.policy,
		logger:       logger,
		metrics:      metrics,
		tracer:       tracer,
		instructions: s.instructions,
	}
	if s.cacheEnabled {
		cacheOpts := []cache.Option{cache.WithLogger(logger), cache.WithMetrics(metrics)}
		if s.store != nil {
			cacheOpts = append(cacheOpts, cache.WithStore(s.store))
		}
		c.cache = cache.New(s.cacheConfig, cacheOpts...)
	}
	return c, nil
}

// Generate 返回通过 s 校验的结果。同一指纹的并发调用只触发一次生成；
// 失败总是 *ClientError。
func (c *Client) Generate(ctx context.Context, req *llm.Request, s *schema.JSONSchema, opts ...CallOption) (*schema.Result, error) {
	cs := callSettings{policy: c.policy, useCache: true}
	for _, opt := range opts {
		opt(&cs)
	}

	start := time.Now()
	label := s.Label()

	if err := validateInput(req, s, cs.policy); err != nil {
		c.metrics.RecordCall(label, OutcomeInvalid, time.Since(start))
		return nil, newClientError("", err)
	}

	fp := c.keys.Key(req, s)
	callID := uuid.NewString()
	ctx = types.WithCallID(ctx, callID)

	ctx, span := c.tracer.Start(ctx, "structured.generate", trace.WithAttributes(
		attribute.String("structflow.call_id", callID),
		attribute.String("structflow.schema", label),
		attribute.String("structflow.fingerprint", fp),
		attribute.Bool("structflow.use_cache", cs.useCache),
		attribute.Int("structflow.max_attempts", cs.policy.MaxAttempts),
	))
	defer span.End()

	if cs.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cs.timeout)
		defer cancel()
	}

	policy := c.instrument(cs.policy)
	prompt := c.promptFor(req, s)
	compute := func(ctx context.Context) (*schema.Result, error) {
		return c.caller.Using(policy).Call(ctx, prompt, s, c.gen)
	}

	var (
		res *schema.Result
		err error
	)
	switch {
	case c.cache == nil:
		res, err = compute(ctx)
	case cs.useCache:
		res, err = c.cache.GetOrCompute(ctx, fp, compute)
	default:
		res, err = c.cache.Refresh(ctx, fp, compute)
	}

	outcome := classify(err)
	elapsed := time.Since(start)
	c.metrics.RecordCall(label, outcome, elapsed)
	span.SetAttributes(attribute.String("structflow.outcome", outcome))

	logger := c.logger.With(
		zap.String("call_id", callID),
		zap.String("schema", label),
		zap.String("fingerprint", fp),
	)
	if err != nil {
		ce := newClientError(fp, err)
		span.SetAttributes(attribute.Int("structflow.attempts", ce.Attempts))
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		logger.Info("structured call failed",
			zap.String("outcome", outcome),
			zap.Int("attempts", ce.Attempts),
			zap.Duration("duration", elapsed),
			zap.Error(err),
		)
		return nil, ce
	}

	span.SetStatus(codes.Ok, "")
	logger.Debug("structured call completed", zap.Duration("duration", elapsed))
	return res, nil
}

// Fingerprint 返回 Generate 会使用的缓存键
func (c *Client) Fingerprint(req *llm.Request, s *schema.JSONSchema) string {
	return c.keys.Key(req, s)
}

// ClearCache 同步清空缓存（含二级存储）；未启用缓存时为空操作
func (c *Client) ClearCache(ctx context.Context) error {
	if c.cache == nil {
		return nil
	}
	return c.cache.Clear(ctx)
}

// Forget 删除单个请求的缓存结果
func (c *Client) Forget(ctx context.Context, req *llm.Request, s *schema.JSONSchema) error {
	if c.cache == nil {
		return nil
	}
	return c.cache.Delete(ctx, c.keys.Key(req, s))
}

// CacheStats 返回缓存统计；未启用缓存时 ok 为 false
func (c *Client) CacheStats() (stats cache.Stats, ok bool) {
	if c.cache == nil {
		return cache.Stats{}, false
	}
	return c.cache.Stats(), true
}

// Policy 返回默认重试策略
func (c *Client) Policy() retry.Policy {
	return c.policy
}

func validateInput(req *llm.Request, s *schema.JSONSchema, p retry.Policy) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if s == nil {
		return types.NewError(types.ErrInvalidRequest, "schema is nil")
	}
	if err := s.Check(); err != nil {
		return types.NewError(types.ErrInvalidRequest, "schema is malformed").WithCause(err)
	}
	if err := p.Validate(); err != nil {
		return types.NewError(types.ErrInvalidRequest, "invalid retry policy").WithCause(err)
	}
	return nil
}

// promptFor 把 schema 说明追加到系统提示词，返回副本；指纹仍基于原请求
func (c *Client) promptFor(req *llm.Request, s *schema.JSONSchema) *llm.Request {
	if !c.instructions {
		return req
	}
	instr := schema.Instructions(s)
	if instr == "" {
		return req
	}
	out := req.Clone()
	if out.SystemPrompt == "" {
		out.SystemPrompt = instr
	} else {
		out.SystemPrompt += "\n\n" + instr
	}
	return out
}

// instrument 在调用方的 OnRetry 之前记录重试指标
func (c *Client) instrument(p retry.Policy) retry.Policy {
	hook := p.OnRetry
	p.OnRetry = func(rec retry.AttemptRecord) {
		c.metrics.RecordRetry(string(rec.Outcome))
		if hook != nil {
			hook(rec)
		}
	}
	return p
}

// =============================================================================
// 指标采集
// =============================================================================

type recordingValidator struct {
	inner   schema.Validator
	metrics MetricsRecorder
}

func (v recordingValidator) Validate(raw string, s *schema.JSONSchema) (*schema.Result, error) {
	res, err := v.inner.Validate(raw, s)
	if err != nil {
		v.metrics.RecordAttempt(string(retry.OutcomeValidationFailure))
		return nil, err
	}
	v.metrics.RecordAttempt(string(retry.OutcomeSuccess))
	return res, nil
}

func transportMetricsMiddleware(m MetricsRecorder) llm.Middleware {
	return func(next llm.Generator) llm.Generator {
		return llm.GeneratorFunc(func(ctx context.Context, req *llm.Request) (string, error) {
			raw, err := next.Generate(ctx, req)
			if err != nil && !errors.Is(ctx.Err(), context.Canceled) {
				m.RecordAttempt(string(retry.OutcomeTransportFailure))
			}
			return raw, err
		})
	}
}

type nopMetrics struct{}

func (nopMetrics) RecordCacheLookup(string)                 {}
func (nopMetrics) RecordCacheEviction(int)                  {}
func (nopMetrics) RecordCall(string, string, time.Duration) {}
func (nopMetrics) RecordAttempt(string)                     {}
func (nopMetrics) RecordRetry(string)                       {}
