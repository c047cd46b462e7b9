package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/structflow/llm"
	"github.com/BaSui01/structflow/schema"
	"github.com/BaSui01/structflow/types"
)

// Outcome 单次尝试的结果分类
type Outcome string

const (
	OutcomeSuccess           Outcome = "success"
	OutcomeValidationFailure Outcome = "validation_failure"
	OutcomeTransportFailure  Outcome = "transport_failure"
)

// AttemptRecord 记录一次尝试, 仅在单次 Call 内存活
type AttemptRecord struct {
	Attempt  int           `json:"attempt"`         // 从 1 开始
	Delay    time.Duration `json:"delay,omitempty"` // 本次失败后的退避时间, 终止时为 0
	Outcome  Outcome       `json:"outcome"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration"`
}

// ErrExhausted 可用 errors.Is 匹配任何 *ExhaustedError
var ErrExhausted = errors.New("retry budget exhausted")

// ExhaustedError 重试用尽或遇到不可重试错误时返回
type ExhaustedError struct {
	Attempts     int
	MaxAttempts  int
	NonRetryable bool
	Last         error
	Records      []AttemptRecord
}

func (e *ExhaustedError) Error() string {
	if e.NonRetryable {
		return fmt.Sprintf("non-retryable failure after %d of %d attempts: %v", e.Attempts, e.MaxAttempts, e.Last)
	}
	return fmt.Sprintf("all %d attempts failed: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// Is 使 errors.Is(err, ErrExhausted) 成立
func (e *ExhaustedError) Is(target error) bool { return target == ErrExhausted }

// ValidationError 返回最后一次失败的校验错误(若最后一次是校验失败)
func (e *ExhaustedError) ValidationError() (*schema.ValidationError, bool) {
	var verr *schema.ValidationError
	if errors.As(e.Last, &verr) {
		return verr, true
	}
	return nil, false
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent 标记一个错误为不可重试, 无论策略如何都立即终止
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent 检查错误是否经 Permanent 标记
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// NonRetryableTransport 是现成的 NonRetryable 谓词: 明确标记为不可重试的
// *types.Error (如 401, 400) 立即终止, 校验失败照常重试
func NonRetryableTransport(err error) bool {
	var e *types.Error
	if errors.As(err, &e) {
		return !e.Retryable
	}
	return false
}

// Caller 驱动 "生成 → 校验 → 退避" 循环
type Caller struct {
	policy    Policy
	validator schema.Validator
	logger    *zap.Logger
}

// Option 配置 Caller
type Option func(*Caller)

// WithPolicy 设置重试策略
func WithPolicy(p Policy) Option {
	return func(c *Caller) { c.policy = p }
}

// NewCaller 创建 Caller. validator 为 nil 时使用 schema.NewValidator()
func NewCaller(validator schema.Validator, logger *zap.Logger, opts ...Option) *Caller {
	if validator == nil {
		validator = schema.NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Caller{
		policy:    DefaultPolicy(),
		validator: validator,
		logger:    logger.With(zap.String("component", "retry")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Policy 返回当前策略
func (c *Caller) Policy() Policy { return c.policy }

// Using 返回使用策略 p 的副本, 供单次调用覆盖默认值
func (c *Caller) Using(p Policy) *Caller {
	cp := *c
	cp.policy = p
	return &cp
}

// Call 反复调用 gen 并校验, 直到得到合法结果或用尽尝试次数.
// 原始文本永远不会返回给调用方. 取消返回 types.ErrCancelled, 而非 *ExhaustedError.
func (c *Caller) Call(ctx context.Context, req *llm.Request, s *schema.JSONSchema, gen llm.Generator) (*schema.Result, error) {
	p := c.policy
	if err := p.Validate(); err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "invalid retry policy").WithCause(err)
	}
	if gen == nil {
		return nil, types.NewError(types.ErrInvalidRequest, "generator is nil")
	}

	logger := c.logger
	if id, ok := types.CallID(ctx); ok {
		logger = logger.With(zap.String("call_id", id))
	}

	records := make([]AttemptRecord, 0, p.MaxAttempts)
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, types.NewCancelledError(err)
		}

		start := time.Now()
		rec := AttemptRecord{Attempt: attempt + 1}

		raw, err := gen.Generate(ctx, req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, types.NewCancelledError(ctxErr)
			}
			rec.Outcome = OutcomeTransportFailure
			rec.Err = asTransport(err)
		} else {
			res, verr := c.validator.Validate(raw, s)
			if verr == nil {
				rec.Outcome = OutcomeSuccess
				rec.Duration = time.Since(start)
				if attempt > 0 {
					logger.Info("重试成功",
						zap.Int("attempt", rec.Attempt),
						zap.String("schema", s.Label()),
					)
				}
				return res, nil
			}
			rec.Outcome = OutcomeValidationFailure
			rec.Err = verr
		}
		rec.Duration = time.Since(start)

		if IsPermanent(rec.Err) || (p.NonRetryable != nil && p.NonRetryable(rec.Err)) {
			records = append(records, rec)
			logger.Warn("错误不可重试",
				zap.Int("attempt", rec.Attempt),
				zap.String("outcome", string(rec.Outcome)),
				zap.Error(rec.Err),
			)
			return nil, c.exhausted(p, records, true)
		}

		if rec.Attempt >= p.MaxAttempts {
			records = append(records, rec)
			logger.Warn("重试次数耗尽",
				zap.Int("attempts", rec.Attempt),
				zap.String("outcome", string(rec.Outcome)),
				zap.Error(rec.Err),
			)
			return nil, c.exhausted(p, records, false)
		}

		rec.Delay = p.Delay(attempt)
		records = append(records, rec)
		logger.Debug("重试中",
			zap.Int("attempt", rec.Attempt),
			zap.Int("max_attempts", p.MaxAttempts),
			zap.String("outcome", string(rec.Outcome)),
			zap.Duration("delay", rec.Delay),
			zap.Error(rec.Err),
		)
		if p.OnRetry != nil {
			p.OnRetry(rec)
		}

		if err := sleep(ctx, rec.Delay); err != nil {
			return nil, types.NewCancelledError(err)
		}
	}
}

func (c *Caller) exhausted(p Policy, records []AttemptRecord, nonRetryable bool) *ExhaustedError {
	last := records[len(records)-1]
	return &ExhaustedError{
		Attempts:     len(records),
		MaxAttempts:  p.MaxAttempts,
		NonRetryable: nonRetryable,
		Last:         last.Err,
		Records:      records,
	}
}

// sleep 等待 d, 同时监听 ctx 取消
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func asTransport(err error) error {
	var te *types.Error
	if errors.As(err, &te) {
		return err
	}
	return types.NewTransportError("generation failed", err)
}
