package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/structflow/llm"
	"github.com/BaSui01/structflow/types"
)

// State 熔断器状态
type State int

const (
	// StateClosed 关闭状态（正常工作）
	StateClosed State = iota
	// StateOpen 打开状态（熔断中）
	StateOpen
	// StateHalfOpen 半开状态（试探性恢复）
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "Closed"
	case StateOpen:
		return "Open"
	case StateHalfOpen:
		return "HalfOpen"
	default:
		return "Unknown"
	}
}

// Config 熔断器配置
type Config struct {
	// Threshold 连续传输失败次数阈值（触发熔断）
	Threshold int

	// ResetTimeout 熔断恢复等待时间（从 Open -> HalfOpen）
	ResetTimeout time.Duration

	// HalfOpenMaxCalls 半开状态下允许的最大试探请求数
	HalfOpenMaxCalls int

	// OnStateChange 状态变更回调，在锁外同步调用
	OnStateChange func(from State, to State)
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Threshold:        5,
		ResetTimeout:     60 * time.Second,
		HalfOpenMaxCalls: 1,
	}
}

// 错误定义
var (
	ErrCircuitOpen            = errors.New("circuit breaker is open")
	ErrTooManyCallsInHalfOpen = errors.New("too many calls while half-open")
)

// Breaker 保护一个上游生成器。只有传输层失败计入熔断，
// 校验失败的载荷对上游而言是一次成功的调用。
type Breaker struct {
	config Config
	logger *zap.Logger
	now    func() time.Time

	mu                sync.Mutex
	state             State
	failureCount      int       // 连续失败次数
	openedAt          time.Time // 最近一次进入 Open 的时间
	halfOpenCallCount int       // 半开状态下放行的调用数
}

// New 创建熔断器，非法参数回退为默认值
func New(cfg Config, logger *zap.Logger) *Breaker {
	def := DefaultConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = def.ResetTimeout
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = def.HalfOpenMaxCalls
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Breaker{
		config: cfg,
		logger: logger.With(zap.String("component", "circuit_breaker")),
		now:    time.Now,
		state:  StateClosed,
	}
}

// Middleware 把熔断器挂到生成器链上。熔断期间直接返回可重试的
// UPSTREAM_ERROR，重试循环的退避会给上游留出恢复时间。
func Middleware(b *Breaker) llm.Middleware {
	return func(next llm.Generator) llm.Generator {
		return llm.GeneratorFunc(func(ctx context.Context, req *llm.Request) (string, error) {
			if err := b.beforeCall(); err != nil {
				return "", types.NewError(types.ErrUpstreamError, "upstream isolated by circuit breaker").
					WithCause(err).
					WithRetryable(true)
			}
			raw, err := next.Generate(ctx, req)
			b.afterCall(ctx, err)
			return raw, err
		})
	}
}

// countsAsFailure 判断错误是否计入熔断。调用方错误与取消不计入。
func countsAsFailure(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() != nil || types.IsCancelled(err) {
		return false
	}
	switch types.GetErrorCode(err) {
	case types.ErrInvalidRequest, types.ErrUnauthorized, types.ErrForbidden, types.ErrQuotaExceeded:
		return false
	}
	return true
}

func (b *Breaker) beforeCall() error {
	b.mu.Lock()
	var change func()
	defer func() {
		b.mu.Unlock()
		if change != nil {
			change()
		}
	}()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.config.ResetTimeout {
			return ErrCircuitOpen
		}
		change = b.setStateLocked(StateHalfOpen)
		b.halfOpenCallCount = 1
		b.logger.Info("熔断器进入半开状态")
		return nil
	case StateHalfOpen:
		if b.halfOpenCallCount >= b.config.HalfOpenMaxCalls {
			return ErrTooManyCallsInHalfOpen
		}
		b.halfOpenCallCount++
		return nil
	default:
		return nil
	}
}

func (b *Breaker) afterCall(ctx context.Context, err error) {
	failed := countsAsFailure(ctx, err)

	b.mu.Lock()
	var change func()
	defer func() {
		b.mu.Unlock()
		if change != nil {
			change()
		}
	}()

	if !failed {
		if b.state == StateHalfOpen {
			b.logger.Info("熔断器恢复正常")
			change = b.setStateLocked(StateClosed)
		}
		b.failureCount = 0
		b.halfOpenCallCount = 0
		return
	}

	b.failureCount++
	switch b.state {
	case StateClosed:
		if b.failureCount >= b.config.Threshold {
			b.logger.Warn("熔断器打开",
				zap.Int("failure_count", b.failureCount),
				zap.Int("threshold", b.config.Threshold),
				zap.Error(err),
			)
			b.openedAt = b.now()
			change = b.setStateLocked(StateOpen)
		}
	case StateHalfOpen:
		b.logger.Warn("熔断器半开状态失败，重新打开", zap.Error(err))
		b.openedAt = b.now()
		b.halfOpenCallCount = 0
		change = b.setStateLocked(StateOpen)
	}
}

// setStateLocked 在持有锁时调用，返回需要在锁外执行的回调
func (b *Breaker) setStateLocked(to State) func() {
	from := b.state
	b.state = to
	if b.config.OnStateChange == nil || from == to {
		return nil
	}
	cb := b.config.OnStateChange
	return func() { cb(from, to) }
}

// State 返回当前状态。Open 超过 ResetTimeout 后仍报告 Open，直到下一次调用。
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset 手动恢复到 Closed
func (b *Breaker) Reset() {
	b.mu.Lock()
	from := b.state
	change := b.setStateLocked(StateClosed)
	b.failureCount = 0
	b.halfOpenCallCount = 0
	b.mu.Unlock()

	b.logger.Info("熔断器已重置", zap.String("from_state", from.String()))
	if change != nil {
		change()
	}
}
