package llm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/structflow/types"
)

// Middleware wraps a generator with additional behaviour.
type Middleware func(next Generator) Generator

// Chain represents a middleware chain.
type Chain struct {
	middlewares []Middleware
	mu          sync.RWMutex
}

// NewChain creates a new middleware chain.
func NewChain(middlewares ...Middleware) *Chain {
	return &Chain{middlewares: middlewares}
}

// Use adds middleware to the chain.
func (c *Chain) Use(m Middleware) *Chain {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.middlewares = append(c.middlewares, m)
	return c
}

// Then wraps g with all middleware. The first middleware added is the
// outermost.
func (c *Chain) Then(g Generator) Generator {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for i := len(c.middlewares) - 1; i >= 0; i-- {
		g = c.middlewares[i](g)
	}
	return g
}

// Len returns the number of middleware.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.middlewares)
}

// LoggingMiddleware logs each raw generation at debug level.
func LoggingMiddleware(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next Generator) Generator {
		return GeneratorFunc(func(ctx context.Context, req *Request) (string, error) {
			start := time.Now()
			raw, err := next.Generate(ctx, req)
			fields := []zap.Field{
				zap.String("model", req.Options.Model),
				zap.Duration("duration", time.Since(start)),
			}
			if id, ok := types.CallID(ctx); ok {
				fields = append(fields, zap.String("call_id", id))
			}
			if err != nil {
				logger.Debug("generation failed", append(fields, zap.Error(err))...)
				return raw, err
			}
			logger.Debug("generation completed", append(fields, zap.Int("payload_bytes", len(raw)))...)
			return raw, nil
		})
	}
}

// TimeoutMiddleware bounds every single generation. A timeout surfaces as a
// retryable upstream timeout rather than a cancellation of the whole call.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next Generator) Generator {
		if timeout <= 0 {
			return next
		}
		return GeneratorFunc(func(ctx context.Context, req *Request) (string, error) {
			attemptCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			raw, err := next.Generate(attemptCtx, req)
			if err != nil && ctx.Err() == nil && attemptCtx.Err() != nil {
				return "", types.NewError(types.ErrUpstreamTimeout, fmt.Sprintf("generation exceeded %s", timeout)).
					WithCause(err).
					WithRetryable(true)
			}
			return raw, err
		})
	}
}

// RecoveryMiddleware converts a panicking generator into a transport error.
func RecoveryMiddleware(onPanic func(any)) Middleware {
	return func(next Generator) Generator {
		return GeneratorFunc(func(ctx context.Context, req *Request) (raw string, err error) {
			defer func() {
				if r := recover(); r != nil {
					if onPanic != nil {
						onPanic(r)
					}
					err = types.NewTransportError("generator panicked", &PanicError{Value: r})
				}
			}()
			return next.Generate(ctx, req)
		})
	}
}

// PanicError represents a recovered panic.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic recovered: %v", e.Value)
}
