// Package mocks 提供 llm.Generator 的测试模拟实现。
//
// 支持按脚本返回载荷、错误注入与阻塞控制。
package mocks

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BaSui01/structflow/llm"
)

// Step 是脚本中的一步: 返回 Payload, 或在 Err 非空时返回 Err
type Step struct {
	Payload string
	Err     error
}

// Reply 构造返回载荷的一步
func Reply(payload string) Step { return Step{Payload: payload} }

// Fail 构造返回错误的一步
func Fail(err error) Step { return Step{Err: err} }

// ScriptedGenerator 按顺序执行脚本, 用完后重复最后一步
type ScriptedGenerator struct {
	mu       sync.Mutex
	steps    []Step
	requests []*llm.Request

	calls   atomic.Int64
	delay   time.Duration
	gate    chan struct{}
	started chan struct{}
}

// NewScriptedGenerator 创建按 steps 执行的生成器
func NewScriptedGenerator(steps ...Step) *ScriptedGenerator {
	return &ScriptedGenerator{steps: steps}
}

// WithDelay 为每次调用增加延迟, 延迟期间响应 ctx 取消
func (g *ScriptedGenerator) WithDelay(d time.Duration) *ScriptedGenerator {
	g.delay = d
	return g
}

// Blocking 使每次调用阻塞直到 Release 或 ctx 取消
func (g *ScriptedGenerator) Blocking() *ScriptedGenerator {
	g.gate = make(chan struct{})
	g.started = make(chan struct{}, 64)
	return g
}

// Release 放行所有阻塞中的和后续的调用
func (g *ScriptedGenerator) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.gate != nil {
		select {
		case <-g.gate:
		default:
			close(g.gate)
		}
	}
}

// Started 在每次调用开始时收到一个信号 (仅 Blocking 模式)
func (g *ScriptedGenerator) Started() <-chan struct{} {
	return g.started
}

// Generate 实现 llm.Generator
func (g *ScriptedGenerator) Generate(ctx context.Context, req *llm.Request) (string, error) {
	n := int(g.calls.Add(1)) - 1

	g.mu.Lock()
	g.requests = append(g.requests, req)
	step := Step{}
	if len(g.steps) > 0 {
		step = g.steps[min(n, len(g.steps)-1)]
	}
	gate := g.gate
	g.mu.Unlock()

	if gate != nil {
		select {
		case g.started <- struct{}{}:
		default:
		}
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if g.delay > 0 {
		timer := time.NewTimer(g.delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if step.Err != nil {
		return "", step.Err
	}
	return step.Payload, nil
}

// Calls 返回已发生的调用次数
func (g *ScriptedGenerator) Calls() int {
	return int(g.calls.Load())
}

// Requests 返回收到的全部请求
func (g *ScriptedGenerator) Requests() []*llm.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*llm.Request(nil), g.requests...)
}

// LastRequest 返回最后一次收到的请求
func (g *ScriptedGenerator) LastRequest() *llm.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.requests) == 0 {
		return nil
	}
	return g.requests[len(g.requests)-1]
}

var _ llm.Generator = (*ScriptedGenerator)(nil)
