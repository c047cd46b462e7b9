package structured

import (
	"errors"
	"fmt"

	"github.com/BaSui01/structflow/llm/retry"
	"github.com/BaSui01/structflow/schema"
	"github.com/BaSui01/structflow/types"
)

// 调用结果分类，用于指标与追踪
const (
	OutcomeSuccess      = "success"
	OutcomeExhausted    = "exhausted"
	OutcomeNonRetryable = "non_retryable"
	OutcomeCancelled    = "cancelled"
	OutcomeInvalid      = "invalid"
	OutcomeError        = "error"
)

// ClientError 是 Generate 返回的唯一错误类型。
// Err 为 *retry.ExhaustedError（耗尽或不可重试）或取消/非法请求的 *types.Error。
type ClientError struct {
	Fingerprint string
	Attempts    int
	Err         error
}

func (e *ClientError) Error() string {
	fp := e.Fingerprint
	if fp == "" {
		fp = "-"
	}
	if e.Attempts > 0 {
		return fmt.Sprintf("structured generate %s failed after %d attempt(s): %v", fp, e.Attempts, e.Err)
	}
	return fmt.Sprintf("structured generate %s failed: %v", fp, e.Err)
}

func (e *ClientError) Unwrap() error { return e.Err }

// Exhausted 返回底层的重试耗尽错误
func (e *ClientError) Exhausted() (*retry.ExhaustedError, bool) {
	var ex *retry.ExhaustedError
	if errors.As(e.Err, &ex) {
		return ex, true
	}
	return nil, false
}

// ValidationError 返回最后一次尝试的校验错误（若最后一次是校验失败）
func (e *ClientError) ValidationError() (*schema.ValidationError, bool) {
	var verr *schema.ValidationError
	if errors.As(e.Err, &verr) {
		return verr, true
	}
	return nil, false
}

// Outcome 返回错误对应的结果分类
func (e *ClientError) Outcome() string {
	return classify(e.Err)
}

func classify(err error) string {
	if err == nil {
		return OutcomeSuccess
	}
	var ex *retry.ExhaustedError
	if errors.As(err, &ex) {
		if ex.NonRetryable {
			return OutcomeNonRetryable
		}
		return OutcomeExhausted
	}
	if types.IsCancelled(err) {
		return OutcomeCancelled
	}
	if types.GetErrorCode(err) == types.ErrInvalidRequest {
		return OutcomeInvalid
	}
	return OutcomeError
}

func newClientError(fp string, err error) *ClientError {
	ce := &ClientError{Fingerprint: fp, Err: err}
	if ex, ok := ce.Exhausted(); ok {
		ce.Attempts = ex.Attempts
	}
	return ce
}
