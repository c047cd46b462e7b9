package retry

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

const maxDuration = time.Duration(math.MaxInt64)

// Policy 定义一次结构化调用的重试策略
type Policy struct {
	MaxAttempts int           // 总尝试次数(含首次), 至少为 1
	BaseDelay   time.Duration // 退避基数, 第 n 次重试前等待 BaseDelay*2^n + jitter
	MaxDelay    time.Duration // 抖动前的延迟上限, 0 表示不设上限

	// NonRetryable 返回 true 时立即终止, 不再等待与重试
	NonRetryable func(error) bool
	// OnRetry 在每次失败且即将重试时调用
	OnRetry func(AttemptRecord)
}

// DefaultPolicy 返回默认策略: 3 次尝试, 1s 基数, 不设上限
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
	}
}

// Validate 检查策略参数
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be >= 1, got %d", p.MaxAttempts)
	}
	if p.BaseDelay < 0 {
		return fmt.Errorf("base delay must not be negative, got %s", p.BaseDelay)
	}
	if p.MaxDelay < 0 {
		return fmt.Errorf("max delay must not be negative, got %s", p.MaxDelay)
	}
	return nil
}

// Delay 计算第 attempt 次失败(从 0 开始)之后的等待时间.
// 上限在加抖动之前生效, 因此实际值落在 [cap, cap+base) 内.
func (p Policy) Delay(attempt int) time.Duration {
	d := exponential(attempt, p.BaseDelay)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return addJitter(d, p.BaseDelay)
}

// DelayForAttempt 返回 base*2^attempt 加上 [0, base) 内的均匀抖动.
// 指数部分溢出时饱和, 不会回绕为负数.
func DelayForAttempt(attempt int, base time.Duration) time.Duration {
	return addJitter(exponential(attempt, base), base)
}

func exponential(attempt int, base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= 63 || base > maxDuration>>uint(attempt) {
		return maxDuration
	}
	return base << uint(attempt)
}

func addJitter(d, base time.Duration) time.Duration {
	if base <= 0 {
		return d
	}
	j := time.Duration(rand.Int64N(int64(base)))
	if d > maxDuration-j {
		return maxDuration
	}
	return d + j
}
