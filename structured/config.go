package structured

import (
	"github.com/BaSui01/structflow/config"
	"github.com/BaSui01/structflow/llm/cache"
	"github.com/BaSui01/structflow/llm/circuitbreaker"
	"github.com/BaSui01/structflow/llm/retry"
	"github.com/BaSui01/structflow/schema"
)

// ConfigOptions 把配置文件中的 client / cache 段映射为构造选项。
// 日志、指标、追踪与二级存储需要调用方另行注入。
// 每次调用都会创建新的熔断器，同一上游应只构建一个 Client。
func ConfigOptions(cfg *config.Config) []Option {
	if cfg == nil {
		return nil
	}

	policy := retry.DefaultPolicy()
	policy.MaxAttempts = cfg.Client.MaxAttempts
	policy.BaseDelay = cfg.Client.BaseDelay
	policy.MaxDelay = cfg.Client.MaxDelay

	var vopts []schema.ValidatorOption
	if cfg.Client.StrictJSON {
		vopts = append(vopts, schema.WithStrictJSON())
	}
	if cfg.Client.RejectAdditional {
		vopts = append(vopts, schema.WithAdditionalFields(schema.RejectAdditional))
	}

	opts := []Option{
		WithDefaultPolicy(policy),
		WithAttemptTimeout(cfg.Client.AttemptTimeout),
		WithSchemaInstructions(cfg.Client.SchemaInstructions),
		WithValidator(schema.NewValidator(vopts...)),
		WithKeyStrategy(cache.NewKeyStrategy(cfg.Cache.KeyStrategy)),
	}

	if cfg.Client.BreakerThreshold > 0 {
		breaker := circuitbreaker.New(circuitbreaker.Config{
			Threshold:    cfg.Client.BreakerThreshold,
			ResetTimeout: cfg.Client.BreakerResetTimeout,
		}, nil)
		opts = append(opts, WithMiddleware(circuitbreaker.Middleware(breaker)))
	}

	if cfg.Cache.Enabled {
		opts = append(opts, WithCacheConfig(cache.Config{
			Capacity: cfg.Cache.Capacity,
			TTL:      cfg.Cache.TTL,
			Shards:   cfg.Cache.Shards,
		}))
	} else {
		opts = append(opts, WithoutCache())
	}
	return opts
}
