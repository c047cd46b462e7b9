// =============================================================================
// 📦 StructFlow 默认配置
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Client:    DefaultClientConfig(),
		Cache:     DefaultCacheConfig(),
		Redis:     DefaultRedisConfig(),
		Provider:  DefaultProviderConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
		Metrics:   DefaultMetricsConfig(),
	}
}

// DefaultClientConfig 返回默认调用配置（3 次尝试，1s 基准退避）
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		MaxAttempts:        3,
		BaseDelay:          time.Second,
		MaxDelay:           0,
		AttemptTimeout:     0,
		SchemaInstructions: true,
		StrictJSON:         false,
		RejectAdditional:   false,

		BreakerThreshold:    0,
		BreakerResetTimeout: 30 * time.Second,
	}
}

// DefaultCacheConfig 返回默认缓存配置
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:     true,
		Capacity:    1000,
		TTL:         0,
		Shards:      32,
		KeyStrategy: "hash",
		L2Enabled:   false,
		L2TTL:       time.Hour,
		L2Prefix:    "structflow:result:",
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:                "localhost:6379",
		Password:            "",
		DB:                  0,
		PoolSize:            10,
		MinIdleConns:        2,
		MaxRetries:          3,
		HealthCheckInterval: 30 * time.Second,
	}
}

// DefaultProviderConfig 返回默认 OpenAI 兼容接口配置
// BaseURL 与 EndpointPath 留空时由同名服务商预设补齐
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		Name:              "openai",
		Timeout:           60 * time.Second,
		RequestsPerSecond: 0,
		Burst:             1,
		JSONMode:          true,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stderr"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "structflow",
		SampleRate:   0.1,
		Insecure:     false,
	}
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   false,
		Addr:      ":9091",
		Namespace: "structflow",
	}
}
