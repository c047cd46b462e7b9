package structured

import (
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/structflow/llm"
	"github.com/BaSui01/structflow/llm/cache"
	"github.com/BaSui01/structflow/llm/retry"
	"github.com/BaSui01/structflow/schema"
)

// =============================================================================
// 🔧 构造选项
// =============================================================================

// Option 配置 Client
type Option func(*settings)

type settings struct {
	validator      schema.Validator
	logger         *zap.Logger
	metrics        MetricsRecorder
	tracer         trace.Tracer
	policy         retry.Policy
	keys           cache.KeyStrategy
	cacheEnabled   bool
	cacheConfig    cache.Config
	store          cache.Store
	instructions   bool
	attemptTimeout time.Duration
	middleware     []llm.Middleware
}

func defaultSettings() settings {
	return settings{
		policy:       retry.DefaultPolicy(),
		cacheEnabled: true,
		instructions: true,
	}
}

// WithValidator 替换默认校验器
func WithValidator(v schema.Validator) Option {
	return func(s *settings) { s.validator = v }
}

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithMetrics 设置指标记录器，*metrics.Collector 满足该接口
func WithMetrics(m MetricsRecorder) Option {
	return func(s *settings) { s.metrics = m }
}

// WithTracer 设置 OpenTelemetry tracer，默认为 noop
func WithTracer(t trace.Tracer) Option {
	return func(s *settings) { s.tracer = t }
}

// WithDefaultPolicy 设置默认重试策略，单次调用可通过 CallOption 覆盖
func WithDefaultPolicy(p retry.Policy) Option {
	return func(s *settings) { s.policy = p }
}

// WithKeyStrategy 设置指纹策略，默认为 hash
func WithKeyStrategy(k cache.KeyStrategy) Option {
	return func(s *settings) { s.keys = k }
}

// WithCacheCapacity 限制缓存条目数并启用 LRU 淘汰，0 表示不限
func WithCacheCapacity(n int) Option {
	return func(s *settings) {
		s.cacheEnabled = true
		s.cacheConfig.Capacity = n
	}
}

// WithCacheConfig 设置完整的缓存配置
func WithCacheConfig(cfg cache.Config) Option {
	return func(s *settings) {
		s.cacheEnabled = true
		s.cacheConfig = cfg
	}
}

// WithoutCache 完全关闭缓存，每次调用都会重新生成
func WithoutCache() Option {
	return func(s *settings) { s.cacheEnabled = false }
}

// WithStore 为缓存挂载二级存储（如 cache.RedisStore）
func WithStore(store cache.Store) Option {
	return func(s *settings) { s.store = store }
}

// WithSchemaInstructions 控制是否在系统提示词中附加 schema 说明
func WithSchemaInstructions(enabled bool) Option {
	return func(s *settings) { s.instructions = enabled }
}

// WithAttemptTimeout 限制单次生成的耗时，超时按可重试的传输错误处理
func WithAttemptTimeout(d time.Duration) Option {
	return func(s *settings) { s.attemptTimeout = d }
}

// WithMiddleware 在原始生成器外包一层中间件，先添加的在最外层
func WithMiddleware(m ...llm.Middleware) Option {
	return func(s *settings) { s.middleware = append(s.middleware, m...) }
}

// =============================================================================
// 🎯 单次调用选项
// =============================================================================

// CallOption 覆盖单次 Generate 的行为
type CallOption func(*callSettings)

type callSettings struct {
	policy   retry.Policy
	useCache bool
	timeout  time.Duration
}

// WithMaxAttempts 设置本次调用的最大尝试次数
func WithMaxAttempts(n int) CallOption {
	return func(c *callSettings) { c.policy.MaxAttempts = n }
}

// WithBaseDelay 设置本次调用的退避基数
func WithBaseDelay(d time.Duration) CallOption {
	return func(c *callSettings) { c.policy.BaseDelay = d }
}

// WithMaxDelay 设置本次调用的单次退避上限
func WithMaxDelay(d time.Duration) CallOption {
	return func(c *callSettings) { c.policy.MaxDelay = d }
}

// WithNonRetryable 设置本次调用的不可重试判定
func WithNonRetryable(pred func(error) bool) CallOption {
	return func(c *callSettings) { c.policy.NonRetryable = pred }
}

// UseCache 为 false 时跳过缓存读取，但成功结果仍会写回
func UseCache(enabled bool) CallOption {
	return func(c *callSettings) { c.useCache = enabled }
}

// WithTimeout 限制整次调用（含所有重试与退避）的耗时
func WithTimeout(d time.Duration) CallOption {
	return func(c *callSettings) { c.timeout = d }
}
