// =============================================================================
// 📦 StructFlow 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("structflow.yaml").
//	    WithEnvPrefix("STRUCTFLOW").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量 → 验证器
// =============================================================================
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultEnvPrefix 环境变量默认前缀
const DefaultEnvPrefix = "STRUCTFLOW"

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 StructFlow 的完整配置结构
type Config struct {
	// Client 结构化调用配置（重试、校验）
	Client ClientConfig `yaml:"client" env:"CLIENT"`

	// Cache 结果缓存配置
	Cache CacheConfig `yaml:"cache" env:"CACHE"`

	// Redis 二级缓存连接配置
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Provider 原始生成器配置
	Provider ProviderConfig `yaml:"provider" env:"PROVIDER"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`

	// Metrics 指标暴露配置
	Metrics MetricsConfig `yaml:"metrics" env:"METRICS"`
}

// ClientConfig 结构化调用配置
type ClientConfig struct {
	// 每次调用的最大尝试次数
	MaxAttempts int `yaml:"max_attempts" env:"MAX_ATTEMPTS"`

	// 退避基准延迟
	BaseDelay time.Duration `yaml:"base_delay" env:"BASE_DELAY"`

	// 单次退避上限（0 表示不限）
	MaxDelay time.Duration `yaml:"max_delay" env:"MAX_DELAY"`

	// 单次尝试超时（0 表示不限）
	AttemptTimeout time.Duration `yaml:"attempt_timeout" env:"ATTEMPT_TIMEOUT"`

	// 是否在系统提示词中附加 schema 说明
	SchemaInstructions bool `yaml:"schema_instructions" env:"SCHEMA_INSTRUCTIONS"`

	// 是否要求输出为纯 JSON（不从 Markdown 代码块中提取）
	StrictJSON bool `yaml:"strict_json" env:"STRICT_JSON"`

	// 是否拒绝 schema 未声明的字段
	RejectAdditional bool `yaml:"reject_additional" env:"REJECT_ADDITIONAL"`

	// 连续传输失败多少次后熔断上游（0 表示不启用熔断）
	BreakerThreshold int `yaml:"breaker_threshold" env:"BREAKER_THRESHOLD"`

	// 熔断后多久放行试探请求
	BreakerResetTimeout time.Duration `yaml:"breaker_reset_timeout" env:"BREAKER_RESET_TIMEOUT"`
}

// CacheConfig 结果缓存配置
type CacheConfig struct {
	// 是否启用缓存
	Enabled bool `yaml:"enabled" env:"ENABLED"`

	// 最大条目数（0 表示不限）
	Capacity int `yaml:"capacity" env:"CAPACITY"`

	// 条目存活时间（0 表示永不过期）
	TTL time.Duration `yaml:"ttl" env:"TTL"`

	// 分片数
	Shards int `yaml:"shards" env:"SHARDS"`

	// 指纹策略: hash, hierarchical
	KeyStrategy string `yaml:"key_strategy" env:"KEY_STRATEGY"`

	// 是否启用 Redis 二级缓存
	L2Enabled bool `yaml:"l2_enabled" env:"L2_ENABLED"`

	// 二级缓存存活时间
	L2TTL time.Duration `yaml:"l2_ttl" env:"L2_TTL"`

	// 二级缓存键前缀
	L2Prefix string `yaml:"l2_prefix" env:"L2_PREFIX"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`

	// 密码
	Password string `yaml:"password" env:"PASSWORD"`

	// 数据库编号
	DB int `yaml:"db" env:"DB"`

	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`

	// 最小空闲连接
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`

	// 最大重试次数
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`

	// 健康检查间隔（0 表示不检查）
	HealthCheckInterval time.Duration `yaml:"health_check_interval" env:"HEALTH_CHECK_INTERVAL"`
}

// ProviderConfig OpenAI 兼容接口配置
type ProviderConfig struct {
	// 提供者名称（用于指标标签）
	Name string `yaml:"name" env:"NAME"`

	// 基础 URL
	BaseURL string `yaml:"base_url" env:"BASE_URL"`

	// API Key
	APIKey string `yaml:"api_key" env:"API_KEY"`

	// 默认模型
	Model string `yaml:"model" env:"MODEL"`

	// 补全接口路径
	EndpointPath string `yaml:"endpoint_path" env:"ENDPOINT_PATH"`

	// HTTP 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`

	// 每秒请求数限制（0 表示不限）
	RequestsPerSecond float64 `yaml:"requests_per_second" env:"REQUESTS_PER_SECOND"`

	// 令牌桶容量
	Burst int `yaml:"burst" env:"BURST"`

	// 是否请求 JSON 输出模式
	JSONMode bool `yaml:"json_mode" env:"JSON_MODE"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`

	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`

	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`

	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`

	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`

	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`

	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`

	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`

	// 明文连接 collector; 默认走 TLS
	Insecure bool `yaml:"insecure" env:"INSECURE"`
}

// MetricsConfig Prometheus 指标配置
type MetricsConfig struct {
	// 是否启用 /metrics 监听
	Enabled bool `yaml:"enabled" env:"ENABLED"`

	// 监听地址
	Addr string `yaml:"addr" env:"ADDR"`

	// 指标命名空间
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  DefaultEnvPrefix,
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置，文件不存在时保留默认值
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段，键名为 PREFIX_SECTION_FIELD
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue, ok := os.LookupEnv(envKey)
		if !ok || envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

var durationType = reflect.TypeOf(time.Duration(0))

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == durationType {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
			return nil
		}
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(i)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载并验证配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).WithValidator((*Config).Validate).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate 验证配置，一次性返回全部问题
func (c *Config) Validate() error {
	var errs []error

	if c.Client.MaxAttempts < 1 {
		errs = append(errs, errors.New("client.max_attempts must be at least 1"))
	}
	if c.Client.BaseDelay < 0 {
		errs = append(errs, errors.New("client.base_delay must not be negative"))
	}
	if c.Client.MaxDelay < 0 {
		errs = append(errs, errors.New("client.max_delay must not be negative"))
	}
	if c.Client.AttemptTimeout < 0 {
		errs = append(errs, errors.New("client.attempt_timeout must not be negative"))
	}
	if c.Client.BreakerThreshold < 0 {
		errs = append(errs, errors.New("client.breaker_threshold must not be negative"))
	}
	if c.Client.BreakerResetTimeout < 0 {
		errs = append(errs, errors.New("client.breaker_reset_timeout must not be negative"))
	}

	if c.Cache.Capacity < 0 {
		errs = append(errs, errors.New("cache.capacity must not be negative"))
	}
	if c.Cache.TTL < 0 {
		errs = append(errs, errors.New("cache.ttl must not be negative"))
	}
	if c.Cache.Shards < 0 {
		errs = append(errs, errors.New("cache.shards must not be negative"))
	}
	switch c.Cache.KeyStrategy {
	case "", "hash", "hierarchical":
	default:
		errs = append(errs, fmt.Errorf("cache.key_strategy %q is not supported", c.Cache.KeyStrategy))
	}
	if c.Cache.L2Enabled && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required when cache.l2_enabled is set"))
	}

	if c.Provider.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("provider.requests_per_second must not be negative"))
	}
	if c.Provider.Timeout < 0 {
		errs = append(errs, errors.New("provider.timeout must not be negative"))
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not supported", c.Log.Level))
	}

	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, errors.New("telemetry.sample_rate must be between 0 and 1"))
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		errs = append(errs, errors.New("metrics.addr is required when metrics are enabled"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %w", errors.Join(errs...))
	}
	return nil
}
