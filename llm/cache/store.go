package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrCacheMiss 缓存未命中错误
var ErrCacheMiss = errors.New("cache miss")

// Store 是跨进程共享已校验结果的二级存储
type Store interface {
	// Get 返回条目, 不存在时返回 ErrCacheMiss
	Get(ctx context.Context, fp string) (*Entry, error)
	Set(ctx context.Context, entry *Entry) error
	Delete(ctx context.Context, fp string) error
	// Clear 删除本存储名下的全部条目
	Clear(ctx context.Context) error
}

// RedisStoreConfig Redis 二级存储配置
type RedisStoreConfig struct {
	Prefix    string        `yaml:"prefix" json:"prefix"`         // 键前缀
	TTL       time.Duration `yaml:"ttl" json:"ttl"`               // 0 表示不过期
	ScanCount int64         `yaml:"scan_count" json:"scan_count"` // Clear 时每批 SCAN 的数量
}

// DefaultRedisStoreConfig 默认配置
func DefaultRedisStoreConfig() RedisStoreConfig {
	return RedisStoreConfig{
		Prefix:    "structflow:result:",
		TTL:       time.Hour,
		ScanCount: 200,
	}
}

// RedisStore 基于 go-redis 的 Store 实现, 条目以 JSON 保存
type RedisStore struct {
	client redis.UniversalClient
	config RedisStoreConfig
	logger *zap.Logger
}

// NewRedisStore 创建 RedisStore
func NewRedisStore(client redis.UniversalClient, config RedisStoreConfig, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Prefix == "" {
		config.Prefix = DefaultRedisStoreConfig().Prefix
	}
	if config.ScanCount <= 0 {
		config.ScanCount = DefaultRedisStoreConfig().ScanCount
	}
	return &RedisStore{
		client: client,
		config: config,
		logger: logger.With(zap.String("component", "redis_store")),
	}
}

func (s *RedisStore) key(fp string) string {
	return s.config.Prefix + fp
}

// Get 实现 Store.Get
func (s *RedisStore) Get(ctx context.Context, fp string) (*Entry, error) {
	data, err := s.client.Get(ctx, s.key(fp)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		// 损坏的条目按未命中处理, 并顺手删除
		s.logger.Warn("dropping undecodable entry", zap.String("fingerprint", fp), zap.Error(err))
		_ = s.client.Del(ctx, s.key(fp)).Err()
		return nil, ErrCacheMiss
	}
	if entry.Result == nil {
		return nil, ErrCacheMiss
	}
	return &entry, nil
}

// Set 实现 Store.Set
func (s *RedisStore) Set(ctx context.Context, entry *Entry) error {
	if entry == nil || entry.Result == nil {
		return fmt.Errorf("refusing to store an empty entry")
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	if err := s.client.Set(ctx, s.key(entry.Fingerprint), data, s.config.TTL).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	s.logger.Debug("entry stored", zap.String("fingerprint", entry.Fingerprint))
	return nil
}

// Delete 实现 Store.Delete
func (s *RedisStore) Delete(ctx context.Context, fp string) error {
	if err := s.client.Del(ctx, s.key(fp)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Clear 用 SCAN 分批删除前缀下的全部键
func (s *RedisStore) Clear(ctx context.Context) error {
	return s.DeletePrefix(ctx, "")
}

// DeletePrefix 删除 Prefix+prefix 开头的全部键, 返回前不会留下匹配的旧键.
// 配合 HierarchicalKeyStrategy.SchemaPrefix 可按 schema 失效.
func (s *RedisStore) DeletePrefix(ctx context.Context, prefix string) error {
	var (
		cursor  uint64
		deleted int
	)
	pattern := s.config.Prefix + prefix + "*"
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, s.config.ScanCount).Result()
		if err != nil {
			return fmt.Errorf("redis scan: %w", err)
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis del: %w", err)
			}
			deleted += len(keys)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	s.logger.Info("store entries deleted", zap.String("pattern", pattern), zap.Int("count", deleted))
	return nil
}

var _ Store = (*RedisStore)(nil)
