// Package cache manages the Redis connection behind the L2 result store.
// This package is internal and should not be imported by external projects.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BaSui01/structflow/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrManagerClosed 管理器已关闭
var ErrManagerClosed = errors.New("redis manager is closed")

const pingTimeout = 5 * time.Second

// =============================================================================
// 💾 Redis 连接管理器
// =============================================================================

// Manager 持有 Redis 客户端，负责连接校验、健康检查与关闭
type Manager struct {
	client redis.UniversalClient
	config config.RedisConfig
	logger *zap.Logger

	healthy atomic.Bool

	mu     sync.RWMutex
	closed bool
	stop   chan struct{}
	done   chan struct{}
}

// NewManager 建立连接并 Ping 一次，失败时返回错误
func NewManager(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Addr == "" {
		return nil, errors.New("redis addr is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   cfg.MaxRetries,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	m := &Manager{
		client: client,
		config: cfg,
		logger: logger.With(zap.String("component", "redis_manager")),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	m.healthy.Store(true)

	if cfg.HealthCheckInterval > 0 {
		go m.healthCheckLoop()
	} else {
		close(m.done)
	}

	m.logger.Info("redis manager initialized",
		zap.String("addr", cfg.Addr),
		zap.Int("db", cfg.DB),
		zap.Int("pool_size", cfg.PoolSize),
	)

	return m, nil
}

// Client 返回底层客户端，供 RedisStore 使用
func (m *Manager) Client() redis.UniversalClient {
	return m.client
}

// Healthy 返回最近一次检查的结果
func (m *Manager) Healthy() bool {
	return m.healthy.Load()
}

// Ping 检查 Redis 连接
func (m *Manager) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrManagerClosed
	}
	return m.client.Ping(ctx).Err()
}

// Close 停止健康检查并关闭客户端，可重复调用
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.stop)
	m.mu.Unlock()

	<-m.done
	m.healthy.Store(false)
	m.logger.Info("closing redis manager")

	return m.client.Close()
}

// =============================================================================
// 🏥 健康检查
// =============================================================================

func (m *Manager) healthCheckLoop() {
	defer close(m.done)

	ticker := time.NewTicker(m.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.checkOnce()
		}
	}
}

func (m *Manager) checkOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	err := m.client.Ping(ctx).Err()
	wasHealthy := m.healthy.Swap(err == nil)

	switch {
	case err != nil && wasHealthy:
		m.logger.Error("redis health check failed", zap.Error(err))
	case err == nil && !wasHealthy:
		m.logger.Info("redis connection recovered")
	default:
		m.logger.Debug("redis health check", zap.Bool("healthy", err == nil))
	}
}
