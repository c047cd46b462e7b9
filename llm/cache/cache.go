package cache

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/structflow/schema"
	"github.com/BaSui01/structflow/types"
)

// DefaultShards 默认分片数
const DefaultShards = 32

// 查找结果, 用于指标标签
const (
	LookupHit   = "hit"
	LookupL2Hit = "l2_hit"
	LookupMiss  = "miss"
	LookupJoin  = "join"
)

// Entry 缓存条目, 只会被整体替换或淘汰, 不会原地修改
type Entry struct {
	Fingerprint string         `json:"fingerprint"`
	Result      *schema.Result `json:"result"`
	CreatedAt   time.Time      `json:"created_at"`
	ExpiresAt   time.Time      `json:"expires_at,omitempty"` // 零值表示永不过期
}

func (e *Entry) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// ComputeFunc 在未命中时产生结果
type ComputeFunc func(ctx context.Context) (*schema.Result, error)

// MetricsRecorder 接收缓存事件
type MetricsRecorder interface {
	RecordCacheLookup(outcome string)
	RecordCacheEviction(count int)
}

// Config 缓存配置
type Config struct {
	Capacity int           `yaml:"capacity" json:"capacity"` // 0 表示不限容量, >0 启用 LRU 淘汰
	TTL      time.Duration `yaml:"ttl" json:"ttl"`           // 0 表示永不过期
	Shards   int           `yaml:"shards" json:"shards"`     // 0 表示 DefaultShards
}

// Stats 缓存统计
type Stats struct {
	Entries   int   `json:"entries"`
	Capacity  int   `json:"capacity"`
	InFlight  int   `json:"in_flight"`
	Hits      int64 `json:"hits"`
	L2Hits    int64 `json:"l2_hits"`
	Misses    int64 `json:"misses"`
	Joins     int64 `json:"joins"`
	Evictions int64 `json:"evictions"`
}

// Option 配置 ResponseCache
type Option func(*ResponseCache)

// WithStore 启用二级存储, 在一级未命中时由 single-flight 领头者读取
func WithStore(store Store) Option {
	return func(c *ResponseCache) { c.store = store }
}

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) Option {
	return func(c *ResponseCache) {
		if logger != nil {
			c.logger = logger.With(zap.String("component", "response_cache"))
		}
	}
}

// WithMetrics 设置指标记录器
func WithMetrics(m MetricsRecorder) Option {
	return func(c *ResponseCache) { c.metrics = m }
}

// WithClock 替换时间源 (测试 TTL 用)
func WithClock(now func() time.Time) Option {
	return func(c *ResponseCache) { c.now = now }
}

// ResponseCache 是按指纹分片的结果缓存, 对同一指纹的并发未命中只计算一次.
// 只保存通过校验的结果, 失败从不缓存.
type ResponseCache struct {
	shards   []*shard
	capacity int
	ttl      time.Duration

	store   Store
	logger  *zap.Logger
	metrics MetricsRecorder
	now     func() time.Time

	hits, l2Hits, misses, joins, evictions atomic.Int64
}

type shard struct {
	mu       sync.Mutex
	lru      *lruList
	inflight map[string]*call
	gen      uint64 // Clear 时递增, 旧代的结果不再入缓存
}

// call 是一次进行中的计算
type call struct {
	done      chan struct{}
	res       *schema.Result
	err       error
	waiters   int
	abandoned bool
	gen       uint64
	cancel    context.CancelFunc
}

// New 创建 ResponseCache
func New(cfg Config, opts ...Option) *ResponseCache {
	n := cfg.Shards
	if n <= 0 {
		n = DefaultShards
	}
	if cfg.Capacity > 0 && n > cfg.Capacity {
		n = cfg.Capacity
	}

	c := &ResponseCache{
		shards:   make([]*shard, n),
		capacity: max(cfg.Capacity, 0),
		ttl:      cfg.TTL,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for i := range c.shards {
		shardCap := 0
		if cfg.Capacity > 0 {
			shardCap = cfg.Capacity / n
			if i < cfg.Capacity%n {
				shardCap++
			}
		}
		c.shards[i] = &shard{
			lru:      newLRUList(shardCap),
			inflight: make(map[string]*call),
		}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *ResponseCache) shardFor(fp string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(fp))
	return c.shards[h.Sum32()%uint32(len(c.shards))]
}

// Get 查询缓存, 一级未命中时查询二级存储
func (c *ResponseCache) Get(ctx context.Context, fp string) (*schema.Result, bool) {
	sh := c.shardFor(fp)
	sh.mu.Lock()
	entry := sh.lru.get(fp, c.now())
	gen := sh.gen
	sh.mu.Unlock()
	if entry != nil {
		c.record(LookupHit)
		return entry.Result, true
	}

	if entry := c.loadFromStore(ctx, fp); entry != nil {
		sh.mu.Lock()
		// 读取期间发生过 Clear 时不回填
		if sh.gen == gen {
			c.insertLocked(sh, entry)
		}
		sh.mu.Unlock()
		c.record(LookupL2Hit)
		return entry.Result, true
	}
	return nil, false
}

// GetOrCompute 命中则返回缓存结果; 否则加入或发起对 fp 的唯一一次计算.
//
// 计算运行在与任何单个调用方取消相隔离的上下文上, 仅当所有等待者都已
// 离开时才被取消. 调用方取消只会让自己离开, 返回 types.ErrCancelled.
func (c *ResponseCache) GetOrCompute(ctx context.Context, fp string, compute ComputeFunc) (*schema.Result, error) {
	sh := c.shardFor(fp)
	sh.mu.Lock()
	if entry := sh.lru.get(fp, c.now()); entry != nil {
		sh.mu.Unlock()
		c.record(LookupHit)
		return entry.Result, nil
	}
	return c.joinLocked(ctx, sh, fp, compute, true)
}

// Refresh 跳过读缓存直接计算, 成功后仍然写回. 若已有同指纹的计算
// 正在进行则加入它, 不会重复调用.
func (c *ResponseCache) Refresh(ctx context.Context, fp string, compute ComputeFunc) (*schema.Result, error) {
	sh := c.shardFor(fp)
	sh.mu.Lock()
	return c.joinLocked(ctx, sh, fp, compute, false)
}

// joinLocked 在持有 sh.mu 时调用, 返回前释放锁
//
// 同一指纹任何时刻至多一个计算在运行: 已被全部等待者放弃的计算仍占着
// inflight 标记, 新的调用方等它退出后再发起计算.
func (c *ResponseCache) joinLocked(ctx context.Context, sh *shard, fp string, compute ComputeFunc, readStore bool) (*schema.Result, error) {
	for {
		cl, ok := sh.inflight[fp]
		if !ok {
			break
		}
		if !cl.abandoned {
			cl.waiters++
			sh.mu.Unlock()
			c.record(LookupJoin)
			return c.wait(ctx, sh, fp, cl)
		}

		sh.mu.Unlock()
		select {
		case <-cl.done:
		case <-ctx.Done():
			return nil, types.NewCancelledError(ctx.Err())
		}
		sh.mu.Lock()
	}

	if err := ctx.Err(); err != nil {
		sh.mu.Unlock()
		return nil, types.NewCancelledError(err)
	}

	computeCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	cl := &call{
		done:    make(chan struct{}),
		waiters: 1,
		gen:     sh.gen,
		cancel:  cancel,
	}
	sh.inflight[fp] = cl
	sh.mu.Unlock()

	go c.run(computeCtx, sh, fp, cl, compute, readStore)
	return c.wait(ctx, sh, fp, cl)
}

func (c *ResponseCache) wait(ctx context.Context, sh *shard, fp string, cl *call) (*schema.Result, error) {
	select {
	case <-cl.done:
		return cl.res, cl.err
	case <-ctx.Done():
	}

	select {
	case <-cl.done:
		return cl.res, cl.err
	default:
	}

	sh.mu.Lock()
	cl.waiters--
	if cl.waiters == 0 {
		// 标记保留到 finish, 以免在旧计算退出前启动新的计算
		cl.abandoned = true
		cl.cancel()
		c.logger.Debug("computation abandoned by all waiters", zap.String("fingerprint", fp))
	}
	sh.mu.Unlock()
	return nil, types.NewCancelledError(ctx.Err())
}

func (c *ResponseCache) run(ctx context.Context, sh *shard, fp string, cl *call, compute ComputeFunc, readStore bool) {
	var (
		res      *schema.Result
		err      error
		fromL2   bool
		l2Stored bool
	)

	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = types.NewError(types.ErrInternalError, fmt.Sprintf("compute panicked: %v", r))
			c.logger.Error("compute panicked", zap.String("fingerprint", fp), zap.Any("panic", r))
		}
		c.finish(sh, fp, cl, res, err, l2Stored)
	}()

	if readStore {
		if entry := c.loadFromStore(ctx, fp); entry != nil {
			res, fromL2 = entry.Result, true
			c.record(LookupL2Hit)
		}
	}
	if !fromL2 {
		c.record(LookupMiss)
		res, err = compute(ctx)
		if err == nil && res == nil {
			err = types.NewError(types.ErrInternalError, "compute returned no result")
		}
		if err == nil && c.store != nil && ctx.Err() == nil {
			l2Stored = c.saveToStore(ctx, c.newEntry(fp, res))
		}
	}
}

// finish 发布结果并唤醒所有等待者
func (c *ResponseCache) finish(sh *shard, fp string, cl *call, res *schema.Result, err error, l2Stored bool) {
	sh.mu.Lock()
	cl.res, cl.err = res, err
	if sh.inflight[fp] == cl {
		delete(sh.inflight, fp)
	}
	stale := cl.gen != sh.gen
	if err == nil && !cl.abandoned && !stale {
		c.insertLocked(sh, c.newEntry(fp, res))
	}
	sh.mu.Unlock()

	close(cl.done)
	cl.cancel()

	if stale && l2Stored {
		// Clear 发生在计算期间, 撤回刚写入二级存储的结果
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if derr := c.store.Delete(ctx, fp); derr != nil {
			c.logger.Warn("failed to drop stale store entry", zap.String("fingerprint", fp), zap.Error(derr))
		}
		cancel()
	}
}

func (c *ResponseCache) newEntry(fp string, res *schema.Result) *Entry {
	now := c.now()
	e := &Entry{Fingerprint: fp, Result: res, CreatedAt: now}
	if c.ttl > 0 {
		e.ExpiresAt = now.Add(c.ttl)
	}
	return e
}

func (c *ResponseCache) insertLocked(sh *shard, entry *Entry) {
	if evicted := sh.lru.add(entry); evicted > 0 {
		c.evictions.Add(int64(evicted))
		if c.metrics != nil {
			c.metrics.RecordCacheEviction(evicted)
		}
	}
}

func (c *ResponseCache) loadFromStore(ctx context.Context, fp string) *Entry {
	if c.store == nil {
		return nil
	}
	entry, err := c.store.Get(ctx, fp)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			c.logger.Warn("store get error, treating as miss", zap.String("fingerprint", fp), zap.Error(err))
		}
		return nil
	}
	if entry == nil || entry.Result == nil || entry.Fingerprint != fp {
		return nil
	}
	// 一级缓存的过期时间由本地 TTL 决定
	local := c.newEntry(fp, entry.Result)
	local.CreatedAt = entry.CreatedAt
	return local
}

func (c *ResponseCache) saveToStore(ctx context.Context, entry *Entry) bool {
	if err := c.store.Set(ctx, entry); err != nil {
		c.logger.Warn("store set error", zap.String("fingerprint", entry.Fingerprint), zap.Error(err))
		return false
	}
	return true
}

// Delete 删除单个指纹
func (c *ResponseCache) Delete(ctx context.Context, fp string) error {
	sh := c.shardFor(fp)
	sh.mu.Lock()
	sh.lru.remove(fp)
	sh.mu.Unlock()

	if c.store != nil {
		return c.store.Delete(ctx, fp)
	}
	return nil
}

// Clear 同步清空所有分片与二级存储. 进行中的计算不受影响, 照常把结果
// 交给其等待者 (包括 Clear 之后加入的调用方), 但结果不会写入缓存.
func (c *ResponseCache) Clear(ctx context.Context) error {
	for _, sh := range c.shards {
		sh.mu.Lock()
		sh.lru.clear()
		sh.gen++
		sh.mu.Unlock()
	}
	c.logger.Info("response cache cleared")

	if c.store != nil {
		if err := c.store.Clear(ctx); err != nil {
			return fmt.Errorf("clear store: %w", err)
		}
	}
	return nil
}

// Len 返回一级缓存中的条目数 (可能包含尚未惰性删除的过期条目)
func (c *ResponseCache) Len() int {
	n := 0
	for _, sh := range c.shards {
		sh.mu.Lock()
		n += sh.lru.len()
		sh.mu.Unlock()
	}
	return n
}

// Stats 返回统计快照
func (c *ResponseCache) Stats() Stats {
	s := Stats{
		Capacity:  c.capacity,
		Hits:      c.hits.Load(),
		L2Hits:    c.l2Hits.Load(),
		Misses:    c.misses.Load(),
		Joins:     c.joins.Load(),
		Evictions: c.evictions.Load(),
	}
	for _, sh := range c.shards {
		sh.mu.Lock()
		s.Entries += sh.lru.len()
		s.InFlight += len(sh.inflight)
		sh.mu.Unlock()
	}
	return s
}

// ShardCount 返回分片数
func (c *ResponseCache) ShardCount() int {
	return len(c.shards)
}

func (c *ResponseCache) record(outcome string) {
	switch outcome {
	case LookupHit:
		c.hits.Add(1)
	case LookupL2Hit:
		c.l2Hits.Add(1)
	case LookupMiss:
		c.misses.Add(1)
	case LookupJoin:
		c.joins.Add(1)
	}
	if c.metrics != nil {
		c.metrics.RecordCacheLookup(outcome)
	}
}
