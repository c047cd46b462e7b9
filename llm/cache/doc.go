// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 提供按请求指纹缓存已校验结果的 ResponseCache，
并保证同一指纹的并发未命中只触发一次计算。

# 概述

结构化调用的代价在于重试循环。ResponseCache 以指纹分片，
每个分片持有独立的互斥锁、LRU 与进行中计算表，
热路径上没有全局锁。失败从不缓存，只有通过校验的结果才会入库。

# 核心类型

  - ResponseCache：分片缓存，提供 Get / GetOrCompute / Refresh / Delete / Clear / Len / Stats。
  - KeyStrategy：指纹生成策略，支持 Hash 与 Hierarchical 两种实现。
  - Store / RedisStore：可选的二级存储，跨进程共享结果。
  - Entry：缓存条目，只会被整体替换或淘汰。

# 主要能力

  - Single-flight：领头者在独立上下文中计算，全部等待者离开后才取消。
  - 容量：默认不限；Capacity > 0 时按分片精确切分并启用 LRU 淘汰。
  - TTL：条目惰性过期。
  - Clear：同步清空全部分片与二级存储，进行中的结果不再入库。
  - 二级存储：一级未命中时由领头者读取，存储错误记录日志并按未命中处理。

# 使用方式

	c := cache.New(cache.Config{Capacity: 1000}, cache.WithLogger(logger))
	fp := cache.Fingerprint(req, s)
	res, err := c.GetOrCompute(ctx, fp, func(ctx context.Context) (*schema.Result, error) {
		return caller.Call(ctx, req, s, gen)
	})
*/
package cache
