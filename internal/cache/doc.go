// 版权所有 2024 StructFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 管理二级结果缓存所用的 Redis 连接。

# 概述

Manager 负责连接生命周期：创建时 Ping 校验，后台定时健康检查，
Close 时停止检查并释放连接池。读写逻辑由 llm/cache.RedisStore
通过 Client() 拿到的 redis.UniversalClient 完成。

# 核心类型

  - Manager：连接管理器，提供 Client/Ping/Healthy/Close。

# 主要能力

  - 连接池管理：通过 PoolSize 与 MinIdleConns 控制连接复用。
  - 健康检查：状态变化时通过 zap 日志告警或恢复提示。
  - 优雅关闭：Close 等待健康检查协程退出后再关闭客户端。
*/
package cache
