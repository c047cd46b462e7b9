// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖结构化调用、
响应缓存与上游生成器三个维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
注册，默认注册到 prometheus.DefaultRegisterer，也可通过
WithRegisterer 指定独立的 Registry（测试中常用）。

# 核心类型

  - Collector：指标收集器，实现 cache.MetricsRecorder 与
    structured.MetricsRecorder。

# 主要能力

  - 调用指标：按 schema/outcome 计数，调用耗时 Histogram。
  - 尝试指标：每次生成尝试的结果分类与重试次数。
  - 缓存指标：hit / l2_hit / miss / join 查找计数与 LRU 淘汰数。
  - 上游指标：请求总数、耗时与 Token 用量，按 provider/model 分组。
*/
package metrics
