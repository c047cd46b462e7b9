// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 StructFlow 命令行程序入口。

# 概述

cmd/structflow 读取 JSON Schema 与一批提示词，通过结构化客户端
调用 OpenAI 兼容接口，逐行输出通过校验的 JSON 结果。程序支持
YAML 配置文件与 STRUCTFLOW_* 环境变量、结构化日志（zap）、
Prometheus 指标、OpenTelemetry 追踪以及 Redis 二级缓存。

# 主要能力

  - 子命令：generate（批量生成）、version、help
  - 并发：errgroup 限制并行调用数，结果按输入顺序输出
  - 缓存：重复提示词命中缓存；--no-cache 跳过读取但仍写回
  - 指标：metrics.enabled 时在独立端口暴露 /metrics 与 /healthz
  - 退出码：任一提示词失败时返回 1，失败详情写入日志
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
