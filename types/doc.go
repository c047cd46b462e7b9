// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 structflow 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 schema、llm、structured
等上层模块提供统一的错误与上下文契约，以避免循环依赖。

# 核心类型

  - Error / ErrorCode：结构化错误体系，含 HTTP 状态码、Retryable、Provider 标记
  - NewTransportError：远程调用失败（默认可重试）
  - NewCancelledError：调用方取消或超时，保留 context 错误链

# 主要能力

  - 错误判定：IsRetryable / GetErrorCode / IsCancelled 均基于 errors.As 穿透包装
  - Context 传播：WithTraceID / WithCallID 及对应的读取函数
*/
package types
