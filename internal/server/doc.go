// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 提供命令行批处理运行期间的指标与健康检查 HTTP 监听。

# 概述

Manager 封装 net/http.Server，负责非阻塞启动、优雅关闭与异步错误传播。
NewHandler 组装 /metrics（Prometheus）与 /healthz 两个端点，
健康检查由调用方注入，例如二级缓存的 Redis 连通性。

# 核心类型

  - Manager：监听生命周期，提供 Start/Shutdown/Errors/Addr/IsRunning。
  - Config：监听地址、读写超时与关闭超时，可由 config.MetricsConfig 构建。
  - HealthFunc：健康检查回调。

# 主要能力

  - 非阻塞启动，Addr 返回实际监听地址（支持 :0 随机端口）。
  - Shutdown 幂等，关闭后不可再次启动。
*/
package server
