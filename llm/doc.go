// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 llm 定义结构化生成的请求模型与原始生成器抽象.

# 概述

[Generator] 是对远端文本生成服务的最小抽象: 一次调用返回一段原始文本.
重试, 校验与缓存都建立在这一接口之上, 具体的线路协议由
providers 子包中的适配器实现.

# 核心类型

  - [Request]: 提示词, 系统提示词与 [GenerationOptions], 交给客户端后视为不可变
  - [Generator] / [GeneratorFunc]: 原始生成接口
  - [Chain] / [Middleware]: 生成器中间件链

# 内置中间件

  - [LoggingMiddleware]: 以 zap 记录每次生成
  - [TimeoutMiddleware]: 限制单次生成耗时, 超时视为可重试的上游错误
  - [RecoveryMiddleware]: 把 panic 转换为传输错误
*/
package llm
