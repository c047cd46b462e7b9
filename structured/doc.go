// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 structured 提供面向调用方的结构化生成客户端 Client，
把 schema 校验、带退避的重试与单飞缓存组合为一次 Generate 调用。

# 概述

调用方提交请求与 schema，Client 计算请求指纹：命中缓存直接返回；
未命中时由重试循环反复调用原始生成器并逐次校验，
直到得到合法结果或用尽尝试次数。只有通过校验的结果会被缓存，
原始文本永远不会返回给调用方。

# 核心类型

  - Client：并发安全的结构化客户端，持有共享缓存。
  - Option / CallOption：构造选项与单次调用选项。
  - ClientError：Generate 返回的唯一错误类型，携带指纹与尝试次数。
  - MetricsRecorder：调用、尝试、重试与缓存事件的指标接口。

# 主要能力

  - 同一指纹的并发调用只触发一次生成，失败从不缓存。
  - 系统提示词自动附加 schema 说明，指纹仍基于调用方的原始请求。
  - 单次调用可覆盖尝试次数、退避、不可重试判定、超时与缓存读取。
  - GenerateInto 根据 struct 标签推导 schema 并解码为 Go 类型。
  - 每次调用产生一个 OpenTelemetry span，并记录 Prometheus 指标。

# 使用方式

	client, err := structured.New(gen,
		structured.WithLogger(logger),
		structured.WithCacheCapacity(1000),
	)
	res, err := client.Generate(ctx, llm.NewRequest("Analyze: great product"), sentimentSchema,
		structured.WithMaxAttempts(5),
	)
*/
package structured
