// Copyright 2026 StructFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

包 providers 提供 OpenAI 兼容接口的公共基础层：线上请求/响应结构、
HTTP 状态码到 types.Error 的映射以及常见服务商的接入预设。
具体的 Generator 实现在子包 openaicompat 中。

# 核心类型

  - ChatRequest / ChatResponse 等：Chat Completions 线上格式
  - Preset：服务商默认 BaseURL、EndpointPath 与兜底模型

# 核心函数

  - MapHTTPError：将 HTTP 状态码映射为带 Retryable 标记的 types.Error
  - ReadErrorMessage：解析错误响应体（JSON 优先，回退原始文本）
  - ChooseModel：按 请求 > 默认 > 兜底 选择模型
  - LookupPreset / PresetNames：查询服务商预设
*/
package providers
