// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package schema 定义结构化输出的契约与校验.

# 概述

调用方用 JSONSchema 描述期望的返回结构, 模型的原始文本经 Validator
解析与校验后成为 Result. 校验采取 fail-closed 策略: 任何一处违反约束,
整个载荷即被拒绝, 绝不返回部分合法的值.

# 核心类型

  - JSONSchema: 声明式契约, 支持 string/number/integer/boolean/enum/object/array
  - Validator / DefaultValidator: 原始文本到 Result 的纯函数转换
  - ValidationError / FieldError: 带字段路径的违规列表, 如 order.items[2].quantity
  - Result: 通过校验的值, 以 SchemaID 标记所用的 schema

# 主要能力

  - JSON 提取: 直接 JSON, markdown 代码块, 或正文中的最外层 {...}
  - 约束: 范围, 长度, 枚举, 数组元素数量, 必填与默认值
  - 额外字段: 默认忽略并剔除, 可配置为拒绝
  - 从 Go 结构体标签派生 schema (For, FromType)
  - 渲染提示词中的 schema 指令 (Instructions)
*/
package schema
