// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil 提供 structflow 测试的共享工具和辅助函数。

# 概述

testutil 包为各包的单元测试提供统一的辅助能力，避免重复实现相似的
测试基础设施。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 断言工具: AssertValidationPaths / AssertResultJSON / AssertEventuallyTrue
  - 数据工具: MustJSON / SentimentSchema

# 子包

  - testutil/mocks: ScriptedGenerator，按脚本返回载荷或错误，
    统计调用次数，并支持阻塞以构造并发场景

# 使用示例

	ctx := testutil.TestContext(t)
	gen := mocks.NewScriptedGenerator(
		mocks.Reply(`{"label":"positive","confidence":1.5,"summary":"x"}`),
		mocks.Reply(`{"label":"positive","confidence":0.9,"summary":"x"}`),
	)
	res, err := client.Generate(ctx, req, testutil.SentimentSchema())
*/
package testutil
