// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil 提供 svdflow 测试的共享工具和辅助函数。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 异步断言: AssertEventuallyTrue / WaitFor
  - 数据工具: MustJSON

# 子包

  - testutil/mocks: FakeInvoker（异步端点）与 ScriptedStore（可注入
    "尚未就绪"次数与读取错误的对象存储包装）
  - testutil/fixtures: 确定性的 JPEG 帧与推理响应体

# 使用示例

	store := mocks.NewScriptedStore(objectstore.NewMemoryStore())
	invoker := mocks.NewFakeInvoker("svd-bucket").CompleteWith(store, fixtures.ResponsePayload(frames))
	store.NotReadyFor(invoker.OutputLocation("inf-1"), 2)
*/
package testutil
