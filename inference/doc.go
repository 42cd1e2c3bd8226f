// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package inference 实现异步推理客户端：提交请求、轮询结果。

# 概述

一次请求的完整生命周期：

	Created → Submitted → (Pending ⇄ PollRetry) → Ready → Decoded → Assembled

任何不可重试的错误都会进入 Failed。Decoded 与 Assembled 由 frames / video
完成后经 Tracker 推进，见 pipeline 包。

# 核心类型

  - Request          — 推理请求参数，提交后不可变
  - SubmissionHandle — 提交返回的句柄，持有请求体快照与结果位置
  - Client           — 显式构造的客户端，不依赖任何全局会话
  - Tracker          — 单个请求的状态机

# 轮询语义

Poll 只做一次读取：结果不存在时返回 NOT_READY；瞬时读取错误在本次
读取内按 transient_retries 有限重试；其余错误立即返回 READ_FAILED。
AwaitResult 以固定间隔重复 Poll，直到拿到结果、遇到致命错误，或超过
SubmittedAt + InvocationTimeout + grace 后返回 TIMEOUT。
*/
package inference
