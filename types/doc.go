// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 svdflow 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 inference、frames、video、
pipeline、api 等上层模块提供统一的错误契约与 Context 传播工具。

# 核心类型

  - Error / ErrorCode — 结构化错误体系，含 HTTP 状态码与 Retryable 标记
  - Sentinel          — 仅携带错误码的哨兵错误，配合 errors.Is 使用

# 错误分类

异步推理链路上的错误码与处理方式：

  - SUBMISSION_FAILED — 上传请求或调用端点失败，致命，不在本地重试
  - NOT_READY         — 结果尚未写入，轮询期间的正常状态，可重试
  - READ_FAILED       — 除"不存在"以外的读取失败，致命
  - DECODE_FAILED     — 响应体格式错误，致命
  - TIMEOUT           — 超过提交超时推导出的等待上限
  - INFERENCE_FAILED  — 服务端写入了失败结果

# 主要能力

  - Context 传播：WithTraceID / WithUserID / WithJobID / WithInferenceID
*/
package types
