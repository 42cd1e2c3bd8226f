// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 svdflow HTTP API 的请求处理器实现。

# 概述

handlers 实现视频任务的提交、查询、下载与事件推送，以及健康检查和
统一的响应/错误处理。所有 Handler 均遵循标准 net/http 接口，
路由使用 Go 1.22 的 method + path pattern。

# 核心类型

  - VideoHandler     — POST/GET /api/v1/videos、视频下载与 websocket 事件流
  - HealthHandler    — /health、/healthz、/ready、/version
  - JobService       — 任务服务接口，由 jobs.Manager 实现
  - Response         — 统一 JSON 响应结构（success + data + error + timestamp）
  - ResponseWriter   — 包装 http.ResponseWriter 以捕获状态码，透传 Hijack/Flush

# 主要能力

  - 三种图像输入：JSON base64、image_url 服务端下载、multipart 文件上传
  - ErrorCode → HTTP 状态码映射：上游推理错误 502，超时 504，队列满 503
  - 视频未合成完成时下载返回 404
  - 事件流先推送状态快照，终态后以 1000 正常关闭
*/
package handlers
