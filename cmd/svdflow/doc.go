// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 svdflow 的命令行入口。

# 概述

cmd/svdflow 把推理客户端、帧解码与视频合成装配成两种运行方式：
serve 启动 HTTP 服务，以后台任务形式处理图生视频请求；generate
直接在命令行提交图像并把视频写到本地目录。

# 核心类型

  - Server      — 主服务器，管理 API、Metrics 双端口、worker 池与任务存储
  - Middleware  — HTTP 中间件函数签名 func(http.Handler) http.Handler
  - components  — S3、SageMaker、推理客户端、合成器与 Runner 的装配结果

# 主要能力

  - 子命令：serve、generate（支持 seed sweep 与并发）、version、health
  - 中间件链：Recovery、RequestID、SecurityHeaders、OTelTracing、Metrics、
    RequestLogger、CORS、RateLimiter（基于 IP）、APIKeyAuth、JWTAuth
  - 任务存储：memory / redis / database，启动时把中断的任务标记为失败
  - Metrics 服务器：独立端口暴露 /metrics（Prometheus）
  - 优雅关闭：信号 → 关闭 API → 等待 worker → 关闭事件流 → 关闭存储 → 关闭 Metrics
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
