// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package api 定义 svdflow HTTP API 的请求与响应类型。

# 概述

api 只包含可序列化的 DTO，供 handlers 与客户端共享。
任务内部记录（jobs.Job）中的本地文件路径等字段不会直接暴露，
由 handlers 转换为 VideoJob / VideoArtifact。

# 核心类型

  - CreateVideoRequest  — 提交任务，参数字段为指针，未设置时使用服务端默认值
  - CreateVideoResponse — 202 响应，含任务 ID 与状态/事件地址
  - VideoJob            — 任务详情，含推理位置、视频信息与失败原因
  - VersionInfo         — /version 响应
*/
package api
