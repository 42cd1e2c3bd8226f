// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 jobs 管理 HTTP 服务端的视频生成任务：持久化记录、排队执行与状态推送。

# 概述

每个 POST 进来的请求对应一个 Job。Manager 校验请求后写入 Store，
把流水线执行提交到 worker 池；执行过程中请求状态机的每次迁移都会
写回 Store 并经 Hub 推送给 websocket 订阅者。终态在结果（视频路径、
帧数、错误码）写回后才落盘与推送，保证订阅者收到 assembled 时
视频已可下载。

# 存储后端

  - MemoryStore：进程内 map，单实例与测试使用
  - RedisStore：JSON 记录 + 按创建时间的有序索引，带 TTL
  - GormStore：svd_jobs 表，支持 postgres / mysql / sqlite，自动迁移

# 重启恢复

RecoverInterrupted 在启动时把仍处于非终态的任务标记为失败，
异步端点上的推理结果仍保留在 output_location 中。
*/
package jobs
