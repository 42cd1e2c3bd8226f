// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集，覆盖 HTTP、推理链路、
视频合成、后台任务与数据库连接池。

# 概述

Collector 通过 promauto 注册全部指标，默认注册到全局 Registry，
测试或多实例场景可用 NewCollectorWith 指定 Registerer。所有指标按
namespace 隔离。

# 主要能力

  - HTTP 指标：请求总数、耗时、请求/响应体大小，状态码归类为 2xx/3xx/4xx/5xx。
  - 推理指标：按 stage/status 统计阶段次数与耗时（submit、poll、await、
    decode、assemble），按 outcome 统计轮询次数，按 from/to 统计状态迁移。
  - 视频指标：每个产物的帧数与文件大小。
  - 任务指标：排队数、执行数与终态计数。
  - 数据库指标：活跃/空闲连接数 Gauge。

Collector 的方法集同时满足 inference.Recorder、pipeline.StageRecorder
与 database.StatsRecorder。
*/
package metrics
