// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package pipeline 把单个推理请求从提交驱动到成片。

# 概述

Runner 串起完整链路：Submit → AwaitResult → frames.Decode →
（可选）帧落盘 → video.Assembler。每个请求持有自己的 Tracker，
状态依次经过 Submitted、Pending/PollRetry、Ready、Decoded、Assembled，
任一步失败进入 Failed 并保留原始错误。

# 批量运行

RunBatch 支持两种模式：

  - concurrency <= 1 时逐个串行执行
  - concurrency > 1 时每个请求独立轮询，通过 errgroup.SetLimit 限制并发

结果顺序与输入顺序一致，单个失败不会取消其它请求。SeedSweep 用于按
种子步进生成一组请求。
*/
package pipeline
