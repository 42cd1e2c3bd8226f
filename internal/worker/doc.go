// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 worker 提供有界 goroutine 池，用于执行服务端的视频生成任务。

Pool 按需拉起 worker，上限为 MaxWorkers；任务先进入容量为 QueueSize
的队列，队列满时 Submit 立即返回 ErrPoolFull，由上层转换为 503。
任务 panic 会被恢复并记录日志。Shutdown 等待队列清空，超时后取消
任务上下文。
*/
package worker
