// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 提供 HTTP/HTTPS 服务器生命周期管理，支持非阻塞启动与优雅关闭。

# 概述

svdflow serve 运行两个 Manager：一个承载视频任务 API，一个只暴露
Prometheus /metrics。系统信号由 cmd 层通过 signal.NotifyContext 转成
context，Manager 只关心监听、服务与关闭。

# 核心类型

  - Manager：持有 http.Server、net.Listener 与异步错误通道，提供
    Start/StartTLS/Shutdown/Wait 等生命周期方法。
  - Config：名称、监听地址、读写超时、空闲超时、最大请求头大小与
    优雅关闭超时。

# 主要能力

  - 非阻塞启动：Start/StartTLS 在后台 goroutine 中运行服务。
  - 实际地址：Addr 在启动后返回绑定的端口，便于 ":0" 场景。
  - 优雅关闭：Shutdown 在配置的超时内排空请求。
  - 错误传播：Wait/Errors 暴露服务异常退出。
*/
package server
