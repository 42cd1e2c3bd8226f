// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 提供基于 GORM 的数据库连接池管理，供 SQL 任务存储使用。

# 概述

Open 按驱动名（postgres、mysql、sqlite）选择 Dialector 并打开连接，
PoolManager 统一管理连接生命周期、空闲回收与最大连接数限制。后台
健康检查定时探活，并可通过 StatsRecorder 把连接数上报到 Prometheus。

# 核心类型

  - PoolManager：连接池管理器，提供 DB()、Ping()、Stats()、Close()。
  - PoolConfig：连接池配置，Validate 校验连接数约束。
  - TransactionFunc：事务回调函数类型。

# 主要能力

  - 事务管理：WithTransaction 单次执行，WithTransactionRetry 对死锁、
    序列化失败、连接中断等错误按 internal/retry 的指数退避重试。
  - sqlite 使用 glebarez/sqlite 纯 Go 驱动，便于单机部署与测试。
*/
package database
