// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 封装 go-redis 客户端，为 Redis 任务存储提供带前缀的
键值读写与有序索引。

# 核心类型

  - Manager：持有 Redis 客户端与连接池配置，提供 Get/Set/SetNX/
    Delete/Exists，GetJSON/SetJSON 便捷序列化，以及 IndexAdd/
    IndexRemove/IndexNewest 有序集合操作。
  - Config：地址、密码、key 前缀、默认 TTL、连接池、TLS 与健康检查间隔。

# 主要能力

  - 所有 key 自动加 KeyPrefix，多个部署可共用一个 Redis。
  - 可选 TLS，使用 internal/tlsutil 的加固配置。
  - 后台定时 Ping，Close 后自动停止。
  - 错误语义：ErrCacheMiss 表示 key 不存在，ErrClosed 表示已关闭。
*/
package cache
