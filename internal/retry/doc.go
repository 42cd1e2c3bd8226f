// Package retry 提供有界的指数退避重试。
//
// 只用于对象读取这类瞬时故障；提交推理请求不经过这里，
// 避免同一份请求被重复调用。
package retry
