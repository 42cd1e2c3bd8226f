// Package endpoint 封装异步推理端点的调用边界。
//
// Invoker 接收请求体所在位置与处理超时，返回结果（以及可选的失败结果）
// 将被写入的位置。SageMakerInvoker 基于 aws-sdk-go-v2 的 sagemakerruntime。
package endpoint
