// Package objectstore 提供请求体与推理结果的对象存储访问。
//
// Store 只暴露按位置读写两种操作，并把"对象不存在"区分为 ErrNotFound，
// 轮询逻辑据此判断结果是否就绪。S3Store 基于 aws-sdk-go-v2，
// MemoryStore 用于测试与本地运行。
package objectstore
