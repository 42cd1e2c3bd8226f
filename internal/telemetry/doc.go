// Package telemetry 封装 OpenTelemetry SDK 初始化逻辑。
//
// 推理链路的 span 名称与属性键集中定义在这里，inference 与 pipeline
// 共用同一套命名；资源属性标明 AWS 区域、SageMaker 端点与 bucket。
// 遥测禁用时使用 noop 实现，不连接任何外部服务。
package telemetry
