// Package telemetry 封装 OpenTelemetry SDK 初始化逻辑，
// 为 StructFlow 提供 TracerProvider 和 MeterProvider。
// 禁用时 Tracer 返回 noop 实现，不连接任何外部服务。
package telemetry
