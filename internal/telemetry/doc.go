// Package telemetry 初始化 OpenTelemetry SDK（OTLP/gRPC 导出 trace 与 metric），
// 并为研究运行提供 tracer。禁用时不连接任何外部服务。
package telemetry
