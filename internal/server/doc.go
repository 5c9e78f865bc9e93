// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 提供指标端点的 HTTP 服务生命周期管理。

# 概述

NewMetricsHandler 基于 promhttp 暴露 /metrics 与 /healthz；Manager 封装
net/http.Server，提供非阻塞启动、优雅关闭与异步错误传播。CLI 在
metrics.enabled 时于研究运行期间启动该服务。

# 核心类型

  - Manager：持有 http.Server 与 net.Listener，提供 Start/Shutdown/Errors。
  - Config：监听地址、读写超时与关闭超时。
*/
package server
