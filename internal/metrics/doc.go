// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖
工作流运行、节点、扇出、LLM、搜索与缓存六个维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto.With
注册到调用方提供的 Registry（默认为全局 Registry）。所有指标按
namespace 隔离，支持多维度 label 分组。

# 核心类型

  - Collector：指标收集器，持有 Counter、Histogram 等向量指标。

# 主要能力

  - 工作流指标：运行总数与耗时（graph/status）、节点执行次数与耗时、
    每次扇出的分支数、失败分支计数。通过 Collector.StreamEmitter
    从 workflow 流式事件自动采集。
  - LLM 指标：请求总数、请求耗时、Token 用量（prompt/completion），
    通过 Collector.InstrumentProvider 包装 llm.Provider 采集。
  - 搜索指标：请求总数、耗时、每次返回结果数，
    通过 Collector.InstrumentSearch 包装 search.Provider 采集。
  - 缓存指标：命中与未命中计数，按 cache_type 分组。
*/
package metrics
