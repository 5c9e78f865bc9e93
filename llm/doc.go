// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 llm 提供统一的大语言模型接入层：Provider 抽象、请求与响应模型、
带错误码的错误类型。

# 概述

本包屏蔽不同模型服务商在接口、鉴权与错误语义上的差异，
对研究节点暴露一致的请求与响应模型。

# 核心接口

  - [Provider]：LLM 提供者接口，提供 Completion / HealthCheck / Name

# 核心类型

  - [ChatRequest] / [ChatResponse]：聊天请求与响应
  - [ResponseFormat]：输出格式约束，json_schema 用于结构化输出
  - [Error]：带 [ErrorCode]、HTTP 状态与可重试标记的错误
  - [HealthStatus]：健康检查状态

# 子包

  - llm/providers：HTTP 错误映射与 OpenAI 兼容协议的公共类型
  - llm/providers/openaicompat：OpenAI 兼容 Provider，默认指向 OpenRouter
  - llm/retry：指数退避重试器与 RetryableProvider 包装
  - llm/structured：从 Go 类型生成 JSON Schema，并把模型回复解析为结构体

# 错误处理

Provider 返回的错误应为 *[Error]，上层通过 [IsRetryable] 判断是否重试，
通过 errors.As 读取错误码。
*/
package llm
