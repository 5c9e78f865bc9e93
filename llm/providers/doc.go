// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

包 providers 提供 HTTP 模型与搜索客户端共用的线路层辅助：OpenAI 兼容的
请求/响应结构、消息与 response_format 转换、HTTP 错误到 llm.Error 的映射。
openaicompat 与 search.Tavily 都基于本包。

# 核心函数

  - MapHTTPError / TransportError：状态码与网络错误映射为带 Retryable 标记的 llm.Error
  - ReadErrorMessage：从错误响应体中提取可读信息
  - ConvertMessagesToOpenAI / ConvertResponseFormat：请求侧转换
  - ToLLMChatResponse：响应侧转换
  - ChooseModel：请求模型 > 默认模型 > 兜底模型
  - BearerTokenHeaders：标准认证头
*/
package providers
