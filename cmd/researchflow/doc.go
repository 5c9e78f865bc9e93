/*
Package main 提供 researchflow 命令行程序。

# 概述

run 子命令加载配置（YAML + RESEARCHFLOW_* 环境变量，密钥可回退到
OPENROUTER_API_KEY / TAVILY_API_KEY），组装 OpenRouter 兼容的模型客户端、
Tavily 搜索（限流、重试、可选 Redis 缓存）与研究 Agent，执行一次研究并
以 Markdown（终端下经 glamour 渲染）或 JSON 输出答案与来源。

# 子命令

  - run    ：研究一个问题；--strict 切换为严格分支策略
  - graph  ：输出研究流程的 Mermaid 图
  - version：显示构建注入的版本信息

配置错误以退出码 2 结束，其余失败为 1。
*/
package main
