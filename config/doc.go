// Package config 提供 ResearchFlow 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → RESEARCHFLOW_* 环境变量 的顺序加载，
// 未设置时回退读取 OPENROUTER_API_KEY 与 TAVILY_API_KEY。
// Validate 在任何研究步骤执行前返回 *ConfigurationError。
package config
