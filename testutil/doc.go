/*
Package testutil 提供 ResearchFlow 测试的共享工具和辅助函数。

# 概述

testutil 包为各包的单元测试提供统一的辅助能力，
避免各包重复实现相似的测试基础设施。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 断言工具: AssertMessagesEqual
  - 数据工具: MustParseJSON
  - 事件记录: EventRecorder 收集 workflow 流式事件，用于断言执行轨迹

# 子包

  - testutil/mocks: MockProvider（LLM Provider，支持按请求脚本化响应）
    与 MockSearch（搜索 Provider，支持按查询注入结果、延迟与错误）
  - testutil/fixtures: ChatResponse 工厂与结构化输出 JSON 样例
    （QueryPlanJSON / ReflectionJSON / Fenced）

# 使用示例

	ctx := testutil.TestContext(t)
	provider := mocks.NewMockProvider().WithResponse(fixtures.QueryPlanJSON("r", "q1"))
	searcher := mocks.NewMockSearch().WithError("q2", errors.New("boom"))
*/
package testutil
