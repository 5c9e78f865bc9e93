/*
Package research 实现深度研究流程：生成查询、并行检索、反思补充、带引用作答。

# 流程

	generate_query ──扇出──▶ web_research ×k ──汇合──▶ reflection
	                                  ▲                      │
	                                  └──── 不足且未达上限 ────┤
	                                                         ▼
	                                                 finalize_answer

generate_query 让查询模型给出至多 NumberOfInitialQueries 条查询；每条查询
成为一个隔离分支，只看到自己的 SearchQuery 与 RunConfig。reflection 将
LoopCount 加一并判断已收集内容是否足够；不足且未达 MaxResearchLoops 时
按 FollowUpQueries 再扇出一轮，否则进入 finalize_answer。

# 状态合并

Messages、WebResults、SourcesGathered、SearchQueries 为追加字段，按分发
顺序合并；QueryList、IsSufficient、KnowledgeGap、FollowUpQueries 为覆盖
字段；LoopCount 只增不减。答案中的 [n] 引用对应 SourcesGathered 的第 n 项。

# 错误

  - *config.ConfigurationError：运行配置无效，在任何节点执行前返回
  - *ProviderError            ：模型或搜索调用失败，记录操作、模型与查询
  - *workflow.RunError        ：运行失败，指明失败节点；strict 下包裹分支错误

lenient 策略（默认）下失败的检索分支被丢弃并记录在 Result.BranchFailures。
*/
package research
