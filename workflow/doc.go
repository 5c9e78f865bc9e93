/*
Package workflow 提供泛型状态图编排与执行引擎。

# 概述

Graph[S, U] 描述节点、固定边与条件边；Compile 校验拓扑后得到
CompiledGraph，Run 按步推进：执行节点 → 通过 StateReducer 合并增量 →
解析出边（固定边或 RouterFunc）→ 单节点、结束或动态扇出（wave）。

# 核心类型

  - Graph / CompiledGraph：图定义与可执行图（允许环，带孤立节点检测）
  - NodeFunc             ：节点函数，只返回增量 U，不直接修改共享状态
  - Route / Send         ：路由决策：Goto、FanOut（每个 Send 一个分支）、Finish
  - Reducer / Optional   ：字段级合并策略（Append / LastValue / Max）与覆盖值
  - BranchPolicy         ：分支失败策略：lenient（默认，记录并丢弃）/ strict（取消并失败）
  - RunError / BranchError：运行级与分支级错误
  - StreamEmitter        ：通过 context 注入的执行事件回调
  - ExecutionHistory     ：节点与分支执行记录

# 扇出语义

扇出目标须以 AddBranchNode 声明，Compile 检查它有固定边，该固定后继即汇合
节点。所有分支结束后才开始合并，合并按
分发顺序串行执行，因此最终状态与分支完成顺序无关。空扇出直接进入
汇合节点。MaxSteps 限制节点执行与 wave 的总数。
*/
package workflow
