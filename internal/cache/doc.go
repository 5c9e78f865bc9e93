// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 提供基于 Redis 的缓存管理能力，为搜索结果缓存提供存储后端。

# 概述

本包封装 go-redis 客户端，为上层业务提供统一的缓存读写接口。
Manager 负责连接生命周期管理，包括初始化、健康检查与优雅关闭。
支持可选 TLS 加密连接与统一键前缀。

# 核心类型

  - Manager：缓存管理器，提供 Get/Set/Delete 等基础操作，
    以及 GetJSON/SetJSON 便捷序列化方法。
  - Config：缓存配置，包含地址、密码、键前缀、连接池大小、默认 TTL、
    TLS 开关与健康检查间隔等参数。
  - Stats：从 Redis INFO 解析的命中、未命中、内存与连接数，由 GetStats
    返回并写入 metrics。

# 错误语义

  - ErrCacheMiss：键不存在，使用 IsCacheMiss 判断（支持包装错误）。
  - ErrClosed：Manager 已关闭。
  - ErrInvalidValue：缓存值无法解码，使用 IsInvalidValue 判断；搜索缓存据此删除坏键。
*/
package cache
