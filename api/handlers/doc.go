// Copyright (c) AgentMail Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 agentmail HTTP 操作边界的通用处理器与响应辅助函数。

# 概述

handlers 包承载跨 operation 共享的请求/响应基础设施：统一的 JSON 信封、
错误码到 HTTP 状态码的映射，以及健康检查端点。具体的 search_messages /
summarize_thread / list_reservations / admin_* 等 operation 由
internal/boundary 的 Registry 分发，不在本包内。

# 核心类型

  - HealthHandler    — 服务健康检查（/health, /healthz, /ready, /version）
  - Response         — 统一 JSON 响应结构（success + data + error + timestamp）
  - ErrorInfo        — 结构化错误信息，含 code、message、retryable 标记
  - ResponseWriter   — 包装 http.ResponseWriter 以捕获状态码
  - HealthCheck      — 可插拔健康检查接口（Database、Redis 等）

# 主要能力

  - 统一响应格式：WriteSuccess / WriteError / WriteJSON 辅助函数
  - 请求验证：DecodeJSONBody（1 MB 限制 + 严格模式）、ValidateContentType
  - errs.Code → HTTP 状态码自动映射（4xx/5xx）
  - 可扩展健康检查：RegisterCheck 注册自定义 HealthCheck 实现
*/
package handlers
