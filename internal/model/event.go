// Package model 定义观测客户端的核心数据模型
//
// event.go 包含事件相关的数据模型定义：
//   - Event：远端事件日志中的单条事件（wire 格式）
//   - EventType：事件类型枚举
//   - 各类型 payload 的读取辅助方法
package model

import "encoding/json"

// ============================================================================
// EventType - 事件类型
// ============================================================================

// EventType 定义事件的类型
//
// 事件分类：
//  1. 生命周期事件：agent_run_started, agent_run_completed
//  2. 工具事件：tool_call_initiated, tool_call_completed
//  3. 决策事件：decision_made
//  4. 性能事件：performance_metrics
//  5. 子 Agent 事件：connected_agent_started/progress/completed/failed
//
// 未知类型同样是合法的：消费端记入事件日志并标记已见，
// 但不触发任何子状态变更（避免未知事件被无限重试）。
type EventType string

const (
	// === 生命周期事件 ===

	// EventTypeRunStarted Agent 执行开始
	EventTypeRunStarted EventType = "agent_run_started"

	// EventTypeRunCompleted Agent 执行完成
	// Payload: {"result": "..."}
	EventTypeRunCompleted EventType = "agent_run_completed"

	// === 工具事件 ===

	// EventTypeToolCallInitiated 工具调用发起
	// Payload: {"tool_call_id": "...", "name": "...", "arguments": {...}}
	EventTypeToolCallInitiated EventType = "tool_call_initiated"

	// EventTypeToolCallCompleted 工具调用完成
	// Payload: {"tool_call_id": "...", "result": "...", "duration_ms": 42}
	EventTypeToolCallCompleted EventType = "tool_call_completed"

	// === 决策事件 ===

	// EventTypeDecisionMade Agent 做出一次决策
	// Payload: {"decision_type": "...", "summary": "...", "confidence": 0.9, "reasoning": "..."}
	EventTypeDecisionMade EventType = "decision_made"

	// === 性能事件 ===

	// EventTypePerformanceMetrics 性能指标上报（按 agent_id 覆盖更新）
	// Payload: 任意指标键值对，如 {"tokens": 1234, "latency_ms": 87}
	EventTypePerformanceMetrics EventType = "performance_metrics"

	// === 子 Agent 事件 ===

	// EventTypeConnectedAgentStarted 委派的子 Agent 启动
	// Payload: {"connected_thread_id": "...", "name": "...", "analysis_type": "..."}
	EventTypeConnectedAgentStarted EventType = "connected_agent_started"

	// EventTypeConnectedAgentProgress 子 Agent 进度更新
	// Payload: {"connected_thread_id": "...", "progress_message": "...", "progress_pct": 50}
	EventTypeConnectedAgentProgress EventType = "connected_agent_progress"

	// EventTypeConnectedAgentCompleted 子 Agent 完成
	// Payload: {"connected_thread_id": "...", "result": "..."}
	EventTypeConnectedAgentCompleted EventType = "connected_agent_completed"

	// EventTypeConnectedAgentFailed 子 Agent 失败
	// Payload: {"connected_thread_id": "...", "error": "..."}
	EventTypeConnectedAgentFailed EventType = "connected_agent_failed"
)

// ============================================================================
// Event - 远端事件（wire 格式）
// ============================================================================

// Event 表示远端事件日志中的一条事件
//
// 事件由远端 Agent 执行服务（生产者）产生，通过
// GET /observability/events/{sessionId} 增量拉取。
//
// 字段说明：
//   - ID：生产者分配，会话内唯一；消费端视为不透明值，仅用于去重和游标
//   - EventType：事件类型
//   - Timestamp：事件发生时间（Unix 毫秒，wire 上为 number）
//   - RunID：所属 Run ID
//   - AgentID：产生事件的 Agent ID
//   - Data：事件数据，不同类型有不同的字段
//
// 事件是不可变的；至少一次投递意味着同一事件可能跨多次拉取重复出现，
// 由消费端按 ID 幂等吸收。
type Event struct {
	ID        string         `json:"id"`
	EventType EventType      `json:"event_type"`
	Timestamp float64        `json:"timestamp"`
	RunID     string         `json:"run_id"`
	AgentID   string         `json:"agent_id"`
	Data      map[string]any `json:"data,omitempty"`
}

// ============================================================================
// Payload 读取辅助
// ============================================================================

// DataString 读取 Data 中的字符串字段，缺失或类型不符时返回空串
func (e *Event) DataString(key string) string {
	s, _ := e.Data[key].(string)
	return s
}

// DataFloat 读取 Data 中的数值字段
//
// JSON 反序列化到 map[string]any 时所有 number 都是 float64，
// 但手工构造的事件（测试）可能使用 int，这里一并兼容。
func (e *Event) DataFloat(key string) (float64, bool) {
	switch v := e.Data[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// DataAny 读取 Data 中的任意字段
func (e *Event) DataAny(key string) any {
	return e.Data[key]
}

// ToolCallID 工具事件的 tool_call_id
func (e *Event) ToolCallID() string {
	return e.DataString("tool_call_id")
}

// ConnectedThreadID 子 Agent 事件的 connected_thread_id
func (e *Event) ConnectedThreadID() string {
	return e.DataString("connected_thread_id")
}
