// Package model 定义观测客户端的核心数据模型
//
// state.go 包含聚合状态的各子状态类型：
//   - ConnectionStatus：与远端事件日志的连接状态
//   - RunLifecycle：主 Agent 执行生命周期
//   - ToolCall：单次工具调用
//   - Decision：决策日志条目
//   - DelegatedAgent：委派的子 Agent
package model

// ============================================================================
// ConnectionStatus - 连接状态
// ============================================================================

// ConnectionStatus 表示与远端事件日志的连接状态
//
// 拉取失败是可恢复的：状态降级为 error 并在下一次成功拉取时
// 恢复为 connected，从不作为硬错误向调用方抛出。
type ConnectionStatus string

const (
	// ConnectionDisconnected 未连接（初始状态，或轮询停止后）
	ConnectionDisconnected ConnectionStatus = "disconnected"

	// ConnectionConnected 已连接（最近一次拉取成功）
	ConnectionConnected ConnectionStatus = "connected"

	// ConnectionError 连接异常（最近一次拉取失败，原因见 ConnectionError 字段）
	ConnectionError ConnectionStatus = "error"
)

// ============================================================================
// RunLifecycle - 主 Agent 执行生命周期
// ============================================================================

// RunStatus 表示主 Agent 执行的状态
type RunStatus string

const (
	// RunStatusIdle 空闲：尚未观测到 agent_run_started
	RunStatusIdle RunStatus = "idle"

	// RunStatusRunning 执行中
	RunStatusRunning RunStatus = "running"

	// RunStatusCompleted 已完成
	RunStatusCompleted RunStatus = "completed"
)

// RunLifecycle 表示主 Agent 本次执行的生命周期视图
//
// 字段说明：
//   - Status：执行状态
//   - RunID / AgentID：来自 agent_run_started 事件
//   - StartedAt / CompletedAt：Unix 毫秒时间戳
//   - Result：执行结果（agent_run_completed 的 payload）
type RunLifecycle struct {
	Status      RunStatus `json:"status"`
	RunID       string    `json:"run_id,omitempty"`
	AgentID     string    `json:"agent_id,omitempty"`
	StartedAt   float64   `json:"started_at,omitempty"`
	CompletedAt *float64  `json:"completed_at,omitempty"`
	Result      string    `json:"result,omitempty"`
}

// IsRunning 判断主 Agent 是否正在执行
func (r *RunLifecycle) IsRunning() bool {
	return r.Status == RunStatusRunning
}

// IsTerminal 判断执行是否已结束
func (r *RunLifecycle) IsTerminal() bool {
	return r.Status == RunStatusCompleted
}

// ============================================================================
// ToolCall - 工具调用
// ============================================================================

// ToolCallStatus 表示工具调用的状态
//
// 状态只允许 initiated → completed 单向迁移；
// 针对未知 tool_call_id 的 completed 事件是 no-op，从不凭空创建条目。
type ToolCallStatus string

const (
	// ToolCallInitiated 已发起
	ToolCallInitiated ToolCallStatus = "initiated"

	// ToolCallCompleted 已完成
	ToolCallCompleted ToolCallStatus = "completed"
)

// ToolCall 表示 Agent 的一次工具调用
//
// 字段说明：
//   - Name：工具名称
//   - Arguments：调用参数（原样保留 payload 中的结构）
//   - StartedAt / CompletedAt：Unix 毫秒时间戳
//   - Result：工具返回结果
//   - DurationMS：耗时（毫秒），优先取 payload，缺失时按时间戳差计算
type ToolCall struct {
	Name        string         `json:"name"`
	Arguments   any            `json:"arguments,omitempty"`
	Status      ToolCallStatus `json:"status"`
	StartedAt   float64        `json:"started_at"`
	CompletedAt *float64       `json:"completed_at,omitempty"`
	Result      string         `json:"result,omitempty"`
	DurationMS  *float64       `json:"duration_ms,omitempty"`
}

// ============================================================================
// Decision - 决策日志
// ============================================================================

// Decision 表示 Agent 的一条决策记录
//
// 决策日志是 append-only 的有序序列，按 (RunID, Timestamp) 去重。
type Decision struct {
	RunID        string  `json:"run_id"`
	AgentID      string  `json:"agent_id"`
	DecisionType string  `json:"decision_type"`
	Summary      string  `json:"summary"`
	Confidence   float64 `json:"confidence"`
	Reasoning    string  `json:"reasoning,omitempty"`
	Timestamp    float64 `json:"timestamp"`
}

// ============================================================================
// DelegatedAgent - 委派的子 Agent
// ============================================================================

// DelegatedAgentStatus 表示子 Agent 的状态
type DelegatedAgentStatus string

const (
	// DelegatedAgentStarted 已启动
	DelegatedAgentStarted DelegatedAgentStatus = "started"

	// DelegatedAgentInProgress 进行中（收到过进度事件）
	DelegatedAgentInProgress DelegatedAgentStatus = "in_progress"

	// DelegatedAgentCompleted 已完成
	DelegatedAgentCompleted DelegatedAgentStatus = "completed"

	// DelegatedAgentFailed 已失败
	DelegatedAgentFailed DelegatedAgentStatus = "failed"
)

// DelegatedAgent 表示主 Agent 委派出去的一个子 Agent
//
// 条目只由 connected_agent_started 创建（同 ID 重复 started 事件会
// 整体替换旧条目）；后续 progress/completed/failed 事件只更新既有条目，
// 针对未知 ID 的更新是 no-op。
type DelegatedAgent struct {
	Name            string               `json:"name"`
	AnalysisType    string               `json:"analysis_type,omitempty"`
	Status          DelegatedAgentStatus `json:"status"`
	StartedAt       float64              `json:"started_at"`
	ProgressMessage string               `json:"progress_message,omitempty"`
	ProgressPct     *float64             `json:"progress_pct,omitempty"`
	Result          string               `json:"result,omitempty"`
	Error           string               `json:"error,omitempty"`
	CompletedAt     *float64             `json:"completed_at,omitempty"`
}

// IsTerminal 判断子 Agent 是否处于终止状态
func (d *DelegatedAgent) IsTerminal() bool {
	return d.Status == DelegatedAgentCompleted || d.Status == DelegatedAgentFailed
}
