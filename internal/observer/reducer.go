// Package observer 事件摄取与状态归约管线
//
// reducer.go 包含 Reducer：把单条事件映射为子状态变更的纯分发函数。
// 每种事件类型都有确定的效果；未知类型不触发任何子状态变更
// （事件仍会进入事件日志并标记已见，调用方负责这两步）。
package observer

import "agents-observer/internal/model"

// applyEvent 将单条事件折叠进聚合状态
//
// 调用方（ApplyBatch）持有写锁并已完成去重；这里只做按类型分发。
// Reducer 是全函数：任何输入都有定义好的效果，最坏情况是 no-op。
func (s *Store) applyEvent(e *model.Event) {
	switch e.EventType {
	case model.EventTypeRunStarted:
		s.applyRunStarted(e)
	case model.EventTypeRunCompleted:
		s.applyRunCompleted(e)
	case model.EventTypeToolCallInitiated:
		s.applyToolCallInitiated(e)
	case model.EventTypeToolCallCompleted:
		s.applyToolCallCompleted(e)
	case model.EventTypeDecisionMade:
		s.applyDecisionMade(e)
	case model.EventTypePerformanceMetrics:
		s.applyPerformanceMetrics(e)
	case model.EventTypeConnectedAgentStarted:
		s.applyConnectedAgentStarted(e)
	case model.EventTypeConnectedAgentProgress:
		s.applyConnectedAgentProgress(e)
	case model.EventTypeConnectedAgentCompleted:
		s.applyConnectedAgentCompleted(e)
	case model.EventTypeConnectedAgentFailed:
		s.applyConnectedAgentFailed(e)
	default:
		// 未知事件类型：pass-through，不动子状态
	}
}

// applyRunStarted 主 Agent 执行开始
func (s *Store) applyRunStarted(e *model.Event) {
	s.state.Run = model.RunLifecycle{
		Status:    model.RunStatusRunning,
		RunID:     e.RunID,
		AgentID:   e.AgentID,
		StartedAt: e.Timestamp,
	}
}

// applyRunCompleted 主 Agent 执行完成
func (s *Store) applyRunCompleted(e *model.Event) {
	ts := e.Timestamp
	s.state.Run.Status = model.RunStatusCompleted
	s.state.Run.CompletedAt = &ts
	s.state.Run.Result = e.DataString("result")
}

// applyToolCallInitiated 工具调用发起（按 tool_call_id upsert）
func (s *Store) applyToolCallInitiated(e *model.Event) {
	id := e.ToolCallID()
	if id == "" {
		return
	}
	s.state.ToolCalls[id] = &model.ToolCall{
		Name:      e.DataString("name"),
		Arguments: e.DataAny("arguments"),
		Status:    model.ToolCallInitiated,
		StartedAt: e.Timestamp,
	}
}

// applyToolCallCompleted 工具调用完成
//
// 未知 tool_call_id 是 no-op：从不凭空创建条目。
func (s *Store) applyToolCallCompleted(e *model.Event) {
	tc, ok := s.state.ToolCalls[e.ToolCallID()]
	if !ok {
		return
	}
	ts := e.Timestamp
	tc.Status = model.ToolCallCompleted
	tc.Result = e.DataString("result")
	tc.CompletedAt = &ts
	if d, ok := e.DataFloat("duration_ms"); ok {
		tc.DurationMS = &d
	} else if tc.StartedAt > 0 && ts >= tc.StartedAt {
		d := ts - tc.StartedAt
		tc.DurationMS = &d
	}
}

// applyDecisionMade 追加决策记录，按 (run_id, timestamp) 去重
func (s *Store) applyDecisionMade(e *model.Event) {
	key := decisionKey(e.RunID, e.Timestamp)
	if _, dup := s.decisionSeen[key]; dup {
		return
	}
	s.decisionSeen[key] = struct{}{}

	confidence, _ := e.DataFloat("confidence")
	s.state.Decisions = append(s.state.Decisions, model.Decision{
		RunID:        e.RunID,
		AgentID:      e.AgentID,
		DecisionType: e.DataString("decision_type"),
		Summary:      e.DataString("summary"),
		Confidence:   confidence,
		Reasoning:    e.DataString("reasoning"),
		Timestamp:    e.Timestamp,
	})
}

// applyPerformanceMetrics 覆盖更新该 agent 的最新指标（last-write-wins）
func (s *Store) applyPerformanceMetrics(e *model.Event) {
	if e.AgentID == "" {
		return
	}
	m := make(map[string]any, len(e.Data))
	for k, v := range e.Data {
		m[k] = v
	}
	s.state.PerformanceMetrics[e.AgentID] = m
}

// applyConnectedAgentStarted 子 Agent 启动
//
// 按 connected_thread_id upsert：同 ID 重复 started 会整体替换旧条目。
func (s *Store) applyConnectedAgentStarted(e *model.Event) {
	id := e.ConnectedThreadID()
	if id == "" {
		return
	}
	s.state.DelegatedAgents[id] = &model.DelegatedAgent{
		Name:         e.DataString("name"),
		AnalysisType: e.DataString("analysis_type"),
		Status:       model.DelegatedAgentStarted,
		StartedAt:    e.Timestamp,
	}
}

// applyConnectedAgentProgress 子 Agent 进度更新（未知 ID 为 no-op）
func (s *Store) applyConnectedAgentProgress(e *model.Event) {
	da, ok := s.state.DelegatedAgents[e.ConnectedThreadID()]
	if !ok {
		return
	}
	da.Status = model.DelegatedAgentInProgress
	da.ProgressMessage = e.DataString("progress_message")
	if pct, ok := e.DataFloat("progress_pct"); ok {
		da.ProgressPct = &pct
	}
}

// applyConnectedAgentCompleted 子 Agent 完成（未知 ID 为 no-op）
func (s *Store) applyConnectedAgentCompleted(e *model.Event) {
	da, ok := s.state.DelegatedAgents[e.ConnectedThreadID()]
	if !ok {
		return
	}
	ts := e.Timestamp
	da.Status = model.DelegatedAgentCompleted
	da.Result = e.DataString("result")
	da.CompletedAt = &ts
}

// applyConnectedAgentFailed 子 Agent 失败（未知 ID 为 no-op）
func (s *Store) applyConnectedAgentFailed(e *model.Event) {
	da, ok := s.state.DelegatedAgents[e.ConnectedThreadID()]
	if !ok {
		return
	}
	da.Status = model.DelegatedAgentFailed
	da.Error = e.DataString("error")
}
