// Package observer 事件摄取与状态归约管线
//
// 管线将远端的 append-only、至少一次投递的事件日志增量折叠为
// 单一一致的聚合状态快照，供渲染层只读消费：
//
//	Controller 启动 Poller → Poller 拉取批次 → Store 去重
//	→ Reducer 折叠 → 子状态更新 → 游标推进 → 下一次拉取
//
// store.go 包含 Store：每个观测会话唯一的聚合状态持有者。
package observer

import (
	"strconv"
	"sync"

	"agents-observer/internal/model"
)

// DefaultEventLogSize 事件日志窗口大小（滑动窗口，最旧的先淘汰）
const DefaultEventLogSize = 100

// State 观测会话的聚合状态
//
// 渲染层通过 Store.Snapshot 获得深拷贝，从不直接持有此结构。
//
// 不变量：
//   - seenIds ⊇ EventLog 中所有事件的 ID
//   - Cursor 等于最近一次成功应用的事件 ID，会话内单调不减
//   - len(EventLog) ≤ 日志窗口大小
type State struct {
	// ConnectionStatus 与远端事件日志的连接状态
	ConnectionStatus model.ConnectionStatus `json:"connection_status"`

	// ConnectionError 连接异常原因（仅 status=error 时有值）
	ConnectionError string `json:"connection_error,omitempty"`

	// Cursor 最近一次应用的事件 ID（空串表示尚未应用任何事件）
	Cursor string `json:"cursor,omitempty"`

	// Run 主 Agent 执行生命周期
	Run model.RunLifecycle `json:"run"`

	// ToolCalls 按 tool_call_id 索引的工具调用注册表
	ToolCalls map[string]*model.ToolCall `json:"tool_calls"`

	// Decisions append-only 决策日志
	Decisions []model.Decision `json:"decisions"`

	// DelegatedAgents 按 connected_thread_id 索引的子 Agent 追踪表
	DelegatedAgents map[string]*model.DelegatedAgent `json:"delegated_agents"`

	// PerformanceMetrics 按 agent_id 索引的最新性能指标（last-write-wins）
	PerformanceMetrics map[string]map[string]any `json:"performance_metrics"`

	// EventLog 最近 N 条原始事件（审计/调试展示用）
	EventLog []model.Event `json:"event_log"`
}

// newState 构造空聚合状态
func newState() State {
	return State{
		ConnectionStatus:   model.ConnectionDisconnected,
		Run:                model.RunLifecycle{Status: model.RunStatusIdle},
		ToolCalls:          make(map[string]*model.ToolCall),
		DelegatedAgents:    make(map[string]*model.DelegatedAgent),
		PerformanceMetrics: make(map[string]map[string]any),
	}
}

// Store 持有一个观测会话的聚合状态
//
// Store 是管线中唯一的可变共享资源：只有 Reducer（经 ApplyBatch）
// 写入，渲染层只读快照。所有写入在同一临界区内完成，
// 保证重叠的拉取结果不会交错折叠。
type Store struct {
	mu sync.RWMutex

	state State

	// seen 本会话已应用的事件 ID 集合
	//
	// 集合随会话单调增长、从不收缩：生产者不保证 ID 严格递增无空洞，
	// 因此不能只靠游标去重。会话重置时整体丢弃。
	seen map[string]struct{}

	// decisionSeen 决策去重索引，键为 (run_id, timestamp)
	decisionSeen map[string]struct{}

	// logSize 事件日志窗口大小
	logSize int
}

// NewStore 创建空的会话状态存储
func NewStore() *Store {
	return NewStoreWithLogSize(DefaultEventLogSize)
}

// NewStoreWithLogSize 创建指定日志窗口大小的存储
func NewStoreWithLogSize(logSize int) *Store {
	if logSize <= 0 {
		logSize = DefaultEventLogSize
	}
	return &Store{
		state:        newState(),
		seen:         make(map[string]struct{}),
		decisionSeen: make(map[string]struct{}),
		logSize:      logSize,
	}
}

// ApplyBatch 将一批事件折叠进聚合状态，返回实际应用的事件数
//
// 处理流程（单临界区）：
//  1. 按实时 seen 集合去重（不是拉取发起时捕获的旧值，
//     避免两次拉取重叠时的重复应用）
//  2. 幸存事件按服务端返回顺序依次经 Reducer 折叠
//  3. 每条事件追加进事件日志并裁剪窗口、标记已见
//  4. 游标推进到最后一条已应用事件的 ID
//
// 空批次是 no-op：不改状态、不推游标。
func (s *Store) ApplyBatch(events []model.Event) int {
	if len(events) == 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	applied := 0
	for i := range events {
		e := &events[i]
		if e.ID == "" {
			continue
		}
		if _, dup := s.seen[e.ID]; dup {
			continue
		}

		s.applyEvent(e)

		s.state.EventLog = append(s.state.EventLog, *e)
		if len(s.state.EventLog) > s.logSize {
			s.state.EventLog = s.state.EventLog[len(s.state.EventLog)-s.logSize:]
		}

		s.seen[e.ID] = struct{}{}
		s.state.Cursor = e.ID
		applied++
	}

	return applied
}

// Cursor 返回当前游标（下一次拉取的 last_event_id，空串表示全量拉取）
//
// 游标在批次折叠的同一临界区内同步更新，调度下一次拉取时
// 直接读取这里，从不经过延迟的快照值。
func (s *Store) Cursor() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Cursor
}

// Seen 判断事件 ID 是否已应用过
func (s *Store) Seen(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.seen[id]
	return ok
}

// SetConnected 标记最近一次拉取成功，清除错误状态
func (s *Store) SetConnected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.ConnectionStatus = model.ConnectionConnected
	s.state.ConnectionError = ""
}

// SetConnectionError 记录拉取失败原因
//
// 传输失败是可恢复的：不中断轮询，下一次成功拉取时清除。
func (s *Store) SetConnectionError(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.ConnectionStatus = model.ConnectionError
	s.state.ConnectionError = reason
}

// SetDisconnected 标记轮询已停止
func (s *Store) SetDisconnected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.ConnectionStatus = model.ConnectionDisconnected
	s.state.ConnectionError = ""
}

// Reset 丢弃全部聚合状态，回到空会话
//
// 在会话切换或操作员清除历史时调用；游标与 seen 集合一并清空，
// 下一次拉取将重新获得远端全量 backlog。
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = newState()
	s.seen = make(map[string]struct{})
	s.decisionSeen = make(map[string]struct{})
}

// Snapshot 返回聚合状态的深拷贝（渲染层只读消费）
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := s.state

	snap.ToolCalls = make(map[string]*model.ToolCall, len(s.state.ToolCalls))
	for id, tc := range s.state.ToolCalls {
		c := *tc
		if tc.CompletedAt != nil {
			v := *tc.CompletedAt
			c.CompletedAt = &v
		}
		if tc.DurationMS != nil {
			v := *tc.DurationMS
			c.DurationMS = &v
		}
		snap.ToolCalls[id] = &c
	}

	snap.DelegatedAgents = make(map[string]*model.DelegatedAgent, len(s.state.DelegatedAgents))
	for id, da := range s.state.DelegatedAgents {
		c := *da
		if da.ProgressPct != nil {
			v := *da.ProgressPct
			c.ProgressPct = &v
		}
		if da.CompletedAt != nil {
			v := *da.CompletedAt
			c.CompletedAt = &v
		}
		snap.DelegatedAgents[id] = &c
	}

	snap.PerformanceMetrics = make(map[string]map[string]any, len(s.state.PerformanceMetrics))
	for agentID, m := range s.state.PerformanceMetrics {
		cm := make(map[string]any, len(m))
		for k, v := range m {
			cm[k] = v
		}
		snap.PerformanceMetrics[agentID] = cm
	}

	snap.Decisions = append([]model.Decision(nil), s.state.Decisions...)
	snap.EventLog = append([]model.Event(nil), s.state.EventLog...)

	if s.state.Run.CompletedAt != nil {
		v := *s.state.Run.CompletedAt
		snap.Run.CompletedAt = &v
	}

	return snap
}

// decisionKey 决策去重键
func decisionKey(runID string, timestamp float64) string {
	return runID + "|" + strconv.FormatFloat(timestamp, 'g', -1, 64)
}
