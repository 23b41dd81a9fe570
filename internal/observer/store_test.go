// Package observer Store 去重/留存/游标测试
package observer

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agents-observer/internal/model"
)

// ============================================================================
// 幂等与去重
// ============================================================================

// TestStore_Idempotence 同一事件重复应用是 no-op：
// 第二次在进入 Reducer 之前就被拒掉
func TestStore_Idempotence(t *testing.T) {
	s := NewStore()
	e := makeEvent("e1", model.EventTypeDecisionMade, 100, map[string]any{"summary": "x"})

	applied := s.ApplyBatch([]model.Event{e})
	assert.Equal(t, 1, applied)
	first := s.Snapshot()

	applied = s.ApplyBatch([]model.Event{e})
	assert.Equal(t, 0, applied)
	second := s.Snapshot()

	assert.Equal(t, first.Decisions, second.Decisions)
	assert.Equal(t, first.Cursor, second.Cursor)
	assert.Len(t, second.EventLog, 1)
}

// TestStore_DuplicateWithinBatch 批次内的重复 ID 同样被吸收
func TestStore_DuplicateWithinBatch(t *testing.T) {
	s := NewStore()

	applied := s.ApplyBatch([]model.Event{
		makeEvent("e1", model.EventTypeRunStarted, 10, nil),
		makeEvent("e1", model.EventTypeRunStarted, 10, nil),
		makeEvent("e2", model.EventTypeRunCompleted, 20, nil),
	})

	assert.Equal(t, 2, applied)
	assert.Len(t, s.Snapshot().EventLog, 2)
}

// ============================================================================
// 批次切分不变性
// ============================================================================

// TestStore_BatchSplitInvariance 一次应用 [e1..e4] 与分两批
// [e1,e2]+[e3,e4] 得到相同的最终聚合状态
func TestStore_BatchSplitInvariance(t *testing.T) {
	events := []model.Event{
		makeEvent("e1", model.EventTypeRunStarted, 10, nil),
		makeEvent("e2", model.EventTypeToolCallInitiated, 20, map[string]any{
			"tool_call_id": "T1", "name": "query",
		}),
		makeEvent("e3", model.EventTypeToolCallCompleted, 30, map[string]any{
			"tool_call_id": "T1", "result": "ok",
		}),
		makeEvent("e4", model.EventTypeRunCompleted, 40, map[string]any{"result": "done"}),
	}

	whole := NewStore()
	whole.ApplyBatch(events)

	split := NewStore()
	split.ApplyBatch(events[:2])
	split.ApplyBatch(events[2:])

	assert.Equal(t, whole.Snapshot(), split.Snapshot())
	assert.Equal(t, whole.Cursor(), split.Cursor())
}

// ============================================================================
// 事件日志留存窗口
// ============================================================================

// TestStore_EventLogRetentionBound 应用 ≥100 条不同事件后窗口恰为 100 条，
// 且内容是按到达顺序最新的 100 条
func TestStore_EventLogRetentionBound(t *testing.T) {
	s := NewStore()

	var events []model.Event
	for i := 0; i < 250; i++ {
		events = append(events, makeEvent(
			fmt.Sprintf("e%03d", i), "telemetry_blob", float64(i), nil))
	}
	s.ApplyBatch(events)

	snap := s.Snapshot()
	require.Len(t, snap.EventLog, DefaultEventLogSize)
	assert.Equal(t, "e150", snap.EventLog[0].ID)
	assert.Equal(t, "e249", snap.EventLog[len(snap.EventLog)-1].ID)

	// 不变量：seenIds ⊇ eventLog 中所有 ID
	for _, e := range snap.EventLog {
		assert.True(t, s.Seen(e.ID))
	}
	// 淘汰出窗口的事件仍保持已见（窗口淘汰不重置去重）
	assert.True(t, s.Seen("e000"))
}

func TestStore_CustomLogSize(t *testing.T) {
	s := NewStoreWithLogSize(5)

	var events []model.Event
	for i := 0; i < 8; i++ {
		events = append(events, makeEvent(fmt.Sprintf("e%d", i), "x", float64(i), nil))
	}
	s.ApplyBatch(events)

	snap := s.Snapshot()
	require.Len(t, snap.EventLog, 5)
	assert.Equal(t, "e3", snap.EventLog[0].ID)
}

// ============================================================================
// 游标
// ============================================================================

// TestStore_CursorAdvancesToLastApplied 游标总是指向最近一批里
// 最后一条已应用事件
func TestStore_CursorAdvancesToLastApplied(t *testing.T) {
	s := NewStore()
	assert.Equal(t, "", s.Cursor())

	s.ApplyBatch([]model.Event{
		makeEvent("e1", "x", 1, nil),
		makeEvent("e2", "x", 2, nil),
	})
	assert.Equal(t, "e2", s.Cursor())

	// 空批次不推游标
	s.ApplyBatch(nil)
	assert.Equal(t, "e2", s.Cursor())

	// 全部重复的批次也不推游标
	s.ApplyBatch([]model.Event{makeEvent("e1", "x", 1, nil)})
	assert.Equal(t, "e2", s.Cursor())

	s.ApplyBatch([]model.Event{makeEvent("e3", "x", 3, nil)})
	assert.Equal(t, "e3", s.Cursor())
}

// ============================================================================
// 连接状态
// ============================================================================

func TestStore_ConnectionStatus(t *testing.T) {
	s := NewStore()
	assert.Equal(t, model.ConnectionDisconnected, s.Snapshot().ConnectionStatus)

	s.SetConnectionError("connection refused")
	snap := s.Snapshot()
	assert.Equal(t, model.ConnectionError, snap.ConnectionStatus)
	assert.Equal(t, "connection refused", snap.ConnectionError)

	// 下一次成功拉取清除错误
	s.SetConnected()
	snap = s.Snapshot()
	assert.Equal(t, model.ConnectionConnected, snap.ConnectionStatus)
	assert.Empty(t, snap.ConnectionError)
}

// ============================================================================
// 重置
// ============================================================================

// TestStore_Reset 重置丢弃全部状态：游标、seen 集合、各子状态
func TestStore_Reset(t *testing.T) {
	s := NewStore()
	s.ApplyBatch([]model.Event{
		makeEvent("e1", model.EventTypeRunStarted, 10, nil),
		makeEvent("e2", model.EventTypeToolCallInitiated, 20, map[string]any{
			"tool_call_id": "T1", "name": "q",
		}),
	})
	s.SetConnected()

	s.Reset()

	snap := s.Snapshot()
	assert.Equal(t, "", s.Cursor())
	assert.False(t, s.Seen("e1"))
	assert.Equal(t, model.RunStatusIdle, snap.Run.Status)
	assert.Empty(t, snap.ToolCalls)
	assert.Empty(t, snap.EventLog)
	assert.Equal(t, model.ConnectionDisconnected, snap.ConnectionStatus)

	// 重置后同一事件可以重新应用（远端日志未删时的重建路径）
	applied := s.ApplyBatch([]model.Event{makeEvent("e1", model.EventTypeRunStarted, 10, nil)})
	assert.Equal(t, 1, applied)
}

// ============================================================================
// 快照隔离
// ============================================================================

// TestStore_SnapshotIsolation 修改快照不影响 Store 内部状态
func TestStore_SnapshotIsolation(t *testing.T) {
	s := NewStore()
	s.ApplyBatch([]model.Event{
		makeEvent("e1", model.EventTypeToolCallInitiated, 10, map[string]any{
			"tool_call_id": "T1", "name": "q",
		}),
		makeEvent("e2", model.EventTypeDecisionMade, 20, map[string]any{"summary": "d"}),
		makeEvent("e3", model.EventTypePerformanceMetrics, 30, map[string]any{"tokens": 5}),
	})

	snap := s.Snapshot()
	snap.ToolCalls["T1"].Name = "mutated"
	snap.ToolCalls["T2"] = &model.ToolCall{}
	snap.Decisions[0].Summary = "mutated"
	snap.PerformanceMetrics["agent-001"]["tokens"] = 999
	snap.EventLog[0].ID = "mutated"

	fresh := s.Snapshot()
	assert.Equal(t, "q", fresh.ToolCalls["T1"].Name)
	assert.NotContains(t, fresh.ToolCalls, "T2")
	assert.Equal(t, "d", fresh.Decisions[0].Summary)
	assert.Equal(t, 5, fresh.PerformanceMetrics["agent-001"]["tokens"])
	assert.Equal(t, "e1", fresh.EventLog[0].ID)
}
