// Package observer Lifecycle Controller 测试
package observer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agents-observer/internal/model"
)

// fakeDeleter 测试用远端历史删除器
type fakeDeleter struct {
	mu       sync.Mutex
	err      error
	sessions []string
}

func (f *fakeDeleter) DeleteHistory(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions = append(f.sessions, sessionID)
	return f.err
}

func (f *fakeDeleter) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sessions...)
}

func newTestController(src EventSource) (*Controller, *Poller, *Store, *fakeDeleter) {
	store := NewStore()
	poller := NewPoller(src, store, 5*time.Millisecond, nil)
	deleter := &fakeDeleter{}
	c := NewController(poller, store, deleter, nil)
	return c, poller, store, deleter
}

// ============================================================================
// 门控：会话 ∧ 开关
// ============================================================================

// TestController_PollerRunsIffSessionAndActive 轮询器运行
// 当且仅当会话非空且观测开关打开
func TestController_PollerRunsIffSessionAndActive(t *testing.T) {
	src := &fakeSource{batches: map[string][]model.Event{}}
	c, poller, _, _ := newTestController(src)

	// 初始：两个信号都缺
	assert.False(t, poller.Running())

	// 只有会话
	c.SetSession("sess-1")
	assert.False(t, poller.Running())

	// 会话 + 开关
	c.SetActive(true)
	assert.True(t, poller.Running())

	// 开关关掉 → 停
	c.SetActive(false)
	assert.False(t, poller.Running())

	// 开关重新打开 → 恢复
	c.SetActive(true)
	assert.True(t, poller.Running())

	// 会话消失 → 停
	c.SetSession("")
	assert.False(t, poller.Running())
}

// TestController_ActiveOnlyIsNotEnough 只有开关没有会话不启动
func TestController_ActiveOnlyIsNotEnough(t *testing.T) {
	src := &fakeSource{batches: map[string][]model.Event{}}
	c, poller, _, _ := newTestController(src)

	c.SetActive(true)
	assert.False(t, poller.Running())

	c.SetSession("sess-1")
	assert.True(t, poller.Running())
}

// ============================================================================
// 会话切换
// ============================================================================

// TestController_SessionSwitchResetsState 换会话时旧聚合状态整体丢弃，
// 新会话从全量 backlog 重建
func TestController_SessionSwitchResetsState(t *testing.T) {
	src := &fakeSource{batches: map[string][]model.Event{
		"": {makeEvent("e1", model.EventTypeRunStarted, 10, nil)},
	}}
	c, poller, store, _ := newTestController(src)

	c.SetSession("sess-1")
	c.SetActive(true)

	require.Eventually(t, func() bool {
		return store.Cursor() == "e1"
	}, time.Second, time.Millisecond)

	c.SetSession("sess-2")

	// 状态已重置；新会话的首次拉取重新省略游标
	assert.Equal(t, "", store.Cursor())
	assert.Equal(t, model.RunStatusIdle, store.Snapshot().Run.Status)
	assert.True(t, poller.Running())

	require.Eventually(t, func() bool {
		for _, cur := range src.seenCursors()[1:] {
			if cur == "" {
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond)
}

// TestController_SameSessionIsNoOp 重复设置同一会话不丢状态
func TestController_SameSessionIsNoOp(t *testing.T) {
	src := &fakeSource{batches: map[string][]model.Event{
		"": {makeEvent("e1", model.EventTypeRunStarted, 10, nil)},
	}}
	c, _, store, _ := newTestController(src)

	c.SetSession("sess-1")
	c.SetActive(true)

	require.Eventually(t, func() bool {
		return store.Cursor() == "e1"
	}, time.Second, time.Millisecond)

	c.SetSession("sess-1")
	assert.Equal(t, "e1", store.Cursor())
}

// ============================================================================
// 历史清除
// ============================================================================

// TestController_ClearHistory 先删远端日志，再重置本地状态
func TestController_ClearHistory(t *testing.T) {
	src := &fakeSource{batches: map[string][]model.Event{}}
	c, _, store, deleter := newTestController(src)

	c.SetSession("sess-1")
	store.ApplyBatch([]model.Event{makeEvent("e1", model.EventTypeRunStarted, 10, nil)})

	c.ClearHistory(context.Background())

	assert.Equal(t, []string{"sess-1"}, deleter.calls())
	assert.Equal(t, "", store.Cursor())
	assert.Equal(t, model.RunStatusIdle, store.Snapshot().Run.Status)
}

// TestController_ClearHistoryRemoteFailureStillResets 远端删除失败
// 只记日志，本地重置照常进行
func TestController_ClearHistoryRemoteFailureStillResets(t *testing.T) {
	src := &fakeSource{batches: map[string][]model.Event{}}
	c, _, store, deleter := newTestController(src)
	deleter.err = errors.New("backend unavailable")

	c.SetSession("sess-1")
	store.ApplyBatch([]model.Event{makeEvent("e1", model.EventTypeRunStarted, 10, nil)})

	c.ClearHistory(context.Background())

	assert.Equal(t, []string{"sess-1"}, deleter.calls())
	assert.Equal(t, "", store.Cursor())
}

// TestController_ClearHistoryWithoutSession 无会话时跳过远端删除，只做本地重置
func TestController_ClearHistoryWithoutSession(t *testing.T) {
	src := &fakeSource{batches: map[string][]model.Event{}}
	c, _, store, deleter := newTestController(src)

	store.ApplyBatch([]model.Event{makeEvent("e1", "x", 10, nil)})
	c.ClearHistory(context.Background())

	assert.Empty(t, deleter.calls())
	assert.Equal(t, "", store.Cursor())
}
