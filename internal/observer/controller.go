// Package observer 事件摄取与状态归约管线
//
// controller.go 包含 Lifecycle Controller：根据外部信号
// （会话 ID 是否存在、操作员的"观测开关"）门控轮询器，
// 并实现会话切换与历史清除。
package observer

import (
	"context"
	"sync"

	"agents-observer/pkg/logging"
)

// HistoryDeleter 远端历史删除接口
type HistoryDeleter interface {
	DeleteHistory(ctx context.Context, sessionID string) error
}

// Controller 生命周期控制器
//
// 轮询器运行当且仅当：会话 ID 非空 且 观测开关打开。
// 任一信号变为 false 都会停止轮询；会话切换时先丢弃旧聚合状态
// （游标、seen 集合一并清空）再允许新的轮询启动。
type Controller struct {
	poller  *Poller
	store   *Store
	deleter HistoryDeleter
	log     *logging.Logger
	metrics *Metrics

	mu        sync.Mutex
	sessionID string
	active    bool
}

// NewController 创建生命周期控制器
//
// deleter 可为 nil（ClearHistory 只做本地重置）；metrics 可为 nil。
func NewController(poller *Poller, store *Store, deleter HistoryDeleter, metrics *Metrics) *Controller {
	return &Controller{
		poller:  poller,
		store:   store,
		deleter: deleter,
		log:     logging.Default("controller"),
		metrics: metrics,
	}
}

// SetSession 绑定/切换观测会话
//
// 传空串表示会话消失（停止轮询）；切换到新会话时旧状态整体丢弃。
func (c *Controller) SetSession(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if sessionID == c.sessionID {
		c.reconcileLocked()
		return
	}

	c.poller.Stop()
	c.store.Reset()
	c.sessionID = sessionID
	c.log.WithSessionID(sessionID).Info("Session changed")
	c.reconcileLocked()
}

// SetActive 设置操作员的观测开关
func (c *Controller) SetActive(active bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if active == c.active {
		return
	}
	c.active = active
	c.log.Info("Observability toggled", "active", active)
	c.reconcileLocked()
}

// SessionID 返回当前绑定的会话 ID
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Active 返回观测开关状态
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// reconcileLocked 按当前信号把轮询器调到目标状态
func (c *Controller) reconcileLocked() {
	if c.sessionID != "" && c.active {
		c.poller.Start(c.sessionID)
		return
	}
	c.poller.Stop()
}

// ClearHistory 清除当前会话的历史
//
// 先请求删除远端日志，随后无条件重置本地聚合状态——
// 远端删除失败只记日志（非致命）：远端日志真正删掉后，
// 下一次轮询自然重建出空的本地模型；没删掉则重新填充。
func (c *Controller) ClearHistory(ctx context.Context) {
	c.mu.Lock()
	sessionID := c.sessionID
	c.mu.Unlock()

	if sessionID != "" && c.deleter != nil {
		err := c.deleter.DeleteHistory(ctx, sessionID)
		c.metrics.RecordHistoryClear(err)
		if err != nil {
			c.log.WithSessionID(sessionID).WithError(err).
				Warn("Remote history deletion failed, resetting local state anyway")
		} else {
			c.log.WithSessionID(sessionID).Info("Remote history deleted")
		}
	}

	c.store.Reset()
}
