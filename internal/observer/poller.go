// Package observer 事件摄取与状态归约管线
//
// poller.go 包含 Cursor Poller：按固定间隔向远端日志请求
// "游标之后的事件"，把批次交给 Store 去重折叠后推进游标。
package observer

import (
	"context"
	"sync"
	"time"

	"agents-observer/internal/model"
	"agents-observer/pkg/logging"
)

// DefaultPollInterval 轮询间隔
const DefaultPollInterval = 500 * time.Millisecond

// EventSource 事件来源
//
// lastEventID 为空串表示会话首次拉取（服务端返回全量 backlog）。
type EventSource interface {
	FetchEvents(ctx context.Context, sessionID, lastEventID string) ([]model.Event, error)
}

// Poller 游标轮询器
//
// 每个会话至多一个活跃轮询循环。拉取在循环 goroutine 内同步执行，
// 因此同一会话永远不会有两次拉取同时在途；循环被拉取阻塞期间
// 错过的 tick 由 Ticker 自然丢弃。
//
// 停止语义：Stop() 取消上下文并递增 generation；晚于 Stop() 完成的
// 在途拉取在提交前比对 generation，不一致则整体丢弃，保证 Stop()
// 之后不再有任何状态变更。
type Poller struct {
	source   EventSource
	store    *Store
	interval time.Duration
	log      *logging.Logger
	metrics  *Metrics

	mu         sync.Mutex
	cancel     context.CancelFunc
	sessionID  string
	generation uint64
}

// NewPoller 创建轮询器
//
// metrics 可为 nil（禁用指标）。
func NewPoller(source EventSource, store *Store, interval time.Duration, metrics *Metrics) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		source:   source,
		store:    store,
		interval: interval,
		log:      logging.Default("poller"),
		metrics:  metrics,
	}
}

// Start 开始轮询指定会话
//
// 启动后立即执行首次拉取，随后按固定间隔继续。
// 对同一会话重复 Start 是 no-op；换会话时先停掉旧循环。
func (p *Poller) Start(sessionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		if p.sessionID == sessionID {
			return
		}
		p.stopLocked()
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.sessionID = sessionID
	gen := p.generation

	p.log.WithSessionID(sessionID).Info("Poller started")
	go p.loop(ctx, sessionID, gen)
}

// Stop 停止轮询
//
// 保证返回后不再有来自在途拉取的状态变更。
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

func (p *Poller) stopLocked() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	p.cancel = nil
	p.generation++
	p.store.SetDisconnected()
	p.log.WithSessionID(p.sessionID).Info("Poller stopped")
	p.sessionID = ""
}

// Running 判断轮询循环是否活跃
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

// loop 轮询主循环（单 goroutine，拉取内联执行）
func (p *Poller) loop(ctx context.Context, sessionID string, gen uint64) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.pollOnce(ctx, sessionID, gen)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollOnce(ctx, sessionID, gen)
		}
	}
}

// pollOnce 执行一次拉取-去重-折叠周期
//
// 游标在发起请求的瞬间从 Store 同步读取（上一批次折叠时已提交），
// 从不使用循环启动时捕获的旧值。
func (p *Poller) pollOnce(ctx context.Context, sessionID string, gen uint64) {
	start := time.Now()
	cursor := p.store.Cursor()

	events, err := p.source.FetchEvents(ctx, sessionID, cursor)
	duration := time.Since(start)

	if err != nil {
		// 传输失败可恢复：记录错误状态，下一个 tick 照常重试
		p.commit(gen, func() {
			p.store.SetConnectionError(err.Error())
		})
		p.metrics.RecordPoll(0, 0, duration, err)
		p.log.PollLog(sessionID, 0, 0, duration, err)
		return
	}

	applied := 0
	committed := p.commit(gen, func() {
		p.store.SetConnected()
		applied = p.store.ApplyBatch(events)
	})
	if !committed {
		return
	}

	p.metrics.RecordPoll(len(events), applied, duration, nil)
	p.log.PollLog(sessionID, len(events), applied, duration, nil)
}

// commit 在轮询器锁内校验 generation 后执行状态变更
//
// Stop()/会话切换会递增 generation；校验失败说明本次拉取
// 发起于停止之前、完成于停止之后，结果整体丢弃。
func (p *Poller) commit(gen uint64, fn func()) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.generation {
		return false
	}
	fn()
	return true
}
