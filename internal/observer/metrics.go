// Package observer Prometheus 指标导出
package observer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 包含摄取管线的全部指标
type Metrics struct {
	// 轮询指标
	PollsTotal   *prometheus.CounterVec
	PollDuration prometheus.Histogram

	// 事件指标
	EventsReceived     prometheus.Counter
	EventsApplied      prometheus.Counter
	EventsDeduplicated prometheus.Counter
	BatchSize          prometheus.Histogram

	// 连接指标
	ConnectionUp prometheus.Gauge

	// 历史清除指标
	HistoryClears *prometheus.CounterVec

	// 快照网关指标
	WSClientsActive prometheus.Gauge
}

// NewMetrics 创建指标实例
//
// reg 传 nil 时使用默认注册表；测试传独立的 prometheus.NewRegistry()
// 以避免重复注册。
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		PollsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "polls_total",
				Help:      "Total poll cycles by result",
			},
			[]string{"result"},
		),
		PollDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "poll_duration_seconds",
				Help:      "Poll cycle duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
		),
		EventsReceived: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_received_total",
				Help:      "Total events received from the remote log",
			},
		),
		EventsApplied: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_applied_total",
				Help:      "Total events applied to the aggregate state",
			},
		),
		EventsDeduplicated: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_deduplicated_total",
				Help:      "Total duplicate events dropped",
			},
		),
		BatchSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "batch_size",
				Help:      "Number of events per fetched batch",
				Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100, 250},
			},
		),
		ConnectionUp: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "connection_up",
				Help:      "1 if the last fetch succeeded, 0 otherwise",
			},
		),
		HistoryClears: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "history_clears_total",
				Help:      "Total clear-history operations by result",
			},
			[]string{"result"},
		),
		WSClientsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "websocket_clients_active",
				Help:      "Active snapshot WebSocket clients",
			},
		),
	}
}

// RecordPoll 记录一次轮询周期
func (m *Metrics) RecordPoll(fetched, applied int, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.PollDuration.Observe(duration.Seconds())
	if err != nil {
		m.PollsTotal.WithLabelValues("error").Inc()
		m.ConnectionUp.Set(0)
		return
	}
	m.PollsTotal.WithLabelValues("ok").Inc()
	m.ConnectionUp.Set(1)
	m.BatchSize.Observe(float64(fetched))
	m.EventsReceived.Add(float64(fetched))
	m.EventsApplied.Add(float64(applied))
	m.EventsDeduplicated.Add(float64(fetched - applied))
}

// RecordHistoryClear 记录一次历史清除
func (m *Metrics) RecordHistoryClear(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.HistoryClears.WithLabelValues("error").Inc()
		return
	}
	m.HistoryClears.WithLabelValues("ok").Inc()
}

// WSClientConnected 快照客户端接入
func (m *Metrics) WSClientConnected() {
	if m != nil {
		m.WSClientsActive.Inc()
	}
}

// WSClientDisconnected 快照客户端断开
func (m *Metrics) WSClientDisconnected() {
	if m != nil {
		m.WSClientsActive.Dec()
	}
}
