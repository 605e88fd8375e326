package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Monitor Prometheus监控指标收集器
type Monitor struct {
	registry *prometheus.Registry

	// 订单指标
	ordersPlaced   prometheus.Counter
	ordersCanceled prometheus.Counter
	lastLimit      prometheus.Gauge

	// agent 指标
	agentsStarted prometheus.Counter
	agentsActive  prometheus.Gauge
	agentFailures prometheus.Counter
	iterations    *prometheus.CounterVec
	openOrders    prometheus.Histogram

	// 回放指标
	snapshotsRendered prometheus.Counter

	// 系统指标
	restRequests *prometheus.CounterVec
	restErrors   *prometheus.CounterVec
	restLatency  *prometheus.HistogramVec
}

// Config 监控配置
type Config struct {
	Namespace string
	Subsystem string
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Namespace: "zi",
		Subsystem: "sim",
	}
}

// New 创建新的Monitor实例
func New(cfg Config) *Monitor {
	reg := prometheus.NewRegistry()

	// 创建factory
	factory := promauto.With(reg)

	m := &Monitor{
		registry: reg,

		// 订单指标
		ordersPlaced: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "orders_placed_total",
			Help:      "下单总数（含种子单）",
		}),
		ordersCanceled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "orders_canceled_total",
			Help:      "撤单总数",
		}),
		lastLimit: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "last_limit_price",
			Help:      "最近一笔提交的限价",
		}),

		// agent 指标
		agentsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "agents_started_total",
			Help:      "已启动的agent数",
		}),
		agentsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "agents_active",
			Help:      "当前运行中的agent数",
		}),
		agentFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "agent_failures_total",
			Help:      "因致命错误退出的agent数",
		}),
		iterations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "iterations_total",
				Help:      "决策循环次数（按动作）",
			},
			[]string{"action"},
		),
		openOrders: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "open_orders",
			Help:      "节流检查时的挂单数分布",
			Buckets:   prometheus.LinearBuckets(0, 1, 16),
		}),

		// 回放指标
		snapshotsRendered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "snapshots_rendered_total",
			Help:      "已渲染的快照数",
		}),

		// 系统指标
		restRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "rest_requests_total",
				Help:      "REST请求总数",
			},
			[]string{"action"},
		),
		restErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "rest_errors_total",
				Help:      "REST错误总数",
			},
			[]string{"action"},
		),
		restLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "rest_latency_seconds",
				Help:      "REST请求延迟（秒）",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"action"},
		),
	}

	return m
}

// 订单相关方法
func (m *Monitor) RecordOrderPlaced(limit float64) {
	m.ordersPlaced.Inc()
	m.lastLimit.Set(limit)
}

func (m *Monitor) RecordOrderCanceled() {
	m.ordersCanceled.Inc()
}

// agent 相关方法
func (m *Monitor) RecordAgentStarted() {
	m.agentsStarted.Inc()
	m.agentsActive.Inc()
}

func (m *Monitor) RecordAgentStopped() {
	m.agentsActive.Dec()
}

// RecordAgentFailure 构建失败或运行中致命错误
func (m *Monitor) RecordAgentFailure() {
	m.agentFailures.Inc()
}

func (m *Monitor) RecordIteration(action string, openOrders int) {
	m.iterations.WithLabelValues(action).Inc()
	m.openOrders.Observe(float64(openOrders))
}

// 回放相关方法
func (m *Monitor) RecordSnapshotRendered() {
	m.snapshotsRendered.Inc()
}

// 系统相关方法
func (m *Monitor) RecordRESTRequest(action string) {
	m.restRequests.WithLabelValues(action).Inc()
}

func (m *Monitor) RecordRESTError(action string) {
	m.restErrors.WithLabelValues(action).Inc()
}

func (m *Monitor) RecordRESTLatency(action string, seconds float64) {
	m.restLatency.WithLabelValues(action).Observe(seconds)
}

// Handler 返回HTTP handler用于暴露指标
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry 返回prometheus registry
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}
