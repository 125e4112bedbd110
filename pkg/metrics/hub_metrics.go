package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const hubSubsystem = "hub"

var (
	HubSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: switchboardNamespace,
		Subsystem: hubSubsystem,
		Name:      "sessions",
		Help:      "当前存活的 session 数量",
	})

	HubConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: switchboardNamespace,
		Subsystem: hubSubsystem,
		Name:      "connections",
		Help:      "当前打开的 TCP 连接数量",
	})

	HubRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: switchboardNamespace,
		Subsystem: hubSubsystem,
		Name:      "requests_total",
		Help:      "按 action 与结果统计的请求数",
	}, []string{actionLabelName, statusLabelName})

	HubRequestLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: switchboardNamespace,
		Subsystem: hubSubsystem,
		Name:      "request_duration_milliseconds",
		Help:      "请求处理耗时（毫秒）",
		Buckets:   buckets,
	}, []string{actionLabelName})

	HubDeliveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: switchboardNamespace,
		Subsystem: hubSubsystem,
		Name:      "deliveries_total",
		Help:      "推送消息的投递次数，按消息类型与投递结果区分",
	}, []string{typeLabelName, resultLabelName})

	HubEvictionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: switchboardNamespace,
		Subsystem: hubSubsystem,
		Name:      "evictions_total",
		Help:      "因空闲超时被回收的 session 数量",
	})
)
