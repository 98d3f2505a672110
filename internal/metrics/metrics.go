package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "notify_bridge"

// Metrics owns a private registry so several instances can coexist in tests.
//
// Exported series:
//   - notify_bridge_mail_total{kind,outcome}
//   - notify_bridge_callbacks_total{action,result}
//   - notify_bridge_gateway_requests_total{method,result}
//   - notify_bridge_gateway_request_duration_seconds{method}
//   - notify_bridge_scheduler_runs_total{job,result}
//   - notify_bridge_chatlog_dropped_total
type Metrics struct {
	registry        *prometheus.Registry
	mailTotal       *prometheus.CounterVec
	callbacksTotal  *prometheus.CounterVec
	gatewayTotal    *prometheus.CounterVec
	gatewayDuration *prometheus.HistogramVec
	jobRuns         *prometheus.CounterVec
	chatlogDropped  prometheus.Counter
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,
		mailTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mail_total",
			Help:      "Inbound mail handled, by record kind and outcome.",
		}, []string{"kind", "outcome"}),
		callbacksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "callbacks_total",
			Help:      "Button callbacks handled, by action and result.",
		}, []string{"action", "result"}),
		gatewayTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_requests_total",
			Help:      "Chat gateway API calls, by method and result.",
		}, []string{"method", "result"}),
		gatewayDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_request_duration_seconds",
			Help:      "Chat gateway API call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		jobRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_runs_total",
			Help:      "Scheduled job runs, by job and result.",
		}, []string{"job", "result"}),
		chatlogDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chatlog_dropped_total",
			Help:      "Log records not forwarded to admin chats because the queue was full or delivery failed.",
		}),
	}
}

func (m *Metrics) ObserveMail(kind, outcome string) {
	if kind == "" {
		kind = "unknown"
	}
	m.mailTotal.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) ObserveCallback(action, result string) {
	m.callbacksTotal.WithLabelValues(action, result).Inc()
}

func (m *Metrics) ObserveGatewayCall(method string, err error, elapsed time.Duration) {
	m.gatewayTotal.WithLabelValues(method, resultLabel(err)).Inc()
	m.gatewayDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveJob(job string, err error) {
	m.jobRuns.WithLabelValues(job, resultLabel(err)).Inc()
}

func (m *Metrics) ChatLogDropped() {
	m.chatlogDropped.Inc()
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
