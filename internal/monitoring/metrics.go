package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 监控指标
type Metrics struct {
	registry *prometheus.Registry

	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 会话指标
	SessionsCreated  prometheus.Counter
	SessionsReplaced prometheus.Counter
	SessionsDeleted  prometheus.Counter
	SessionsExpired  prometheus.Counter
	SessionsActive   prometheus.Gauge
	FavoritesSaved   prometheus.Counter
	InboxRefreshes   *prometheus.CounterVec

	// 邮件服务商指标
	ProviderRequests        *prometheus.CounterVec
	ProviderRequestDuration *prometheus.HistogramVec

	// 错误指标
	ErrorsTotal *prometheus.CounterVec
	PanicsTotal prometheus.Counter
}

// NewMetrics 创建监控指标，并注册到独立的注册表
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tempmail_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tempmail_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		SessionsCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tempmail_sessions_created_total",
				Help: "Total number of mailbox sessions created",
			},
		),

		SessionsReplaced: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tempmail_sessions_replaced_total",
				Help: "Total number of sessions discarded because the owner created a new one",
			},
		),

		SessionsDeleted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tempmail_sessions_deleted_total",
				Help: "Total number of sessions deleted by their owner",
			},
		),

		SessionsExpired: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tempmail_sessions_expired_total",
				Help: "Total number of expired sessions removed",
			},
		),

		SessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "tempmail_sessions_active",
				Help: "Number of active sessions",
			},
		),

		FavoritesSaved: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tempmail_favorites_saved_total",
				Help: "Total number of favorites saved",
			},
		),

		InboxRefreshes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tempmail_inbox_refreshes_total",
				Help: "Total number of inbox refreshes by result",
			},
			[]string{"result"},
		),

		ProviderRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tempmail_provider_requests_total",
				Help: "Total number of mail provider requests",
			},
			[]string{"op", "result"},
		),

		ProviderRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tempmail_provider_request_duration_seconds",
				Help:    "Mail provider request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),

		ErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tempmail_errors_total",
				Help: "Total number of errors",
			},
			[]string{"type", "component"},
		),

		PanicsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tempmail_panics_total",
				Help: "Total number of panics",
			},
		),
	}
}

// RecordHTTPRequest 记录 HTTP 请求指标
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordSessionCreated 记录会话创建；replaced 表示替换了旧会话
func (m *Metrics) RecordSessionCreated(replaced bool) {
	m.SessionsCreated.Inc()
	if replaced {
		m.SessionsReplaced.Inc()
	}
}

// RecordSessionDeleted 记录会话删除
func (m *Metrics) RecordSessionDeleted() {
	m.SessionsDeleted.Inc()
}

// RecordSessionsExpired 记录过期会话清理
func (m *Metrics) RecordSessionsExpired(count int) {
	m.SessionsExpired.Add(float64(count))
}

// RecordFavoriteSaved 记录收藏
func (m *Metrics) RecordFavoriteSaved() {
	m.FavoritesSaved.Inc()
}

// RecordInboxRefresh 记录收件箱刷新结果: ok / provider_error / no_session
func (m *Metrics) RecordInboxRefresh(result string) {
	m.InboxRefreshes.WithLabelValues(result).Inc()
}

// RecordProviderRequest 记录邮件服务商请求
func (m *Metrics) RecordProviderRequest(op string, err error, duration time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.ProviderRequests.WithLabelValues(op, result).Inc()
	m.ProviderRequestDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordError 记录错误
func (m *Metrics) RecordError(errorType, component string) {
	m.ErrorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordPanic 记录 panic
func (m *Metrics) RecordPanic() {
	m.PanicsTotal.Inc()
}

// UpdateSessionsActive 更新活跃会话数
func (m *Metrics) UpdateSessionsActive(count int) {
	m.SessionsActive.Set(float64(count))
}

// Registry 返回底层注册表
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// HTTPHandler 返回 Prometheus HTTP 处理器
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ProviderTotals 汇总邮件服务商请求总数与失败数
func (m *Metrics) ProviderTotals() (total, failed float64) {
	families, err := m.registry.Gather()
	if err != nil {
		return 0, 0
	}
	for _, mf := range families {
		if mf.GetName() != "tempmail_provider_requests_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			value := metric.GetCounter().GetValue()
			total += value
			for _, label := range metric.GetLabel() {
				if label.GetName() == "result" && label.GetValue() == "error" {
					failed += value
				}
			}
		}
	}
	return total, failed
}
