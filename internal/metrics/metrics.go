package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ruwave"

// Metrics wraps the Prometheus collectors of the chatbot.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	ChatRequests       *prometheus.CounterVec
	ChatDuration       *prometheus.HistogramVec
	PlaylistRefreshes  *prometheus.CounterVec
	PlaylistRecords    prometheus.Gauge
	PlaylistLastUpdate prometheus.Gauge
	ExternalCalls      *prometheus.CounterVec
}

// New creates the collectors on their own registry
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		ChatRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_requests_total",
			Help:      "Total number of chat requests by routed intent and outcome",
		}, []string{"intent", "status"}),
		ChatDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chat_request_duration_seconds",
			Help:      "Duration of chat requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"intent"}),
		PlaylistRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playlist_refresh_total",
			Help:      "Playlist snapshot refresh attempts by outcome",
		}, []string{"status"}),
		PlaylistRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "playlist_records",
			Help:      "Number of records in the published playlist snapshot",
		}),
		PlaylistLastUpdate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "playlist_last_update_timestamp_seconds",
			Help:      "Unix time of the last published playlist snapshot",
		}),
		ExternalCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "external_calls_total",
			Help:      "Outbound calls by target and outcome",
		}, []string{"target", "status"}),
	}

	reg.MustRegister(
		m.ChatRequests,
		m.ChatDuration,
		m.PlaylistRefreshes,
		m.PlaylistRecords,
		m.PlaylistLastUpdate,
		m.ExternalCalls,
	)
	return m
}

// Handler exposes the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveChat(intent, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ChatRequests.WithLabelValues(intent, status).Inc()
	m.ChatDuration.WithLabelValues(intent).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveRefresh(err error, records int, at time.Time) {
	if m == nil {
		return
	}
	if err != nil {
		m.PlaylistRefreshes.WithLabelValues("error").Inc()
		return
	}
	m.PlaylistRefreshes.WithLabelValues("ok").Inc()
	m.PlaylistRecords.Set(float64(records))
	m.PlaylistLastUpdate.Set(float64(at.Unix()))
}

func (m *Metrics) ObserveExternal(target string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.ExternalCalls.WithLabelValues(target, status).Inc()
}
