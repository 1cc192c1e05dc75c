package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the signal pipeline.
type Metrics struct {
	registry *prometheus.Registry

	SignalsIngested *prometheus.CounterVec
	StoreAttempts   *prometheus.CounterVec
	StoreRetries    *prometheus.CounterVec
	Deliveries      *prometheus.CounterVec
	Broadcasts      *prometheus.CounterVec
	Subscribers     prometheus.Gauge
	SyncCycles      *prometheus.CounterVec
}

// New builds and registers every collector on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		SignalsIngested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalbot_signals_ingested_total",
				Help: "Signals persisted, by origin",
			},
			[]string{"origin"},
		),
		StoreAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalbot_store_attempts_total",
				Help: "Store operation attempts, by operation and result",
			},
			[]string{"op", "result"},
		),
		StoreRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalbot_store_retries_total",
				Help: "Store operations retried after a transient failure",
			},
			[]string{"op"},
		),
		Deliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalbot_notification_deliveries_total",
				Help: "Notification attempts, by transport and result",
			},
			[]string{"transport", "result"},
		),
		Broadcasts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalbot_broadcasts_total",
				Help: "Events published to real-time subscribers",
			},
			[]string{"event"},
		),
		Subscribers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "signalbot_subscribers",
				Help: "Connected real-time subscribers",
			},
		),
		SyncCycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalbot_sync_cycles_total",
				Help: "Terminal sync cycles, by result",
			},
			[]string{"result"},
		),
	}

	m.registry.MustRegister(
		m.SignalsIngested,
		m.StoreAttempts,
		m.StoreRetries,
		m.Deliveries,
		m.Broadcasts,
		m.Subscribers,
		m.SyncCycles,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func Result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
