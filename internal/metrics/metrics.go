package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Traffic: принятые события по источникам
	EventsIngested *prometheus.CounterVec

	// Saturation: подключенные клиенты дашборда
	WSClients prometheus.Gauge

	// Errors: отвалившиеся при рассылке клиенты
	BroadcastFailures prometheus.Counter

	// Poller: циклы опроса по сервисам и исходам (ok, alert, error)
	PollCycles *prometheus.CounterVec

	// Анализатор: запуски по исходам (ok, failed, throttled, timeout)
	AnalysisRuns *prometheus.CounterVec

	// Latency: обработка HTTP-запросов
	RequestDuration *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		EventsIngested: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_events_ingested_total",
			Help: "Total number of ingested agent events.",
		}, []string{"source_app", "hook_event_type"}),

		WSClients: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "pulse_ws_clients",
			Help: "Current number of connected dashboard clients.",
		}),

		BroadcastFailures: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "pulse_broadcast_failures_total",
			Help: "Total number of failed client sends during fan-out.",
		}),

		PollCycles: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_poll_cycles_total",
			Help: "Total number of per-service poll cycles by outcome.",
		}, []string{"service", "outcome"}), // исходы: ok, alert, error

		AnalysisRuns: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_analysis_runs_total",
			Help: "Total number of analysis subprocess invocations by outcome.",
		}, []string{"outcome"}), // исходы: ok, failed, throttled

		RequestDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pulse_http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"route", "status"}),
	}
}
