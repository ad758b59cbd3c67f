// Package metrics exposes Prometheus instrumentation for the campaign
// engine and its HTTP surface.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	EmailsSentTotal     *prometheus.CounterVec
	EmailsFailedTotal   *prometheus.CounterVec
	EmailsExcludedTotal *prometheus.CounterVec

	ChunkDurationSeconds *prometheus.HistogramVec
	ChunkProcessed       prometheus.Histogram

	CronRunsTotal       *prometheus.CounterVec
	CronBudgetExhausted prometheus.Counter
	CampaignsPromoted   prometheus.Counter
	StalledCampaigns    prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a Metrics instance with all collectors registered on a
// private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		EmailsSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fitflow_emails_sent_total",
				Help: "Total emails accepted by the provider",
			},
			[]string{"campaign_type"},
		),
		EmailsFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fitflow_emails_failed_total",
				Help: "Total emails the provider rejected",
			},
			[]string{"campaign_type"},
		),
		EmailsExcludedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fitflow_emails_excluded_total",
				Help: "Total recipients skipped at send time as unsubscribed",
			},
			[]string{"campaign_type"},
		),
		ChunkDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fitflow_chunk_duration_seconds",
				Help:    "Wall-clock duration of one engine chunk",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"campaign_type"},
		),
		ChunkProcessed: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "fitflow_chunk_processed",
				Help:    "Recipients processed per engine chunk",
				Buckets: []float64{1, 10, 50, 100, 200, 500},
			},
		),
		CronRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fitflow_cron_runs_total",
				Help: "Cron invocations by outcome",
			},
			[]string{"outcome"},
		),
		CronBudgetExhausted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "fitflow_cron_budget_exhausted_total",
				Help: "Cron runs that stopped on the wall-clock budget",
			},
		),
		CampaignsPromoted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "fitflow_campaigns_promoted_total",
				Help: "Scheduled campaigns promoted to sending",
			},
		),
		StalledCampaigns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "fitflow_campaigns_stalled",
				Help: "Sending campaigns with no recent progress, last run",
			},
		),
		registry: reg,
	}

	reg.MustRegister(
		m.EmailsSentTotal,
		m.EmailsFailedTotal,
		m.EmailsExcludedTotal,
		m.ChunkDurationSeconds,
		m.ChunkProcessed,
		m.CronRunsTotal,
		m.CronBudgetExhausted,
		m.CampaignsPromoted,
		m.StalledCampaigns,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler returns the /metrics HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
