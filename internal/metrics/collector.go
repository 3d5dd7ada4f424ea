// Package metrics exposes run-level prometheus metrics for the forecasting
// pipeline: run outcomes, durations, validation error by horizon day and the
// latest published forecast values.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Collector owns its registry so parallel test instances never collide on
// the global default.
type Collector struct {
	registry *prometheus.Registry

	runsTotal   *prometheus.CounterVec
	runDuration prometheus.Histogram
	cvMAE       *prometheus.GaugeVec
	forecast    *prometheus.GaugeVec
}

// NewCollector builds and registers the pipeline metrics.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sortiecast_runs_total",
			Help: "Pipeline runs by outcome.",
		}, []string{"outcome"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sortiecast_run_duration_seconds",
			Help:    "End-to-end pipeline run duration.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		cvMAE: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sortiecast_cv_mae",
			Help: "Walk-forward mean absolute error by horizon day.",
		}, []string{"horizon_day"}),
		forecast: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sortiecast_forecast_sorties",
			Help: "Latest point forecast by day offset.",
		}, []string{"day_offset"}),
	}
	c.registry.MustRegister(c.runsTotal, c.runDuration, c.cvMAE, c.forecast)
	return c
}

// ObserveRun records one completed run.
func (c *Collector) ObserveRun(outcome string, elapsed time.Duration) {
	c.runsTotal.WithLabelValues(outcome).Inc()
	c.runDuration.Observe(elapsed.Seconds())
}

// SetCVMAE publishes validation error for a 1-based horizon day.
func (c *Collector) SetCVMAE(day int, mae float64) {
	c.cvMAE.WithLabelValues(strconv.Itoa(day)).Set(mae)
}

// SetForecast publishes the point forecast for a 1-based day offset.
func (c *Collector) SetForecast(offset int, value float64) {
	c.forecast.WithLabelValues(strconv.Itoa(offset)).Set(value)
}

// Handler serves the collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr in the background. Batch runs exit with
// the process; no graceful shutdown is needed.
func (c *Collector) Serve(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Warn().Str("addr", addr).Err(err).Msg("metrics listener stopped")
		}
	}()
	log.Info().Str("addr", addr).Msg("metrics listener started")
}
