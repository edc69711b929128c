// Package metrics exposes operational counters over Prometheus.
//
// The exporter is optional: a nil *Metrics is safe everywhere, so components
// record unconditionally and wiring decides whether anything listens.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	logx "cvewatch/pkg/logx"
)

const DefaultAddr = "127.0.0.1:9402"

type Metrics struct {
	registry *prometheus.Registry
	server   *http.Server
	log      logx.Logger

	ticksTotal     prometheus.Counter
	announcedTotal *prometheus.CounterVec
	fetchFailures  *prometheus.CounterVec
	deletedTotal   prometheus.Counter
	lastTickTS     prometheus.Gauge
	trackedEntries *prometheus.GaugeVec
}

func New(addr string, log logx.Logger) *Metrics {
	if addr == "" {
		addr = DefaultAddr
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		log:      log,
		ticksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cvewatch",
			Name:      "ticks_total",
			Help:      "Completed monitor ticks",
		}),
		announcedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cvewatch",
			Name:      "advisories_announced_total",
			Help:      "Advisories announced, by asset",
		}, []string{"asset"}),
		fetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cvewatch",
			Name:      "fetch_failures_total",
			Help:      "Catalog fetches that failed after retries, by asset",
		}, []string{"asset"}),
		deletedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cvewatch",
			Name:      "messages_deleted_total",
			Help:      "Channel messages removed by retention sweeps",
		}),
		lastTickTS: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cvewatch",
			Name:      "last_tick_timestamp_seconds",
			Help:      "Unix timestamp of the last completed tick",
		}),
		trackedEntries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "cvewatch",
			Name:      "tracked_entries",
			Help:      "Seen-store entries currently retained, by asset",
		}, []string{"asset"}),
	}
	reg.MustRegister(m.ticksTotal, m.announcedTotal, m.fetchFailures,
		m.deletedTotal, m.lastTickTS, m.trackedEntries)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	m.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return m
}

// Serve blocks on the HTTP listener until Shutdown.
func (m *Metrics) Serve() error {
	if m == nil {
		return nil
	}
	m.log.Info("metrics listening", logx.String("addr", m.server.Addr))
	err := m.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (m *Metrics) Shutdown(ctx context.Context) error {
	if m == nil {
		return nil
	}
	return m.server.Shutdown(ctx)
}

func (m *Metrics) TickCompleted(at time.Time) {
	if m == nil {
		return
	}
	m.ticksTotal.Inc()
	m.lastTickTS.Set(float64(at.Unix()))
}

func (m *Metrics) Announced(asset string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.announcedTotal.WithLabelValues(asset).Add(float64(n))
}

func (m *Metrics) FetchFailed(asset string) {
	if m == nil {
		return
	}
	m.fetchFailures.WithLabelValues(asset).Inc()
}

func (m *Metrics) SweepDeleted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.deletedTotal.Add(float64(n))
}

func (m *Metrics) SetTracked(asset string, n int) {
	if m == nil {
		return
	}
	m.trackedEntries.WithLabelValues(asset).Set(float64(n))
}
