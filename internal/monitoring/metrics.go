// Package monitoring exposes Prometheus metrics for resolution runs.
package monitoring

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shpitdev/impressum-resolver/internal/resolve"
)

// Metrics holds the resolver's collectors. It implements resolve.Observer.
type Metrics struct {
	EntitiesTotal *prometheus.CounterVec
	StageCalls    *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	EntityLatency prometheus.Histogram

	gatherer prometheus.Gatherer
}

// NewMetrics registers collectors on reg; nil means a fresh registry.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		EntitiesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "resolver_entities_total",
			Help: "Entities that reached a terminal state, by state and reason",
		}, []string{"state", "reason"}),
		StageCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "resolver_stage_calls_total",
			Help: "Provider calls per stage, by result",
		}, []string{"stage", "result"}), // result is 'ok' or 'error'
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "resolver_stage_duration_seconds",
			Help:    "Provider call latency per stage, retries included",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"stage"}),
		EntityLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "resolver_entity_duration_seconds",
			Help:    "Time to resolve one entity",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		gatherer: reg,
	}
}

func (m *Metrics) StageDone(stage resolve.Stage, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.StageCalls.WithLabelValues(string(stage), result).Inc()
	m.StageDuration.WithLabelValues(string(stage)).Observe(d.Seconds())
}

func (m *Metrics) EntityDone(o resolve.Outcome) {
	m.EntitiesTotal.WithLabelValues(o.State.String(), o.Reason).Inc()
	m.EntityLatency.Observe(o.Duration.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
