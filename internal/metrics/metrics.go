// Package metrics exposes prometheus collectors for the placement service.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	zerrors "github.com/zzenonn/zplace/internal/errors"
)

const namespace = "zplace"

// Metrics holds the collectors of one service instance.
type Metrics struct {
	Calls        *prometheus.CounterVec
	LayoutShards prometheus.Histogram
	Snapshots    prometheus.Gauge
	CacheHits    prometheus.Counter
	CacheMisses  prometheus.Counter
}

// New registers the collectors with reg. A nil reg uses a private registry,
// which keeps tests from colliding on the default one.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		Calls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "placement_calls_total",
			Help:      "Placement calls by operation and outcome",
		}, []string{"op", "outcome"}),
		LayoutShards: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "layout_shards",
			Help:      "Number of shard slots in computed layouts",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		Snapshots: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cached_snapshots",
			Help:      "Pools with a cached placement snapshot",
		}),
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "layout_cache_hits_total",
			Help:      "Layouts served from the layout cache",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "layout_cache_misses_total",
			Help:      "Layouts computed because the cache had no entry",
		}),
	}
}

// Observe counts one call of op.
func (m *Metrics) Observe(op string, err error) {
	m.Calls.WithLabelValues(op, Outcome(err)).Inc()
}

// Outcome maps an error to a low-cardinality label value.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, zerrors.ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, zerrors.ErrNotFound):
		return "not_found"
	case errors.Is(err, zerrors.ErrRecordTooBig):
		return "record_too_big"
	case errors.Is(err, zerrors.ErrOutOfMemory):
		return "out_of_memory"
	case errors.Is(err, zerrors.ErrNotImplemented):
		return "not_implemented"
	}
	return "error"
}

// Serve exposes g on addr under /metrics until ctx is done.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("metrics server shutdown")
		}
	}()

	log.Infof("serving metrics on %s/metrics", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
