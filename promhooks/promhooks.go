// Package promhooks exports cache events as Prometheus metrics.
package promhooks

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/unkn0wn-root/tresor"
)

type Hooks struct {
	selfHeal     *prometheus.CounterVec
	setRejected  prometheus.Counter
	readThrough  *prometheus.CounterVec
	genErrors    *prometheus.CounterVec
	persistFails *prometheus.CounterVec
	warmEntries  prometheus.Gauge
	warmSeconds  prometheus.Histogram
}

var _ tresor.Hooks = (*Hooks)(nil)

// New registers the collectors on reg under the "tresor" namespace.
func New(reg prometheus.Registerer) (*Hooks, error) {
	h := &Hooks{
		selfHeal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tresor", Subsystem: "cache", Name: "self_heal_total",
			Help: "Cached frames dropped on read, by reason.",
		}, []string{"reason"}),
		setRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tresor", Subsystem: "cache", Name: "provider_set_rejected_total",
			Help: "Sets rejected by the cache provider.",
		}),
		readThrough: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tresor", Subsystem: "cache", Name: "read_through_total",
			Help: "Cache misses resolved against the store.",
		}, []string{"found"}),
		genErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tresor", Subsystem: "cache", Name: "gen_errors_total",
			Help: "Generation store failures, by operation.",
		}, []string{"op"}),
		persistFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tresor", Subsystem: "store", Name: "persist_failed_total",
			Help: "Failed persistent writes, by step.",
		}, []string{"op"}),
		warmEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tresor", Subsystem: "cache", Name: "warm_entries",
			Help: "Entries loaded by the last warm.",
		}),
		warmSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tresor", Subsystem: "cache", Name: "warm_duration_seconds",
			Help:    "Duration of cache warms.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
	}
	for _, c := range []prometheus.Collector{
		h.selfHeal, h.setRejected, h.readThrough, h.genErrors,
		h.persistFails, h.warmEntries, h.warmSeconds,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func (h *Hooks) SelfHeal(_ string, reason string) { h.selfHeal.WithLabelValues(reason).Inc() }
func (h *Hooks) ProviderSetRejected(string)       { h.setRejected.Inc() }

func (h *Hooks) ReadThrough(_ string, found bool) {
	if found {
		h.readThrough.WithLabelValues("true").Inc()
		return
	}
	h.readThrough.WithLabelValues("false").Inc()
}

func (h *Hooks) GenError(op string, _ int, _ error) { h.genErrors.WithLabelValues(op).Inc() }

func (h *Hooks) WarmCompleted(n int, took time.Duration) {
	h.warmEntries.Set(float64(n))
	h.warmSeconds.Observe(took.Seconds())
}

func (h *Hooks) PersistFailed(op string, _ error) { h.persistFails.WithLabelValues(op).Inc() }
