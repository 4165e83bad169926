package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/vitos/lendflow/internal/usecase"
)

const namespace = "lendflow"

// Collector implements usecase.Observer on top of Prometheus metrics.
type Collector struct {
	cacheHits    *prometheus.CounterVec
	cacheMisses  *prometheus.CounterVec
	cacheJoined  *prometheus.CounterVec
	fetchLatency *prometheus.HistogramVec
	fetchErrors  *prometheus.CounterVec
	steps        *prometheus.CounterVec
	stepLatency  *prometheus.HistogramVec
}

var _ usecase.Observer = (*Collector)(nil)

// NewCollector creates the metrics and registers them with reg.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Keys served from cache without a network call.",
		}, []string{"cache"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Keys that required a network call.",
		}, []string{"cache"}),
		cacheJoined: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "joined_total",
			Help:      "Keys that waited on a fetch already in flight.",
		}, []string{"cache"}),
		fetchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "fetch_duration_seconds",
			Help:      "Latency of batched collaborator calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"cache"}),
		fetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "fetch_errors_total",
			Help:      "Collaborator calls that returned an error.",
		}, []string{"cache"}),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "flow",
			Name:      "steps_total",
			Help:      "Transaction step attempts by outcome.",
		}, []string{"flow", "step", "outcome"}),
		stepLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "flow",
			Name:      "step_duration_seconds",
			Help:      "Time from step trigger until the transaction call returned.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"flow", "step"}),
	}

	for _, col := range []prometheus.Collector{
		c.cacheHits, c.cacheMisses, c.cacheJoined, c.fetchLatency, c.fetchErrors, c.steps, c.stepLatency,
	} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Collector) CacheHit(cache string, n int) {
	c.cacheHits.WithLabelValues(cache).Add(float64(n))
}

func (c *Collector) CacheMiss(cache string, n int) {
	c.cacheMisses.WithLabelValues(cache).Add(float64(n))
}

func (c *Collector) CacheJoined(cache string, n int) {
	c.cacheJoined.WithLabelValues(cache).Add(float64(n))
}

func (c *Collector) FetchDone(cache string, took time.Duration, err error) {
	c.fetchLatency.WithLabelValues(cache).Observe(took.Seconds())
	if err != nil {
		c.fetchErrors.WithLabelValues(cache).Inc()
	}
}

func (c *Collector) StepDone(flow, step string, took time.Duration, err error) {
	outcome := "succeeded"
	if err != nil {
		outcome = "failed"
	}
	c.steps.WithLabelValues(flow, step, outcome).Inc()
	c.stepLatency.WithLabelValues(flow, step).Observe(took.Seconds())
}
