package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns the service's Prometheus registry and instruments. It is
// passed explicitly to the components that record into it.
type Collector struct {
	reg *prometheus.Registry

	FeedFetches *prometheus.CounterVec // outcome label: ok|empty|error

	FeedEntities prometheus.Gauge

	ReconcileDuration prometheus.Histogram
	SamplesRecorded   prometheus.Counter
	RecorderRuns      *prometheus.CounterVec // outcome label: ok|error

	DeparturesServed prometheus.Counter
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		FeedFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tripwatch_feed_fetches_total",
			Help: "Total realtime feed fetch attempts.",
		}, []string{"outcome"}),
		FeedEntities: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tripwatch_feed_entities",
			Help: "Entity count of the most recent realtime feed.",
		}),
		ReconcileDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tripwatch_reconcile_duration_seconds",
			Help:    "Duration of schedule/realtime reconciliation passes.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}),
		SamplesRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tripwatch_delay_samples_recorded_total",
			Help: "Total delay samples written by the recorder.",
		}),
		RecorderRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tripwatch_recorder_runs_total",
			Help: "Total recorder passes.",
		}, []string{"outcome"}),
		DeparturesServed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tripwatch_departures_requests_total",
			Help: "Total departure board requests served.",
		}),
	}

	reg.MustRegister(
		c.FeedFetches, c.FeedEntities,
		c.ReconcileDuration, c.SamplesRecorded, c.RecorderRuns,
		c.DeparturesServed,
	)

	return c
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}
