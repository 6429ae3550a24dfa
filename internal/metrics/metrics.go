// Package metrics exposes directory and API metrics in Prometheus format.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/talgya/factions/internal/policy"
)

const namespace = "factions"

// Collector owns a private registry. Directory sizes are read at scrape
// time; saves are counted through a hub subscription.
type Collector struct {
	registry *prometheus.Registry
	sub      *policy.Subscription

	saves    *prometheus.CounterVec
	requests *prometheus.CounterVec
}

// NewCollector registers the metrics for dir.
func NewCollector(dir *policy.Directory) *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		saves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "policy_saves_total",
			Help:      "Policy values saved, by type and kind.",
		}, []string{"type", "kind"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "API requests by route and status code.",
		}, []string{"route", "code"}),
	}

	stat := func(pick func(policy.Stats) int) func() float64 {
		return func() float64 { return float64(pick(dir.Stats())) }
	}
	reg.MustRegister(
		c.saves,
		c.requests,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "factions",
			Help:      "Factions in the directory.",
		}, stat(func(s policy.Stats) int { return s.Factions })),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "policy_types",
			Help:      "Registered policy types.",
		}, stat(func(s policy.Stats) int { return s.Types })),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "policy_slots",
			Help:        "Stored policy values by kind.",
			ConstLabels: prometheus.Labels{"kind": policy.Internal.String()},
		}, stat(func(s policy.Stats) int { return s.Internal })),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "policy_slots",
			Help:        "Stored policy values by kind.",
			ConstLabels: prometheus.Labels{"kind": policy.OneWay.String()},
		}, stat(func(s policy.Stats) int { return s.OneWay })),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "policy_slots",
			Help:        "Stored policy values by kind.",
			ConstLabels: prometheus.Labels{"kind": policy.TwoWay.String()},
		}, stat(func(s policy.Stats) int { return s.TwoWay })),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscriber_failures_total",
			Help:      "Change notifications that a subscriber rejected or panicked on.",
		}, func() float64 { return float64(dir.Hub().Failures()) }),
	)

	c.sub = dir.Hub().SubscribeAll(func(ch policy.Change) error {
		c.saves.WithLabelValues(string(ch.Type), ch.Kind.String()).Inc()
		return nil
	})
	return c
}

// Registry returns the private registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Close stops counting saves.
func (c *Collector) Close() { c.sub.Cancel() }

// ObserveRequest counts one API request.
func (c *Collector) ObserveRequest(route string, code int) {
	c.requests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// Handler serves the registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}
