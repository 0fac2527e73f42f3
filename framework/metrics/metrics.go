// Package metrics exports transition events to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/km-arc/go-compose/framework/transition"
)

// Collector implements transition.Observer with Prometheus counters
// labelled by abstraction and original implementation.
type Collector struct {
	registry *prometheus.Registry

	AttachedTotal *prometheus.CounterVec
	ChangedTotal  *prometheus.CounterVec
	PrunedTotal   *prometheus.CounterVec
	DisposedTotal *prometheus.CounterVec
	FailedTotal   *prometheus.CounterVec
}

var _ transition.Observer = (*Collector)(nil)

// NewCollector creates a collector with its own registry.
func NewCollector(namespace string) *Collector {
	counter := func(name, help string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "transition",
				Name:      name,
				Help:      help,
			},
			[]string{"abstraction", "original"},
		)
	}

	c := &Collector{
		registry:      prometheus.NewRegistry(),
		AttachedTotal: counter("handles_attached_total", "Proxies handed out for transitional bindings."),
		ChangedTotal:  counter("handles_changed_total", "Handles whose implementation was swapped."),
		PrunedTotal:   counter("handles_pruned_total", "Dead handles dropped by bulk operations."),
		DisposedTotal: counter("instances_disposed_total", "Replaced instances closed."),
		FailedTotal:   counter("dispose_failures_total", "Replaced instances whose Close failed."),
	}
	c.registry.MustRegister(c.AttachedTotal, c.ChangedTotal, c.PrunedTotal, c.DisposedTotal, c.FailedTotal)
	return c
}

// Registry returns the collector's Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) Attached(key transition.Key) {
	c.AttachedTotal.With(labels(key)).Inc()
}

func (c *Collector) Changed(key transition.Key, handles int) {
	c.ChangedTotal.With(labels(key)).Add(float64(handles))
}

func (c *Collector) Pruned(key transition.Key, handles int) {
	c.PrunedTotal.With(labels(key)).Add(float64(handles))
}

func (c *Collector) Disposed(key transition.Key, disposed, failed int) {
	l := labels(key)
	c.DisposedTotal.With(l).Add(float64(disposed))
	if failed > 0 {
		c.FailedTotal.With(l).Add(float64(failed))
	}
}

func labels(key transition.Key) prometheus.Labels {
	original := ""
	if key.Original != nil {
		original = key.Original.String()
	}
	return prometheus.Labels{
		"abstraction": key.Abstraction.String(),
		"original":    original,
	}
}
