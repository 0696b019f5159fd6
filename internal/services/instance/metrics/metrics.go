// Package metrics exposes Prometheus collectors for instance lifecycle work.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "homebook"

// Collectors groups lifecycle metrics. All methods are safe on a nil receiver.
type Collectors struct {
	registry *prometheus.Registry

	probeAttempts     *prometheus.CounterVec
	maintenancePasses *prometheus.CounterVec
	updatesApplied    prometheus.Counter
	provisioned       prometheus.Gauge
}

// New registers lifecycle collectors plus Go and process collectors on a
// fresh registry.
func New() *Collectors {
	c := &Collectors{
		registry: prometheus.NewRegistry(),
		probeAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probe_attempts_total",
			Help:      "Database provider probe attempts by outcome.",
		}, []string{"provider", "result"}),
		maintenancePasses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "maintenance_passes_total",
			Help:      "Maintenance passes by outcome.",
		}, []string{"result"}),
		updatesApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_applied_total",
			Help:      "Versioned updates applied since start.",
		}),
		provisioned: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "instance_provisioned",
			Help:      "1 when the instance is provisioned and serving.",
		}),
	}
	c.registry.MustRegister(
		c.probeAttempts,
		c.maintenancePasses,
		c.updatesApplied,
		c.provisioned,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collectors) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (c *Collectors) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// ObserveProbe counts one probe attempt.
func (c *Collectors) ObserveProbe(provider string, matched bool) {
	if c == nil {
		return
	}
	c.probeAttempts.WithLabelValues(provider, result(matched)).Inc()
}

// ObserveMaintenancePass counts one maintenance pass.
func (c *Collectors) ObserveMaintenancePass(ok bool) {
	if c == nil {
		return
	}
	c.maintenancePasses.WithLabelValues(result(ok)).Inc()
	if ok {
		c.provisioned.Set(1)
	}
}

// ObserveUpdateApplied counts one applied update.
func (c *Collectors) ObserveUpdateApplied(string) {
	if c == nil {
		return
	}
	c.updatesApplied.Inc()
}

// SetProvisioned records whether the instance is serving.
func (c *Collectors) SetProvisioned(provisioned bool) {
	if c == nil {
		return
	}
	if provisioned {
		c.provisioned.Set(1)
		return
	}
	c.provisioned.Set(0)
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
