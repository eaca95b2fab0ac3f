// Package metrics provides the metrics sink of an embedded instance.
//
// A Registry is created eagerly by the embedded controller so that the host
// can register its own collectors and start recording before the subsystem
// is running. Lifecycle, storage and HTTP metrics are all registered on the
// same Prometheus registry and can be exposed with Handler.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric registered by this module.
const Namespace = "dittofs_embedded"

// Registry is the metrics sink owned by an embedded controller.
type Registry struct {
	reg       *prometheus.Registry
	lifecycle *LifecycleMetrics
	storage   *StorageMetrics
	http      *HTTPMetrics
}

// Option configures a Registry.
type Option func(*options)

type options struct {
	runtimeCollectors bool
}

// WithRuntimeCollectors registers the Go runtime and process collectors.
func WithRuntimeCollectors() Option {
	return func(o *options) { o.runtimeCollectors = true }
}

// New creates a Registry with lifecycle, storage and HTTP metrics registered.
func New(opts ...Option) *Registry {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	reg := prometheus.NewRegistry()
	if o.runtimeCollectors {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	return &Registry{
		reg:       reg,
		lifecycle: newLifecycleMetrics(reg),
		storage:   newStorageMetrics(reg),
		http:      newHTTPMetrics(reg),
	}
}

// Registerer returns the registerer for host-provided collectors.
func (r *Registry) Registerer() prometheus.Registerer {
	return r.reg
}

// Gatherer returns the gatherer backing Handler.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Handler returns an HTTP handler exposing the registry in Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// Lifecycle returns the controller lifecycle metrics.
// Returns nil on a nil Registry; all LifecycleMetrics methods accept a nil receiver.
func (r *Registry) Lifecycle() *LifecycleMetrics {
	if r == nil {
		return nil
	}
	return r.lifecycle
}

// Storage returns the persistence metrics.
func (r *Registry) Storage() *StorageMetrics {
	if r == nil {
		return nil
	}
	return r.storage
}

// HTTP returns the server request metrics.
func (r *Registry) HTTP() *HTTPMetrics {
	if r == nil {
		return nil
	}
	return r.http
}
