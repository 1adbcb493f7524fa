// Package metrics exports connection/request counters via
// prometheus/client_golang, carried as ambient observability the way
// nabbar-golib/httpserver/monitor.go and cloudfoundry-gorouter's
// metrics reporter do — not required by any spec.md Non-goal.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/restcore/resthttpd"
)

var _ resthttpd.MetricsSink = (*Collector)(nil)

// Collector implements resthttpd.MetricsSink by incrementing
// prometheus counters. The zero value is not usable; use NewCollector.
type Collector struct {
	acceptTotal      prometheus.Counter
	acceptErrors     prometheus.Counter
	connectionsTotal    prometheus.Counter
	connectionsRejected prometheus.Counter
	requestsOK          prometheus.Counter
	requestsFailed   *prometheus.CounterVec
}

// NewCollector builds a Collector and registers its metrics against
// reg. Passing prometheus.DefaultRegisterer matches the common case of
// one engine per process.
func NewCollector(reg prometheus.Registerer, namespace string) *Collector {
	c := &Collector{
		acceptTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "accept_total",
			Help:      "Total TCP connections accepted.",
		}),
		acceptErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "accept_errors_total",
			Help:      "Total errors returned by Accept on a listener.",
		}),
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_served_total",
			Help:      "Total connections handed to a worker.",
		}),
		connectionsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_rejected_total",
			Help:      "Total connections refused because the client table was full.",
		}),
		requestsOK: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_ok_total",
			Help:      "Total requests dispatched to a handler that returned no error.",
		}),
		requestsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_failed_total",
			Help:      "Total requests that ended in an error response, by HTTP status.",
		}, []string{"status"}),
	}
	reg.MustRegister(c.acceptTotal, c.acceptErrors, c.connectionsTotal, c.connectionsRejected, c.requestsOK, c.requestsFailed)
	return c
}

func (c *Collector) AcceptOK()           { c.acceptTotal.Inc() }
func (c *Collector) AcceptError()        { c.acceptErrors.Inc() }
func (c *Collector) ConnectionServed()   { c.connectionsTotal.Inc() }
func (c *Collector) ConnectionRejected() { c.connectionsRejected.Inc() }
func (c *Collector) RequestOK()          { c.requestsOK.Inc() }
func (c *Collector) RequestFailed(status int) {
	c.requestsFailed.WithLabelValues(statusLabel(status)).Inc()
}

func statusLabel(status int) string {
	switch status {
	case 400:
		return "400"
	case 404:
		return "404"
	case 405:
		return "405"
	case 413:
		return "413"
	case 431:
		return "431"
	case 500:
		return "500"
	case 501:
		return "501"
	default:
		return "other"
	}
}
