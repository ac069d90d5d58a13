// Package metrics exposes prometheus counters for ledger activity.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics counts ledger operations and access checks. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	operations   *prometheus.CounterVec
	accessChecks *prometheus.CounterVec
	gatherer     prometheus.Gatherer
}

// New registers the ledger collectors with reg.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "permledger",
			Name:      "operations_total",
			Help:      "Ledger operations by operation and outcome.",
		}, []string{"operation", "outcome"}),
		accessChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "permledger",
			Name:      "access_checks_total",
			Help:      "Access queries by result.",
		}, []string{"result"}),
		gatherer: reg,
	}
	reg.MustRegister(m.operations, m.accessChecks)
	return m
}

// ObserveOperation records one operation. outcome is "ok" or the name of the
// error that ended it.
func (m *Metrics) ObserveOperation(operation, outcome string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
}

// ObserveAccess records the result of one access query.
func (m *Metrics) ObserveAccess(granted bool) {
	if m == nil {
		return
	}
	result := "denied"
	if granted {
		result = "granted"
	}
	m.accessChecks.WithLabelValues(result).Inc()
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
