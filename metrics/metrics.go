// Package metrics exposes Prometheus instrumentation for association
// lifecycle events, DIMSE operation latency, and PDU byte counts — additive
// observability around the core; nothing in assoc or dimse depends on this
// package for correctness.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds every collector this module registers, all under the
// ulp_ prefix.
type Metrics struct {
	AssociationsTotal *prometheus.CounterVec
	DIMSEDuration     *prometheus.HistogramVec
	PDUBytesSent      prometheus.Counter
	PDUBytesReceived  prometheus.Counter
}

// New creates and registers the collectors against reg. Pass
// prometheus.DefaultRegisterer to use the global registry, or a fresh
// prometheus.NewRegistry() in tests to avoid collisions between parallel
// test binaries registering the same metric names.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AssociationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ulp_associations_total",
				Help: "Total associations by outcome (established, rejected, aborted).",
			},
			[]string{"outcome"},
		),
		DIMSEDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ulp_dimse_operation_duration_seconds",
				Help:    "DIMSE operation duration in seconds, labeled by command field.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"command"},
		),
		PDUBytesSent: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ulp_pdu_bytes_sent_total",
				Help: "Total bytes sent across all PDUs.",
			},
		),
		PDUBytesReceived: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ulp_pdu_bytes_received_total",
				Help: "Total bytes received across all PDUs.",
			},
		),
	}

	reg.MustRegister(
		m.AssociationsTotal,
		m.DIMSEDuration,
		m.PDUBytesSent,
		m.PDUBytesReceived,
	)

	return m
}

// Association outcome labels for AssociationsTotal.
const (
	OutcomeEstablished = "established"
	OutcomeRejected    = "rejected"
	OutcomeAborted     = "aborted"
)

// RecordAssociation increments the association counter for outcome.
func (m *Metrics) RecordAssociation(outcome string) {
	if m == nil {
		return
	}
	m.AssociationsTotal.WithLabelValues(outcome).Inc()
}

// RecordDIMSEDuration observes a DIMSE operation's duration for the given
// command field, formatted as a hex string (e.g. "0x0001" for C-STORE-RQ).
func (m *Metrics) RecordDIMSEDuration(command string, seconds float64) {
	if m == nil {
		return
	}
	m.DIMSEDuration.WithLabelValues(command).Observe(seconds)
}

// AddBytesSent increments the sent-byte counter.
func (m *Metrics) AddBytesSent(n int) {
	if m == nil {
		return
	}
	m.PDUBytesSent.Add(float64(n))
}

// AddBytesReceived increments the received-byte counter.
func (m *Metrics) AddBytesReceived(n int) {
	if m == nil {
		return
	}
	m.PDUBytesReceived.Add(float64(n))
}
