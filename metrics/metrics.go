// Package metrics wires the optional Prometheus instrumentation
// SPEC_FULL.md §3's domain stack calls for: connection, reconnect, command
// and cache-hit/miss counters exposed through Runtime.Metrics(), the same
// counters infodancer-pop3d exposes from its session handler.
//
// Every exported type method has a nil receiver guard, so code that never
// calls mailcore.Runtime.EnableMetrics can pass a nil *Metrics around
// unconditionally instead of threading an "enabled bool" everywhere.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the counters this module reports. Fields are exported so
// a caller that wants to inspect raw values in a test can do so without a
// scrape round-trip.
type Metrics struct {
	ConnectionsOpened prometheus.Counter
	ConnectionsClosed prometheus.Counter
	Reconnects        *prometheus.CounterVec // labeled "protocol": pop|imap
	CommandsIssued    *prometheus.CounterVec // labeled "protocol": pop|imap
	CacheHits         *prometheus.CounterVec // labeled "cache": body|header
	CacheMisses       *prometheus.CounterVec // labeled "cache": body|header
}

// New constructs a Metrics instance and registers its collectors with reg.
// Passing prometheus.DefaultRegisterer uses the global default registry;
// a caller wanting isolated test registries can pass a fresh
// prometheus.NewRegistry() instead.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ConnectionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mailcore",
			Name:      "connections_opened_total",
			Help:      "Total transport connections successfully established.",
		}),
		ConnectionsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mailcore",
			Name:      "connections_closed_total",
			Help:      "Total transport connections closed.",
		}),
		Reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mailcore",
			Name:      "reconnects_total",
			Help:      "Total reconnect-and-reindex cycles performed after a lost connection.",
		}, []string{"protocol"}),
		CommandsIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mailcore",
			Name:      "commands_issued_total",
			Help:      "Total protocol commands sent to a server.",
		}, []string{"protocol"}),
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mailcore",
			Name:      "cache_hits_total",
			Help:      "Total cache lookups served without a remote fetch.",
		}, []string{"cache"}),
		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mailcore",
			Name:      "cache_misses_total",
			Help:      "Total cache lookups that required a remote fetch.",
		}, []string{"cache"}),
	}
	reg.MustRegister(
		m.ConnectionsOpened, m.ConnectionsClosed,
		m.Reconnects, m.CommandsIssued,
		m.CacheHits, m.CacheMisses,
	)
	return m
}

// ConnOpened records a successfully established transport connection.
func (m *Metrics) ConnOpened() {
	if m == nil {
		return
	}
	m.ConnectionsOpened.Inc()
}

// ConnClosed records a transport connection being torn down.
func (m *Metrics) ConnClosed() {
	if m == nil {
		return
	}
	m.ConnectionsClosed.Inc()
}

// Reconnect records one reconnect-and-reindex cycle for protocol
// ("pop" or "imap").
func (m *Metrics) Reconnect(protocol string) {
	if m == nil {
		return
	}
	m.Reconnects.WithLabelValues(protocol).Inc()
}

// CommandIssued records one protocol command sent for protocol.
func (m *Metrics) CommandIssued(protocol string) {
	if m == nil {
		return
	}
	m.CommandsIssued.WithLabelValues(protocol).Inc()
}

// CacheHit records a cache lookup (cache is "body" or "header") that
// avoided a remote fetch.
func (m *Metrics) CacheHit(cache string) {
	if m == nil {
		return
	}
	m.CacheHits.WithLabelValues(cache).Inc()
}

// CacheMiss records a cache lookup that required a remote fetch.
func (m *Metrics) CacheMiss(cache string) {
	if m == nil {
		return
	}
	m.CacheMisses.WithLabelValues(cache).Inc()
}
