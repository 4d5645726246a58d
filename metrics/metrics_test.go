package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestNewRegistersAllCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) != 6 {
		t.Fatalf("got %d metric families, want 6", len(families))
	}

	m.ConnOpened()
	m.ConnClosed()
	m.Reconnect("pop")
	m.CommandIssued("imap")
	m.CacheHit("body")
	m.CacheMiss("header")

	if got := counterValue(t, m.ConnectionsOpened); got != 1 {
		t.Errorf("ConnectionsOpened = %v, want 1", got)
	}
	if got := counterValue(t, m.ConnectionsClosed); got != 1 {
		t.Errorf("ConnectionsClosed = %v, want 1", got)
	}
	if got := counterValue(t, m.Reconnects.WithLabelValues("pop")); got != 1 {
		t.Errorf("Reconnects[pop] = %v, want 1", got)
	}
	if got := counterValue(t, m.CommandsIssued.WithLabelValues("imap")); got != 1 {
		t.Errorf("CommandsIssued[imap] = %v, want 1", got)
	}
	if got := counterValue(t, m.CacheHits.WithLabelValues("body")); got != 1 {
		t.Errorf("CacheHits[body] = %v, want 1", got)
	}
	if got := counterValue(t, m.CacheMisses.WithLabelValues("header")); got != 1 {
		t.Errorf("CacheMisses[header] = %v, want 1", got)
	}
}

// A nil *Metrics must tolerate every counter method being called on it,
// since that's the whole point of the pattern: conn/pop/imap call these
// unconditionally regardless of whether instrumentation was ever enabled.
func TestNilMetricsIsNoOp(t *testing.T) {
	var m *Metrics
	m.ConnOpened()
	m.ConnClosed()
	m.Reconnect("pop")
	m.CommandIssued("imap")
	m.CacheHit("body")
	m.CacheMiss("header")
}
