package conn

import (
	"net"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/tern-mail/mailcore/metrics"
)

func gaugeOf(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	var m dto.Metric
	(<-ch).Write(&m)
	return m.GetCounter().GetValue()
}

func TestSetMetricsRecordsOpenAndClose(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	c := New(client, nil)
	m := metrics.New(prometheus.NewRegistry())
	c.SetMetrics(m)

	if got := gaugeOf(t, m.ConnectionsOpened); got != 1 {
		t.Errorf("ConnectionsOpened = %v, want 1", got)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := gaugeOf(t, m.ConnectionsClosed); got != 1 {
		t.Errorf("ConnectionsClosed = %v, want 1", got)
	}
}

// A Conn with no metrics attached must tolerate Close without panicking.
func TestCloseWithoutMetrics(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	c := New(client, nil)
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
