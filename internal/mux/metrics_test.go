package mux

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestEngineMetricsCountStreamLifecycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewEngineMetrics(WithRegistry(reg))

	conn := NewLoopbackConnection(nil)
	s := newTestStream(t, conn, WithMetrics(m))

	s.SetDataHandler(func([]byte) {})
	s.OnData(make([]byte, 300))
	s.OnData(make([]byte, 700))
	runOn(t, s, func() {
		if err := s.WriteData(make([]byte, 250), false, nil); err != nil {
			t.Errorf("WriteData failed: %v", err)
		}
	})
	s.OnClose()
	s.loop.Wait()

	if got := testutil.ToFloat64(m.streamsOpened); got != 1 {
		t.Errorf("streams_opened_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.streamsClosed); got != 1 {
		t.Errorf("streams_closed_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.bytesRead); got != 1000 {
		t.Errorf("bytes_read_total = %v, want 1000", got)
	}
	if got := testutil.ToFloat64(m.bytesWritten); got != 250 {
		t.Errorf("bytes_written_total = %v, want 250", got)
	}
	if got := testutil.ToFloat64(m.streamsReset); got != 0 {
		t.Errorf("streams_reset_total = %v, want 0", got)
	}
}

func TestEngineMetricsCountResets(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewEngineMetrics(WithRegistry(reg))

	conn := NewLoopbackConnection(nil)
	remote := newTestStream(t, conn, WithMetrics(m))
	remote.OnReset(ErrCodeCancel)
	settle(t, remote)

	local := newTestStream(t, conn, WithMetrics(m))
	runOn(t, local, func() {
		if err := local.WriteReset(ErrCodeInternalError); err != nil {
			t.Errorf("WriteReset failed: %v", err)
		}
	})

	if got := testutil.ToFloat64(m.streamsReset); got != 2 {
		t.Errorf("streams_reset_total = %v, want 2", got)
	}
}

func TestEngineMetricsNamespaceAndLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewEngineMetrics(
		WithRegistry(reg),
		WithNamespace("transport"),
		WithConstLabels(prometheus.Labels{"conn": "loopback"}),
	)
	m.streamOpened()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gathering metrics: %v", err)
	}
	found := false
	for _, fam := range families {
		if fam.GetName() == "transport_streams_opened_total" {
			found = true
			labels := fam.GetMetric()[0].GetLabel()
			if len(labels) != 1 || labels[0].GetName() != "conn" || labels[0].GetValue() != "loopback" {
				t.Errorf("const labels missing: %v", labels)
			}
		}
	}
	if !found {
		t.Errorf("namespaced counter not registered; families: %d", len(families))
	}
}

func TestEngineMetricsNilSafe(t *testing.T) {
	var m *EngineMetrics
	m.streamOpened()
	m.streamClosed()
	m.streamReset()
	m.addBytesRead(10)
	m.addBytesWritten(10)
}
