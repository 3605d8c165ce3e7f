package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveFetchCountsBySourceAndResult(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveFetch("cache", nil, time.Millisecond)
	m.ObserveFetch("cache", nil, time.Millisecond)
	m.ObserveFetch("network", errors.New("boom"), time.Millisecond)

	if got := testutil.ToFloat64(m.FetchTotal.WithLabelValues("cache", "ok")); got != 2 {
		t.Fatalf("expected 2 cache hits, got %v", got)
	}
	if got := testutil.ToFloat64(m.FetchTotal.WithLabelValues("network", "error")); got != 1 {
		t.Fatalf("expected 1 network error, got %v", got)
	}
}

func TestObserveQueueSetsGauges(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveQueue("scene", 3, 2)
	if got := testutil.ToFloat64(m.QueuePending.WithLabelValues("scene")); got != 3 {
		t.Fatalf("pending gauge mismatch: %v", got)
	}
	if got := testutil.ToFloat64(m.QueueRunning.WithLabelValues("scene")); got != 2 {
		t.Fatalf("running gauge mismatch: %v", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveFetch("local", nil, 0)
	m.ObserveEviction()
	m.ObserveQueue("default", 0, 0)
	m.ObserveBundle("ready")
}
