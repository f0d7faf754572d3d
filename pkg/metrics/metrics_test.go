package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetricsIsReinitializable(t *testing.T) {
	// A fresh registry per instance must never panic on duplicate
	// registration, unlike reusing prometheus.DefaultRegisterer across
	// repeated construction (e.g. a restarted consensus instance in tests).
	reg1 := prometheus.NewRegistry()
	m1 := NewMetrics(reg1)

	reg2 := prometheus.NewRegistry()
	m2 := NewMetrics(reg2)

	m1.ConsensusHeight.Set(5)
	m2.ConsensusHeight.Set(9)

	if got := testutil.ToFloat64(m1.ConsensusHeight); got != 5 {
		t.Fatalf("got %v, want 5", got)
	}
	if got := testutil.ToFloat64(m2.ConsensusHeight); got != 9 {
		t.Fatalf("got %v, want 9", got)
	}
}

func TestMessageCountersAreLabeled(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.MessagesReceivedTotal.WithLabelValues("PrepareRequest").Inc()
	m.MessagesReceivedTotal.WithLabelValues("PrepareRequest").Inc()
	m.MessagesReceivedTotal.WithLabelValues("Commit").Inc()

	if got := testutil.ToFloat64(m.MessagesReceivedTotal.WithLabelValues("PrepareRequest")); got != 2 {
		t.Fatalf("got %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.MessagesReceivedTotal.WithLabelValues("Commit")); got != 1 {
		t.Fatalf("got %v, want 1", got)
	}
}
