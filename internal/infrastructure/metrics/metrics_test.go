package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewRegistersMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()

	// Replace global default registry to allow test inspection.
	prometheus.DefaultRegisterer = registry
	prometheus.DefaultGatherer = registry

	m := New()

	if m.TransactionsRecorded == nil || m.SettlementEvents == nil || m.NodeActive == nil {
		t.Fatalf("expected key metrics to be initialized: %+v", m)
	}

	m.NodeActive.WithLabelValues("lnd1").Set(1)
	m.TransactionsRecorded.WithLabelValues("invoice", "false").Inc()

	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	if len(metricFamilies) == 0 {
		t.Fatalf("expected registered metrics, got none")
	}

	found := false
	for _, mf := range metricFamilies {
		if mf.GetName() == "satledger_node_active" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected satledger_node_active to be gathered")
	}
}
