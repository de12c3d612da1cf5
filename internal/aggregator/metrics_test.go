package aggregator

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

func counterValue(t *testing.T, m *Metrics, name, label string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, metric := range f.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if lp.GetValue() == label {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestMetricsCountOutcomes(t *testing.T) {
	m := NewMetrics()
	s := NewSession(Options{Metrics: m, MaxMessages: 2})
	s.Accept(wsMessage("a"))
	s.Accept(wsMessage("a"))
	s.Accept(wsMessage("b"))
	s.Accept(wsMessage("c"))

	if got := counterValue(t, m, "phx_aggregator_messages_total", "accepted"); got != 3 {
		t.Fatalf("accepted = %v, want 3", got)
	}
	if got := counterValue(t, m, "phx_aggregator_messages_total", "duplicate"); got != 1 {
		t.Fatalf("duplicate = %v, want 1", got)
	}
	if got := counterValue(t, m, "phx_aggregator_messages_total", "evicted"); got != 1 {
		t.Fatalf("evicted = %v, want 1", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "phx_aggregator_stored_messages 2") {
		t.Fatalf("metrics output missing stored gauge:\n%s", body)
	}
}
