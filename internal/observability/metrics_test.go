package observability

import (
	"testing"
	"time"
)

func TestMetricsSnapshotIsACopy(t *testing.T) {
	m := NewMetrics()
	m.RecordRequest("/api/v1/tickets", "GET", 200, 15*time.Millisecond)
	m.RecordDelivery("email", OutcomeFailed)
	m.RecordDelivery("email", OutcomeFailed)

	snap := m.Snapshot()
	if snap.Requests["/api/v1/tickets|GET|200"] != 1 {
		t.Fatalf("requests = %v", snap.Requests)
	}
	if m.Delivery("email", OutcomeFailed) != 2 {
		t.Fatalf("email failures = %d", m.Delivery("email", OutcomeFailed))
	}

	snap.Deliveries["email|failed"] = 100
	if m.Delivery("email", OutcomeFailed) != 2 {
		t.Fatal("snapshot mutation leaked into metrics")
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordDelivery("in_app", OutcomeDelivered)
	m.RecordEvent("outbox", "created")
	if got := m.Delivery("in_app", OutcomeDelivered); got != 0 {
		t.Fatalf("nil metrics returned %d", got)
	}
}
