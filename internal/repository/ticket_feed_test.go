package repository

import (
	"testing"
	"time"

	"github.com/spec-kit/ticket-workflow/internal/domain"
)

func TestDiffKnown(t *testing.T) {
	since := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	before := since.Add(-48 * time.Hour)
	after := since.Add(time.Hour)

	known := map[string]int64{"a": 2, "b": 1}
	changes := diffKnown(known, []domain.Ticket{
		{ID: "a", Version: 2, CreatedAt: before, UpdatedAt: before},
		{ID: "b", Version: 3, CreatedAt: before, UpdatedAt: after},
		{ID: "c", Version: 1, CreatedAt: after, UpdatedAt: after},
		{ID: "old", Version: 7, CreatedAt: before, UpdatedAt: after},
		{ID: "idle", Version: 4, CreatedAt: before, UpdatedAt: before},
	}, since)

	want := []struct {
		id   string
		kind ChangeKind
	}{
		{"b", ChangeModified},
		{"c", ChangeAdded},
		{"old", ChangeModified},
	}
	if len(changes) != len(want) {
		t.Fatalf("changes = %+v", changes)
	}
	for i, w := range want {
		if changes[i].Ticket.ID != w.id || changes[i].Kind != w.kind {
			t.Fatalf("change %d = %s/%s, want %s/%s", i, changes[i].Ticket.ID, changes[i].Kind, w.id, w.kind)
		}
	}
	for id, v := range map[string]int64{"b": 3, "c": 1, "old": 7, "idle": 4} {
		if known[id] != v {
			t.Fatalf("known[%s] = %d, want %d", id, known[id], v)
		}
	}
}

func TestNotifiedChangeUsesTriggerOperation(t *testing.T) {
	known := map[string]int64{"recent": 1}

	tests := []struct {
		name   string
		op     string
		ticket domain.Ticket
		want   ChangeKind
		emit   bool
	}{
		{"update outside snapshot", "UPDATE", domain.Ticket{ID: "old", Version: 7}, ChangeModified, true},
		{"insert", "INSERT", domain.Ticket{ID: "fresh", Version: 1}, ChangeAdded, true},
		{"update known", "UPDATE", domain.Ticket{ID: "recent", Version: 2}, ChangeModified, true},
		{"stale", "UPDATE", domain.Ticket{ID: "recent", Version: 2}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			change, ok := notifiedChange(known, tt.op, tt.ticket)
			if ok != tt.emit {
				t.Fatalf("emit = %v, want %v", ok, tt.emit)
			}
			if ok && change.Kind != tt.want {
				t.Fatalf("kind = %s, want %s", change.Kind, tt.want)
			}
			if known[tt.ticket.ID] != tt.ticket.Version {
				t.Fatalf("known[%s] = %d", tt.ticket.ID, known[tt.ticket.ID])
			}
		})
	}
}
