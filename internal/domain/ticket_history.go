package domain

import "time"

// HistoryKind tags what produced a history entry.
type HistoryKind string

const (
	HistoryKindCreated    HistoryKind = "created"
	HistoryKindStatus     HistoryKind = "status"
	HistoryKindEscalation HistoryKind = "escalation"
)

// StatusHistoryEntry is an immutable audit trail entry embedded in the ticket.
type StatusHistoryEntry struct {
	PreviousStatus  *TicketStatus `json:"previous_status"`
	NewStatus       TicketStatus  `json:"new_status"`
	Actor           string        `json:"actor"`
	Timestamp       time.Time     `json:"timestamp"`
	Comment         string        `json:"comment,omitempty"`
	Kind            HistoryKind   `json:"kind"`
	FromArea        Area          `json:"from_area,omitempty"`
	ToArea          Area          `json:"to_area,omitempty"`
	TargetManagerID string        `json:"target_manager_id,omitempty"`
}

func (e StatusHistoryEntry) clone() StatusHistoryEntry {
	out := e
	if e.PreviousStatus != nil {
		prev := *e.PreviousStatus
		out.PreviousStatus = &prev
	}
	return out
}
