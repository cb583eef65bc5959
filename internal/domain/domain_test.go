package domain

import (
	"testing"
	"time"
)

var allStatuses = []TicketStatus{
	TicketStatusOpen, TicketStatusInAnalysis, TicketStatusSentToArea, TicketStatusInExecution,
	TicketStatusInTreatment, TicketStatusAwaitingApproval, TicketStatusApproved, TicketStatusRejected,
	TicketStatusEscalatedToOtherArea, TicketStatusExecutedAwaitingValidation, TicketStatusCompleted,
	TicketStatusCancelled,
}

func TestTransitionTableCoversEveryStatus(t *testing.T) {
	for _, status := range allStatuses {
		if !status.Valid() {
			t.Fatalf("%s should be valid", status)
		}
		if _, ok := allowedTransitions[status]; !ok {
			t.Fatalf("%s missing from transition table", status)
		}
		if status.Terminal() {
			if len(NextStatuses(status)) != 0 {
				t.Fatalf("terminal %s has outgoing edges", status)
			}
			continue
		}
		if !IsValidTransition(status, TicketStatusCancelled) {
			t.Fatalf("cancelled must be reachable from %s", status)
		}
	}
}

func TestIsValidTransition(t *testing.T) {
	cases := []struct {
		from, to TicketStatus
		want     bool
	}{
		{TicketStatusOpen, TicketStatusInAnalysis, true},
		{TicketStatusOpen, TicketStatusCompleted, false},
		{TicketStatusInTreatment, TicketStatusExecutedAwaitingValidation, true},
		{TicketStatusExecutedAwaitingValidation, TicketStatusCompleted, true},
		{TicketStatusAwaitingApproval, TicketStatusApproved, true},
		{TicketStatusAwaitingApproval, TicketStatusInTreatment, false},
		{TicketStatusCompleted, TicketStatusOpen, false},
		{TicketStatusRejected, TicketStatusCancelled, false},
		{TicketStatus("bogus"), TicketStatusOpen, false},
	}
	for _, tc := range cases {
		if got := IsValidTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("IsValidTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestInitialRouting(t *testing.T) {
	area, role, original := InitialRouting(RoleConsultant, AreaWarehouse)
	if area != AreaProduction || role != RoleProducer || original != AreaWarehouse {
		t.Fatalf("consultant routing = %s/%s/%s", area, role, original)
	}
	for _, creator := range []Role{RoleProducer, RoleOperator} {
		area, role, original = InitialRouting(creator, AreaLogistics)
		if area != AreaLogistics || role != RoleOperator || original != AreaLogistics {
			t.Fatalf("%s routing = %s/%s/%s", creator, area, role, original)
		}
	}
}

func TestApplyStatusRouting(t *testing.T) {
	manager := "mgr-1"
	ticket := Ticket{
		Area:            AreaProduction,
		AreaOriginal:    AreaWarehouse,
		ResponsibleRole: RoleProducer,
		CreatedByRole:   RoleConsultant,
		TargetManagerID: &manager,
	}

	ApplyStatusRouting(&ticket, TicketStatusSentToArea)
	if ticket.Area != AreaWarehouse || ticket.ResponsibleRole != RoleOperator {
		t.Fatalf("sent_to_area routing = %s/%s", ticket.Area, ticket.ResponsibleRole)
	}

	ApplyStatusRouting(&ticket, TicketStatusExecutedAwaitingValidation)
	if ticket.Area != AreaProduction || ticket.ResponsibleRole != RoleProducer {
		t.Fatalf("consultant ticket should return to production, got %s/%s", ticket.Area, ticket.ResponsibleRole)
	}

	ApplyStatusRouting(&ticket, TicketStatusApproved)
	if ticket.Area != AreaWarehouse || ticket.TargetManagerID != nil {
		t.Fatalf("approved routing = %s manager=%v", ticket.Area, ticket.TargetManagerID)
	}

	operatorTicket := Ticket{Area: AreaRental, AreaOriginal: AreaLogistics, CreatedByRole: RoleOperator}
	ApplyStatusRouting(&operatorTicket, TicketStatusExecutedAwaitingValidation)
	if operatorTicket.Area != AreaLogistics || operatorTicket.ResponsibleRole != RoleOperator {
		t.Fatalf("operator ticket routing = %s/%s", operatorTicket.Area, operatorTicket.ResponsibleRole)
	}
}

func TestSLAPolicyClassify(t *testing.T) {
	policy := DefaultSLAPolicy()
	created := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	cases := []struct {
		name     string
		priority TicketPriority
		status   TicketStatus
		elapsed  time.Duration
		want     SLAState
	}{
		{"urgent violated", TicketPriorityUrgent, TicketStatusInTreatment, 3 * time.Hour, SLAViolated},
		{"urgent at risk", TicketPriorityUrgent, TicketStatusOpen, 100 * time.Minute, SLAAtRisk},
		{"urgent on track", TicketPriorityUrgent, TicketStatusOpen, time.Hour, SLAOnTrack},
		{"medium exactly threshold", TicketPriorityMedium, TicketStatusOpen, 24 * time.Hour, SLAAtRisk},
		{"low on track", TicketPriorityLow, TicketStatusSentToArea, 30 * time.Hour, SLAOnTrack},
		{"terminal", TicketPriorityUrgent, TicketStatusCompleted, 72 * time.Hour, SLAClosed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ticket := Ticket{Priority: tc.priority, Status: tc.status, CreatedAt: created}
			if got := policy.Classify(ticket, created.Add(tc.elapsed)); got != tc.want {
				t.Fatalf("Classify() = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestHoursBetween(t *testing.T) {
	start := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	if got := HoursBetween(start, start.Add(5*time.Hour)); got != 5.00 {
		t.Fatalf("HoursBetween = %v, want 5", got)
	}
	if got := HoursBetween(start, start.Add(100*time.Minute)); got != 1.67 {
		t.Fatalf("HoursBetween = %v, want 1.67", got)
	}
	if got := HoursBetween(start, start.Add(-time.Hour)); got != -1 {
		t.Fatalf("negative durations are not clamped, got %v", got)
	}
}

func TestTicketCloneDoesNotAlias(t *testing.T) {
	prev := TicketStatusOpen
	original := Ticket{
		StatusHistory:   []StatusHistoryEntry{{PreviousStatus: &prev, NewStatus: TicketStatusInAnalysis}},
		LinkedTicketIDs: []string{"a"},
	}
	clone := original.Clone()
	clone.LinkedTicketIDs[0] = "b"
	*clone.StatusHistory[0].PreviousStatus = TicketStatusCancelled
	if original.LinkedTicketIDs[0] != "a" || *original.StatusHistory[0].PreviousStatus != TicketStatusOpen {
		t.Fatal("clone shares memory with original")
	}
}

func TestIsRelevant(t *testing.T) {
	ticket := Ticket{Area: AreaLogistics, CreatedBy: "c1"}
	cases := []struct {
		user User
		want bool
	}{
		{User{ID: "a", Role: RoleAdministrator}, true},
		{User{ID: "m", Role: RoleManager}, true},
		{User{ID: "p", Role: RoleProducer}, true},
		{User{ID: "o1", Role: RoleOperator, Area: AreaLogistics}, true},
		{User{ID: "o2", Role: RoleOperator, Area: AreaRental}, false},
		{User{ID: "o3", Role: RoleOperator}, false},
		{User{ID: "c1", Role: RoleConsultant}, true},
		{User{ID: "c2", Role: RoleConsultant}, false},
	}
	for _, tc := range cases {
		if got := IsRelevant(tc.user, ticket); got != tc.want {
			t.Errorf("IsRelevant(%s/%s) = %v, want %v", tc.user.ID, tc.user.Role, got, tc.want)
		}
	}
}
