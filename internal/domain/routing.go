package domain

// InitialRouting resolves the owning area and responsible role for a new
// ticket. Consultant tickets always pass the production triage gate first; the
// requested area is kept as AreaOriginal so it can be restored later.
func InitialRouting(createdByRole Role, requested Area) (area Area, responsible Role, original Area) {
	switch createdByRole {
	case RoleConsultant:
		return AreaProduction, RoleProducer, requested
	case RoleProducer, RoleOperator, RoleManager, RoleAdministrator:
		return requested, RoleOperator, requested
	default:
		return requested, RoleOperator, requested
	}
}

// ApplyStatusRouting updates the routing fields of t for a move to next.
// Escalation targets are set by the escalation operations, not here.
func ApplyStatusRouting(t *Ticket, next TicketStatus) {
	switch next {
	case TicketStatusInAnalysis:
		t.ResponsibleRole = RoleProducer
	case TicketStatusSentToArea:
		t.Area = originalOrCurrent(t)
		t.ResponsibleRole = RoleOperator
	case TicketStatusInExecution:
		t.Area = AreaProduction
		t.ResponsibleRole = RoleProducer
	case TicketStatusInTreatment:
		t.ResponsibleRole = RoleOperator
	case TicketStatusExecutedAwaitingValidation:
		switch t.CreatedByRole {
		case RoleConsultant, RoleProducer:
			t.Area = AreaProduction
			t.ResponsibleRole = RoleProducer
		default:
			t.Area = originalOrCurrent(t)
			t.ResponsibleRole = RoleOperator
		}
	case TicketStatusApproved:
		t.Area = originalOrCurrent(t)
		t.ResponsibleRole = RoleOperator
		t.TargetManagerID = nil
	}
}

func originalOrCurrent(t *Ticket) Area {
	if t.AreaOriginal != "" {
		return t.AreaOriginal
	}
	return t.Area
}
