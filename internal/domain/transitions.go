package domain

// allowedTransitions is the legal (from -> to) edge set. Terminal statuses
// have no outgoing edges.
var allowedTransitions = map[TicketStatus][]TicketStatus{
	TicketStatusOpen: {
		TicketStatusInAnalysis, TicketStatusSentToArea, TicketStatusInTreatment,
		TicketStatusEscalatedToOtherArea, TicketStatusCancelled,
	},
	TicketStatusInAnalysis: {
		TicketStatusSentToArea, TicketStatusInExecution,
		TicketStatusEscalatedToOtherArea, TicketStatusCancelled,
	},
	TicketStatusSentToArea: {
		TicketStatusInTreatment, TicketStatusEscalatedToOtherArea,
		TicketStatusAwaitingApproval, TicketStatusCancelled,
	},
	TicketStatusInExecution: {
		TicketStatusExecutedAwaitingValidation, TicketStatusAwaitingApproval,
		TicketStatusEscalatedToOtherArea, TicketStatusCancelled,
	},
	TicketStatusInTreatment: {
		TicketStatusExecutedAwaitingValidation, TicketStatusAwaitingApproval,
		TicketStatusEscalatedToOtherArea, TicketStatusCancelled,
	},
	TicketStatusAwaitingApproval: {
		TicketStatusApproved, TicketStatusRejected, TicketStatusCancelled,
	},
	TicketStatusApproved: {
		TicketStatusInTreatment, TicketStatusInExecution, TicketStatusExecutedAwaitingValidation,
		TicketStatusEscalatedToOtherArea, TicketStatusCancelled,
	},
	TicketStatusEscalatedToOtherArea: {
		TicketStatusInTreatment, TicketStatusExecutedAwaitingValidation,
		TicketStatusAwaitingApproval, TicketStatusEscalatedToOtherArea, TicketStatusCancelled,
	},
	TicketStatusExecutedAwaitingValidation: {
		TicketStatusCompleted, TicketStatusInTreatment, TicketStatusCancelled,
	},
	TicketStatusCompleted: {},
	TicketStatusCancelled: {},
	TicketStatusRejected:  {},
}

// IsValidTransition reports whether current -> next is a legal edge.
func IsValidTransition(current, next TicketStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

// NextStatuses lists the statuses reachable from current in one step.
func NextStatuses(current TicketStatus) []TicketStatus {
	return append([]TicketStatus(nil), allowedTransitions[current]...)
}
