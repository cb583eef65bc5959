package dto

import (
	"time"

	"github.com/spec-kit/ticket-workflow/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title            string                `json:"title"`
	Description      string                `json:"description"`
	Priority         domain.TicketPriority `json:"priority"`
	Type             domain.TicketType     `json:"type"`
	Area             domain.Area           `json:"area"`
	OriginalTicketID *string               `json:"original_ticket_id"`
}

// TransitionRequest moves a ticket to a new status.
type TransitionRequest struct {
	Status  domain.TicketStatus `json:"status"`
	Comment string              `json:"comment"`
}

// EscalateToAreaRequest payload.
type EscalateToAreaRequest struct {
	Area   domain.Area `json:"area"`
	Reason string      `json:"reason"`
}

// EscalateToManagerRequest payload.
type EscalateToManagerRequest struct {
	ManagerID string `json:"manager_id"`
	Reason    string `json:"reason"`
}

// LinkTicketRequest links a follow-up ticket to the one in the path.
type LinkTicketRequest struct {
	LinkedTicketID string `json:"linked_ticket_id"`
}

// HistoryEntryResponse is one audit entry.
type HistoryEntryResponse struct {
	PreviousStatus  *domain.TicketStatus `json:"previous_status"`
	NewStatus       domain.TicketStatus  `json:"new_status"`
	Actor           string               `json:"actor"`
	Timestamp       time.Time            `json:"timestamp"`
	Comment         string               `json:"comment,omitempty"`
	Kind            domain.HistoryKind   `json:"kind"`
	FromArea        domain.Area          `json:"from_area,omitempty"`
	ToArea          domain.Area          `json:"to_area,omitempty"`
	TargetManagerID string               `json:"target_manager_id,omitempty"`
}

// SLAResponse is the SLA classification at request time.
type SLAResponse struct {
	State          domain.SLAState `json:"state"`
	ThresholdHours float64         `json:"threshold_hours"`
	ElapsedHours   float64         `json:"elapsed_hours"`
	OperationSLA   *float64        `json:"operation_sla_hours"`
	ValidationSLA  *float64        `json:"validation_sla_hours"`
}

// TicketResponse is the full ticket representation.
type TicketResponse struct {
	ID               string                 `json:"id"`
	Title            string                 `json:"title"`
	Description      string                 `json:"description"`
	Status           domain.TicketStatus    `json:"status"`
	StatusLabel      string                 `json:"status_label"`
	Priority         domain.TicketPriority  `json:"priority"`
	Type             domain.TicketType      `json:"type"`
	Area             domain.Area            `json:"area"`
	AreaOriginal     domain.Area            `json:"area_original,omitempty"`
	ResponsibleRole  domain.Role            `json:"responsible_role"`
	TargetManagerID  *string                `json:"target_manager_id"`
	CreatedBy        string                 `json:"created_by"`
	CreatedByRole    domain.Role            `json:"created_by_role"`
	CreatedAt        time.Time              `json:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
	ExecutedAt       *time.Time             `json:"executed_at"`
	ValidatedAt      *time.Time             `json:"validated_at"`
	LinkedTicketIDs  []string               `json:"linked_ticket_ids"`
	OriginalTicketID *string                `json:"original_ticket_id"`
	IsLinked         bool                   `json:"is_linked"`
	Version          int64                  `json:"version"`
	NextStatuses     []domain.TicketStatus  `json:"next_statuses,omitempty"`
	History          []HistoryEntryResponse `json:"status_history,omitempty"`
	SLA              *SLAResponse           `json:"sla,omitempty"`
}

// LinkedTicketResponse pairs a ticket with its relation to the requested one.
type LinkedTicketResponse struct {
	Relation string         `json:"relation"`
	Ticket   TicketResponse `json:"ticket"`
}

// CreateMessageRequest posts a message on a ticket.
type CreateMessageRequest struct {
	Body string `json:"body"`
}

// TicketMessageResponse is one message of a ticket's conversation.
type TicketMessageResponse struct {
	ID         string      `json:"id"`
	TicketID   string      `json:"ticket_id"`
	SenderID   string      `json:"sender_id"`
	SenderName string      `json:"sender_name"`
	SenderRole domain.Role `json:"sender_role"`
	Body       string      `json:"body"`
	CreatedAt  time.Time   `json:"created_at"`
}
