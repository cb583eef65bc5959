package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen                       TicketStatus = "open"
	TicketStatusInAnalysis                 TicketStatus = "in_analysis"
	TicketStatusSentToArea                 TicketStatus = "sent_to_area"
	TicketStatusInExecution                TicketStatus = "in_execution"
	TicketStatusInTreatment                TicketStatus = "in_treatment"
	TicketStatusAwaitingApproval           TicketStatus = "awaiting_approval"
	TicketStatusApproved                   TicketStatus = "approved"
	TicketStatusRejected                   TicketStatus = "rejected"
	TicketStatusEscalatedToOtherArea       TicketStatus = "escalated_to_other_area"
	TicketStatusExecutedAwaitingValidation TicketStatus = "executed_awaiting_validation"
	TicketStatusCompleted                  TicketStatus = "completed"
	TicketStatusCancelled                  TicketStatus = "cancelled"
)

var ticketStatusLabels = map[TicketStatus]string{
	TicketStatusOpen:                       "Open",
	TicketStatusInAnalysis:                 "In analysis",
	TicketStatusSentToArea:                 "Sent to area",
	TicketStatusInExecution:                "In execution",
	TicketStatusInTreatment:                "In treatment",
	TicketStatusAwaitingApproval:           "Awaiting approval",
	TicketStatusApproved:                   "Approved",
	TicketStatusRejected:                   "Rejected",
	TicketStatusEscalatedToOtherArea:       "Escalated to other area",
	TicketStatusExecutedAwaitingValidation: "Executed, awaiting validation",
	TicketStatusCompleted:                  "Completed",
	TicketStatusCancelled:                  "Cancelled",
}

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	_, ok := ticketStatusLabels[s]
	return ok
}

// Terminal reports whether no further transitions leave s.
func (s TicketStatus) Terminal() bool {
	switch s {
	case TicketStatusCompleted, TicketStatusCancelled, TicketStatusRejected:
		return true
	default:
		return false
	}
}

// Label returns the human readable status name.
func (s TicketStatus) Label() string {
	if label, ok := ticketStatusLabels[s]; ok {
		return label
	}
	return string(s)
}

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityMedium TicketPriority = "medium"
	TicketPriorityHigh   TicketPriority = "high"
	TicketPriorityUrgent TicketPriority = "urgent"
)

// Valid reports whether p is a known priority.
func (p TicketPriority) Valid() bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh, TicketPriorityUrgent:
		return true
	default:
		return false
	}
}

// TicketType is the request category chosen at creation.
type TicketType string

const (
	TicketTypeFreight               TicketType = "freight"
	TicketTypeFurnitureChange       TicketType = "furniture_change"
	TicketTypeWarehouseMaterial     TicketType = "warehouse_material"
	TicketTypeVisualCommunication   TicketType = "visual_communication"
	TicketTypeRental                TicketType = "rental"
	TicketTypePurchase              TicketType = "purchase"
	TicketTypeMaintenance           TicketType = "maintenance"
	TicketTypeMaintenanceProduction TicketType = "maintenance_production"
	TicketTypeMaintenanceFurniture  TicketType = "maintenance_furniture"
	TicketTypeMaintenanceVisual     TicketType = "maintenance_visual"
	TicketTypeOther                 TicketType = "other"
)

// Valid reports whether t is a known ticket type.
func (t TicketType) Valid() bool {
	switch t {
	case TicketTypeFreight, TicketTypeFurnitureChange, TicketTypeWarehouseMaterial,
		TicketTypeVisualCommunication, TicketTypeRental, TicketTypePurchase,
		TicketTypeMaintenance, TicketTypeMaintenanceProduction, TicketTypeMaintenanceFurniture,
		TicketTypeMaintenanceVisual, TicketTypeOther:
		return true
	default:
		return false
	}
}

// Ticket is the aggregate for support requests.
//
// Version starts at 1 and increases by one on every committed mutation. It is
// the compare-and-swap token for concurrent writers.
type Ticket struct {
	ID               string
	Title            string
	Description      string
	Status           TicketStatus
	Priority         TicketPriority
	Type             TicketType
	Area             Area
	AreaOriginal     Area
	ResponsibleRole  Role
	TargetManagerID  *string
	CreatedBy        string
	CreatedByRole    Role
	CreatedAt        time.Time
	UpdatedAt        time.Time
	ExecutedAt       *time.Time
	ValidatedAt      *time.Time
	OperationSLA     *float64
	ValidationSLA    *float64
	StatusHistory    []StatusHistoryEntry
	LinkedTicketIDs  []string
	OriginalTicketID *string
	IsLinked         bool
	Version          int64
}

// Clone returns a deep copy so callers can mutate without aliasing stored state.
func (t Ticket) Clone() Ticket {
	out := t
	out.TargetManagerID = cloneString(t.TargetManagerID)
	out.OriginalTicketID = cloneString(t.OriginalTicketID)
	out.ExecutedAt = cloneTime(t.ExecutedAt)
	out.ValidatedAt = cloneTime(t.ValidatedAt)
	out.OperationSLA = cloneFloat(t.OperationSLA)
	out.ValidationSLA = cloneFloat(t.ValidationSLA)
	out.StatusHistory = make([]StatusHistoryEntry, len(t.StatusHistory))
	for i, entry := range t.StatusHistory {
		out.StatusHistory[i] = entry.clone()
	}
	out.LinkedTicketIDs = append([]string(nil), t.LinkedTicketIDs...)
	return out
}

// HasLinked reports whether id is in the linked set.
func (t *Ticket) HasLinked(id string) bool {
	for _, linked := range t.LinkedTicketIDs {
		if linked == id {
			return true
		}
	}
	return false
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
