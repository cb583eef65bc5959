package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-workflow/internal/domain"
	"github.com/spec-kit/ticket-workflow/internal/events"
	"github.com/spec-kit/ticket-workflow/internal/repository"
	apperrors "github.com/spec-kit/ticket-workflow/pkg/util/errorutil"
)

// TicketService coordinates ticket workflows.
type TicketService struct {
	writer *ticketWriter
	policy domain.SLAPolicy
	logger *zap.Logger
	now    func() time.Time
}

// TicketDependencies bundles repositories for ticket service.
type TicketDependencies struct {
	TicketRepo repository.TicketRepository
	OutboxRepo repository.OutboxRepository
	UnitOfWork repository.UnitOfWork
	SLAPolicy  domain.SLAPolicy
	Logger     *zap.Logger
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Title            string
	Description      string
	Priority         domain.TicketPriority
	Type             domain.TicketType
	Area             domain.Area
	CreatedBy        string
	CreatedByRole    domain.Role
	OriginalTicketID *string
}

// TicketListFilter describes listing filters.
type TicketListFilter struct {
	Statuses   []domain.TicketStatus
	Priorities []domain.TicketPriority
	Area       *domain.Area
	OpenOnly   bool
	SearchTerm *string
	Limit      int
	Offset     int
}

// LinkRelation describes how a linked ticket relates to the queried one.
type LinkRelation string

const (
	LinkRelationOriginal LinkRelation = "original"
	LinkRelationLinked   LinkRelation = "linked"
)

// LinkedTicket pairs a ticket with its relation.
type LinkedTicket struct {
	Ticket   domain.Ticket
	Relation LinkRelation
}

// TicketSLA is the SLA view of a ticket at a given instant.
type TicketSLA struct {
	State          domain.SLAState
	ThresholdHours float64
	ElapsedHours   float64
	OperationSLA   *float64
	ValidationSLA  *float64
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	policy := deps.SLAPolicy
	if len(policy.Thresholds) == 0 {
		policy = domain.DefaultSLAPolicy()
	}
	return &TicketService{
		writer: &ticketWriter{
			tickets: deps.TicketRepo,
			outbox:  deps.OutboxRepo,
			uow:     deps.UnitOfWork,
			logger:  logger,
			now:     clock,
		},
		policy: policy,
		logger: logger,
		now:    clock,
	}
}

// CreateTicket validates input, resolves initial routing and commits the
// ticket with its created event. A requested link is attempted after commit
// and never fails the call.
func (s *TicketService) CreateTicket(ctx context.Context, input TicketCreateInput) (*domain.Ticket, error) {
	input.Title = strings.TrimSpace(input.Title)
	input.Description = strings.TrimSpace(input.Description)
	if input.Priority == "" {
		input.Priority = domain.TicketPriorityMedium
	}
	if input.Type == "" {
		input.Type = domain.TicketTypeOther
	}
	if err := validateCreate(input); err != nil {
		return nil, err
	}

	now := s.now()
	area, responsible, original := domain.InitialRouting(input.CreatedByRole, input.Area)
	ticket := &domain.Ticket{
		ID:              uuid.NewString(),
		Title:           input.Title,
		Description:     input.Description,
		Status:          domain.TicketStatusOpen,
		Priority:        input.Priority,
		Type:            input.Type,
		Area:            area,
		AreaOriginal:    original,
		ResponsibleRole: responsible,
		CreatedBy:       input.CreatedBy,
		CreatedByRole:   input.CreatedByRole,
		CreatedAt:       now,
		UpdatedAt:       now,
		StatusHistory: []domain.StatusHistoryEntry{{
			NewStatus: domain.TicketStatusOpen,
			Actor:     input.CreatedBy,
			Timestamp: now,
			Comment:   "Ticket created",
			Kind:      domain.HistoryKindCreated,
		}},
		LinkedTicketIDs: []string{},
		Version:         1,
	}

	evt := events.NewTicketEvent(events.EventTicketCreated, *ticket, input.CreatedBy, "", now)
	err := s.writer.uow.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.writer.tickets.Create(txCtx, ticket); err != nil {
			return err
		}
		_, err := s.writer.outbox.Append(txCtx, &evt)
		return err
	})
	if err != nil {
		return nil, apperrors.NewPersistenceError("create ticket", err)
	}

	if input.OriginalTicketID != nil && *input.OriginalTicketID != "" {
		if err := s.LinkTickets(ctx, *input.OriginalTicketID, ticket.ID); err != nil {
			s.logger.Warn("ticket link failed", zap.Error(err),
				zap.String("original_ticket_id", *input.OriginalTicketID),
				zap.String("ticket_id", ticket.ID))
			return ticket, nil
		}
		if linked, err := s.writer.tickets.GetByID(ctx, ticket.ID); err == nil {
			return linked, nil
		}
	}
	return ticket, nil
}

func validateCreate(input TicketCreateInput) error {
	details := map[string]any{}
	if input.Title == "" {
		details["title"] = "required"
	}
	if input.Description == "" {
		details["description"] = "required"
	}
	if !input.Area.Valid() {
		details["area"] = "unknown area"
	}
	if strings.TrimSpace(input.CreatedBy) == "" {
		details["created_by"] = "required"
	}
	if !input.CreatedByRole.Valid() {
		details["created_by_role"] = "unknown role"
	}
	if !input.Priority.Valid() {
		details["priority"] = "unknown priority"
	}
	if !input.Type.Valid() {
		details["type"] = "unknown type"
	}
	if len(details) > 0 {
		return apperrors.NewValidationError("invalid ticket", details)
	}
	return nil
}

// ApplyStatusTransition moves a ticket along the legal transition table.
// Escalation statuses are reserved for EscalationService.
func (s *TicketService) ApplyStatusTransition(ctx context.Context, ticketID string, newStatus domain.TicketStatus, actor, comment string) (*domain.Ticket, error) {
	if !newStatus.Valid() {
		return nil, apperrors.NewValidationError("unknown status", map[string]any{"status": newStatus})
	}
	if newStatus == domain.TicketStatusEscalatedToOtherArea || newStatus == domain.TicketStatusAwaitingApproval {
		return nil, apperrors.NewValidationError("status requires an escalation", map[string]any{"status": newStatus})
	}
	if strings.TrimSpace(actor) == "" {
		return nil, apperrors.NewValidationError("actor required", nil)
	}

	return s.writer.apply(ctx, ticketID, func(t *domain.Ticket, now time.Time) (ticketChange, error) {
		previous := t.Status
		if !domain.IsValidTransition(previous, newStatus) {
			return ticketChange{}, apperrors.NewInvalidTransition(string(previous), string(newStatus))
		}

		domain.ApplyStatusRouting(t, newStatus)
		t.Status = newStatus

		if newStatus == domain.TicketStatusExecutedAwaitingValidation && t.ExecutedAt == nil {
			executedAt := now
			sla := s.writer.slaHours(t.ID, "operation_sla", t.CreatedAt, now)
			t.ExecutedAt = &executedAt
			t.OperationSLA = &sla
		}
		if newStatus == domain.TicketStatusCompleted && t.ValidatedAt == nil {
			validatedAt := now
			t.ValidatedAt = &validatedAt
			if t.ExecutedAt != nil {
				sla := s.writer.slaHours(t.ID, "validation_sla", *t.ExecutedAt, now)
				t.ValidationSLA = &sla
			}
		}

		t.StatusHistory = append(t.StatusHistory, domain.StatusHistoryEntry{
			PreviousStatus: statusPtr(previous),
			NewStatus:      newStatus,
			Actor:          actor,
			Timestamp:      now,
			Comment:        comment,
			Kind:           domain.HistoryKindStatus,
		})
		return ticketChange{Type: events.TypeForStatus(newStatus), Actor: actor, Comment: comment}, nil
	})
}

// GetTicket loads a ticket by id.
func (s *TicketService) GetTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	return s.writer.load(ctx, ticketID)
}

// ListTickets lists tickets visible to viewer.
func (s *TicketService) ListTickets(ctx context.Context, viewer domain.User, filter TicketListFilter) ([]domain.Ticket, error) {
	for _, st := range filter.Statuses {
		if !st.Valid() {
			return nil, apperrors.NewValidationError("unknown status", map[string]any{"status": st})
		}
	}
	for _, p := range filter.Priorities {
		if !p.Valid() {
			return nil, apperrors.NewValidationError("unknown priority", map[string]any{"priority": p})
		}
	}

	repoFilter := repository.TicketFilter{
		Statuses:   filter.Statuses,
		Priorities: filter.Priorities,
		Area:       filter.Area,
		OpenOnly:   filter.OpenOnly,
		SearchTerm: filter.SearchTerm,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	}
	switch viewer.Role {
	case domain.RoleConsultant:
		repoFilter.CreatedBy = &viewer.ID
	case domain.RoleOperator:
		area := viewer.Area
		repoFilter.Area = &area
	}

	tickets, err := s.writer.tickets.ListWithFilter(ctx, repoFilter)
	if err != nil {
		return nil, apperrors.NewPersistenceError("list tickets", err)
	}
	return tickets, nil
}

// LinkTickets records newID as a follow-up of originalID on both tickets in
// one transaction. Failures come back as LinkageError for the caller to log.
func (s *TicketService) LinkTickets(ctx context.Context, originalID, newID string) error {
	if originalID == "" || newID == "" || originalID == newID {
		return apperrors.NewLinkageError(originalID, newID, errors.New("a ticket cannot be linked to itself"))
	}

	var lastErr error
	for attempt := 1; attempt <= maxCommitAttempts; attempt++ {
		original, err := s.writer.tickets.GetByID(ctx, originalID)
		if err != nil {
			return apperrors.NewLinkageError(originalID, newID, err)
		}
		linked, err := s.writer.tickets.GetByID(ctx, newID)
		if err != nil {
			return apperrors.NewLinkageError(originalID, newID, err)
		}
		if linked.OriginalTicketID != nil {
			if *linked.OriginalTicketID == originalID && original.HasLinked(newID) {
				return nil
			}
			return apperrors.NewLinkageError(originalID, newID, errors.New("ticket already linked to another ticket"))
		}

		now := s.now()
		nextOriginal := original.Clone()
		if !nextOriginal.HasLinked(newID) {
			nextOriginal.LinkedTicketIDs = append(nextOriginal.LinkedTicketIDs, newID)
		}
		nextOriginal.UpdatedAt = now
		nextOriginal.Version = original.Version + 1

		nextLinked := linked.Clone()
		nextLinked.OriginalTicketID = &originalID
		nextLinked.IsLinked = true
		nextLinked.UpdatedAt = now
		nextLinked.Version = linked.Version + 1

		err = s.writer.uow.WithTx(ctx, func(txCtx context.Context) error {
			for _, pair := range []struct {
				ticket   *domain.Ticket
				expected int64
			}{{&nextOriginal, original.Version}, {&nextLinked, linked.Version}} {
				if err := s.writer.tickets.Update(txCtx, pair.ticket, pair.expected); err != nil {
					return err
				}
				evt := events.NewTicketEvent(events.EventTicketUpdated, *pair.ticket, "system", "ticket linked", now)
				if _, err := s.writer.outbox.Append(txCtx, &evt); err != nil {
					return err
				}
			}
			return nil
		})
		if errors.Is(err, repository.ErrVersionConflict) {
			lastErr = err
			continue
		}
		if err != nil {
			return apperrors.NewLinkageError(originalID, newID, err)
		}
		return nil
	}
	return apperrors.NewLinkageError(originalID, newID, lastErr)
}

// GetLinkedTickets returns the original ticket and every follow-up of ticketID.
// Dangling references are skipped.
func (s *TicketService) GetLinkedTickets(ctx context.Context, ticketID string) ([]LinkedTicket, error) {
	ticket, err := s.writer.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	var result []LinkedTicket
	fetch := func(id string, relation LinkRelation) error {
		linked, err := s.writer.tickets.GetByID(ctx, id)
		if errors.Is(err, pgx.ErrNoRows) {
			s.logger.Warn("dangling ticket link", zap.String("ticket_id", ticketID), zap.String("linked_id", id))
			return nil
		}
		if err != nil {
			return apperrors.NewPersistenceError("load linked ticket", err)
		}
		result = append(result, LinkedTicket{Ticket: *linked, Relation: relation})
		return nil
	}

	if ticket.OriginalTicketID != nil {
		if err := fetch(*ticket.OriginalTicketID, LinkRelationOriginal); err != nil {
			return nil, err
		}
	}
	for _, id := range ticket.LinkedTicketIDs {
		if err := fetch(id, LinkRelationLinked); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// SLA evaluates ticket against the configured policy at the current instant.
func (s *TicketService) SLA(ticket domain.Ticket) TicketSLA {
	now := s.now()
	return TicketSLA{
		State:          s.policy.Classify(ticket, now),
		ThresholdHours: s.policy.Threshold(ticket.Priority).Hours(),
		ElapsedHours:   domain.HoursBetween(ticket.CreatedAt, now),
		OperationSLA:   ticket.OperationSLA,
		ValidationSLA:  ticket.ValidationSLA,
	}
}

// RecordSLAViolations appends one sla_violated event per open ticket past its
// threshold. Events are keyed per ticket, so repeated sweeps do not re-emit.
func (s *TicketService) RecordSLAViolations(ctx context.Context) (int, error) {
	const pageSize = 200
	now := s.now()
	emitted := 0

	for offset := 0; ; offset += pageSize {
		page, err := s.writer.tickets.ListWithFilter(ctx, repository.TicketFilter{OpenOnly: true, Limit: pageSize, Offset: offset})
		if err != nil {
			return emitted, apperrors.NewPersistenceError("list open tickets", err)
		}
		for _, t := range page {
			if s.policy.Classify(t, now) != domain.SLAViolated {
				continue
			}
			evt := events.NewTicketEvent(events.EventSLAViolated, t, "system", "", now)
			evt.Key = events.SLAEventKey(t.ID)
			appended, err := s.writer.outbox.Append(ctx, &evt)
			if err != nil {
				return emitted, apperrors.NewPersistenceError("append sla event", err)
			}
			if appended {
				emitted++
			}
		}
		if len(page) < pageSize {
			return emitted, nil
		}
	}
}
