package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-workflow/internal/domain"
	"github.com/spec-kit/ticket-workflow/internal/events"
	"github.com/spec-kit/ticket-workflow/internal/repository"
	apperrors "github.com/spec-kit/ticket-workflow/pkg/util/errorutil"
)

// EscalationService moves tickets to another area or up to a manager.
type EscalationService struct {
	writer *ticketWriter
	users  repository.UserRepository
}

// EscalationDependencies bundles repositories.
type EscalationDependencies struct {
	TicketRepo repository.TicketRepository
	UserRepo   repository.UserRepository
	OutboxRepo repository.OutboxRepository
	UnitOfWork repository.UnitOfWork
	Logger     *zap.Logger
	Clock      func() time.Time
}

// NewEscalationService creates the service.
func NewEscalationService(deps EscalationDependencies) *EscalationService {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EscalationService{
		writer: &ticketWriter{
			tickets: deps.TicketRepo,
			outbox:  deps.OutboxRepo,
			uow:     deps.UnitOfWork,
			logger:  logger,
			now:     clock,
		},
		users: deps.UserRepo,
	}
}

// EscalateToArea hands the ticket to the operators of targetArea.
func (s *EscalationService) EscalateToArea(ctx context.Context, ticketID string, targetArea domain.Area, reason, actor string) (*domain.Ticket, error) {
	reason = strings.TrimSpace(reason)
	if err := validateEscalation(reason, actor); err != nil {
		return nil, err
	}
	if !targetArea.Valid() {
		return nil, apperrors.NewValidationError("unknown area", map[string]any{"area": targetArea})
	}

	return s.writer.apply(ctx, ticketID, func(t *domain.Ticket, now time.Time) (ticketChange, error) {
		previous := t.Status
		if !domain.IsValidTransition(previous, domain.TicketStatusEscalatedToOtherArea) {
			return ticketChange{}, apperrors.NewInvalidTransition(string(previous), string(domain.TicketStatusEscalatedToOtherArea))
		}
		if t.Area == targetArea {
			return ticketChange{}, apperrors.NewValidationError("ticket already belongs to area", map[string]any{"area": targetArea})
		}

		fromArea := t.Area
		t.Area = targetArea
		t.ResponsibleRole = domain.RoleOperator
		t.TargetManagerID = nil
		t.Status = domain.TicketStatusEscalatedToOtherArea
		t.StatusHistory = append(t.StatusHistory, domain.StatusHistoryEntry{
			PreviousStatus: statusPtr(previous),
			NewStatus:      domain.TicketStatusEscalatedToOtherArea,
			Actor:          actor,
			Timestamp:      now,
			Comment:        reason,
			Kind:           domain.HistoryKindEscalation,
			FromArea:       fromArea,
			ToArea:         targetArea,
		})
		return ticketChange{Type: events.EventTicketEscalated, Actor: actor, Comment: reason}, nil
	})
}

// EscalateToManager asks targetManagerID for approval. The target must be a
// manager in the user directory.
func (s *EscalationService) EscalateToManager(ctx context.Context, ticketID, targetManagerID, reason, actor string) (*domain.Ticket, error) {
	reason = strings.TrimSpace(reason)
	if err := validateEscalation(reason, actor); err != nil {
		return nil, err
	}
	if strings.TrimSpace(targetManagerID) == "" {
		return nil, apperrors.NewValidationError("target manager required", nil)
	}

	manager, err := s.users.GetByID(ctx, targetManagerID)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && manager.Role != domain.RoleManager) {
		return nil, apperrors.NewNotFound("manager", map[string]any{"manager_id": targetManagerID})
	}
	if err != nil {
		return nil, apperrors.NewPersistenceError("load manager", err)
	}

	return s.writer.apply(ctx, ticketID, func(t *domain.Ticket, now time.Time) (ticketChange, error) {
		previous := t.Status
		if !domain.IsValidTransition(previous, domain.TicketStatusAwaitingApproval) {
			return ticketChange{}, apperrors.NewInvalidTransition(string(previous), string(domain.TicketStatusAwaitingApproval))
		}

		managerID := manager.ID
		t.ResponsibleRole = domain.RoleManager
		t.TargetManagerID = &managerID
		t.Status = domain.TicketStatusAwaitingApproval
		t.StatusHistory = append(t.StatusHistory, domain.StatusHistoryEntry{
			PreviousStatus:  statusPtr(previous),
			NewStatus:       domain.TicketStatusAwaitingApproval,
			Actor:           actor,
			Timestamp:       now,
			Comment:         reason,
			Kind:            domain.HistoryKindEscalation,
			FromArea:        t.Area,
			ToArea:          t.Area,
			TargetManagerID: managerID,
		})
		return ticketChange{Type: events.EventTicketEscalated, Actor: actor, Comment: reason}, nil
	})
}

func validateEscalation(reason, actor string) error {
	details := map[string]any{}
	if reason == "" {
		details["reason"] = "required"
	}
	if strings.TrimSpace(actor) == "" {
		details["actor"] = "required"
	}
	if len(details) > 0 {
		return apperrors.NewValidationError("invalid escalation", details)
	}
	return nil
}
