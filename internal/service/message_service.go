package service

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-workflow/internal/domain"
	"github.com/spec-kit/ticket-workflow/internal/events"
	"github.com/spec-kit/ticket-workflow/internal/repository"
	apperrors "github.com/spec-kit/ticket-workflow/pkg/util/errorutil"
)

// MessageService manages the conversation attached to each ticket.
type MessageService struct {
	writer   *ticketWriter
	messages repository.TicketMessageRepository
}

// MessageDependencies bundles repositories.
type MessageDependencies struct {
	TicketRepo  repository.TicketRepository
	MessageRepo repository.TicketMessageRepository
	OutboxRepo  repository.OutboxRepository
	UnitOfWork  repository.UnitOfWork
	Logger      *zap.Logger
	Clock       func() time.Time
}

// NewMessageService creates the service.
func NewMessageService(deps MessageDependencies) *MessageService {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MessageService{
		writer: &ticketWriter{
			tickets: deps.TicketRepo,
			outbox:  deps.OutboxRepo,
			uow:     deps.UnitOfWork,
			logger:  logger,
			now:     clock,
		},
		messages: deps.MessageRepo,
	}
}

// PostMessage stores a message from sender and appends a message event in the
// same transaction. The ticket itself is not modified.
func (s *MessageService) PostMessage(ctx context.Context, ticketID string, sender domain.User, body string) (*domain.TicketMessage, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperrors.NewValidationError("message body required", nil)
	}
	if n := utf8.RuneCountInString(body); n > domain.MaxMessageLength {
		return nil, apperrors.NewValidationError("message body too long", map[string]any{"length": n, "max": domain.MaxMessageLength})
	}
	if sender.ID == "" {
		return nil, apperrors.NewValidationError("sender required", nil)
	}

	ticket, err := s.writer.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	msg := domain.TicketMessage{
		ID:         uuid.NewString(),
		TicketID:   ticket.ID,
		SenderID:   sender.ID,
		SenderName: sender.Name,
		SenderRole: sender.Role,
		Body:       body,
		CreatedAt:  s.writer.now().UTC(),
	}
	evt := events.NewMessageEvent(*ticket, msg)
	err = s.writer.uow.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.messages.Create(txCtx, &msg); err != nil {
			return err
		}
		_, err := s.writer.outbox.Append(txCtx, &evt)
		return err
	})
	if err != nil {
		return nil, apperrors.NewPersistenceError("store message", err)
	}

	s.writer.logger.Debug("ticket message posted",
		zap.String("ticket_id", ticket.ID),
		zap.String("message_id", msg.ID),
		zap.String("sender_id", sender.ID),
	)
	return &msg, nil
}

// ListMessages returns the conversation of a ticket, oldest first.
func (s *MessageService) ListMessages(ctx context.Context, ticketID string) ([]domain.TicketMessage, error) {
	if _, err := s.writer.load(ctx, ticketID); err != nil {
		return nil, err
	}
	items, err := s.messages.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, apperrors.NewPersistenceError("list messages", err)
	}
	return items, nil
}
