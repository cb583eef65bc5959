package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-workflow/internal/domain"
)

// TicketFilter captures list parameters.
type TicketFilter struct {
	Area            *domain.Area
	CreatedBy       *string
	ResponsibleRole *domain.Role
	Statuses        []domain.TicketStatus
	Priorities      []domain.TicketPriority
	OpenOnly        bool
	SearchTerm      *string
	UpdatedFrom     *time.Time
	Limit           int
	Offset          int
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	// Update writes ticket if the stored version equals expectedVersion.
	Update(ctx context.Context, ticket *domain.Ticket, expectedVersion int64) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, title, description, status, priority, type, area, area_original, responsible_role,
               target_manager_id, created_by, created_by_role, created_at, updated_at, executed_at, validated_at,
               operation_sla, validation_sla, status_history, linked_ticket_ids, original_ticket_id, is_linked, version`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	q, err := querier(ctx, r.pool)
	if err != nil {
		return err
	}
	history, err := json.Marshal(ticket.StatusHistory)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	const query = `
        INSERT INTO tickets (id, title, description, status, priority, type, area, area_original, responsible_role,
            target_manager_id, created_by, created_by_role, created_at, updated_at, executed_at, validated_at,
            operation_sla, validation_sla, status_history, linked_ticket_ids, original_ticket_id, is_linked, version)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)`
	_, err = q.Exec(ctx, query,
		ticket.ID,
		ticket.Title,
		ticket.Description,
		ticket.Status,
		ticket.Priority,
		ticket.Type,
		ticket.Area,
		ticket.AreaOriginal,
		ticket.ResponsibleRole,
		ticket.TargetManagerID,
		ticket.CreatedBy,
		ticket.CreatedByRole,
		ticket.CreatedAt,
		ticket.UpdatedAt,
		ticket.ExecutedAt,
		ticket.ValidatedAt,
		ticket.OperationSLA,
		ticket.ValidationSLA,
		history,
		linkedOrEmpty(ticket.LinkedTicketIDs),
		ticket.OriginalTicketID,
		ticket.IsLinked,
		ticket.Version,
	)
	return err
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket, expectedVersion int64) error {
	q, err := querier(ctx, r.pool)
	if err != nil {
		return err
	}
	history, err := json.Marshal(ticket.StatusHistory)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	const query = `
        UPDATE tickets SET title=$1, description=$2, status=$3, priority=$4, type=$5, area=$6, area_original=$7,
            responsible_role=$8, target_manager_id=$9, updated_at=$10, executed_at=$11, validated_at=$12,
            operation_sla=$13, validation_sla=$14, status_history=$15, linked_ticket_ids=$16,
            original_ticket_id=$17, is_linked=$18, version=$19
        WHERE id=$20 AND version=$21`
	cmd, err := q.Exec(ctx, query,
		ticket.Title,
		ticket.Description,
		ticket.Status,
		ticket.Priority,
		ticket.Type,
		ticket.Area,
		ticket.AreaOriginal,
		ticket.ResponsibleRole,
		ticket.TargetManagerID,
		ticket.UpdatedAt,
		ticket.ExecutedAt,
		ticket.ValidatedAt,
		ticket.OperationSLA,
		ticket.ValidationSLA,
		history,
		linkedOrEmpty(ticket.LinkedTicketIDs),
		ticket.OriginalTicketID,
		ticket.IsLinked,
		ticket.Version,
		ticket.ID,
		expectedVersion,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		var exists bool
		if err := q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM tickets WHERE id=$1)`, ticket.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return pgx.ErrNoRows
		}
		return ErrVersionConflict
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	q, err := querier(ctx, r.pool)
	if err != nil {
		return nil, err
	}
	row := q.QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id=$1`, id)
	ticket, err := scanTicket(row)
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	q, err := querier(ctx, r.pool)
	if err != nil {
		return nil, err
	}
	clauses := []string{"1=1"}
	args := []any{}

	if filter.Area != nil {
		args = append(args, *filter.Area)
		clauses = append(clauses, fmt.Sprintf("area=$%d", len(args)))
	}
	if filter.CreatedBy != nil {
		args = append(args, *filter.CreatedBy)
		clauses = append(clauses, fmt.Sprintf("created_by=$%d", len(args)))
	}
	if filter.ResponsibleRole != nil {
		args = append(args, *filter.ResponsibleRole)
		clauses = append(clauses, fmt.Sprintf("responsible_role=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, pr := range filter.Priorities {
			args = append(args, pr)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("priority IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.OpenOnly {
		clauses = append(clauses, "status NOT IN ('completed','cancelled','rejected')")
	}
	if filter.UpdatedFrom != nil {
		args = append(args, *filter.UpdatedFrom)
		clauses = append(clauses, fmt.Sprintf("updated_at >= $%d", len(args)))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.SearchTerm)) + "%"
		args = append(args, search)
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf("(LOWER(title) LIKE %s OR LOWER(description) LIKE %s)", placeholder, placeholder))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY updated_at DESC, id LIMIT %d OFFSET %d`,
		ticketColumns, strings.Join(clauses, " AND "), limit, offset)

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func scanTicket(row pgx.Row) (domain.Ticket, error) {
	var (
		ticket  domain.Ticket
		history []byte
	)
	if err := row.Scan(
		&ticket.ID,
		&ticket.Title,
		&ticket.Description,
		&ticket.Status,
		&ticket.Priority,
		&ticket.Type,
		&ticket.Area,
		&ticket.AreaOriginal,
		&ticket.ResponsibleRole,
		&ticket.TargetManagerID,
		&ticket.CreatedBy,
		&ticket.CreatedByRole,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.ExecutedAt,
		&ticket.ValidatedAt,
		&ticket.OperationSLA,
		&ticket.ValidationSLA,
		&history,
		&ticket.LinkedTicketIDs,
		&ticket.OriginalTicketID,
		&ticket.IsLinked,
		&ticket.Version,
	); err != nil {
		return domain.Ticket{}, err
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &ticket.StatusHistory); err != nil {
			return domain.Ticket{}, fmt.Errorf("decode history for %s: %w", ticket.ID, err)
		}
	}
	return ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}

func linkedOrEmpty(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
