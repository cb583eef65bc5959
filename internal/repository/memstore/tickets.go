package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/ticket-workflow/internal/domain"
	"github.com/spec-kit/ticket-workflow/internal/repository"
)

type ticketRepo struct {
	s *Store
}

func (r ticketRepo) Create(ctx context.Context, ticket *domain.Ticket) error {
	return r.s.view(ctx, func(st *state) error {
		if _, exists := st.tickets[ticket.ID]; exists {
			return fmt.Errorf("memstore: ticket %s already exists", ticket.ID)
		}
		stored := ticket.Clone()
		st.tickets[ticket.ID] = stored
		st.pending = append(st.pending, repository.TicketChange{Kind: repository.ChangeAdded, Ticket: stored.Clone()})
		return nil
	})
}

func (r ticketRepo) Update(ctx context.Context, ticket *domain.Ticket, expectedVersion int64) error {
	return r.s.view(ctx, func(st *state) error {
		current, ok := st.tickets[ticket.ID]
		if !ok {
			return pgx.ErrNoRows
		}
		if current.Version != expectedVersion {
			return repository.ErrVersionConflict
		}
		stored := ticket.Clone()
		st.tickets[ticket.ID] = stored
		st.pending = append(st.pending, repository.TicketChange{Kind: repository.ChangeModified, Ticket: stored.Clone()})
		return nil
	})
}

func (r ticketRepo) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	var out domain.Ticket
	err := r.s.view(ctx, func(st *state) error {
		t, ok := st.tickets[id]
		if !ok {
			return pgx.ErrNoRows
		}
		out = t.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r ticketRepo) ListWithFilter(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	var result []domain.Ticket
	err := r.s.view(ctx, func(st *state) error {
		for _, t := range st.tickets {
			if matches(t, filter) {
				result = append(result, t.Clone())
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].UpdatedAt.Equal(result[j].UpdatedAt) {
			return result[i].UpdatedAt.After(result[j].UpdatedAt)
		}
		return result[i].ID < result[j].ID
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(result) {
		return nil, nil
	}
	result = result[offset:]
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Delete removes a ticket. Only the in-memory store supports it; it exists so
// feed removals can be exercised.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.view(ctx, func(st *state) error {
		t, ok := st.tickets[id]
		if !ok {
			return pgx.ErrNoRows
		}
		delete(st.tickets, id)
		st.pending = append(st.pending, repository.TicketChange{Kind: repository.ChangeRemoved, Ticket: t})
		return nil
	})
}

func matches(t domain.Ticket, f repository.TicketFilter) bool {
	if f.Area != nil && t.Area != *f.Area {
		return false
	}
	if f.CreatedBy != nil && t.CreatedBy != *f.CreatedBy {
		return false
	}
	if f.ResponsibleRole != nil && t.ResponsibleRole != *f.ResponsibleRole {
		return false
	}
	if f.OpenOnly && t.Status.Terminal() {
		return false
	}
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, t.Status) {
		return false
	}
	if len(f.Priorities) > 0 && !containsPriority(f.Priorities, t.Priority) {
		return false
	}
	if f.UpdatedFrom != nil && t.UpdatedAt.Before(*f.UpdatedFrom) {
		return false
	}
	if f.SearchTerm != nil {
		term := strings.ToLower(strings.TrimSpace(*f.SearchTerm))
		if term != "" && !strings.Contains(strings.ToLower(t.Title), term) && !strings.Contains(strings.ToLower(t.Description), term) {
			return false
		}
	}
	return true
}

func containsStatus(list []domain.TicketStatus, s domain.TicketStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsPriority(list []domain.TicketPriority, p domain.TicketPriority) bool {
	for _, v := range list {
		if v == p {
			return true
		}
	}
	return false
}
