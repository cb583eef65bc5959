package memstore

import (
	"context"
	"sort"

	"github.com/spec-kit/ticket-workflow/internal/domain"
)

type messageRepo struct {
	s *Store
}

func (r messageRepo) Create(ctx context.Context, msg *domain.TicketMessage) error {
	return r.s.view(ctx, func(st *state) error {
		st.messages[msg.TicketID] = append(st.messages[msg.TicketID], *msg)
		return nil
	})
}

func (r messageRepo) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketMessage, error) {
	var out []domain.TicketMessage
	err := r.s.view(ctx, func(st *state) error {
		out = append(out, st.messages[ticketID]...)
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, err
}
