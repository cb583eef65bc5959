package memstore

import (
	"context"

	"github.com/spec-kit/ticket-workflow/internal/events"
)

type outboxRepo struct {
	s *Store
}

func (r outboxRepo) Append(ctx context.Context, event *events.Event) (bool, error) {
	appended := false
	err := r.s.view(ctx, func(st *state) error {
		if _, exists := st.outboxKeys[event.Key]; exists {
			return nil
		}
		st.seq++
		event.Seq = st.seq
		stored := *event
		stored.Ticket = event.Ticket.Clone()
		st.outbox = append(st.outbox, stored)
		st.outboxKeys[event.Key] = struct{}{}
		appended = true
		return nil
	})
	return appended, err
}

func (r outboxRepo) ListAfter(ctx context.Context, afterSeq int64, limit int) ([]events.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	var result []events.Event
	err := r.s.view(ctx, func(st *state) error {
		for _, evt := range st.outbox {
			if evt.Seq <= afterSeq {
				continue
			}
			out := evt
			out.Ticket = evt.Ticket.Clone()
			result = append(result, out)
			if len(result) == limit {
				break
			}
		}
		return nil
	})
	return result, err
}

func (r outboxRepo) GetCursor(ctx context.Context, consumer string) (int64, error) {
	var seq int64
	err := r.s.view(ctx, func(st *state) error {
		seq = st.cursors[consumer]
		return nil
	})
	return seq, err
}

func (r outboxRepo) SaveCursor(ctx context.Context, consumer string, seq int64) error {
	return r.s.view(ctx, func(st *state) error {
		if seq > st.cursors[consumer] {
			st.cursors[consumer] = seq
		}
		return nil
	})
}
