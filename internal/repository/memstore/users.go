package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/ticket-workflow/internal/domain"
)

type userRepo struct {
	s *Store
}

func (r userRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	var out domain.User
	err := r.s.view(ctx, func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return pgx.ErrNoRows
		}
		out = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r userRepo) ListActive(ctx context.Context) ([]domain.User, error) {
	var result []domain.User
	err := r.s.view(ctx, func(st *state) error {
		for _, u := range st.users {
			if u.Active {
				result = append(result, u)
			}
		}
		return nil
	})
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, err
}

// localLocker is a process-local Locker.
type localLocker struct {
	mu   sync.Mutex
	held map[int64]bool
}

func newLocalLocker() *localLocker {
	return &localLocker{held: make(map[int64]bool)}
}

func (l *localLocker) TryLock(_ context.Context, key int64) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, false, nil
	}
	l.held[key] = true
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, true, nil
}
