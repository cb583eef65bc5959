package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-workflow/internal/domain"
)

// UserRepository reads the user directory. Accounts are owned by another
// system, so there are no write operations here.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	ListActive(ctx context.Context) ([]domain.User, error)
}

type userRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

const userColumns = `id, name, email, role, area, sound_enabled, system_alerts_enabled, email_enabled, active`

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	q, err := querier(ctx, r.pool)
	if err != nil {
		return nil, err
	}
	user, err := scanUser(q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id))
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) ListActive(ctx context.Context) ([]domain.User, error) {
	q, err := querier(ctx, r.pool)
	if err != nil {
		return nil, err
	}
	rows, err := q.Query(ctx, `SELECT `+userColumns+` FROM users WHERE active ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, user)
	}
	return result, rows.Err()
}

func scanUser(row pgx.Row) (domain.User, error) {
	var user domain.User
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.Role,
		&user.Area,
		&user.SoundEnabled,
		&user.SystemAlertsEnabled,
		&user.EmailEnabled,
		&user.Active,
	)
	return user, err
}
