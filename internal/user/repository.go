package user

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"busbooking/internal/apperr"
	"busbooking/internal/session"
)

// User is a directory record. Credentials live with the identity layer, not here.
type User struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Email     string       `json:"email,omitempty"`
	Role      session.Role `json:"role"`
	Active    bool         `json:"active"`
	CreatedAt time.Time    `json:"createdAt"`
}

// Directory is the read-only view of users the workflow needs.
type Directory interface {
	Get(ctx context.Context, id string) (*User, error)
	CountActive(ctx context.Context, role session.Role) (int, error)
}

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Get(ctx context.Context, id string) (*User, error) {
	const q = `
SELECT id, name, COALESCE(email, ''), role, active, created_at
FROM users
WHERE id = $1
`
	var u User
	if err := r.db.QueryRow(ctx, q, id).Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.Active, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("user", id)
		}
		return nil, err
	}
	return &u, nil
}

func (r *Repository) CountActive(ctx context.Context, role session.Role) (int, error) {
	const q = `SELECT COUNT(*) FROM users WHERE role = $1 AND active`
	var n int
	if err := r.db.QueryRow(ctx, q, string(role)).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
