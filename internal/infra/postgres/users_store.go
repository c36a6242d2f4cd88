package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/boddenberg/bankcards-api/internal/domain"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// userRow maps the users table onto domain.User.
type userRow struct {
	ID           uuid.UUID `db:"id"`
	Name         string    `db:"name"`
	Email        string    `db:"email"`
	PasswordHash string    `db:"password_hash"`
	Role         string    `db:"role"`
	CreatedAt    time.Time `db:"created_at"`
}

func (r userRow) toDomain() (domain.User, error) {
	role, err := domain.ParseRole(r.Role)
	if err != nil {
		return domain.User{}, fmt.Errorf("user %s has unknown role %q", r.ID, r.Role)
	}
	return domain.User{
		ID:           r.ID,
		Name:         r.Name,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		Role:         role,
		CreatedAt:    r.CreatedAt,
	}, nil
}

const userColumns = `id, name, email, password_hash, role, created_at`

func (r repos) getUser(ctx context.Context, ref, query string, arg any) (*domain.User, error) {
	var row userRow
	if err := sqlx.GetContext(ctx, r.q, &row, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.UserNotFound(ref)
		}
		return nil, fmt.Errorf("query user %s: %w", ref, err)
	}
	u, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r repos) FindUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return r.getUser(ctx, id.String(), `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r repos) FindUserByName(ctx context.Context, name string) (*domain.User, error) {
	return r.getUser(ctx, name, `SELECT `+userColumns+` FROM users WHERE name = $1`, name)
}

func (r repos) ListUsers(ctx context.Context) ([]domain.User, error) {
	var rows []userRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, `SELECT `+userColumns+` FROM users ORDER BY created_at, id`); err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	out := make([]domain.User, 0, len(rows))
	for _, row := range rows {
		u, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

// SaveUser upserts by id; CreatedAt is stamped on first insert.
func (r repos) SaveUser(ctx context.Context, u *domain.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			password_hash = EXCLUDED.password_hash,
			role = EXCLUDED.role`,
		u.ID, u.Name, u.Email, u.PasswordHash, string(u.Role), u.CreatedAt,
	)
	if err != nil {
		return mapError(fmt.Errorf("save user %s: %w", u.ID, err))
	}
	return nil
}

// DeleteUser fails with a conflict while the user still owns cards or history.
func (r repos) DeleteUser(ctx context.Context, id uuid.UUID) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return mapError(fmt.Errorf("delete user %s: %w", id, err))
	}
	return requireAffected(res, domain.UserNotFound(id.String()))
}
