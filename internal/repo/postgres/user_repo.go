package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserRepo is the identity directory view this engine consumes: id-by-email
// lookup and basic profile reads. Account lifecycle lives elsewhere.
type UserRepo struct {
	pool *pgxpool.Pool
}

type UserProfile struct {
	UserID string
	Email  string
	Name   string
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

func (r *UserRepo) FindIDByEmail(ctx context.Context, email string) (string, bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", false, fmt.Errorf("email is required")
	}
	if r.pool == nil {
		return "", false, fmt.Errorf("postgres pool is nil")
	}

	var id string
	err := r.pool.QueryRow(ctx, `
SELECT id
FROM users
WHERE lower(email) = $1
LIMIT 1
`, email).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("find user id by email: %w", err)
	}

	return id, true, nil
}

func (r *UserRepo) GetProfile(ctx context.Context, userID string) (UserProfile, bool, error) {
	if userID == "" {
		return UserProfile{}, false, fmt.Errorf("invalid user id")
	}
	if r.pool == nil {
		return UserProfile{}, false, fmt.Errorf("postgres pool is nil")
	}

	var (
		profile UserProfile
		email   *string
		name    *string
	)
	err := r.pool.QueryRow(ctx, `
SELECT id, email, display_name
FROM users
WHERE id = $1
LIMIT 1
`, userID).Scan(&profile.UserID, &email, &name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return UserProfile{}, false, nil
		}
		return UserProfile{}, false, fmt.Errorf("get user profile: %w", err)
	}

	if email != nil {
		profile.Email = *email
	}
	if name != nil {
		profile.Name = *name
	}

	return profile, true, nil
}
