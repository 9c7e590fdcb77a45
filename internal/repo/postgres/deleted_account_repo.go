package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mkucukkoc/google-auth-sub001/internal/domain/model"
)

// DeletedAccountRepo is the registry of billing identities left behind by
// removed accounts, consulted when a subscription transfers to a new account.
type DeletedAccountRepo struct {
	pool *pgxpool.Pool
}

func NewDeletedAccountRepo(pool *pgxpool.Pool) *DeletedAccountRepo {
	return &DeletedAccountRepo{pool: pool}
}

func (r *DeletedAccountRepo) FindLatestByEmail(ctx context.Context, email string) (model.DeletedAccount, bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return model.DeletedAccount{}, false, fmt.Errorf("email is required")
	}
	if r.pool == nil {
		return model.DeletedAccount{}, false, fmt.Errorf("postgres pool is nil")
	}

	var acc model.DeletedAccount
	err := r.pool.QueryRow(ctx, `
SELECT email, prior_app_user_id, deleted_at
FROM deleted_accounts
WHERE lower(email) = $1
ORDER BY deleted_at DESC
LIMIT 1
`, email).Scan(&acc.Email, &acc.PriorAppUserID, &acc.DeletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.DeletedAccount{}, false, nil
		}
		return model.DeletedAccount{}, false, fmt.Errorf("find deleted account by email: %w", err)
	}

	return acc, true, nil
}
