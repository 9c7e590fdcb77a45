package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mkucukkoc/google-auth-sub001/internal/domain/enums"
	"github.com/mkucukkoc/google-auth-sub001/internal/domain/model"
)

// DecisionLogRepo reads the append-only audit trail. Writes happen inside
// PremiumRepo.ApplyDecision so the log entry and the record commit together.
type DecisionLogRepo struct {
	pool *pgxpool.Pool
}

func NewDecisionLogRepo(pool *pgxpool.Pool) *DecisionLogRepo {
	return &DecisionLogRepo{pool: pool}
}

func (r *DecisionLogRepo) ListByUser(ctx context.Context, userID string, limit int) ([]model.DecisionLogEntry, error) {
	if userID == "" {
		return nil, fmt.Errorf("invalid user id")
	}
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.pool.Query(ctx, `
SELECT
	id,
	user_id,
	premium_before,
	premium_after,
	event_type,
	source,
	origin,
	decision_id,
	created_at
FROM premium_decision_log
WHERE user_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2
`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list decision log: %w", err)
	}
	defer rows.Close()

	var entries []model.DecisionLogEntry
	for rows.Next() {
		var (
			entry  model.DecisionLogEntry
			origin string
		)
		if err := rows.Scan(
			&entry.ID,
			&entry.UserID,
			&entry.PremiumBefore,
			&entry.PremiumAfter,
			&entry.EventType,
			&entry.Source,
			&origin,
			&entry.DecisionID,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan decision log entry: %w", err)
		}
		entry.Origin = enums.SyncOrigin(origin)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate decision log: %w", err)
	}

	return entries, nil
}
