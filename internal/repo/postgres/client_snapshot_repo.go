package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mkucukkoc/google-auth-sub001/internal/domain/model"
)

// ClientSnapshotRepo stores verbatim client billing reports. Append-only:
// rows are never updated or deleted by the engine.
type ClientSnapshotRepo struct {
	pool *pgxpool.Pool
}

func NewClientSnapshotRepo(pool *pgxpool.Pool) *ClientSnapshotRepo {
	return &ClientSnapshotRepo{pool: pool}
}

func (r *ClientSnapshotRepo) Insert(ctx context.Context, snap model.ClientSnapshot) (int64, error) {
	if snap.UserID == "" {
		return 0, fmt.Errorf("invalid user id")
	}
	if r.pool == nil {
		return 0, fmt.Errorf("postgres pool is nil")
	}

	var id int64
	err := r.pool.QueryRow(ctx, `
INSERT INTO premium_client_snapshots (
	user_id,
	platform,
	source,
	checksum,
	size_bytes,
	payload,
	archive_key,
	created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
RETURNING id
`,
		snap.UserID,
		snap.Platform,
		snap.Source,
		snap.Checksum,
		snap.SizeBytes,
		snap.Payload,
		snap.ArchiveKey,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert client snapshot: %w", err)
	}

	return id, nil
}
