package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/mkucukkoc/google-auth-sub001/internal/domain/model"
)

// StatusCacheRepo caches premium records for status reads. The reconciler
// deletes a user's key every time it commits, so entries never outlive a
// record change by more than a round-trip.
type StatusCacheRepo struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewStatusCacheRepo(client *goredis.Client, ttl time.Duration) *StatusCacheRepo {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &StatusCacheRepo{client: client, ttl: ttl}
}

func statusKey(userID string) string {
	return "premium:status:" + userID
}

func (r *StatusCacheRepo) Get(ctx context.Context, userID string) (model.PremiumRecord, bool, error) {
	if r.client == nil {
		return model.PremiumRecord{}, false, fmt.Errorf("redis client is nil")
	}
	if userID == "" {
		return model.PremiumRecord{}, false, fmt.Errorf("invalid user id")
	}

	raw, err := r.client.Get(ctx, statusKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return model.PremiumRecord{}, false, nil
		}
		return model.PremiumRecord{}, false, fmt.Errorf("get status cache: %w", err)
	}

	var rec model.PremiumRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		// A corrupt entry falls back to the store of record.
		return model.PremiumRecord{}, false, nil
	}

	return rec, true, nil
}

func (r *StatusCacheRepo) Set(ctx context.Context, userID string, rec model.PremiumRecord) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if userID == "" {
		return fmt.Errorf("invalid user id")
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal status cache entry: %w", err)
	}

	if err := r.client.Set(ctx, statusKey(userID), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("set status cache: %w", err)
	}

	return nil
}

func (r *StatusCacheRepo) Invalidate(ctx context.Context, userID string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if userID == "" {
		return fmt.Errorf("invalid user id")
	}

	if err := r.client.Del(ctx, statusKey(userID)).Err(); err != nil {
		return fmt.Errorf("invalidate status cache: %w", err)
	}

	return nil
}
