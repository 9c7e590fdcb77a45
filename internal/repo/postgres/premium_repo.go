package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mkucukkoc/google-auth-sub001/internal/domain/enums"
	"github.com/mkucukkoc/google-auth-sub001/internal/domain/model"
)

type PremiumRepo struct {
	pool *pgxpool.Pool
}

func NewPremiumRepo(pool *pgxpool.Pool) *PremiumRepo {
	return &PremiumRepo{pool: pool}
}

const premiumColumns = `
	user_id,
	premium,
	premium_status,
	premium_expires_at,
	premium_started_at,
	premium_ended_at,
	entitlement_product_id,
	environment,
	is_sandbox_only,
	entitlement_ids,
	last_sync_source,
	last_sync_origin,
	last_premium_decision_id,
	last_premium_decision_at,
	last_premium_verified_at,
	last_premium_webhook_event_at,
	is_cancelled,
	will_cancel_at_period_end,
	cancellation_effective_date,
	billing_issue,
	billing_issue_detected_at,
	billing_recovered_at,
	billing_issue_reason,
	created_at,
	updated_at`

func (r *PremiumRepo) Get(ctx context.Context, userID string) (model.PremiumRecord, bool, error) {
	if userID == "" {
		return model.PremiumRecord{}, false, fmt.Errorf("invalid user id")
	}
	if r.pool == nil {
		return model.PremiumRecord{}, false, fmt.Errorf("postgres pool is nil")
	}

	row := r.pool.QueryRow(ctx, `
SELECT `+premiumColumns+`
FROM premium_records
WHERE user_id = $1
LIMIT 1
`, userID)

	rec, err := scanPremiumRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.PremiumRecord{}, false, nil
		}
		return model.PremiumRecord{}, false, fmt.Errorf("get premium record: %w", err)
	}

	return rec, true, nil
}

// ApplyDecision runs one reconciliation as a single transaction: it locks the
// user's record (creating an empty one when absent), short-circuits when
// decisionID was already applied, and otherwise persists the record returned
// by apply together with its decision log entry. The second return value is
// false for the duplicate-delivery short-circuit.
func (r *PremiumRepo) ApplyDecision(
	ctx context.Context,
	userID, decisionID string,
	apply func(prev model.PremiumRecord) (model.PremiumRecord, model.DecisionLogEntry),
) (model.PremiumRecord, bool, error) {
	if userID == "" || decisionID == "" {
		return model.PremiumRecord{}, false, fmt.Errorf("user id and decision id are required")
	}
	if apply == nil {
		return model.PremiumRecord{}, false, fmt.Errorf("apply func is required")
	}

	var (
		result  model.PremiumRecord
		applied bool
	)

	err := WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
INSERT INTO premium_records (user_id, created_at, updated_at)
VALUES ($1, NOW(), NOW())
ON CONFLICT (user_id) DO NOTHING
`, userID); err != nil {
			return fmt.Errorf("ensure premium record row: %w", err)
		}

		row := tx.QueryRow(ctx, `
SELECT `+premiumColumns+`
FROM premium_records
WHERE user_id = $1
FOR UPDATE
`, userID)

		prev, err := scanPremiumRecord(row)
		if err != nil {
			return fmt.Errorf("lock premium record: %w", err)
		}

		if prev.LastPremiumDecisionID != nil && *prev.LastPremiumDecisionID == decisionID {
			result = prev
			applied = false
			return nil
		}

		next, entry := apply(prev)
		next.UserID = userID

		if err := updatePremiumRecord(ctx, tx, next); err != nil {
			return err
		}

		// The audit row rides the same transaction as the record update.
		if _, err := tx.Exec(ctx, `
INSERT INTO premium_decision_log (
	user_id,
	premium_before,
	premium_after,
	event_type,
	source,
	origin,
	decision_id,
	created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`,
			entry.UserID,
			entry.PremiumBefore,
			entry.PremiumAfter,
			entry.EventType,
			entry.Source,
			string(entry.Origin),
			entry.DecisionID,
			entry.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert decision log entry: %w", err)
		}

		result = next
		applied = true
		return nil
	})
	if err != nil {
		return model.PremiumRecord{}, false, err
	}

	return result, applied, nil
}

func updatePremiumRecord(ctx context.Context, tx pgx.Tx, rec model.PremiumRecord) error {
	var environment *string
	if rec.Environment != nil {
		v := string(*rec.Environment)
		environment = &v
	}
	var origin *string
	if rec.LastSyncOrigin != nil {
		v := string(*rec.LastSyncOrigin)
		origin = &v
	}

	_, err := tx.Exec(ctx, `
UPDATE premium_records
SET
	premium = $2,
	premium_status = $3,
	premium_expires_at = $4,
	premium_started_at = $5,
	premium_ended_at = $6,
	entitlement_product_id = $7,
	environment = $8,
	is_sandbox_only = $9,
	entitlement_ids = $10,
	last_sync_source = $11,
	last_sync_origin = $12,
	last_premium_decision_id = $13,
	last_premium_decision_at = $14,
	last_premium_verified_at = $15,
	last_premium_webhook_event_at = $16,
	is_cancelled = $17,
	will_cancel_at_period_end = $18,
	cancellation_effective_date = $19,
	billing_issue = $20,
	billing_issue_detected_at = $21,
	billing_recovered_at = $22,
	billing_issue_reason = $23,
	updated_at = NOW()
WHERE user_id = $1
`,
		rec.UserID,
		rec.Premium,
		string(rec.PremiumStatus),
		rec.PremiumExpiresAt,
		rec.PremiumStartedAt,
		rec.PremiumEndedAt,
		rec.EntitlementProductID,
		environment,
		rec.IsSandboxOnly,
		rec.EntitlementIDs,
		rec.LastSyncSource,
		origin,
		rec.LastPremiumDecisionID,
		rec.LastPremiumDecisionAt,
		rec.LastPremiumVerifiedAt,
		rec.LastPremiumWebhookEventAt,
		rec.IsCancelled,
		rec.WillCancelAtPeriodEnd,
		rec.CancellationEffectiveDate,
		rec.BillingIssue,
		rec.BillingIssueDetectedAt,
		rec.BillingRecoveredAt,
		rec.BillingIssueReason,
	)
	if err != nil {
		return fmt.Errorf("update premium record: %w", err)
	}

	return nil
}

func scanPremiumRecord(row pgx.Row) (model.PremiumRecord, error) {
	var (
		rec         model.PremiumRecord
		status      *string
		environment *string
		origin      *string
		createdAt   *time.Time
		updatedAt   *time.Time
	)

	err := row.Scan(
		&rec.UserID,
		&rec.Premium,
		&status,
		&rec.PremiumExpiresAt,
		&rec.PremiumStartedAt,
		&rec.PremiumEndedAt,
		&rec.EntitlementProductID,
		&environment,
		&rec.IsSandboxOnly,
		&rec.EntitlementIDs,
		&rec.LastSyncSource,
		&origin,
		&rec.LastPremiumDecisionID,
		&rec.LastPremiumDecisionAt,
		&rec.LastPremiumVerifiedAt,
		&rec.LastPremiumWebhookEventAt,
		&rec.IsCancelled,
		&rec.WillCancelAtPeriodEnd,
		&rec.CancellationEffectiveDate,
		&rec.BillingIssue,
		&rec.BillingIssueDetectedAt,
		&rec.BillingRecoveredAt,
		&rec.BillingIssueReason,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return model.PremiumRecord{}, err
	}

	if status != nil {
		rec.PremiumStatus = enums.PremiumStatus(*status)
	}
	if environment != nil {
		env := enums.Environment(*environment)
		rec.Environment = &env
	}
	if origin != nil {
		o := enums.SyncOrigin(*origin)
		rec.LastSyncOrigin = &o
	}
	if createdAt != nil {
		rec.CreatedAt = *createdAt
	}
	if updatedAt != nil {
		rec.UpdatedAt = *updatedAt
	}

	return rec, nil
}
