package model

import (
	"time"

	"github.com/mkucukkoc/google-auth-sub001/internal/domain/enums"
)

// EntitlementState is the normalized view of a billing payload, independent
// of whether it came from a webhook, a provider fetch or a client report.
type EntitlementState struct {
	Premium        bool
	Status         enums.PremiumStatus
	ExpiresAt      *time.Time
	ProductID      string
	Environment    enums.Environment
	SandboxOnly    bool
	EntitlementIDs []string
}

// PremiumRecord is the authoritative per-user entitlement record.
type PremiumRecord struct {
	UserID               string
	Premium              bool
	PremiumStatus        enums.PremiumStatus
	PremiumExpiresAt     *time.Time
	PremiumStartedAt     *time.Time
	PremiumEndedAt       *time.Time
	EntitlementProductID *string
	Environment          *enums.Environment
	IsSandboxOnly        bool
	EntitlementIDs       []string

	LastSyncSource            *string
	LastSyncOrigin            *enums.SyncOrigin
	LastPremiumDecisionID     *string
	LastPremiumDecisionAt     *time.Time
	LastPremiumVerifiedAt     *time.Time
	LastPremiumWebhookEventAt *time.Time

	IsCancelled               bool
	WillCancelAtPeriodEnd     bool
	CancellationEffectiveDate *time.Time

	BillingIssue           bool
	BillingIssueDetectedAt *time.Time
	BillingRecoveredAt     *time.Time
	BillingIssueReason     *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// DecisionLogEntry is one immutable row of the audit trail, written once per
// applied mutation and never updated.
type DecisionLogEntry struct {
	ID            int64
	UserID        string
	PremiumBefore bool
	PremiumAfter  bool
	EventType     *string
	Source        string
	Origin        enums.SyncOrigin
	DecisionID    string
	CreatedAt     time.Time
}

// ClientSnapshot is a verbatim, size-capped copy of what a client reported.
// Informational only; it never grants or revokes access by itself.
type ClientSnapshot struct {
	ID         int64
	UserID     string
	Platform   string
	Source     string
	Checksum   string
	SizeBytes  int
	Payload    []byte
	ArchiveKey *string
	CreatedAt  time.Time
}

// DeletedAccount records the billing identity of a removed account so a
// subscription transfer can be traced back by email.
type DeletedAccount struct {
	Email          string
	PriorAppUserID string
	DeletedAt      time.Time
}
