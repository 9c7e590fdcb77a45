package dto

import (
	"encoding/json"
	"time"
)

type PremiumSyncRequest struct {
	CustomerInfo json.RawMessage `json:"customerInfo"`
	Platform     string          `json:"platform"`
	Source       string          `json:"source"`
	RequestID    string          `json:"requestId"`
}

type PremiumRestoreRequest struct {
	AppUserID string `json:"appUserId"`
	RequestID string `json:"requestId"`
	Source    string `json:"source"`
}

type PremiumRecordResponse struct {
	UserID               string     `json:"userId"`
	Premium              bool       `json:"premium"`
	PremiumStatus        string     `json:"premiumStatus"`
	PremiumExpiresAt     *time.Time `json:"premiumExpiresAt"`
	PremiumStartedAt     *time.Time `json:"premiumStartedAt"`
	PremiumEndedAt       *time.Time `json:"premiumEndedAt"`
	EntitlementProductID *string    `json:"entitlementProductId"`
	Environment          *string    `json:"environment"`
	IsSandboxOnly        bool       `json:"isSandboxOnly"`
	EntitlementIDs       []string   `json:"entitlementIds"`

	LastSyncSource            *string    `json:"lastSyncSource"`
	LastSyncOrigin            *string    `json:"lastSyncOrigin"`
	LastPremiumDecisionID     *string    `json:"lastPremiumDecisionId"`
	LastPremiumDecisionAt     *time.Time `json:"lastPremiumDecisionAt"`
	LastPremiumVerifiedAt     *time.Time `json:"lastPremiumVerifiedAt"`
	LastPremiumWebhookEventAt *time.Time `json:"lastPremiumWebhookEventAt"`

	IsCancelled               bool       `json:"isCancelled"`
	WillCancelAtPeriodEnd     bool       `json:"willCancelAtPeriodEnd"`
	CancellationEffectiveDate *time.Time `json:"cancellationEffectiveDate"`

	BillingIssue           bool       `json:"billingIssue"`
	BillingIssueDetectedAt *time.Time `json:"billingIssueDetectedAt"`
	BillingRecoveredAt     *time.Time `json:"billingRecoveredAt"`
	BillingIssueReason     *string    `json:"billingIssueReason"`

	UpdatedAt time.Time `json:"updatedAt"`
}

type PremiumStatusResponse struct {
	Record *PremiumRecordResponse `json:"record"`
}

type PremiumSyncResponse struct {
	Record         PremiumRecordResponse `json:"record"`
	Applied        bool                  `json:"applied"`
	HasEntitlement bool                  `json:"hasEntitlement"`
}

type DecisionLogEntryResponse struct {
	ID            int64     `json:"id"`
	PremiumBefore bool      `json:"premiumBefore"`
	PremiumAfter  bool      `json:"premiumAfter"`
	EventType     *string   `json:"eventType"`
	Source        string    `json:"source"`
	Origin        string    `json:"origin"`
	DecisionID    string    `json:"decisionId"`
	CreatedAt     time.Time `json:"createdAt"`
}

type DecisionLogResponse struct {
	Decisions []DecisionLogEntryResponse `json:"decisions"`
}
