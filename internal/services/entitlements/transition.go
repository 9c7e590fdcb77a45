package entitlements

import (
	"time"

	"github.com/mkucukkoc/google-auth-sub001/internal/domain/enums"
	"github.com/mkucukkoc/google-auth-sub001/internal/domain/model"
)

// Mutation is a partial update over a PremiumRecord. Nil pointers leave the
// field untouched; Clear flags reset a nullable field to empty.
type Mutation struct {
	Premium        *bool
	Status         *enums.PremiumStatus
	ProductID      *string
	ExpiresAt      *time.Time
	ClearExpiresAt bool
	StartedAt      *time.Time
	EndedAt        *time.Time
	Environment    *enums.Environment
	SandboxOnly    *bool
	EntitlementIDs []string

	Cancelled                      *bool
	WillCancelAtPeriodEnd          *bool
	CancellationEffectiveDate      *time.Time
	ClearCancellationEffectiveDate bool

	BillingIssue            *bool
	BillingIssueDetectedAt  *time.Time
	BillingRecoveredAt      *time.Time
	BillingIssueReason      *string
	ClearBillingIssueReason bool
}

// Apply merges the mutation into a copy of prev. It never touches fields the
// mutation does not name.
func (m Mutation) Apply(prev model.PremiumRecord) model.PremiumRecord {
	next := prev
	if m.Premium != nil {
		next.Premium = *m.Premium
	}
	if m.Status != nil {
		next.PremiumStatus = *m.Status
	}
	if m.ProductID != nil {
		next.EntitlementProductID = m.ProductID
	}
	if m.ClearExpiresAt {
		next.PremiumExpiresAt = nil
	} else if m.ExpiresAt != nil {
		next.PremiumExpiresAt = m.ExpiresAt
	}
	if m.StartedAt != nil {
		next.PremiumStartedAt = m.StartedAt
	}
	if m.EndedAt != nil {
		next.PremiumEndedAt = m.EndedAt
	}
	if m.Environment != nil {
		next.Environment = m.Environment
	}
	if m.SandboxOnly != nil {
		next.IsSandboxOnly = *m.SandboxOnly
	}
	if m.EntitlementIDs != nil {
		next.EntitlementIDs = m.EntitlementIDs
	}
	if m.Cancelled != nil {
		next.IsCancelled = *m.Cancelled
	}
	if m.WillCancelAtPeriodEnd != nil {
		next.WillCancelAtPeriodEnd = *m.WillCancelAtPeriodEnd
	}
	if m.ClearCancellationEffectiveDate {
		next.CancellationEffectiveDate = nil
	} else if m.CancellationEffectiveDate != nil {
		next.CancellationEffectiveDate = m.CancellationEffectiveDate
	}
	if m.BillingIssue != nil {
		next.BillingIssue = *m.BillingIssue
	}
	if m.BillingIssueDetectedAt != nil {
		next.BillingIssueDetectedAt = m.BillingIssueDetectedAt
	}
	if m.BillingRecoveredAt != nil {
		next.BillingRecoveredAt = m.BillingRecoveredAt
	}
	if m.ClearBillingIssueReason {
		next.BillingIssueReason = nil
	} else if m.BillingIssueReason != nil {
		next.BillingIssueReason = m.BillingIssueReason
	}
	return next
}

const (
	reasonBillingIssue       = "billing_issue"
	reasonGracePeriodExpired = "grace_period_expired"
)

// Transition computes the mutation a billing event implies given the prior
// record and the state extracted from the payload. It is pure: no clock reads,
// no I/O, no writes to its inputs. extracted may be nil when the payload
// carried no entitlement under the configured identifier.
func Transition(eventType enums.EventType, prev model.PremiumRecord, extracted *model.EntitlementState, now time.Time) Mutation {
	switch eventType {
	case enums.EventInitialPurchase, enums.EventNonRenewingPurchase,
		enums.EventInAppPurchase, enums.EventPromotionalOfferRedeemed,
		enums.EventEntitlementGrant:
		// A purchase that does not carry the tracked entitlement must not
		// grant anything.
		if extracted == nil {
			return Mutation{}
		}
		m := grantAccess(prev, extracted, now)
		m.BillingIssue = boolPtr(false)
		m.ClearBillingIssueReason = true
		m.Cancelled = boolPtr(false)
		m.WillCancelAtPeriodEnd = boolPtr(false)
		m.ClearCancellationEffectiveDate = true
		return m
	case enums.EventRenewal:
		if extracted == nil {
			return Mutation{}
		}
		m := refreshAccess(extracted)
		m.BillingIssue = boolPtr(false)
		m.ClearBillingIssueReason = true
		return m
	case enums.EventProductChange:
		if extracted == nil {
			return Mutation{}
		}
		return refreshAccess(extracted)
	case enums.EventCancellation:
		return markCancelled(prev, extracted)
	case enums.EventUncancellation:
		return Mutation{
			Cancelled:                      boolPtr(false),
			WillCancelAtPeriodEnd:          boolPtr(false),
			ClearCancellationEffectiveDate: true,
		}
	case enums.EventBillingIssue:
		return Mutation{
			BillingIssue:           boolPtr(true),
			BillingIssueDetectedAt: &now,
			BillingIssueReason:     strPtr(reasonBillingIssue),
		}
	case enums.EventBillingRecovery:
		return Mutation{
			BillingIssue:            boolPtr(false),
			BillingRecoveredAt:      &now,
			ClearBillingIssueReason: true,
		}
	case enums.EventExpiration:
		m := endAccess(now)
		m.Cancelled = boolPtr(true)
		m.WillCancelAtPeriodEnd = boolPtr(false)
		switch {
		case prev.PremiumExpiresAt != nil:
			m.CancellationEffectiveDate = prev.PremiumExpiresAt
		case extracted != nil && extracted.ExpiresAt != nil:
			m.CancellationEffectiveDate = extracted.ExpiresAt
		}
		return m
	case enums.EventGracePeriodExpired:
		m := endAccess(now)
		m.BillingIssue = boolPtr(true)
		m.BillingIssueDetectedAt = &now
		m.BillingIssueReason = strPtr(reasonGracePeriodExpired)
		return m
	case enums.EventEntitlementRevoke:
		return Mutation{
			Premium:        boolPtr(false),
			ClearExpiresAt: true,
			EndedAt:        &now,
			EntitlementIDs: []string{},
		}
	case enums.EventTransfer:
		return mirror(prev, extracted, now)
	default:
		return mirror(prev, extracted, now)
	}
}

// DirectApply mirrors a provider-verified state wholesale, used by the sync
// and restore paths where no event type drives the change.
func DirectApply(prev model.PremiumRecord, extracted model.EntitlementState, now time.Time) Mutation {
	return mirror(prev, &extracted, now)
}

// grantAccess grants exactly what was extracted: an already-lapsed or
// suppressed state does not turn into access just because the event is a
// purchase.
func grantAccess(prev model.PremiumRecord, ex *model.EntitlementState, now time.Time) Mutation {
	m := Mutation{Premium: boolPtr(ex.Premium)}
	applyState(&m, ex)
	if ex.Premium && prev.PremiumStartedAt == nil {
		m.StartedAt = &now
	}
	return m
}

func refreshAccess(ex *model.EntitlementState) Mutation {
	m := Mutation{Premium: boolPtr(ex.Premium)}
	applyState(&m, ex)
	return m
}

func markCancelled(prev model.PremiumRecord, ex *model.EntitlementState) Mutation {
	m := Mutation{
		Cancelled:             boolPtr(true),
		WillCancelAtPeriodEnd: boolPtr(true),
	}
	switch {
	case ex != nil && ex.ExpiresAt != nil:
		m.CancellationEffectiveDate = ex.ExpiresAt
	case prev.PremiumExpiresAt != nil:
		m.CancellationEffectiveDate = prev.PremiumExpiresAt
	}
	return m
}

// endAccess revokes access and empties the active entitlement set; nothing
// under the tracked identifier is active once the record is revoked.
func endAccess(now time.Time) Mutation {
	return Mutation{
		Premium:        boolPtr(false),
		ClearExpiresAt: true,
		EndedAt:        &now,
		EntitlementIDs: []string{},
	}
}

// mirror adopts the extracted state verbatim. Transfers, unrecognized event
// types and the sync path all reduce to this.
func mirror(prev model.PremiumRecord, ex *model.EntitlementState, now time.Time) Mutation {
	if ex == nil {
		return Mutation{}
	}
	m := Mutation{Premium: boolPtr(ex.Premium)}
	applyState(&m, ex)
	if ex.Premium && prev.PremiumStartedAt == nil {
		m.StartedAt = &now
	}
	if !ex.Premium && prev.Premium {
		m.EndedAt = &now
	}
	return m
}

func applyState(m *Mutation, ex *model.EntitlementState) {
	m.Status = statusPtr(ex.Status)
	if ex.ProductID != "" {
		m.ProductID = strPtr(ex.ProductID)
	}
	if ex.ExpiresAt != nil {
		m.ExpiresAt = ex.ExpiresAt
	} else {
		m.ClearExpiresAt = true
	}
	env := ex.Environment
	m.Environment = &env
	m.SandboxOnly = boolPtr(ex.SandboxOnly)
	if ex.EntitlementIDs != nil {
		m.EntitlementIDs = ex.EntitlementIDs
	}
}

func boolPtr(v bool) *bool    { return &v }
func strPtr(v string) *string { return &v }

func statusPtr(v enums.PremiumStatus) *enums.PremiumStatus { return &v }
