package enums

import "strings"

// EventType is the provider's billing lifecycle event vocabulary.
type EventType string

const (
	EventInitialPurchase          EventType = "INITIAL_PURCHASE"
	EventRenewal                  EventType = "RENEWAL"
	EventExpiration               EventType = "EXPIRATION"
	EventGracePeriodExpired       EventType = "GRACE_PERIOD_EXPIRED"
	EventBillingIssue             EventType = "BILLING_ISSUE"
	EventBillingRecovery          EventType = "BILLING_RECOVERY"
	EventCancellation             EventType = "CANCELLATION"
	EventUncancellation           EventType = "UNCANCELLATION"
	EventProductChange            EventType = "PRODUCT_CHANGE"
	EventEntitlementGrant         EventType = "ENTITLEMENT_GRANT"
	EventInAppPurchase            EventType = "IN_APP_PURCHASE"
	EventNonRenewingPurchase      EventType = "NON_RENEWING_PURCHASE"
	EventPromotionalOfferRedeemed EventType = "PROMOTIONAL_OFFER_REDEEMED"
	EventTransfer                 EventType = "TRANSFER"
	EventEntitlementRevoke        EventType = "ENTITLEMENT_REVOKE"
)

func ParseEventType(raw string) EventType {
	return EventType(strings.ToUpper(strings.TrimSpace(raw)))
}

func (e EventType) Known() bool {
	switch e {
	case EventInitialPurchase, EventRenewal, EventExpiration,
		EventGracePeriodExpired, EventBillingIssue, EventBillingRecovery,
		EventCancellation, EventUncancellation, EventProductChange,
		EventEntitlementGrant, EventInAppPurchase, EventNonRenewingPurchase,
		EventPromotionalOfferRedeemed, EventTransfer, EventEntitlementRevoke:
		return true
	default:
		return false
	}
}
