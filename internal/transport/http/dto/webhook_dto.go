package dto

import "github.com/mkucukkoc/google-auth-sub001/internal/infra/revenuecat"

// RevenueCatWebhookRequest is the provider's webhook envelope. Unknown fields
// are tolerated; the provider extends this payload without notice.
type RevenueCatWebhookRequest struct {
	APIVersion string                 `json:"api_version"`
	Event      RevenueCatEvent        `json:"event"`
	Subscriber *revenuecat.Subscriber `json:"subscriber"`
}

type RevenueCatEvent struct {
	Type                      string                          `json:"type"`
	ID                        string                          `json:"id"`
	AppUserID                 string                          `json:"app_user_id"`
	OriginalAppUserID         string                          `json:"original_app_user_id"`
	Aliases                   []string                        `json:"aliases"`
	ProductID                 string                          `json:"product_id"`
	EntitlementID             *string                         `json:"entitlement_id"`
	EntitlementIDs            []string                        `json:"entitlement_ids"`
	PeriodType                string                          `json:"period_type"`
	PurchasedAtMs             int64                           `json:"purchased_at_ms"`
	ExpirationAtMs            int64                           `json:"expiration_at_ms"`
	GracePeriodExpirationAtMs int64                           `json:"grace_period_expiration_at_ms"`
	EventTimestampMs          int64                           `json:"event_timestamp_ms"`
	Environment               string                          `json:"environment"`
	Store                     string                          `json:"store"`
	CancelReason              string                          `json:"cancel_reason"`
	TransferredFrom           []string                        `json:"transferred_from"`
	TransferredTo             []string                        `json:"transferred_to"`
	SubscriberAttributes      map[string]revenuecat.Attribute `json:"subscriber_attributes"`
}
