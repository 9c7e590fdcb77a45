package entitlements

import "time"

// CustomerInfo is the client SDK's view of a subscriber, as reported by the
// mobile app. It is never trusted on its own; see the premium service.
type CustomerInfo struct {
	OriginalAppUserID   string               `json:"originalAppUserId"`
	ActiveSubscriptions []string             `json:"activeSubscriptions"`
	Entitlements        CustomerEntitlements `json:"entitlements"`
}

type CustomerEntitlements struct {
	Active map[string]CustomerEntitlement `json:"active"`
	All    map[string]CustomerEntitlement `json:"all"`
}

type CustomerEntitlement struct {
	Identifier         string     `json:"identifier"`
	IsActive           bool       `json:"isActive"`
	ProductIdentifier  string     `json:"productIdentifier"`
	ExpirationDate     *time.Time `json:"expirationDate"`
	LatestPurchaseDate *time.Time `json:"latestPurchaseDate"`
	IsSandbox          bool       `json:"isSandbox"`
	PeriodType         string     `json:"periodType"`
}

// EventData carries the webhook event fields the engine consumes, already
// lifted out of the transport envelope.
type EventData struct {
	Type                      string
	ID                        string
	AppUserID                 string
	OriginalAppUserID         string
	Aliases                   []string
	ProductID                 string
	EntitlementIDs            []string
	PeriodType                string
	PurchasedAtMs             int64
	ExpirationAtMs            int64
	GracePeriodExpirationAtMs int64
	EventTimestampMs          int64
	Environment               string
	Store                     string
	CancelReason              string
	TransferredFrom           []string
	TransferredTo             []string
}
