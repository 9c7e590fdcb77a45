package revenuecat

import "time"

// SubscriberResponse is the provider's GET /subscribers/{app_user_id} body.
type SubscriberResponse struct {
	RequestDateMs int64      `json:"request_date_ms"`
	Subscriber    Subscriber `json:"subscriber"`
}

type Subscriber struct {
	OriginalAppUserID    string                   `json:"original_app_user_id"`
	FirstSeen            *time.Time               `json:"first_seen"`
	Entitlements         map[string]Entitlement   `json:"entitlements"`
	Subscriptions        map[string]Subscription  `json:"subscriptions"`
	NonSubscriptions     map[string][]Transaction `json:"non_subscriptions"`
	SubscriberAttributes map[string]Attribute     `json:"subscriber_attributes"`
}

type Entitlement struct {
	ProductIdentifier      string     `json:"product_identifier"`
	PurchaseDate           *time.Time `json:"purchase_date"`
	ExpiresDate            *time.Time `json:"expires_date"`
	GracePeriodExpiresDate *time.Time `json:"grace_period_expires_date"`
}

type Subscription struct {
	ExpiresDate             *time.Time `json:"expires_date"`
	PurchaseDate            *time.Time `json:"purchase_date"`
	GracePeriodExpiresDate  *time.Time `json:"grace_period_expires_date"`
	UnsubscribeDetectedAt   *time.Time `json:"unsubscribe_detected_at"`
	BillingIssuesDetectedAt *time.Time `json:"billing_issues_detected_at"`
	PeriodType              string     `json:"period_type"`
	Store                   string     `json:"store"`
	IsSandbox               bool       `json:"is_sandbox"`
}

type Transaction struct {
	ID           string     `json:"id"`
	PurchaseDate *time.Time `json:"purchase_date"`
	IsSandbox    bool       `json:"is_sandbox"`
}

type Attribute struct {
	Value     string `json:"value"`
	UpdatedAt int64  `json:"updated_at_ms"`
}

// AttributeValue returns the named subscriber attribute, trying the bare key
// and the provider's reserved "$"-prefixed form.
func (s Subscriber) AttributeValue(key string) string {
	if s.SubscriberAttributes == nil {
		return ""
	}
	if attr, ok := s.SubscriberAttributes[key]; ok {
		return attr.Value
	}
	if attr, ok := s.SubscriberAttributes["$"+key]; ok {
		return attr.Value
	}
	return ""
}
