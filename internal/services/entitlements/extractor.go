package entitlements

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/mkucukkoc/google-auth-sub001/internal/domain/enums"
	"github.com/mkucukkoc/google-auth-sub001/internal/domain/model"
	"github.com/mkucukkoc/google-auth-sub001/internal/infra/revenuecat"
)

// ErrEntitlementNotFound means the payload carries no entitlement under the
// configured identifier, active or expired.
var ErrEntitlementNotFound = errors.New("entitlement not found")

// StatusForProduct classifies a plan identifier by substring. Lifetime wins
// over period markers so "pro_lifetime_2024" is not mistaken for an annual.
func StatusForProduct(productID string) enums.PremiumStatus {
	p := strings.ToLower(productID)
	switch {
	case p == "":
		return enums.PremiumStatusUnknown
	case strings.Contains(p, "lifetime"):
		return enums.PremiumStatusLifetime
	case strings.Contains(p, "year"), strings.Contains(p, "annual"), strings.Contains(p, "12"):
		return enums.PremiumStatusAnnual
	case strings.Contains(p, "month"), strings.Contains(p, "30"):
		return enums.PremiumStatusMonthly
	default:
		return enums.PremiumStatusUnknown
	}
}

// statusForProducts picks a status across the entitlement's own product plus
// any related plan identifiers, preferring a recognised recurring plan.
func statusForProducts(primary string, related []string) enums.PremiumStatus {
	candidates := append([]string{primary}, related...)
	for _, c := range candidates {
		if s := StatusForProduct(c); s == enums.PremiumStatusMonthly || s == enums.PremiumStatusAnnual {
			return s
		}
	}
	for _, c := range candidates {
		if s := StatusForProduct(c); s != enums.PremiumStatusUnknown {
			return s
		}
	}
	return enums.PremiumStatusUnknown
}

func activeAt(expires, grace *time.Time, now time.Time) bool {
	if expires == nil {
		return true
	}
	if expires.After(now) {
		return true
	}
	return grace != nil && grace.After(now)
}

// FromSubscriber extracts the entitlement state from a provider subscriber
// record, the authoritative source.
func FromSubscriber(sub revenuecat.Subscriber, entitlementID string, now time.Time) (model.EntitlementState, error) {
	ent, ok := sub.Entitlements[entitlementID]
	if !ok {
		return model.EntitlementState{}, ErrEntitlementNotFound
	}

	active := activeAt(ent.ExpiresDate, ent.GracePeriodExpiresDate, now)

	productIDs := make([]string, 0, len(sub.Subscriptions))
	sandboxSeen, productionSeen := false, false
	for id, s := range sub.Subscriptions {
		if s.IsSandbox {
			sandboxSeen = true
		} else {
			productionSeen = true
		}
		if activeAt(s.ExpiresDate, s.GracePeriodExpiresDate, now) {
			productIDs = append(productIDs, id)
		}
	}
	sort.Strings(productIDs)

	entitled := make([]string, 0, len(sub.Entitlements))
	for id, e := range sub.Entitlements {
		if activeAt(e.ExpiresDate, e.GracePeriodExpiresDate, now) {
			entitled = append(entitled, id)
		}
	}
	sort.Strings(entitled)

	env := enums.EnvironmentUnknown
	switch {
	case productionSeen:
		env = enums.EnvironmentProduction
	case sandboxSeen:
		env = enums.EnvironmentSandbox
	}

	return model.EntitlementState{
		Premium:        active,
		Status:         statusForProducts(ent.ProductIdentifier, productIDs),
		ExpiresAt:      cloneTime(ent.ExpiresDate),
		ProductID:      ent.ProductIdentifier,
		Environment:    env,
		SandboxOnly:    sandboxSeen && !productionSeen,
		EntitlementIDs: entitled,
	}, nil
}

// FromEvent extracts the entitlement state carried by the webhook event
// itself, used when no subscriber record accompanies the event.
func FromEvent(ev EventData, entitlementID string, now time.Time) (model.EntitlementState, error) {
	if len(ev.EntitlementIDs) == 0 && ev.ProductID == "" {
		return model.EntitlementState{}, ErrEntitlementNotFound
	}
	if len(ev.EntitlementIDs) > 0 && !containsString(ev.EntitlementIDs, entitlementID) {
		return model.EntitlementState{}, ErrEntitlementNotFound
	}

	expires := msToTime(ev.ExpirationAtMs)
	grace := msToTime(ev.GracePeriodExpirationAtMs)

	env := enums.ParseEnvironment(ev.Environment)

	return model.EntitlementState{
		Premium:        activeAt(expires, grace, now),
		Status:         StatusForProduct(ev.ProductID),
		ExpiresAt:      expires,
		ProductID:      ev.ProductID,
		Environment:    env,
		SandboxOnly:    env == enums.EnvironmentSandbox,
		EntitlementIDs: append([]string(nil), ev.EntitlementIDs...),
	}, nil
}

// FromCustomerInfo extracts the entitlement state the client claims. Expired
// entries under "all" are still extracted so callers can see a lapsed state.
func FromCustomerInfo(ci CustomerInfo, entitlementID string, now time.Time) (model.EntitlementState, error) {
	ent, ok := ci.Entitlements.Active[entitlementID]
	if !ok {
		ent, ok = ci.Entitlements.All[entitlementID]
	}
	if !ok {
		return model.EntitlementState{}, ErrEntitlementNotFound
	}

	// IsActive is the client's own verdict; a missing expiry only implies
	// activity when the entry says so, otherwise a lapsed non-expiring
	// grant would read as live.
	active := ent.IsActive
	if !active && ent.ExpirationDate != nil {
		active = ent.ExpirationDate.After(now)
	}

	env := enums.EnvironmentProduction
	if ent.IsSandbox {
		env = enums.EnvironmentSandbox
	}

	return model.EntitlementState{
		Premium:        active,
		Status:         statusForProducts(ent.ProductIdentifier, ci.ActiveSubscriptions),
		ExpiresAt:      cloneTime(ent.ExpirationDate),
		ProductID:      ent.ProductIdentifier,
		Environment:    env,
		SandboxOnly:    ent.IsSandbox,
		EntitlementIDs: activeEntitlementIDs(ci),
	}, nil
}

func activeEntitlementIDs(ci CustomerInfo) []string {
	ids := make([]string, 0, len(ci.Entitlements.Active))
	for id := range ci.Entitlements.Active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func msToTime(ms int64) *time.Time {
	if ms <= 0 {
		return nil
	}
	t := time.UnixMilli(ms).UTC()
	return &t
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
