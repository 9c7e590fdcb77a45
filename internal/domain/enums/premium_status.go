package enums

import "strings"

type PremiumStatus string

const (
	PremiumStatusMonthly  PremiumStatus = "monthly"
	PremiumStatusAnnual   PremiumStatus = "annual"
	PremiumStatusLifetime PremiumStatus = "lifetime"
	PremiumStatusUnknown  PremiumStatus = "unknown"
)

type Environment string

const (
	EnvironmentProduction Environment = "production"
	EnvironmentSandbox    Environment = "sandbox"
	EnvironmentUnknown    Environment = "unknown"
)

// ParseEnvironment normalizes a provider environment label. Unrecognized
// values map to unknown rather than failing the event.
func ParseEnvironment(s string) Environment {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "PRODUCTION":
		return EnvironmentProduction
	case "SANDBOX":
		return EnvironmentSandbox
	default:
		return EnvironmentUnknown
	}
}

type SyncOrigin string

const (
	SyncOriginClient            SyncOrigin = "client"
	SyncOriginRevenueCat        SyncOrigin = "revenuecat"
	SyncOriginRevenueCatWebhook SyncOrigin = "revenuecat_webhook"
)
