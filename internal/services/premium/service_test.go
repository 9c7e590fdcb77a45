package premium

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mkucukkoc/google-auth-sub001/internal/domain/enums"
	"github.com/mkucukkoc/google-auth-sub001/internal/domain/model"
	"github.com/mkucukkoc/google-auth-sub001/internal/infra/revenuecat"
	entsvc "github.com/mkucukkoc/google-auth-sub001/internal/services/entitlements"
	"github.com/mkucukkoc/google-auth-sub001/internal/services/identity"
)

// recordStoreStub linearizes ApplyDecision with a mutex, the way the real
// store serializes on the row lock.
type recordStoreStub struct {
	mu      sync.Mutex
	records map[string]model.PremiumRecord
	log     []model.DecisionLogEntry
}

func newRecordStoreStub() *recordStoreStub {
	return &recordStoreStub{records: map[string]model.PremiumRecord{}}
}

func (s *recordStoreStub) Get(_ context.Context, userID string) (model.PremiumRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[userID]
	return rec, ok, nil
}

func (s *recordStoreStub) ApplyDecision(
	_ context.Context,
	userID, decisionID string,
	apply func(prev model.PremiumRecord) (model.PremiumRecord, model.DecisionLogEntry),
) (model.PremiumRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.records[userID]
	if !ok {
		prev = model.PremiumRecord{UserID: userID, PremiumStatus: enums.PremiumStatusUnknown}
	}
	if prev.LastPremiumDecisionID != nil && *prev.LastPremiumDecisionID == decisionID {
		return prev, false, nil
	}
	next, entry := apply(prev)
	s.records[userID] = next
	s.log = append(s.log, entry)
	return next, true, nil
}

type snapshotStoreStub struct {
	snapshots []model.ClientSnapshot
}

func (s *snapshotStoreStub) Insert(_ context.Context, snap model.ClientSnapshot) (int64, error) {
	s.snapshots = append(s.snapshots, snap)
	return int64(len(s.snapshots)), nil
}

type providerStub struct {
	subscribers map[string]revenuecat.Subscriber
	fetched     []string
	aliases     [][2]string
	fetchErr    error
}

func (p *providerStub) FetchSubscriber(_ context.Context, appUserID string) (revenuecat.SubscriberResponse, error) {
	p.fetched = append(p.fetched, appUserID)
	if p.fetchErr != nil {
		return revenuecat.SubscriberResponse{}, p.fetchErr
	}
	sub, ok := p.subscribers[appUserID]
	if !ok {
		return revenuecat.SubscriberResponse{}, revenuecat.ErrSubscriberNotFound
	}
	return revenuecat.SubscriberResponse{Subscriber: sub}, nil
}

func (p *providerStub) CreateAlias(_ context.Context, sourceID, targetID string) error {
	p.aliases = append(p.aliases, [2]string{sourceID, targetID})
	return nil
}

type resolverStub struct {
	userID  string
	err     error
	priorID string
}

func (r *resolverStub) Resolve(_ context.Context, _ identity.Event) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	return r.userID, nil
}

func (r *resolverStub) PriorBillingID(_ context.Context, _, explicit string) (string, bool, error) {
	if explicit != "" {
		return explicit, true, nil
	}
	if r.priorID == "" {
		return "", false, nil
	}
	return r.priorID, true, nil
}

type decisionLogStub struct {
	store *recordStoreStub
}

func (d *decisionLogStub) ListByUser(_ context.Context, userID string, limit int) ([]model.DecisionLogEntry, error) {
	var out []model.DecisionLogEntry
	for _, e := range d.store.log {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type testDeps struct {
	records  *recordStoreStub
	snaps    *snapshotStoreStub
	provider *providerStub
	resolver *resolverStub
	service  *Service
}

func newTestService(t *testing.T, cfg Config) *testDeps {
	t.Helper()

	records := newRecordStoreStub()
	snaps := &snapshotStoreStub{}
	provider := &providerStub{subscribers: map[string]revenuecat.Subscriber{}}
	resolver := &resolverStub{userID: "user-42"}

	svc := NewService(Dependencies{
		Records:   records,
		Snapshots: snaps,
		Decisions: &decisionLogStub{store: records},
		Provider:  provider,
		Resolver:  resolver,
	}, cfg, zap.NewNop())
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	return &testDeps{records: records, snaps: snaps, provider: provider, resolver: resolver, service: svc}
}

func monthlyPurchaseEvent(id string) entsvc.EventData {
	return entsvc.EventData{
		Type:             "INITIAL_PURCHASE",
		ID:               id,
		AppUserID:        "user-42",
		ProductID:        "app.pro.monthly",
		EntitlementIDs:   []string{"premium"},
		ExpirationAtMs:   time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC).UnixMilli(),
		EventTimestampMs: time.Date(2026, 3, 1, 11, 59, 0, 0, time.UTC).UnixMilli(),
		Environment:      "PRODUCTION",
	}
}

func TestProcessWebhookInitialPurchase(t *testing.T) {
	deps := newTestService(t, Config{})

	result, err := deps.service.ProcessWebhook(context.Background(), WebhookInput{Event: monthlyPurchaseEvent("evt-1")})
	if err != nil {
		t.Fatalf("ProcessWebhook: %v", err)
	}
	if result.Duplicate {
		t.Fatal("first delivery flagged duplicate")
	}
	if !result.Record.Premium {
		t.Fatal("expected premium granted")
	}
	if result.Record.PremiumStatus != enums.PremiumStatusMonthly {
		t.Fatalf("status = %q, want monthly", result.Record.PremiumStatus)
	}
	if result.Record.PremiumExpiresAt == nil {
		t.Fatal("expected expiry set")
	}
	if result.Record.IsCancelled {
		t.Fatal("fresh purchase must not be cancelled")
	}
	if result.Record.LastPremiumDecisionID == nil || *result.Record.LastPremiumDecisionID != "evt-1" {
		t.Fatalf("decisionID = %v, want evt-1", result.Record.LastPremiumDecisionID)
	}
	if result.Record.LastPremiumWebhookEventAt == nil {
		t.Fatal("expected webhook event time recorded")
	}
	if len(deps.records.log) != 1 {
		t.Fatalf("decision log entries = %d, want 1", len(deps.records.log))
	}
}

func TestProcessWebhookDuplicateDelivery(t *testing.T) {
	deps := newTestService(t, Config{})

	first, err := deps.service.ProcessWebhook(context.Background(), WebhookInput{Event: monthlyPurchaseEvent("evt-1")})
	if err != nil {
		t.Fatalf("first delivery: %v", err)
	}

	second, err := deps.service.ProcessWebhook(context.Background(), WebhookInput{Event: monthlyPurchaseEvent("evt-1")})
	if err != nil {
		t.Fatalf("second delivery: %v", err)
	}
	if !second.Duplicate {
		t.Fatal("redelivery not flagged duplicate")
	}
	if !reflect.DeepEqual(second.Record, deps.records.records["user-42"]) {
		t.Fatal("duplicate must return the stored record")
	}
	if second.Record.UpdatedAt != first.Record.UpdatedAt {
		t.Fatal("duplicate must not touch the record")
	}
	if len(deps.records.log) != 1 {
		t.Fatalf("decision log entries = %d, want exactly 1", len(deps.records.log))
	}
}

func TestProcessWebhookUnrelatedEntitlementGrantsNothing(t *testing.T) {
	deps := newTestService(t, Config{})

	ev := monthlyPurchaseEvent("evt-1")
	ev.ProductID = "pro_tools_monthly"
	ev.EntitlementIDs = []string{"pro_tools"}

	result, err := deps.service.ProcessWebhook(context.Background(), WebhookInput{Event: ev})
	if err != nil {
		t.Fatalf("ProcessWebhook: %v", err)
	}
	if result.Record.Premium {
		t.Fatal("purchase of an untracked entitlement granted premium")
	}
	if result.Record.PremiumExpiresAt != nil {
		t.Fatalf("expiresAt = %v, want nil", result.Record.PremiumExpiresAt)
	}
	if result.Record.PremiumStatus != enums.PremiumStatusUnknown {
		t.Fatalf("status = %q, want unknown", result.Record.PremiumStatus)
	}
	if result.Record.LastPremiumDecisionID == nil || *result.Record.LastPremiumDecisionID != "evt-1" {
		t.Fatalf("decisionID = %v, want evt-1 recorded for dedup", result.Record.LastPremiumDecisionID)
	}
}

func TestProcessWebhookConcurrentSameEvent(t *testing.T) {
	deps := newTestService(t, Config{})

	const deliveries = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := deps.service.ProcessWebhook(context.Background(), WebhookInput{Event: monthlyPurchaseEvent("evt-1")})
			if err != nil {
				t.Errorf("ProcessWebhook: %v", err)
				return
			}
			if !result.Duplicate {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if applied != 1 {
		t.Fatalf("applied deliveries = %d, want exactly 1", applied)
	}
	if len(deps.records.log) != 1 {
		t.Fatalf("decision log entries = %d, want exactly 1", len(deps.records.log))
	}
	if !deps.records.records["user-42"].Premium {
		t.Fatal("expected premium granted once")
	}
}

func TestProcessWebhookExpirationAfterPurchase(t *testing.T) {
	deps := newTestService(t, Config{})

	if _, err := deps.service.ProcessWebhook(context.Background(), WebhookInput{Event: monthlyPurchaseEvent("evt-1")}); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	priorExpiry := *deps.records.records["user-42"].PremiumExpiresAt

	expiration := entsvc.EventData{
		Type:      "EXPIRATION",
		ID:        "evt-2",
		AppUserID: "user-42",
	}
	result, err := deps.service.ProcessWebhook(context.Background(), WebhookInput{Event: expiration})
	if err != nil {
		t.Fatalf("expiration: %v", err)
	}
	if result.Record.Premium {
		t.Fatal("expected premium revoked")
	}
	if result.Record.PremiumExpiresAt != nil {
		t.Fatal("expected expiry cleared")
	}
	if !result.Record.IsCancelled {
		t.Fatal("expected cancelled flag")
	}
	if result.Record.CancellationEffectiveDate == nil || !result.Record.CancellationEffectiveDate.Equal(priorExpiry) {
		t.Fatalf("effectiveDate = %v, want frozen %v", result.Record.CancellationEffectiveDate, priorExpiry)
	}
}

func TestProcessWebhookUnresolvableIdentity(t *testing.T) {
	deps := newTestService(t, Config{})
	deps.resolver.err = identity.ErrUnresolvable

	_, err := deps.service.ProcessWebhook(context.Background(), WebhookInput{Event: monthlyPurchaseEvent("evt-1")})
	if !errors.Is(err, identity.ErrUnresolvable) {
		t.Fatalf("err = %v, want ErrUnresolvable", err)
	}
	if len(deps.records.records) != 0 {
		t.Fatal("unresolvable event must not create records")
	}
}

func TestProcessWebhookMissingEventID(t *testing.T) {
	deps := newTestService(t, Config{})

	ev := monthlyPurchaseEvent("")
	_, err := deps.service.ProcessWebhook(context.Background(), WebhookInput{Event: ev})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestProcessWebhookSandboxOnlySuppressed(t *testing.T) {
	deps := newTestService(t, Config{EnforceProduction: true})

	ev := monthlyPurchaseEvent("evt-1")
	ev.Environment = "SANDBOX"
	result, err := deps.service.ProcessWebhook(context.Background(), WebhookInput{Event: ev})
	if err != nil {
		t.Fatalf("ProcessWebhook: %v", err)
	}
	if result.Record.Premium {
		t.Fatal("sandbox-only purchase must not grant access when enforcement is on")
	}
}

func TestProcessWebhookPrefersSubscriberRecord(t *testing.T) {
	deps := newTestService(t, Config{})

	expires := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	sub := &revenuecat.Subscriber{
		Entitlements: map[string]revenuecat.Entitlement{
			"premium": {ProductIdentifier: "app.pro.yearly", ExpiresDate: &expires},
		},
		Subscriptions: map[string]revenuecat.Subscription{
			"app.pro.yearly": {ExpiresDate: &expires},
		},
	}

	ev := monthlyPurchaseEvent("evt-1")
	result, err := deps.service.ProcessWebhook(context.Background(), WebhookInput{Event: ev, Subscriber: sub})
	if err != nil {
		t.Fatalf("ProcessWebhook: %v", err)
	}
	if result.Record.PremiumStatus != enums.PremiumStatusAnnual {
		t.Fatalf("status = %q, want annual from subscriber record", result.Record.PremiumStatus)
	}
}

func syncPayload(t *testing.T, ci entsvc.CustomerInfo) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(ci)
	if err != nil {
		t.Fatalf("marshal customer info: %v", err)
	}
	return raw
}

func TestSyncWithoutEntitlementLeavesRecordUnchanged(t *testing.T) {
	deps := newTestService(t, Config{})

	prior := model.PremiumRecord{UserID: "user-42", Premium: true, PremiumStatus: enums.PremiumStatusMonthly}
	deps.records.records["user-42"] = prior

	result, err := deps.service.SyncFromCustomerInfo(context.Background(), "user-42", SyncInput{
		CustomerInfo: syncPayload(t, entsvc.CustomerInfo{}),
	})
	if err != nil {
		t.Fatalf("SyncFromCustomerInfo: %v", err)
	}
	if result.Applied {
		t.Fatal("empty client payload must not apply a decision")
	}
	if result.HasEntitlement {
		t.Fatal("expected no entitlement")
	}
	if !reflect.DeepEqual(result.Record, prior) {
		t.Fatal("prior record must be returned unchanged")
	}
	if len(deps.snaps.snapshots) != 1 {
		t.Fatalf("snapshots = %d, want 1", len(deps.snaps.snapshots))
	}
	if len(deps.provider.fetched) != 0 {
		t.Fatal("inactive claim must not hit the provider")
	}
}

func TestSyncVerifiesWithProvider(t *testing.T) {
	deps := newTestService(t, Config{})

	expires := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	deps.provider.subscribers["user-42"] = revenuecat.Subscriber{
		Entitlements: map[string]revenuecat.Entitlement{
			"premium": {ProductIdentifier: "app.pro.monthly", ExpiresDate: &expires},
		},
		Subscriptions: map[string]revenuecat.Subscription{
			"app.pro.monthly": {ExpiresDate: &expires},
		},
	}

	ci := entsvc.CustomerInfo{
		ActiveSubscriptions: []string{"app.pro.yearly"},
		Entitlements: entsvc.CustomerEntitlements{
			Active: map[string]entsvc.CustomerEntitlement{
				// Client claims yearly; the provider says monthly. The
				// provider wins.
				"premium": {Identifier: "premium", IsActive: true, ProductIdentifier: "app.pro.yearly"},
			},
		},
	}

	result, err := deps.service.SyncFromCustomerInfo(context.Background(), "user-42", SyncInput{
		CustomerInfo: syncPayload(t, ci),
		RequestID:    "req-1",
	})
	if err != nil {
		t.Fatalf("SyncFromCustomerInfo: %v", err)
	}
	if !result.Applied {
		t.Fatal("verified entitlement should apply")
	}
	if result.Record.PremiumStatus != enums.PremiumStatusMonthly {
		t.Fatalf("status = %q, want monthly from provider, not client claim", result.Record.PremiumStatus)
	}
	if len(deps.provider.fetched) != 1 || deps.provider.fetched[0] != "user-42" {
		t.Fatalf("fetched = %v, want [user-42]", deps.provider.fetched)
	}
	if origin := result.Record.LastSyncOrigin; origin == nil || *origin != enums.SyncOriginRevenueCat {
		t.Fatalf("origin = %v, want revenuecat", origin)
	}
}

func TestSyncSubscriberGoneLeavesRecordUnchanged(t *testing.T) {
	deps := newTestService(t, Config{})

	prior := model.PremiumRecord{UserID: "user-42", Premium: true}
	deps.records.records["user-42"] = prior

	ci := entsvc.CustomerInfo{
		Entitlements: entsvc.CustomerEntitlements{
			Active: map[string]entsvc.CustomerEntitlement{
				"premium": {Identifier: "premium", IsActive: true, ProductIdentifier: "app.pro.monthly"},
			},
		},
	}

	result, err := deps.service.SyncFromCustomerInfo(context.Background(), "user-42", SyncInput{
		CustomerInfo: syncPayload(t, ci),
	})
	if err != nil {
		t.Fatalf("SyncFromCustomerInfo: %v", err)
	}
	if result.Applied || result.HasEntitlement {
		t.Fatal("unknown subscriber must not change the record")
	}
	if !reflect.DeepEqual(result.Record, prior) {
		t.Fatal("prior record must be returned unchanged")
	}
}

func TestSyncRepeatedRequestIDIsIdempotent(t *testing.T) {
	deps := newTestService(t, Config{})

	expires := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	deps.provider.subscribers["user-42"] = revenuecat.Subscriber{
		Entitlements: map[string]revenuecat.Entitlement{
			"premium": {ProductIdentifier: "app.pro.monthly", ExpiresDate: &expires},
		},
	}

	ci := entsvc.CustomerInfo{
		Entitlements: entsvc.CustomerEntitlements{
			Active: map[string]entsvc.CustomerEntitlement{
				"premium": {Identifier: "premium", IsActive: true, ProductIdentifier: "app.pro.monthly"},
			},
		},
	}
	in := SyncInput{CustomerInfo: syncPayload(t, ci), RequestID: "req-1"}

	if _, err := deps.service.SyncFromCustomerInfo(context.Background(), "user-42", in); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	second, err := deps.service.SyncFromCustomerInfo(context.Background(), "user-42", in)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if second.Applied {
		t.Fatal("same request id must dedupe")
	}
	if len(deps.records.log) != 1 {
		t.Fatalf("decision log entries = %d, want 1", len(deps.records.log))
	}
}

func TestSyncInvalidPayload(t *testing.T) {
	deps := newTestService(t, Config{})

	_, err := deps.service.SyncFromCustomerInfo(context.Background(), "user-42", SyncInput{
		CustomerInfo: json.RawMessage(`{broken`),
	})
	if !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("err = %v, want ErrInvalidPayload", err)
	}
}

func TestRestoreFollowsRegistryAndAliases(t *testing.T) {
	deps := newTestService(t, Config{})
	deps.resolver.priorID = "old-id"

	expires := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	deps.provider.subscribers["old-id"] = revenuecat.Subscriber{
		Entitlements: map[string]revenuecat.Entitlement{
			"premium": {ProductIdentifier: "app.pro.monthly", ExpiresDate: &expires},
		},
	}

	result, err := deps.service.RestoreFromRevenueCat(context.Background(), "user-42", RestoreInput{RequestID: "req-1"})
	if err != nil {
		t.Fatalf("RestoreFromRevenueCat: %v", err)
	}
	if !result.Applied || !result.Record.Premium {
		t.Fatal("expected entitlement restored")
	}
	if len(deps.provider.aliases) != 1 || deps.provider.aliases[0] != [2]string{"old-id", "user-42"} {
		t.Fatalf("aliases = %v, want old-id aliased to user-42", deps.provider.aliases)
	}
}

func TestRestoreNothingToRestore(t *testing.T) {
	deps := newTestService(t, Config{})

	result, err := deps.service.RestoreFromRevenueCat(context.Background(), "user-42", RestoreInput{})
	if err != nil {
		t.Fatalf("RestoreFromRevenueCat: %v", err)
	}
	if result.Applied || result.HasEntitlement {
		t.Fatal("missing subscriber must be a no-op")
	}
}

func TestRestoreProviderFailurePropagates(t *testing.T) {
	deps := newTestService(t, Config{})
	deps.provider.fetchErr = revenuecat.ErrUnavailable

	_, err := deps.service.RestoreFromRevenueCat(context.Background(), "user-42", RestoreInput{})
	if !errors.Is(err, revenuecat.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestGetStatusMissingRecord(t *testing.T) {
	deps := newTestService(t, Config{})

	_, found, err := deps.service.GetStatus(context.Background(), "user-42")
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if found {
		t.Fatal("expected no record")
	}
}

func TestDecisionsListsAuditTrail(t *testing.T) {
	deps := newTestService(t, Config{DecisionLogLimit: 10})

	if _, err := deps.service.ProcessWebhook(context.Background(), WebhookInput{Event: monthlyPurchaseEvent("evt-1")}); err != nil {
		t.Fatalf("purchase: %v", err)
	}

	entries, err := deps.service.Decisions(context.Background(), "user-42")
	if err != nil {
		t.Fatalf("Decisions: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if entries[0].DecisionID != "evt-1" {
		t.Fatalf("decisionID = %q, want evt-1", entries[0].DecisionID)
	}
	if entries[0].PremiumBefore || !entries[0].PremiumAfter {
		t.Fatal("expected before=false after=true")
	}
}
