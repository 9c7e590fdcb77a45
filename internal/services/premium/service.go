package premium

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mkucukkoc/google-auth-sub001/internal/domain/enums"
	"github.com/mkucukkoc/google-auth-sub001/internal/domain/model"
	"github.com/mkucukkoc/google-auth-sub001/internal/infra/revenuecat"
	"github.com/mkucukkoc/google-auth-sub001/internal/services/entitlements"
	"github.com/mkucukkoc/google-auth-sub001/internal/services/identity"
)

const (
	sourceWebhook = "webhook"
	sourceSync    = "sync"
	sourceRestore = "restore"
)

var (
	ErrValidation     = errors.New("validation error")
	ErrInvalidPayload = errors.New("invalid client payload")
)

type RecordStore interface {
	Get(ctx context.Context, userID string) (model.PremiumRecord, bool, error)
	ApplyDecision(
		ctx context.Context,
		userID, decisionID string,
		apply func(prev model.PremiumRecord) (model.PremiumRecord, model.DecisionLogEntry),
	) (model.PremiumRecord, bool, error)
}

type SnapshotStore interface {
	Insert(ctx context.Context, snap model.ClientSnapshot) (int64, error)
}

type DecisionLog interface {
	ListByUser(ctx context.Context, userID string, limit int) ([]model.DecisionLogEntry, error)
}

type ProviderClient interface {
	FetchSubscriber(ctx context.Context, appUserID string) (revenuecat.SubscriberResponse, error)
	CreateAlias(ctx context.Context, sourceID, targetID string) error
}

type IdentityResolver interface {
	Resolve(ctx context.Context, ev identity.Event) (string, error)
	PriorBillingID(ctx context.Context, userID, explicit string) (string, bool, error)
}

type StatusCache interface {
	Get(ctx context.Context, userID string) (model.PremiumRecord, bool, error)
	Set(ctx context.Context, userID string, rec model.PremiumRecord) error
	Invalidate(ctx context.Context, userID string) error
}

type SnapshotArchiver interface {
	Archive(ctx context.Context, key string, payload []byte) error
}

// Config is the reconciliation policy knobs, copied from the premium section
// of the application config.
type Config struct {
	EntitlementID     string
	EnforceProduction bool
	SnapshotMaxBytes  int
	DecisionLogLimit  int
}

type Service struct {
	records   RecordStore
	snapshots SnapshotStore
	decisions DecisionLog
	provider  ProviderClient
	resolver  IdentityResolver
	cache     StatusCache
	archive   SnapshotArchiver
	cfg       Config
	log       *zap.Logger
	now       func() time.Time
}

type Dependencies struct {
	Records   RecordStore
	Snapshots SnapshotStore
	Decisions DecisionLog
	Provider  ProviderClient
	Resolver  IdentityResolver
	Cache     StatusCache
	Archive   SnapshotArchiver
}

func NewService(deps Dependencies, cfg Config, log *zap.Logger) *Service {
	if cfg.EntitlementID == "" {
		cfg.EntitlementID = "premium"
	}
	if cfg.SnapshotMaxBytes <= 0 {
		cfg.SnapshotMaxBytes = 64 * 1024
	}
	if cfg.DecisionLogLimit <= 0 {
		cfg.DecisionLogLimit = 50
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Service{
		records:   deps.Records,
		snapshots: deps.Snapshots,
		decisions: deps.Decisions,
		provider:  deps.Provider,
		resolver:  deps.Resolver,
		cache:     deps.Cache,
		archive:   deps.Archive,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
	}
}

type WebhookInput struct {
	Event      entitlements.EventData
	Subscriber *revenuecat.Subscriber
	// Attributes are the event-level subscriber attributes, consulted when no
	// subscriber record accompanies the event.
	Attributes map[string]revenuecat.Attribute
}

type WebhookResult struct {
	UserID    string
	Record    model.PremiumRecord
	Duplicate bool
}

// ProcessWebhook reconciles one provider event into the user's record. The
// event id is the idempotency key: redelivery returns Duplicate=true with the
// stored record and writes nothing.
func (s *Service) ProcessWebhook(ctx context.Context, in WebhookInput) (WebhookResult, error) {
	if s.records == nil || s.resolver == nil {
		return WebhookResult{}, fmt.Errorf("premium dependencies are not configured")
	}

	eventID := strings.TrimSpace(in.Event.ID)
	if eventID == "" || strings.TrimSpace(in.Event.Type) == "" {
		return WebhookResult{}, ErrValidation
	}

	userID, err := s.resolver.Resolve(ctx, identityEvent(in))
	if err != nil {
		return WebhookResult{}, err
	}

	extracted, err := s.extractForWebhook(in)
	if err != nil {
		return WebhookResult{}, err
	}
	s.enforceEnvironment(extracted)

	eventType := enums.ParseEventType(in.Event.Type)
	if !eventType.Known() {
		s.log.Warn("unknown billing event type",
			zap.String("event_type", in.Event.Type),
			zap.String("event_id", eventID))
	}

	evName := string(eventType)
	rec, applied, err := s.reconcile(ctx, reconcileInput{
		userID:     userID,
		decisionID: eventID,
		source:     sourceWebhook,
		origin:     enums.SyncOriginRevenueCatWebhook,
		eventType:  &evName,
		eventAt:    msToTime(in.Event.EventTimestampMs),
		mutate: func(prev model.PremiumRecord, now time.Time) entitlements.Mutation {
			return entitlements.Transition(eventType, prev, extracted, now)
		},
	})
	if err != nil {
		return WebhookResult{}, err
	}

	return WebhookResult{UserID: userID, Record: rec, Duplicate: !applied}, nil
}

type SyncInput struct {
	CustomerInfo json.RawMessage
	Platform     string
	Source       string
	RequestID    string
}

type SyncResult struct {
	Record         model.PremiumRecord
	Applied        bool
	HasEntitlement bool
}

// SyncFromCustomerInfo records the client's report and, when the client
// claims an active entitlement, verifies it against the provider before
// reconciling. The client payload alone never changes the record.
func (s *Service) SyncFromCustomerInfo(ctx context.Context, userID string, in SyncInput) (SyncResult, error) {
	if s.records == nil || s.provider == nil {
		return SyncResult{}, fmt.Errorf("premium dependencies are not configured")
	}
	if strings.TrimSpace(userID) == "" {
		return SyncResult{}, ErrValidation
	}
	if len(in.CustomerInfo) == 0 {
		return SyncResult{}, ErrInvalidPayload
	}

	var ci entitlements.CustomerInfo
	if err := json.Unmarshal(in.CustomerInfo, &ci); err != nil {
		return SyncResult{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	s.recordSnapshot(ctx, userID, in)

	claimed, err := entitlements.FromCustomerInfo(ci, s.cfg.EntitlementID, s.now())
	if errors.Is(err, entitlements.ErrEntitlementNotFound) || (err == nil && !claimed.Premium) {
		return s.priorResult(ctx, userID)
	}
	if err != nil {
		return SyncResult{}, err
	}

	appUserID := userID
	if id := strings.TrimSpace(ci.OriginalAppUserID); id != "" && !identity.IsAnonymous(id) {
		appUserID = id
	}

	resp, err := s.provider.FetchSubscriber(ctx, appUserID)
	if errors.Is(err, revenuecat.ErrSubscriberNotFound) {
		return s.priorResult(ctx, userID)
	}
	if err != nil {
		return SyncResult{}, fmt.Errorf("verify subscriber: %w", err)
	}

	verified, err := entitlements.FromSubscriber(resp.Subscriber, s.cfg.EntitlementID, s.now())
	if errors.Is(err, entitlements.ErrEntitlementNotFound) {
		return s.priorResult(ctx, userID)
	}
	if err != nil {
		return SyncResult{}, err
	}
	s.enforceEnvironment(&verified)

	source := strings.TrimSpace(in.Source)
	if source == "" {
		source = sourceSync
	}

	rec, applied, err := s.reconcile(ctx, reconcileInput{
		userID:     userID,
		decisionID: decisionID(sourceSync, in.RequestID),
		source:     source,
		origin:     enums.SyncOriginRevenueCat,
		mutate: func(prev model.PremiumRecord, now time.Time) entitlements.Mutation {
			return entitlements.DirectApply(prev, verified, now)
		},
	})
	if err != nil {
		return SyncResult{}, err
	}

	s.aliasBestEffort(ctx, appUserID, userID)

	return SyncResult{Record: rec, Applied: applied, HasEntitlement: true}, nil
}

type RestoreInput struct {
	AppUserID string
	RequestID string
	Source    string
}

// RestoreFromRevenueCat re-fetches the provider state for a user, following
// the deleted-account registry when no explicit app user id is given, and
// reconciles whatever the provider reports.
func (s *Service) RestoreFromRevenueCat(ctx context.Context, userID string, in RestoreInput) (SyncResult, error) {
	if s.records == nil || s.provider == nil || s.resolver == nil {
		return SyncResult{}, fmt.Errorf("premium dependencies are not configured")
	}
	if strings.TrimSpace(userID) == "" {
		return SyncResult{}, ErrValidation
	}

	candidates := []string{}
	prior, found, err := s.resolver.PriorBillingID(ctx, userID, in.AppUserID)
	if err != nil {
		return SyncResult{}, err
	}
	if found && prior != userID {
		candidates = append(candidates, prior)
	}
	candidates = append(candidates, userID)

	var (
		resp    revenuecat.SubscriberResponse
		fetched string
	)
	for _, id := range candidates {
		resp, err = s.provider.FetchSubscriber(ctx, id)
		if err == nil {
			fetched = id
			break
		}
		if !errors.Is(err, revenuecat.ErrSubscriberNotFound) {
			return SyncResult{}, fmt.Errorf("fetch subscriber: %w", err)
		}
	}
	if fetched == "" {
		return s.priorResult(ctx, userID)
	}

	state, err := entitlements.FromSubscriber(resp.Subscriber, s.cfg.EntitlementID, s.now())
	if errors.Is(err, entitlements.ErrEntitlementNotFound) {
		return s.priorResult(ctx, userID)
	}
	if err != nil {
		return SyncResult{}, err
	}
	s.enforceEnvironment(&state)

	source := strings.TrimSpace(in.Source)
	if source == "" {
		source = sourceRestore
	}

	rec, applied, err := s.reconcile(ctx, reconcileInput{
		userID:     userID,
		decisionID: decisionID(sourceRestore, in.RequestID),
		source:     source,
		origin:     enums.SyncOriginRevenueCat,
		mutate: func(prev model.PremiumRecord, now time.Time) entitlements.Mutation {
			return entitlements.DirectApply(prev, state, now)
		},
	})
	if err != nil {
		return SyncResult{}, err
	}

	s.aliasBestEffort(ctx, fetched, userID)

	return SyncResult{Record: rec, Applied: applied, HasEntitlement: true}, nil
}

// GetStatus returns the authoritative record, reading through the status
// cache when one is configured.
func (s *Service) GetStatus(ctx context.Context, userID string) (model.PremiumRecord, bool, error) {
	if strings.TrimSpace(userID) == "" {
		return model.PremiumRecord{}, false, ErrValidation
	}

	if s.cache != nil {
		if rec, ok, err := s.cache.Get(ctx, userID); err == nil && ok {
			return rec, true, nil
		}
	}

	rec, found, err := s.records.Get(ctx, userID)
	if err != nil || !found {
		return model.PremiumRecord{}, false, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, userID, rec); err != nil {
			s.log.Warn("status cache set failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
	return rec, true, nil
}

func (s *Service) Decisions(ctx context.Context, userID string) ([]model.DecisionLogEntry, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrValidation
	}
	if s.decisions == nil {
		return nil, fmt.Errorf("decision log is not configured")
	}
	return s.decisions.ListByUser(ctx, userID, s.cfg.DecisionLogLimit)
}

type reconcileInput struct {
	userID     string
	decisionID string
	source     string
	origin     enums.SyncOrigin
	eventType  *string
	eventAt    *time.Time
	mutate     func(prev model.PremiumRecord, now time.Time) entitlements.Mutation
}

func (s *Service) reconcile(ctx context.Context, in reconcileInput) (model.PremiumRecord, bool, error) {
	now := s.now().UTC()

	rec, applied, err := s.records.ApplyDecision(ctx, in.userID, in.decisionID,
		func(prev model.PremiumRecord) (model.PremiumRecord, model.DecisionLogEntry) {
			next := in.mutate(prev, now).Apply(prev)

			next.LastSyncSource = strPtr(in.source)
			origin := in.origin
			next.LastSyncOrigin = &origin
			next.LastPremiumDecisionID = strPtr(in.decisionID)
			next.LastPremiumDecisionAt = &now
			if in.origin != enums.SyncOriginClient {
				next.LastPremiumVerifiedAt = &now
			}
			if in.origin == enums.SyncOriginRevenueCatWebhook {
				at := now
				if in.eventAt != nil {
					at = *in.eventAt
				}
				next.LastPremiumWebhookEventAt = &at
			}
			if next.PremiumStatus == "" {
				next.PremiumStatus = enums.PremiumStatusUnknown
			}

			entry := model.DecisionLogEntry{
				UserID:        in.userID,
				PremiumBefore: prev.Premium,
				PremiumAfter:  next.Premium,
				EventType:     in.eventType,
				Source:        in.source,
				Origin:        in.origin,
				DecisionID:    in.decisionID,
				CreatedAt:     now,
			}
			return next, entry
		})
	if err != nil {
		return model.PremiumRecord{}, false, err
	}

	if applied && s.cache != nil {
		if cerr := s.cache.Invalidate(ctx, in.userID); cerr != nil {
			s.log.Warn("status cache invalidate failed", zap.String("user_id", in.userID), zap.Error(cerr))
		}
	}
	if !applied {
		s.log.Info("duplicate billing decision ignored",
			zap.String("user_id", in.userID),
			zap.String("decision_id", in.decisionID))
	}
	return rec, applied, nil
}

func (s *Service) extractForWebhook(in WebhookInput) (*model.EntitlementState, error) {
	var (
		state model.EntitlementState
		err   error
	)
	if in.Subscriber != nil {
		state, err = entitlements.FromSubscriber(*in.Subscriber, s.cfg.EntitlementID, s.now())
	} else {
		state, err = entitlements.FromEvent(in.Event, s.cfg.EntitlementID, s.now())
	}
	if errors.Is(err, entitlements.ErrEntitlementNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// enforceEnvironment suppresses access for sandbox-only signals when the
// production-enforcement toggle is on. Mixed-environment signals pass.
func (s *Service) enforceEnvironment(state *model.EntitlementState) {
	if state == nil || !s.cfg.EnforceProduction {
		return
	}
	if state.SandboxOnly && state.Premium {
		state.Premium = false
		s.log.Info("sandbox-only entitlement suppressed",
			zap.String("product_id", state.ProductID))
	}
}

func (s *Service) recordSnapshot(ctx context.Context, userID string, in SyncInput) {
	if s.snapshots == nil {
		return
	}

	payload := in.CustomerInfo
	if len(payload) > s.cfg.SnapshotMaxBytes {
		payload = payload[:s.cfg.SnapshotMaxBytes]
	}
	sum := sha256.Sum256(in.CustomerInfo)

	snap := model.ClientSnapshot{
		UserID:    userID,
		Platform:  strings.TrimSpace(in.Platform),
		Source:    strings.TrimSpace(in.Source),
		Checksum:  hex.EncodeToString(sum[:]),
		SizeBytes: len(in.CustomerInfo),
		Payload:   payload,
		CreatedAt: s.now().UTC(),
	}

	if s.archive != nil {
		key := fmt.Sprintf("snapshots/%s/%s.json", userID, uuid.NewString())
		if err := s.archive.Archive(ctx, key, in.CustomerInfo); err != nil {
			s.log.Warn("snapshot archive failed", zap.String("user_id", userID), zap.Error(err))
		} else {
			snap.ArchiveKey = &key
		}
	}

	if _, err := s.snapshots.Insert(ctx, snap); err != nil {
		s.log.Warn("snapshot insert failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func (s *Service) priorResult(ctx context.Context, userID string) (SyncResult, error) {
	rec, found, err := s.records.Get(ctx, userID)
	if err != nil {
		return SyncResult{}, err
	}
	if !found {
		rec = model.PremiumRecord{UserID: userID, PremiumStatus: enums.PremiumStatusUnknown}
	}
	return SyncResult{Record: rec, Applied: false, HasEntitlement: false}, nil
}

func (s *Service) aliasBestEffort(ctx context.Context, appUserID, userID string) {
	if appUserID == "" || appUserID == userID {
		return
	}
	if err := s.provider.CreateAlias(ctx, appUserID, userID); err != nil {
		s.log.Warn("alias creation failed",
			zap.String("app_user_id", appUserID),
			zap.String("user_id", userID),
			zap.Error(err))
	}
}

func identityEvent(in WebhookInput) identity.Event {
	ev := identity.Event{
		AppUserID: in.Event.AppUserID,
		Aliases:   in.Event.Aliases,
	}
	if ev.AppUserID == "" {
		ev.AppUserID = in.Event.OriginalAppUserID
	}
	switch {
	case in.Subscriber != nil:
		ev.InternalUserID = in.Subscriber.AttributeValue("uid")
		ev.Email = in.Subscriber.AttributeValue("email")
	case in.Attributes != nil:
		attrs := revenuecat.Subscriber{SubscriberAttributes: in.Attributes}
		ev.InternalUserID = attrs.AttributeValue("uid")
		ev.Email = attrs.AttributeValue("email")
	}
	return ev
}

func decisionID(prefix, requestID string) string {
	if requestID = strings.TrimSpace(requestID); requestID != "" {
		return prefix + ":" + requestID
	}
	return prefix + ":" + uuid.NewString()
}

func msToTime(ms int64) *time.Time {
	if ms <= 0 {
		return nil
	}
	t := time.UnixMilli(ms).UTC()
	return &t
}

func strPtr(v string) *string { return &v }
