package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	entsvc "github.com/mkucukkoc/google-auth-sub001/internal/services/entitlements"
	"github.com/mkucukkoc/google-auth-sub001/internal/services/identity"
	premiumsvc "github.com/mkucukkoc/google-auth-sub001/internal/services/premium"
	"github.com/mkucukkoc/google-auth-sub001/internal/transport/http/dto"
)

// WebhookHandler receives billing provider events. Authentication is the
// shared secret configured in the provider dashboard, sent verbatim in the
// Authorization header.
type WebhookHandler struct {
	premium *premiumsvc.Service
	secret  string
	log     *zap.Logger
}

func NewWebhookHandler(premium *premiumsvc.Service, secret string, log *zap.Logger) *WebhookHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &WebhookHandler{premium: premium, secret: secret, log: log}
}

func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.premium == nil {
		writeInternal(w, "PREMIUM_SERVICE_UNAVAILABLE", "premium service is unavailable")
		return
	}
	// Fail closed: without a configured secret every delivery is rejected.
	if h.secret == "" {
		h.log.Error("webhook secret is not configured")
		writeInternal(w, "WEBHOOK_NOT_CONFIGURED", "webhook is not configured")
		return
	}

	header := r.Header.Get("Authorization")
	if header == "" {
		writeBadRequest(w, "AUTHORIZATION_REQUIRED", "authorization header required")
		return
	}
	if subtle.ConstantTimeCompare([]byte(header), []byte(h.secret)) != 1 {
		writeUnauthorized(w, "INVALID_AUTHORIZATION", "invalid authorization header")
		return
	}

	var req dto.RevenueCatWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid request body")
		return
	}

	in := premiumsvc.WebhookInput{
		Event: entsvc.EventData{
			Type:                      req.Event.Type,
			ID:                        req.Event.ID,
			AppUserID:                 req.Event.AppUserID,
			OriginalAppUserID:         req.Event.OriginalAppUserID,
			Aliases:                   req.Event.Aliases,
			ProductID:                 req.Event.ProductID,
			EntitlementIDs:            eventEntitlementIDs(req.Event),
			PeriodType:                req.Event.PeriodType,
			PurchasedAtMs:             req.Event.PurchasedAtMs,
			ExpirationAtMs:            req.Event.ExpirationAtMs,
			GracePeriodExpirationAtMs: req.Event.GracePeriodExpirationAtMs,
			EventTimestampMs:          req.Event.EventTimestampMs,
			Environment:               req.Event.Environment,
			Store:                     req.Event.Store,
			CancelReason:              req.Event.CancelReason,
			TransferredFrom:           req.Event.TransferredFrom,
			TransferredTo:             req.Event.TransferredTo,
		},
		Subscriber: req.Subscriber,
		Attributes: req.Event.SubscriberAttributes,
	}

	result, err := h.premium.ProcessWebhook(r.Context(), in)
	if err != nil {
		switch {
		case errors.Is(err, premiumsvc.ErrValidation):
			writeBadRequest(w, "VALIDATION_ERROR", "invalid webhook payload")
		case errors.Is(err, identity.ErrUnresolvable):
			h.log.Warn("webhook for unresolvable identity",
				zap.String("event_id", req.Event.ID),
				zap.String("app_user_id", req.Event.AppUserID))
			writeBadRequest(w, "UNRESOLVABLE_IDENTITY", "no matching user for event")
		default:
			h.log.Error("webhook processing failed",
				zap.String("event_id", req.Event.ID),
				zap.Error(err))
			writeInternal(w, "INTERNAL_ERROR", "failed to process event")
		}
		return
	}

	body := "Success"
	if result.Duplicate {
		body = "Duplicate ignored"
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

func eventEntitlementIDs(ev dto.RevenueCatEvent) []string {
	if len(ev.EntitlementIDs) > 0 {
		return ev.EntitlementIDs
	}
	if ev.EntitlementID != nil && strings.TrimSpace(*ev.EntitlementID) != "" {
		return []string{*ev.EntitlementID}
	}
	return nil
}
