package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/mkucukkoc/google-auth-sub001/internal/domain/model"
	"github.com/mkucukkoc/google-auth-sub001/internal/infra/revenuecat"
	authsvc "github.com/mkucukkoc/google-auth-sub001/internal/services/auth"
	premiumsvc "github.com/mkucukkoc/google-auth-sub001/internal/services/premium"
	"github.com/mkucukkoc/google-auth-sub001/internal/transport/http/dto"
	httperrors "github.com/mkucukkoc/google-auth-sub001/internal/transport/http/errors"
)

type PremiumHandler struct {
	premium *premiumsvc.Service
	log     *zap.Logger
}

func NewPremiumHandler(premium *premiumsvc.Service, log *zap.Logger) *PremiumHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &PremiumHandler{premium: premium, log: log}
}

func (h *PremiumHandler) Status(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}

	rec, found, err := h.premium.GetStatus(r.Context(), identity.UserID)
	if err != nil {
		h.log.Error("premium status lookup failed", zap.String("user_id", identity.UserID), zap.Error(err))
		writeInternal(w, "INTERNAL_ERROR", "failed to load premium status")
		return
	}

	resp := dto.PremiumStatusResponse{}
	if found {
		body := toRecordResponse(rec)
		resp.Record = &body
	}
	httperrors.Write(w, http.StatusOK, resp)
}

func (h *PremiumHandler) Sync(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}

	var req dto.PremiumSyncRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid request body")
		return
	}

	result, err := h.premium.SyncFromCustomerInfo(r.Context(), identity.UserID, premiumsvc.SyncInput{
		CustomerInfo: req.CustomerInfo,
		Platform:     req.Platform,
		Source:       req.Source,
		RequestID:    req.RequestID,
	})
	if err != nil {
		h.writeSyncError(w, identity.UserID, err)
		return
	}

	httperrors.Write(w, http.StatusOK, toSyncResponse(result))
}

func (h *PremiumHandler) Restore(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}

	var req dto.PremiumRestoreRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid request body")
		return
	}

	result, err := h.premium.RestoreFromRevenueCat(r.Context(), identity.UserID, premiumsvc.RestoreInput{
		AppUserID: req.AppUserID,
		RequestID: req.RequestID,
		Source:    req.Source,
	})
	if err != nil {
		h.writeSyncError(w, identity.UserID, err)
		return
	}

	httperrors.Write(w, http.StatusOK, toSyncResponse(result))
}

func (h *PremiumHandler) Decisions(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}

	entries, err := h.premium.Decisions(r.Context(), identity.UserID)
	if err != nil {
		h.log.Error("decision log lookup failed", zap.String("user_id", identity.UserID), zap.Error(err))
		writeInternal(w, "INTERNAL_ERROR", "failed to load decision log")
		return
	}

	resp := dto.DecisionLogResponse{Decisions: make([]dto.DecisionLogEntryResponse, 0, len(entries))}
	for _, e := range entries {
		resp.Decisions = append(resp.Decisions, dto.DecisionLogEntryResponse{
			ID:            e.ID,
			PremiumBefore: e.PremiumBefore,
			PremiumAfter:  e.PremiumAfter,
			EventType:     e.EventType,
			Source:        e.Source,
			Origin:        string(e.Origin),
			DecisionID:    e.DecisionID,
			CreatedAt:     e.CreatedAt,
		})
	}
	httperrors.Write(w, http.StatusOK, resp)
}

func (h *PremiumHandler) writeSyncError(w http.ResponseWriter, userID string, err error) {
	switch {
	case errors.Is(err, premiumsvc.ErrValidation), errors.Is(err, premiumsvc.ErrInvalidPayload):
		writeBadRequest(w, "VALIDATION_ERROR", "invalid premium payload")
	case errors.Is(err, revenuecat.ErrUnavailable):
		httperrors.Write(w, http.StatusServiceUnavailable, httperrors.APIError{
			Code:    "PROVIDER_UNAVAILABLE",
			Message: "billing provider is unavailable, retry later",
		})
	default:
		h.log.Error("premium reconciliation failed", zap.String("user_id", userID), zap.Error(err))
		writeInternal(w, "INTERNAL_ERROR", "failed to reconcile premium state")
	}
}

func toSyncResponse(result premiumsvc.SyncResult) dto.PremiumSyncResponse {
	return dto.PremiumSyncResponse{
		Record:         toRecordResponse(result.Record),
		Applied:        result.Applied,
		HasEntitlement: result.HasEntitlement,
	}
}

func toRecordResponse(rec model.PremiumRecord) dto.PremiumRecordResponse {
	resp := dto.PremiumRecordResponse{
		UserID:               rec.UserID,
		Premium:              rec.Premium,
		PremiumStatus:        string(rec.PremiumStatus),
		PremiumExpiresAt:     rec.PremiumExpiresAt,
		PremiumStartedAt:     rec.PremiumStartedAt,
		PremiumEndedAt:       rec.PremiumEndedAt,
		EntitlementProductID: rec.EntitlementProductID,
		IsSandboxOnly:        rec.IsSandboxOnly,
		EntitlementIDs:       rec.EntitlementIDs,

		LastSyncSource:            rec.LastSyncSource,
		LastPremiumDecisionID:     rec.LastPremiumDecisionID,
		LastPremiumDecisionAt:     rec.LastPremiumDecisionAt,
		LastPremiumVerifiedAt:     rec.LastPremiumVerifiedAt,
		LastPremiumWebhookEventAt: rec.LastPremiumWebhookEventAt,

		IsCancelled:               rec.IsCancelled,
		WillCancelAtPeriodEnd:     rec.WillCancelAtPeriodEnd,
		CancellationEffectiveDate: rec.CancellationEffectiveDate,

		BillingIssue:           rec.BillingIssue,
		BillingIssueDetectedAt: rec.BillingIssueDetectedAt,
		BillingRecoveredAt:     rec.BillingRecoveredAt,
		BillingIssueReason:     rec.BillingIssueReason,

		UpdatedAt: rec.UpdatedAt,
	}
	if rec.Environment != nil {
		env := string(*rec.Environment)
		resp.Environment = &env
	}
	if rec.LastSyncOrigin != nil {
		origin := string(*rec.LastSyncOrigin)
		resp.LastSyncOrigin = &origin
	}
	return resp
}

func decodeJSON(r *http.Request, target any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

func writeBadRequest(w http.ResponseWriter, code, message string) {
	httperrors.Write(w, http.StatusBadRequest, httperrors.APIError{Code: code, Message: message})
}

func writeUnauthorized(w http.ResponseWriter, code, message string) {
	httperrors.Write(w, http.StatusUnauthorized, httperrors.APIError{Code: code, Message: message})
}

func writeInternal(w http.ResponseWriter, code, message string) {
	httperrors.Write(w, http.StatusInternalServerError, httperrors.APIError{Code: code, Message: message})
}
