package apiapp

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mkucukkoc/google-auth-sub001/internal/config"
	authsvc "github.com/mkucukkoc/google-auth-sub001/internal/services/auth"
	premiumsvc "github.com/mkucukkoc/google-auth-sub001/internal/services/premium"
	"github.com/mkucukkoc/google-auth-sub001/internal/transport/http/handlers"
)

type Dependencies struct {
	AuthService    *authsvc.Service
	PremiumService *premiumsvc.Service
	Logger         *zap.Logger
	Config         config.Config
}

func RegisterRoutes(r chi.Router, deps Dependencies) {
	healthHandler := handlers.NewHealthHandler()
	webhookHandler := handlers.NewWebhookHandler(deps.PremiumService, deps.Config.RevenueCat.WebhookSecret, deps.Logger)
	premiumHandler := handlers.NewPremiumHandler(deps.PremiumService, deps.Logger)
	authMW := AuthMiddleware(deps.AuthService, deps.Logger)

	r.Get("/healthz", healthHandler.Get)
	r.Post("/webhooks/revenuecat", webhookHandler.Handle)

	r.Route("/v1/premium", func(r chi.Router) {
		r.Use(authMW)
		r.Get("/status", premiumHandler.Status)
		r.Post("/sync", premiumHandler.Sync)
		r.Post("/restore", premiumHandler.Restore)
		r.Get("/decisions", premiumHandler.Decisions)
	})
}
