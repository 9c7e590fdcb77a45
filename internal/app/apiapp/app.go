package apiapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/minio/minio-go/v7"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mkucukkoc/google-auth-sub001/internal/config"
	"github.com/mkucukkoc/google-auth-sub001/internal/infra/httpclient"
	"github.com/mkucukkoc/google-auth-sub001/internal/infra/revenuecat"
	s3infra "github.com/mkucukkoc/google-auth-sub001/internal/infra/s3"
	pgrepo "github.com/mkucukkoc/google-auth-sub001/internal/repo/postgres"
	redrepo "github.com/mkucukkoc/google-auth-sub001/internal/repo/redis"
	authsvc "github.com/mkucukkoc/google-auth-sub001/internal/services/auth"
	identitysvc "github.com/mkucukkoc/google-auth-sub001/internal/services/identity"
	premiumsvc "github.com/mkucukkoc/google-auth-sub001/internal/services/premium"
)

type App struct {
	cfg        config.Config
	logger     *zap.Logger
	server     *http.Server
	postgres   *pgxpool.Pool
	redis      *goredis.Client
	s3         *minio.Client
	httpRouter http.Handler
}

func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	r := chi.NewRouter()
	ApplyMiddlewares(r, log)

	pool, err := pgrepo.NewPool(ctx, cfg.Postgres.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres init: %w", err)
	}

	redisClient := redrepo.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)

	var s3Client *minio.Client
	if c, err := s3infra.NewClient(s3infra.Config{
		Endpoint:  cfg.S3.Endpoint,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
		UseSSL:    cfg.S3.UseSSL,
	}); err != nil {
		log.Warn("s3 init failed, continuing without snapshot archive", zap.Error(err))
	} else {
		s3Client = c
	}

	premiumRepo := pgrepo.NewPremiumRepo(pool)
	snapshotRepo := pgrepo.NewClientSnapshotRepo(pool)
	decisionLogRepo := pgrepo.NewDecisionLogRepo(pool)
	userRepo := pgrepo.NewUserRepo(pool)
	deletedAccountRepo := pgrepo.NewDeletedAccountRepo(pool)
	statusCache := redrepo.NewStatusCacheRepo(redisClient, cfg.Premium.StatusCacheTTL)

	providerClient := revenuecat.NewClient(revenuecat.Config{
		BaseURL: cfg.RevenueCat.BaseURL,
		APIKey:  cfg.RevenueCat.APIKey,
	}, httpclient.New(cfg.RevenueCat.Timeout))

	jwtManager := authsvc.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTAccessTTL)
	authService := authsvc.NewService(jwtManager)
	resolver := identitysvc.NewResolver(userRepo, deletedAccountRepo, log)

	premiumDeps := premiumsvc.Dependencies{
		Records:   premiumRepo,
		Snapshots: snapshotRepo,
		Decisions: decisionLogRepo,
		Provider:  providerClient,
		Resolver:  resolver,
		Cache:     statusCache,
	}
	if s3Client != nil {
		premiumDeps.Archive = s3infra.NewSnapshotArchive(s3Client, cfg.S3.Bucket)
	}
	premiumService := premiumsvc.NewService(premiumDeps, premiumsvc.Config{
		EntitlementID:     cfg.Premium.EntitlementID,
		EnforceProduction: cfg.Premium.EnforceProduction,
		SnapshotMaxBytes:  cfg.Premium.SnapshotMaxBytes,
		DecisionLogLimit:  cfg.Premium.DecisionLogLimit,
	}, log)

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      r,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	RegisterRoutes(r, Dependencies{
		AuthService:    authService,
		PremiumService: premiumService,
		Logger:         log,
		Config:         cfg,
	})

	return &App{
		cfg:        cfg,
		logger:     log,
		server:     server,
		postgres:   pool,
		redis:      redisClient,
		s3:         s3Client,
		httpRouter: r,
	}, nil
}

func (a *App) Run() error {
	a.logger.Info("api server started", zap.String("addr", a.cfg.HTTP.Addr))
	err := a.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error

	if err := a.server.Shutdown(ctx); err != nil {
		shutdownErr = err
	}
	if a.postgres != nil {
		a.postgres.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil && shutdownErr == nil {
			shutdownErr = err
		}
	}

	return shutdownErr
}

func (a *App) Handler() http.Handler {
	return a.httpRouter
}
