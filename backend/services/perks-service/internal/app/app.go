package app

import (
	"context"
	"database/sql"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	libdb "chargeperks/backend/libs/db"
	libredis "chargeperks/backend/libs/redis"
	"chargeperks/backend/services/perks-service/internal/config"
	httpserver "chargeperks/backend/services/perks-service/internal/http"
	"chargeperks/backend/services/perks-service/internal/http/handlers"
	"chargeperks/backend/services/perks-service/internal/http/middleware"
	redisstore "chargeperks/backend/services/perks-service/internal/redis"
	"chargeperks/backend/services/perks-service/internal/repository"
	"chargeperks/backend/services/perks-service/internal/service"
)

// App wires perks-service dependencies.
type App struct {
	server      *httpserver.Server
	db          *sql.DB
	redisClient *redis.Client
	logger      *zap.Logger
}

// New constructs the application graph.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	sqlDB, err := libdb.NewPostgresDB(cfg.Database.DSN)
	if err != nil {
		return nil, err
	}

	redisClient, err := libredis.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}

	sessionRepo := repository.NewSessionRepository(sqlDB)
	arrivalRepo := repository.NewArrivalRepository(sqlDB)
	placeRepo := repository.NewPlaceRepository(sqlDB)

	activeStore := redisstore.NewStore(redisClient, cfg.ActiveCacheTTL())
	pinLimiter := redisstore.NewPinAttemptLimiter(redisClient, cfg.Arrival.MaxPinAttempts, cfg.PinAttemptWindow())

	activationSvc := service.NewActivationService(
		sessionRepo,
		placeRepo,
		activeStore,
		service.ActivationConfig{
			RadiusMeters:    cfg.Activation.RadiusMeters,
			SessionDuration: cfg.SessionDuration(),
		},
		logger,
	)
	arrivalSvc := service.NewArrivalService(
		arrivalRepo,
		placeRepo,
		pinLimiter,
		service.ArrivalConfig{
			GeofenceRadiusMeters: cfg.Arrival.RadiusMeters,
			PendingTTL:           cfg.PendingTTL(),
			VerifiedTTL:          cfg.VerifiedTTL(),
			PromoValidity:        cfg.PromoValidity(),
		},
		logger,
	)

	activationHandler := handlers.NewActivationHandler(activationSvc, logger)
	arrivalHandler := handlers.NewArrivalHandler(arrivalSvc, logger)

	routes := httpserver.Routes{
		Activate:        activationHandler.HandleActivate,
		Complete:        activationHandler.HandleComplete,
		Cancel:          activationHandler.HandleCancel,
		GetActive:       activationHandler.HandleGetActive,
		ArrivalCheckIn:  arrivalHandler.HandleCheckIn,
		ArrivalVerify:   arrivalHandler.HandleVerifyPin,
		ArrivalLocation: arrivalHandler.HandleLocation,
		ArrivalRedeem:   arrivalHandler.HandleRedeem,
		Health:          handlers.NewHealthHandler(),
	}

	router := httpserver.NewRouter(routes, middleware.AuthMiddleware(cfg.Auth.JWTSecret))
	server := httpserver.NewServer(cfg.HTTPAddress(), router, logger)

	return &App{
		server:      server,
		db:          sqlDB,
		redisClient: redisClient,
		logger:      logger,
	}, nil
}

// Run starts HTTP server.
func (a *App) Run(ctx context.Context) error {
	return a.server.Run(ctx)
}

// Close releases resources.
func (a *App) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close db", zap.Error(err))
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
}
