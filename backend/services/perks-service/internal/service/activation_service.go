package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chargeperks/backend/services/perks-service/internal/geo"
	"chargeperks/backend/services/perks-service/internal/models"
	redisstore "chargeperks/backend/services/perks-service/internal/redis"
)

// SessionStore is the persistence boundary for exclusive sessions. All status
// mutations happen through its guarded operations.
type SessionStore interface {
	CreateIfNoneActive(ctx context.Context, session *models.ExclusiveSession) (*models.ExclusiveSession, bool, error)
	GetActive(ctx context.Context, driverID int64, includeExpired bool, now time.Time) (*models.ExclusiveSession, error)
	GetByID(ctx context.Context, id string) (*models.ExclusiveSession, error)
	Transition(ctx context.Context, sessionID, fromStatus, toStatus string) (*models.ExclusiveSession, error)
	Complete(ctx context.Context, sessionID string, completedAt time.Time, feedback *string) (*models.ExclusiveSession, error)
}

// ChargerStore resolves chargers to coordinates.
type ChargerStore interface {
	GetChargerByID(ctx context.Context, id string) (*models.Charger, error)
}

// ActiveSessionCache mirrors the driver's active session into redis.
type ActiveSessionCache interface {
	Save(ctx context.Context, session redisstore.ActiveSession) error
	Delete(ctx context.Context, driverID int64) error
}

// ActivationConfig carries the tunables for charger-level activation. Injected
// explicitly so the geofence math stays testable with arbitrary radii.
type ActivationConfig struct {
	RadiusMeters    float64
	SessionDuration time.Duration
}

// ActivationService orchestrates geofence validation, the atomic session
// create, and the guarded lifecycle transitions.
type ActivationService struct {
	sessions SessionStore
	chargers ChargerStore
	cache    ActiveSessionCache
	cfg      ActivationConfig
	logger   *zap.Logger
	now      func() time.Time
}

// NewActivationService builds service. cache may be nil when redis is
// unavailable; the database stays the source of truth either way.
func NewActivationService(
	sessions SessionStore,
	chargers ChargerStore,
	cache ActiveSessionCache,
	cfg ActivationConfig,
	logger *zap.Logger,
) *ActivationService {
	return &ActivationService{
		sessions: sessions,
		chargers: chargers,
		cache:    cache,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// ActivateInput is the driver's activation request.
type ActivateInput struct {
	DriverID   int64
	ChargerID  string
	MerchantID string
	IntentID   *string
	Lat        float64
	Lng        float64
	Accuracy   *float64
}

// Activate grants an exclusive session if the driver is within the charger's
// geofence. When the driver already holds an active session, that session is
// returned with resumed=true instead of an error, so duplicate taps and
// post-refresh retries resolve transparently.
func (s *ActivationService) Activate(ctx context.Context, input ActivateInput) (*models.ExclusiveSession, bool, error) {
	if input.DriverID == 0 {
		return nil, false, &ValidationError{Field: "driver_id"}
	}
	if input.ChargerID == "" {
		return nil, false, &ValidationError{Field: "charger_id"}
	}
	if err := validateCoordinates(input.Lat, input.Lng); err != nil {
		return nil, false, err
	}

	charger, err := s.chargers.GetChargerByID(ctx, input.ChargerID)
	if err != nil {
		return nil, false, err
	}

	within, distance := geo.WithinRadius(
		geo.Point{Lat: input.Lat, Lng: input.Lng},
		geo.Point{Lat: charger.Lat, Lng: charger.Lng},
		s.cfg.RadiusMeters,
	)
	if !within {
		return nil, false, &OutOfRadiusError{DistanceMeters: distance, RadiusMeters: s.cfg.RadiusMeters}
	}

	merchantID := input.MerchantID
	if merchantID == "" {
		merchantID = charger.MerchantID
	}

	now := s.now().UTC()
	session := &models.ExclusiveSession{
		ID:             uuid.NewString(),
		DriverID:       input.DriverID,
		ChargerID:      input.ChargerID,
		MerchantID:     merchantID,
		IntentID:       input.IntentID,
		Status:         models.SessionStatusActive,
		ActivatedAt:    now,
		ExpiresAt:      now.Add(s.cfg.SessionDuration),
		Lat:            input.Lat,
		Lng:            input.Lng,
		Accuracy:       input.Accuracy,
		DistanceMeters: distance,
	}

	created, isNew, err := s.sessions.CreateIfNoneActive(ctx, session)
	if err != nil {
		return nil, false, err
	}

	s.cacheSave(ctx, created)

	return created, !isNew, nil
}

// Complete finalizes the driver's session via an explicit action.
func (s *ActivationService) Complete(ctx context.Context, driverID int64, sessionID string, feedback *string) (*models.ExclusiveSession, error) {
	session, err := s.ownedSession(ctx, driverID, sessionID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if session.Status == models.SessionStatusActive && !session.ExpiresAt.After(now) {
		s.lazyExpire(ctx, session)
		return nil, ErrSessionExpired
	}

	completed, err := s.sessions.Complete(ctx, sessionID, now, feedback)
	if err != nil {
		return nil, err
	}

	s.cacheDelete(ctx, driverID)
	return completed, nil
}

// Cancel is the explicit driver- or operator-initiated abort of an active session.
func (s *ActivationService) Cancel(ctx context.Context, driverID int64, sessionID string) (*models.ExclusiveSession, error) {
	session, err := s.ownedSession(ctx, driverID, sessionID)
	if err != nil {
		return nil, err
	}

	if session.Status == models.SessionStatusActive && !session.ExpiresAt.After(s.now().UTC()) {
		s.lazyExpire(ctx, session)
		return nil, ErrSessionExpired
	}

	canceled, err := s.sessions.Transition(ctx, sessionID, models.SessionStatusActive, models.SessionStatusCanceled)
	if err != nil {
		return nil, err
	}

	s.cacheDelete(ctx, driverID)
	return canceled, nil
}

// GetActive returns the driver's current session, nil when none. Reads past
// expires_at flip the record to expired as a side effect.
func (s *ActivationService) GetActive(ctx context.Context, driverID int64, includeExpired bool) (*models.ExclusiveSession, error) {
	return s.sessions.GetActive(ctx, driverID, includeExpired, s.now().UTC())
}

func (s *ActivationService) ownedSession(ctx context.Context, driverID int64, sessionID string) (*models.ExclusiveSession, error) {
	if sessionID == "" {
		return nil, &ValidationError{Field: "session_id"}
	}
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.DriverID != driverID {
		return nil, ErrNotSessionOwner
	}
	return session, nil
}

func (s *ActivationService) lazyExpire(ctx context.Context, session *models.ExclusiveSession) {
	if _, err := s.sessions.Transition(ctx, session.ID, models.SessionStatusActive, models.SessionStatusExpired); err != nil {
		s.logger.Warn("lazy expire failed", zap.String("session_id", session.ID), zap.Error(err))
	}
	s.cacheDelete(ctx, session.DriverID)
}

func (s *ActivationService) cacheSave(ctx context.Context, session *models.ExclusiveSession) {
	if s.cache == nil {
		return
	}
	err := s.cache.Save(ctx, redisstore.ActiveSession{
		SessionID:  session.ID,
		DriverID:   session.DriverID,
		ChargerID:  session.ChargerID,
		MerchantID: session.MerchantID,
		ExpiresAt:  session.ExpiresAt,
	})
	if err != nil {
		s.logger.Warn("failed to cache active session", zap.Error(err))
	}
}

func (s *ActivationService) cacheDelete(ctx context.Context, driverID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, driverID); err != nil {
		s.logger.Warn("failed to evict active session cache", zap.Error(err))
	}
}

func validateCoordinates(lat, lng float64) error {
	if lat < -90 || lat > 90 {
		return &ValidationError{Field: "lat", Reason: "must be between -90 and 90"}
	}
	if lng < -180 || lng > 180 {
		return &ValidationError{Field: "lng", Reason: "must be between -180 and 180"}
	}
	return nil
}
