package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"chargeperks/backend/services/perks-service/internal/geo"
	"chargeperks/backend/services/perks-service/internal/models"
	"chargeperks/backend/services/perks-service/internal/repository"
)

// ArrivalStore is the persistence boundary for arrival sessions.
type ArrivalStore interface {
	Create(ctx context.Context, arrival *models.ArrivalSession) error
	GetByToken(ctx context.Context, token string, now time.Time) (*models.ArrivalSession, error)
	Transition(ctx context.Context, token, fromState, toState string, deadline time.Time) (*models.ArrivalSession, error)
	MarkArrived(ctx context.Context, token, promoCode string, promoExpiresAt time.Time) (*models.ArrivalSession, error)
	RecordPinFailure(ctx context.Context, token string) (int, error)
}

// MerchantStore resolves merchants to coordinates.
type MerchantStore interface {
	GetMerchantByID(ctx context.Context, id string) (*models.Merchant, error)
}

// AttemptLimiter throttles PIN verification attempts per token.
type AttemptLimiter interface {
	Allow(ctx context.Context, token string) (bool, error)
	Reset(ctx context.Context, token string) error
}

// ArrivalConfig carries the tunables for the arrival verification flow.
type ArrivalConfig struct {
	GeofenceRadiusMeters float64
	PendingTTL           time.Duration
	VerifiedTTL          time.Duration
	PromoValidity        time.Duration
}

// ArrivalService drives the pending -> car_verified -> arrived -> redeemed
// flow: PIN challenge on check-in, client-polled location reports, and a
// single-use promo code minted on geofence entry.
type ArrivalService struct {
	arrivals  ArrivalStore
	merchants MerchantStore
	limiter   AttemptLimiter
	cfg       ArrivalConfig
	logger    *zap.Logger
	now       func() time.Time
}

// NewArrivalService builds service. limiter may be nil, in which case PIN
// attempts are unthrottled (the attempt counter is still recorded).
func NewArrivalService(
	arrivals ArrivalStore,
	merchants MerchantStore,
	limiter AttemptLimiter,
	cfg ArrivalConfig,
	logger *zap.Logger,
) *ArrivalService {
	return &ArrivalService{
		arrivals:  arrivals,
		merchants: merchants,
		limiter:   limiter,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// CheckIn opens a pending arrival session and returns it along with the plain
// PIN. The PIN is bcrypt-hashed at rest and never readable again; delivery to
// the in-car display is an external concern.
func (s *ArrivalService) CheckIn(ctx context.Context, driverID int64, merchantID string) (*models.ArrivalSession, string, error) {
	if driverID == 0 {
		return nil, "", &ValidationError{Field: "driver_id"}
	}
	if merchantID == "" {
		return nil, "", &ValidationError{Field: "merchant_id"}
	}

	if _, err := s.merchants.GetMerchantByID(ctx, merchantID); err != nil {
		return nil, "", err
	}

	pin, err := generatePin()
	if err != nil {
		return nil, "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", err
	}

	now := s.now().UTC()
	arrival := &models.ArrivalSession{
		ID:            uuid.NewString(),
		Token:         uuid.NewString(),
		DriverID:      driverID,
		MerchantID:    merchantID,
		State:         models.ArrivalStatePending,
		PinHash:       string(hash),
		StateDeadline: now.Add(s.cfg.PendingTTL),
	}
	if err := s.arrivals.Create(ctx, arrival); err != nil {
		return nil, "", err
	}
	return arrival, pin, nil
}

// VerifyPin checks the submitted code against the stored hash. A match
// consumes the PIN by moving the session to car_verified; a mismatch keeps it
// pending and returns ErrInvalidPin, distinguishable from an unknown token.
func (s *ArrivalService) VerifyPin(ctx context.Context, token, pin string) (*models.ArrivalSession, error) {
	if token == "" {
		return nil, &ValidationError{Field: "token"}
	}
	if pin == "" {
		return nil, &ValidationError{Field: "pin"}
	}

	arrival, err := s.arrivals.GetByToken(ctx, token, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if arrival.State == models.ArrivalStateExpired {
		return arrival, ErrArrivalExpired
	}
	if arrival.State != models.ArrivalStatePending {
		return arrival, repository.ErrStateConflict
	}

	if s.limiter != nil {
		allowed, err := s.limiter.Allow(ctx, token)
		if err != nil {
			s.logger.Warn("pin attempt limiter unavailable", zap.Error(err))
		} else if !allowed {
			return arrival, ErrTooManyPinAttempts
		}
	}

	if bcrypt.CompareHashAndPassword([]byte(arrival.PinHash), []byte(pin)) != nil {
		if _, err := s.arrivals.RecordPinFailure(ctx, token); err != nil {
			s.logger.Warn("failed to record pin failure", zap.Error(err))
		}
		return arrival, ErrInvalidPin
	}

	if s.limiter != nil {
		if err := s.limiter.Reset(ctx, token); err != nil {
			s.logger.Warn("failed to reset pin attempts", zap.Error(err))
		}
	}

	deadline := s.now().UTC().Add(s.cfg.VerifiedTTL)
	return s.arrivals.Transition(ctx, token, models.ArrivalStatePending, models.ArrivalStateCarVerified, deadline)
}

// PollLocation handles one client-reported coordinate. Outside the merchant
// geofence the session is returned unchanged; the first report inside mints
// the promo code and transitions to arrived. Polls after arrival are
// idempotent reads.
func (s *ArrivalService) PollLocation(ctx context.Context, token string, lat, lng float64) (*models.ArrivalSession, float64, error) {
	if token == "" {
		return nil, 0, &ValidationError{Field: "token"}
	}
	if err := validateCoordinates(lat, lng); err != nil {
		return nil, 0, err
	}

	arrival, err := s.arrivals.GetByToken(ctx, token, s.now().UTC())
	if err != nil {
		return nil, 0, err
	}

	switch arrival.State {
	case models.ArrivalStateExpired, models.ArrivalStateArrived, models.ArrivalStateRedeemed:
		// nothing left to detect; the state field tells the client
		return arrival, 0, nil
	case models.ArrivalStatePending:
		return arrival, 0, repository.ErrStateConflict
	}

	merchant, err := s.merchants.GetMerchantByID(ctx, arrival.MerchantID)
	if err != nil {
		return nil, 0, err
	}

	within, distance := geo.WithinRadius(
		geo.Point{Lat: lat, Lng: lng},
		geo.Point{Lat: merchant.Lat, Lng: merchant.Lng},
		s.cfg.GeofenceRadiusMeters,
	)
	if !within {
		return arrival, distance, nil
	}

	promo, err := generatePromoCode()
	if err != nil {
		return nil, 0, err
	}
	promoExpiry := s.now().UTC().Add(s.cfg.PromoValidity)

	updated, err := s.arrivals.MarkArrived(ctx, token, promo, promoExpiry)
	if err != nil {
		if errors.Is(err, repository.ErrStateConflict) {
			// a concurrent poll won the transition; return what it produced
			current, readErr := s.arrivals.GetByToken(ctx, token, s.now().UTC())
			if readErr != nil {
				return nil, 0, readErr
			}
			return current, distance, nil
		}
		return nil, 0, err
	}
	return updated, distance, nil
}

// Redeem consumes the promo code with an explicit terminal transition. A promo
// past its validity window has already lapsed the arrived-state deadline, so
// the lazy-expiry read reports it as expired before redemption is attempted.
func (s *ArrivalService) Redeem(ctx context.Context, token string) (*models.ArrivalSession, error) {
	if token == "" {
		return nil, &ValidationError{Field: "token"}
	}

	now := s.now().UTC()
	arrival, err := s.arrivals.GetByToken(ctx, token, now)
	if err != nil {
		return nil, err
	}
	if arrival.State == models.ArrivalStateExpired {
		return arrival, ErrArrivalExpired
	}
	if arrival.State != models.ArrivalStateArrived {
		return arrival, repository.ErrStateConflict
	}

	return s.arrivals.Transition(ctx, token, models.ArrivalStateArrived, models.ArrivalStateRedeemed, now)
}
