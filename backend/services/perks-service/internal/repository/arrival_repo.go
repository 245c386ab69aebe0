package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"chargeperks/backend/services/perks-service/internal/fsm"
	"chargeperks/backend/services/perks-service/internal/models"
)

// ErrArrivalNotFound indicates an unknown or foreign arrival token.
var ErrArrivalNotFound = errors.New("arrival session not found")

const arrivalColumns = `id, token, driver_id, merchant_id, state, pin_hash, pin_attempts,
		promo_code, promo_code_expires_at, state_deadline, created_at, updated_at`

// ArrivalRepository owns the arrival_sessions table.
type ArrivalRepository struct {
	db *sql.DB
}

// NewArrivalRepository returns repository.
func NewArrivalRepository(db *sql.DB) *ArrivalRepository {
	return &ArrivalRepository{db: db}
}

// Create inserts a fresh pending arrival session.
func (r *ArrivalRepository) Create(ctx context.Context, arrival *models.ArrivalSession) error {
	const query = `
		INSERT INTO arrival_sessions (
			id, token, driver_id, merchant_id, state, pin_hash, pin_attempts,
			state_deadline, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7, NOW(), NOW())
		RETURNING created_at, updated_at
	`
	return r.db.QueryRowContext(ctx, query,
		arrival.ID,
		arrival.Token,
		arrival.DriverID,
		arrival.MerchantID,
		arrival.State,
		arrival.PinHash,
		arrival.StateDeadline,
	).Scan(&arrival.CreatedAt, &arrival.UpdatedAt)
}

// GetByToken loads an arrival session, flipping it to expired first when its
// current state outlived its deadline. The flip is conditional on the state
// still matching, so concurrent reads expire a session exactly once.
func (r *ArrivalRepository) GetByToken(ctx context.Context, token string, now time.Time) (*models.ArrivalSession, error) {
	const query = `
		SELECT ` + arrivalColumns + `
		FROM arrival_sessions
		WHERE token = $1
		LIMIT 1
	`
	arrival, err := scanArrival(r.db.QueryRowContext(ctx, query, token))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrArrivalNotFound
		}
		return nil, err
	}

	if !arrival.IsTerminal() && !arrival.StateDeadline.After(now) {
		expired, err := r.Transition(ctx, token, arrival.State, models.ArrivalStateExpired, arrival.StateDeadline)
		if err != nil {
			if errors.Is(err, ErrStateConflict) {
				return r.GetByToken(ctx, token, now)
			}
			return nil, err
		}
		return expired, nil
	}

	return arrival, nil
}

// Transition performs a conditional state update and moves the deadline that
// governs the new state.
func (r *ArrivalRepository) Transition(ctx context.Context, token, fromState, toState string, deadline time.Time) (*models.ArrivalSession, error) {
	if !fsm.CanTransitionArrival(fromState, toState) {
		return nil, fmt.Errorf("%w: %s -> %s not allowed", ErrStateConflict, fromState, toState)
	}

	const query = `
		UPDATE arrival_sessions
		SET state = $3, state_deadline = $4, updated_at = NOW()
		WHERE token = $1 AND state = $2
		RETURNING ` + arrivalColumns + `
	`
	arrival, err := scanArrival(r.db.QueryRowContext(ctx, query, token, fromState, toState, deadline))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, r.arrivalConflictOrMissing(ctx, token)
		}
		return nil, err
	}
	return arrival, nil
}

// MarkArrived mints the promo code while transitioning car_verified -> arrived.
// The promo validity window doubles as the arrived-state deadline, so the two
// expiries cannot drift apart.
func (r *ArrivalRepository) MarkArrived(ctx context.Context, token, promoCode string, promoExpiresAt time.Time) (*models.ArrivalSession, error) {
	const query = `
		UPDATE arrival_sessions
		SET state = 'arrived',
		    promo_code = $2,
		    promo_code_expires_at = $3,
		    state_deadline = $3,
		    updated_at = NOW()
		WHERE token = $1 AND state = 'car_verified'
		RETURNING ` + arrivalColumns + `
	`
	arrival, err := scanArrival(r.db.QueryRowContext(ctx, query, token, promoCode, promoExpiresAt))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, r.arrivalConflictOrMissing(ctx, token)
		}
		return nil, err
	}
	return arrival, nil
}

// RecordPinFailure bumps the attempt counter kept for diagnostics and returns
// the new total.
func (r *ArrivalRepository) RecordPinFailure(ctx context.Context, token string) (int, error) {
	const query = `
		UPDATE arrival_sessions
		SET pin_attempts = pin_attempts + 1, updated_at = NOW()
		WHERE token = $1
		RETURNING pin_attempts
	`
	var attempts int
	if err := r.db.QueryRowContext(ctx, query, token).Scan(&attempts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrArrivalNotFound
		}
		return 0, err
	}
	return attempts, nil
}

func (r *ArrivalRepository) arrivalConflictOrMissing(ctx context.Context, token string) error {
	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM arrival_sessions WHERE token = $1)`, token,
	).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return ErrStateConflict
	}
	return ErrArrivalNotFound
}

func scanArrival(row rowScanner) (*models.ArrivalSession, error) {
	var a models.ArrivalSession
	if err := row.Scan(
		&a.ID,
		&a.Token,
		&a.DriverID,
		&a.MerchantID,
		&a.State,
		&a.PinHash,
		&a.PinAttempts,
		&a.PromoCode,
		&a.PromoCodeExpiresAt,
		&a.StateDeadline,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &a, nil
}
