package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"chargeperks/backend/services/perks-service/internal/fsm"
	"chargeperks/backend/services/perks-service/internal/models"
)

// Sentinel errors for session persistence.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrStateConflict   = errors.New("session is not in the expected status")
)

const pgUniqueViolation = "23505"

const sessionColumns = `id, driver_id, charger_id, merchant_id, intent_id, status,
		activated_at, expires_at, completed_at, feedback,
		activation_lat, activation_lng, activation_accuracy, distance_meters,
		created_at, updated_at`

// SessionRepository owns the exclusive_sessions table. All status mutations go
// through its guarded operations; nothing else writes session state.
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository returns repository.
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// CreateIfNoneActive inserts a new session unless the driver already holds an
// active one, in which case the existing session is returned untouched. The
// check and insert run in one transaction with a row lock on the driver's
// current active session; a stale active row is flipped to expired in the same
// transaction before the insert. A partial unique index on
// (driver_id) WHERE status = 'active' backs the invariant across processes.
func (r *SessionRepository) CreateIfNoneActive(ctx context.Context, session *models.ExclusiveSession) (*models.ExclusiveSession, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	const lockQuery = `
		SELECT ` + sessionColumns + `
		FROM exclusive_sessions
		WHERE driver_id = $1 AND status = 'active'
		ORDER BY activated_at DESC
		LIMIT 1
		FOR UPDATE
	`
	existing, err := scanSession(tx.QueryRowContext(ctx, lockQuery, session.DriverID))
	switch {
	case err == nil:
		if existing.ExpiresAt.After(session.ActivatedAt) {
			// still live: idempotent resume, no insert
			if err := tx.Commit(); err != nil {
				return nil, false, err
			}
			return existing, false, nil
		}
		if err := expireTx(ctx, tx, existing.ID); err != nil {
			return nil, false, err
		}
	case errors.Is(err, sql.ErrNoRows):
		// no active session, proceed to insert
	default:
		return nil, false, err
	}

	const insertQuery = `
		INSERT INTO exclusive_sessions (
			id, driver_id, charger_id, merchant_id, intent_id, status,
			activated_at, expires_at,
			activation_lat, activation_lng, activation_accuracy, distance_meters,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
		RETURNING created_at, updated_at
	`
	err = tx.QueryRowContext(ctx, insertQuery,
		session.ID,
		session.DriverID,
		session.ChargerID,
		session.MerchantID,
		session.IntentID,
		session.Status,
		session.ActivatedAt,
		session.ExpiresAt,
		session.Lat,
		session.Lng,
		session.Accuracy,
		session.DistanceMeters,
	).Scan(&session.CreatedAt, &session.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			// lost the race to a concurrent activation; surface the winner
			tx.Rollback()
			winner, readErr := r.GetActive(ctx, session.DriverID, false, session.ActivatedAt)
			if readErr != nil {
				return nil, false, readErr
			}
			if winner == nil {
				return nil, false, ErrStateConflict
			}
			return winner, false, nil
		}
		return nil, false, err
	}

	if err := tx.Commit(); err != nil {
		return nil, false, err
	}
	return session, true, nil
}

// GetActive returns the driver's most recent active session as of now.
// A session found past its expires_at is flipped to expired as a side effect
// and reported as absent, unless includeExpired opts into seeing the flipped
// record for diagnostics.
func (r *SessionRepository) GetActive(ctx context.Context, driverID int64, includeExpired bool, now time.Time) (*models.ExclusiveSession, error) {
	const query = `
		SELECT ` + sessionColumns + `
		FROM exclusive_sessions
		WHERE driver_id = $1 AND status = 'active'
		ORDER BY activated_at DESC
		LIMIT 1
	`
	session, err := scanSession(r.db.QueryRowContext(ctx, query, driverID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	if !session.ExpiresAt.After(now) {
		expired, err := r.Transition(ctx, session.ID, models.SessionStatusActive, models.SessionStatusExpired)
		if err != nil && !errors.Is(err, ErrStateConflict) {
			// a concurrent read may have flipped it first; that is fine
			return nil, err
		}
		if includeExpired {
			if expired != nil {
				return expired, nil
			}
			return r.GetByID(ctx, session.ID)
		}
		return nil, nil
	}

	return session, nil
}

// GetByID loads a session regardless of status.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*models.ExclusiveSession, error) {
	const query = `
		SELECT ` + sessionColumns + `
		FROM exclusive_sessions
		WHERE id = $1
		LIMIT 1
	`
	session, err := scanSession(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return session, nil
}

// Transition performs a conditional status update that only succeeds while the
// row still holds fromStatus. A late duplicate request cannot revive a session
// that already reached a terminal status.
func (r *SessionRepository) Transition(ctx context.Context, sessionID, fromStatus, toStatus string) (*models.ExclusiveSession, error) {
	if !fsm.CanTransitionSession(fromStatus, toStatus) {
		return nil, fmt.Errorf("%w: %s -> %s not allowed", ErrStateConflict, fromStatus, toStatus)
	}

	const query = `
		UPDATE exclusive_sessions
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING ` + sessionColumns + `
	`
	session, err := scanSession(r.db.QueryRowContext(ctx, query, sessionID, fromStatus, toStatus))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, r.conflictOrMissing(ctx, sessionID)
		}
		return nil, err
	}
	return session, nil
}

// Complete finalizes an active session, stamping completed_at and optional
// driver feedback in the same conditional update.
func (r *SessionRepository) Complete(ctx context.Context, sessionID string, completedAt time.Time, feedback *string) (*models.ExclusiveSession, error) {
	const query = `
		UPDATE exclusive_sessions
		SET status = 'completed', completed_at = $2, feedback = COALESCE($3, feedback), updated_at = NOW()
		WHERE id = $1 AND status = 'active'
		RETURNING ` + sessionColumns + `
	`
	session, err := scanSession(r.db.QueryRowContext(ctx, query, sessionID, completedAt, feedback))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, r.conflictOrMissing(ctx, sessionID)
		}
		return nil, err
	}
	return session, nil
}

func (r *SessionRepository) conflictOrMissing(ctx context.Context, sessionID string) error {
	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM exclusive_sessions WHERE id = $1)`, sessionID,
	).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return ErrStateConflict
	}
	return ErrSessionNotFound
}

func expireTx(ctx context.Context, tx *sql.Tx, sessionID string) error {
	const query = `
		UPDATE exclusive_sessions
		SET status = 'expired', updated_at = NOW()
		WHERE id = $1 AND status = 'active'
	`
	_, err := tx.ExecContext(ctx, query, sessionID)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.ExclusiveSession, error) {
	var s models.ExclusiveSession
	if err := row.Scan(
		&s.ID,
		&s.DriverID,
		&s.ChargerID,
		&s.MerchantID,
		&s.IntentID,
		&s.Status,
		&s.ActivatedAt,
		&s.ExpiresAt,
		&s.CompletedAt,
		&s.Feedback,
		&s.Lat,
		&s.Lng,
		&s.Accuracy,
		&s.DistanceMeters,
		&s.CreatedAt,
		&s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &s, nil
}
