package repository

import (
	"context"
	"database/sql"
	"errors"

	"chargeperks/backend/services/perks-service/internal/models"
)

// Sentinel errors for place lookups.
var (
	ErrChargerNotFound  = errors.New("charger not found")
	ErrMerchantNotFound = errors.New("merchant not found")
)

// PlaceRepository resolves chargers and merchants to their coordinates.
type PlaceRepository struct {
	db *sql.DB
}

// NewPlaceRepository returns repository.
func NewPlaceRepository(db *sql.DB) *PlaceRepository {
	return &PlaceRepository{db: db}
}

// GetChargerByID fetches a charger with its geofence center.
func (r *PlaceRepository) GetChargerByID(ctx context.Context, id string) (*models.Charger, error) {
	const query = `
		SELECT id, merchant_id, name, lat, lng, created_at, updated_at
		FROM chargers
		WHERE id = $1
		LIMIT 1
	`
	var c models.Charger
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&c.ID, &c.MerchantID, &c.Name, &c.Lat, &c.Lng, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrChargerNotFound
		}
		return nil, err
	}
	return &c, nil
}

// GetMerchantByID fetches a merchant with its geofence center.
func (r *PlaceRepository) GetMerchantByID(ctx context.Context, id string) (*models.Merchant, error) {
	const query = `
		SELECT id, name, lat, lng, created_at, updated_at
		FROM merchants
		WHERE id = $1
		LIMIT 1
	`
	var m models.Merchant
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&m.ID, &m.Name, &m.Lat, &m.Lng, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMerchantNotFound
		}
		return nil, err
	}
	return &m, nil
}
