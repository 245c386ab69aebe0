package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ActiveSession is the subset cached for quick "do I hold a grant" lookups by
// other services and the admin dashboard.
type ActiveSession struct {
	SessionID  string    `json:"session_id"`
	DriverID   int64     `json:"driver_id"`
	ChargerID  string    `json:"charger_id"`
	MerchantID string    `json:"merchant_id"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Store manages the active exclusive-session cache, keyed by driver.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore returns redis-backed store.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

func (s *Store) key(driverID int64) string {
	return fmt.Sprintf("perks:active:%d", driverID)
}

// Save caches the driver's active session.
func (s *Store) Save(ctx context.Context, session ActiveSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(session.DriverID), data, s.ttl).Err()
}

// Get returns the cached active session for a driver, redis.Nil when absent.
func (s *Store) Get(ctx context.Context, driverID int64) (*ActiveSession, error) {
	result, err := s.client.Get(ctx, s.key(driverID)).Result()
	if err != nil {
		return nil, err
	}
	var session ActiveSession
	if err := json.Unmarshal([]byte(result), &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// Delete drops the cached entry once the session reaches a terminal status.
func (s *Store) Delete(ctx context.Context, driverID int64) error {
	return s.client.Del(ctx, s.key(driverID)).Err()
}
