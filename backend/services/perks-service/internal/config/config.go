package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	libconfig "chargeperks/backend/libs/config"
)

// HTTPConfig holds listener settings.
type HTTPConfig struct {
	Port string `yaml:"port" env:"PERKS_HTTP_PORT"`
}

// DatabaseConfig holds postgres settings.
type DatabaseConfig struct {
	DSN string `yaml:"dsn" env:"PERKS_POSTGRES_DSN"`
}

// RedisConfig holds cache settings.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"PERKS_REDIS_ADDR"`
	Password string `yaml:"password" env:"PERKS_REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"PERKS_REDIS_DB"`
	TTL      int    `yaml:"ttlSeconds" env:"PERKS_REDIS_TTL"`
}

// AuthConfig holds token verification settings.
type AuthConfig struct {
	JWTSecret string `yaml:"jwtSecret" env:"PERKS_JWT_SECRET"`
}

// ActivationConfig holds charger-level activation tunables.
type ActivationConfig struct {
	RadiusMeters   float64 `yaml:"radiusMeters" env:"PERKS_ACTIVATION_RADIUS_METERS"`
	SessionMinutes int     `yaml:"sessionMinutes" env:"PERKS_SESSION_MINUTES"`
}

// ArrivalConfig holds arrival-flow tunables. The merchant geofence is wider
// than the charger one; both stay configurable and out of the validator.
type ArrivalConfig struct {
	RadiusMeters     float64 `yaml:"radiusMeters" env:"PERKS_ARRIVAL_RADIUS_METERS"`
	PendingMinutes   int     `yaml:"pendingMinutes" env:"PERKS_ARRIVAL_PENDING_MINUTES"`
	VerifiedMinutes  int     `yaml:"verifiedMinutes" env:"PERKS_ARRIVAL_VERIFIED_MINUTES"`
	PromoMinutes     int     `yaml:"promoMinutes" env:"PERKS_PROMO_MINUTES"`
	MaxPinAttempts   int     `yaml:"maxPinAttempts" env:"PERKS_MAX_PIN_ATTEMPTS"`
	PinWindowSeconds int     `yaml:"pinWindowSeconds" env:"PERKS_PIN_WINDOW_SECONDS"`
}

// Config defines perks service configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Auth       AuthConfig       `yaml:"auth"`
	Activation ActivationConfig `yaml:"activation"`
	Arrival    ArrivalConfig    `yaml:"arrival"`
}

// Load reads configuration via the shared helper and applies defaults.
func Load() (*Config, error) {
	cfg := &Config{
		HTTP: HTTPConfig{Port: "8084"},
		Redis: RedisConfig{
			Addr: "localhost:6379",
			TTL:  3600,
		},
		Activation: ActivationConfig{
			RadiusMeters:   150,
			SessionMinutes: 60,
		},
		Arrival: ArrivalConfig{
			RadiusMeters:     400,
			PendingMinutes:   15,
			VerifiedMinutes:  30,
			PromoMinutes:     10,
			MaxPinAttempts:   5,
			PinWindowSeconds: 300,
		},
	}

	if err := libconfig.LoadConfig(cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.Database.DSN) == "" {
		return nil, errors.New("config: database dsn required")
	}
	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		return nil, errors.New("config: jwt secret required")
	}
	if cfg.Activation.RadiusMeters <= 0 {
		return nil, errors.New("config: activation radius must be positive")
	}
	if cfg.Arrival.RadiusMeters <= 0 {
		return nil, errors.New("config: arrival radius must be positive")
	}
	return cfg, nil
}

// HTTPAddress returns :port style.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = "8084"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}

// SessionDuration returns the exclusive-session lifetime.
func (c *Config) SessionDuration() time.Duration {
	if c.Activation.SessionMinutes <= 0 {
		return 60 * time.Minute
	}
	return time.Duration(c.Activation.SessionMinutes) * time.Minute
}

// PendingTTL returns how long an arrival session may sit in pending.
func (c *Config) PendingTTL() time.Duration {
	if c.Arrival.PendingMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(c.Arrival.PendingMinutes) * time.Minute
}

// VerifiedTTL returns how long car_verified may wait for geofence entry.
func (c *Config) VerifiedTTL() time.Duration {
	if c.Arrival.VerifiedMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.Arrival.VerifiedMinutes) * time.Minute
}

// PromoValidity returns the promo code validity window.
func (c *Config) PromoValidity() time.Duration {
	if c.Arrival.PromoMinutes <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(c.Arrival.PromoMinutes) * time.Minute
}

// PinAttemptWindow returns the rate-limit window for PIN attempts.
func (c *Config) PinAttemptWindow() time.Duration {
	if c.Arrival.PinWindowSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Arrival.PinWindowSeconds) * time.Second
}

// ActiveCacheTTL returns the redis cache ttl as duration.
func (c *Config) ActiveCacheTTL() time.Duration {
	if c.Redis.TTL <= 0 {
		return time.Hour
	}
	return time.Duration(c.Redis.TTL) * time.Second
}
