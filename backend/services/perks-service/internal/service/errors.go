package service

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced by the coordinators.
var (
	ErrNotSessionOwner    = errors.New("session belongs to another driver")
	ErrSessionExpired     = errors.New("session already past its deadline")
	ErrInvalidPin         = errors.New("invalid pin code")
	ErrTooManyPinAttempts = errors.New("too many pin attempts")
	ErrArrivalExpired     = errors.New("arrival session expired")
)

// ValidationError reports a missing or malformed request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("%s is required", e.Field)
}

// OutOfRadiusError is returned when an activation attempt falls outside the
// configured geofence. It always carries the measured distance so the client
// can render an exact message instead of a generic failure.
type OutOfRadiusError struct {
	DistanceMeters float64
	RadiusMeters   float64
}

func (e *OutOfRadiusError) Error() string {
	return fmt.Sprintf("out of radius: %.0fm away, must be within %.0fm", e.DistanceMeters, e.RadiusMeters)
}
