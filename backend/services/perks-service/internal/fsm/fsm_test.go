package fsm

import (
	"testing"

	"chargeperks/backend/services/perks-service/internal/models"
)

func TestCanTransitionSession(t *testing.T) {
	cases := []struct {
		from, to string
		want     bool
	}{
		{models.SessionStatusActive, models.SessionStatusCompleted, true},
		{models.SessionStatusActive, models.SessionStatusExpired, true},
		{models.SessionStatusActive, models.SessionStatusCanceled, true},
		{models.SessionStatusActive, models.SessionStatusActive, false},
		{models.SessionStatusCompleted, models.SessionStatusActive, false},
		{models.SessionStatusCompleted, models.SessionStatusExpired, false},
		{models.SessionStatusExpired, models.SessionStatusCompleted, false},
		{models.SessionStatusCanceled, models.SessionStatusActive, false},
		{"bogus", models.SessionStatusCompleted, false},
	}

	for _, tc := range cases {
		if got := CanTransitionSession(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransitionSession(%q, %q) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestCanTransitionArrival(t *testing.T) {
	cases := []struct {
		from, to string
		want     bool
	}{
		{models.ArrivalStatePending, models.ArrivalStateCarVerified, true},
		{models.ArrivalStatePending, models.ArrivalStateArrived, false},
		{models.ArrivalStatePending, models.ArrivalStateExpired, true},
		{models.ArrivalStateCarVerified, models.ArrivalStateArrived, true},
		{models.ArrivalStateCarVerified, models.ArrivalStatePending, false},
		{models.ArrivalStateCarVerified, models.ArrivalStateExpired, true},
		{models.ArrivalStateArrived, models.ArrivalStateRedeemed, true},
		{models.ArrivalStateArrived, models.ArrivalStateExpired, true},
		{models.ArrivalStateRedeemed, models.ArrivalStateExpired, false},
		{models.ArrivalStateExpired, models.ArrivalStatePending, false},
	}

	for _, tc := range cases {
		if got := CanTransitionArrival(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransitionArrival(%q, %q) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}
