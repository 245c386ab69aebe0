package fsm

import "chargeperks/backend/services/perks-service/internal/models"

// sessionTransitions covers the exclusive-session machine. ACTIVE is the only
// non-terminal state; every terminal state absorbs.
var sessionTransitions = map[string]map[string]struct{}{
	models.SessionStatusActive: {
		models.SessionStatusCompleted: {},
		models.SessionStatusExpired:   {},
		models.SessionStatusCanceled:  {},
	},
	models.SessionStatusCompleted: {},
	models.SessionStatusExpired:   {},
	models.SessionStatusCanceled:  {},
}

// arrivalTransitions covers the arrival-verification machine. Expiry is
// reachable from every non-terminal state; redeemed and expired absorb.
var arrivalTransitions = map[string]map[string]struct{}{
	models.ArrivalStatePending: {
		models.ArrivalStateCarVerified: {},
		models.ArrivalStateExpired:     {},
	},
	models.ArrivalStateCarVerified: {
		models.ArrivalStateArrived: {},
		models.ArrivalStateExpired: {},
	},
	models.ArrivalStateArrived: {
		models.ArrivalStateRedeemed: {},
		models.ArrivalStateExpired:  {},
	},
	models.ArrivalStateRedeemed: {},
	models.ArrivalStateExpired:  {},
}

// CanTransitionSession reports whether an exclusive session may move from one
// status to another. Self-transitions are not legal; statuses are monotone.
func CanTransitionSession(from, to string) bool {
	return allowed(sessionTransitions, from, to)
}

// CanTransitionArrival reports whether an arrival session may move between states.
func CanTransitionArrival(from, to string) bool {
	return allowed(arrivalTransitions, from, to)
}

func allowed(table map[string]map[string]struct{}, from, to string) bool {
	next, ok := table[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}
