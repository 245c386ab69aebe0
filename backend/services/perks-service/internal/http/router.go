package httpserver

import "net/http"

// Routes groups handlers.
type Routes struct {
	Activate        http.HandlerFunc
	Complete        http.HandlerFunc
	Cancel          http.HandlerFunc
	GetActive       http.HandlerFunc
	ArrivalCheckIn  http.HandlerFunc
	ArrivalVerify   http.HandlerFunc
	ArrivalLocation http.HandlerFunc
	ArrivalRedeem   http.HandlerFunc
	Health          http.HandlerFunc
}

// NewRouter registers endpoints. Auth wraps everything except health; arrival
// verification past check-in is authorized by the session token itself.
func NewRouter(routes Routes, auth func(http.Handler) http.Handler) http.Handler {
	mux := http.NewServeMux()
	register := func(pattern, expected string, handler http.HandlerFunc, authed bool) {
		if handler == nil {
			return
		}
		var h http.Handler = method(expected, handler)
		if authed && auth != nil {
			h = auth(h)
		}
		mux.Handle(pattern, h)
	}

	register("/sessions/activate", http.MethodPost, routes.Activate, true)
	register("/sessions/complete", http.MethodPost, routes.Complete, true)
	register("/sessions/cancel", http.MethodPost, routes.Cancel, true)
	register("/sessions/active", http.MethodGet, routes.GetActive, true)
	register("/arrival/check-in", http.MethodPost, routes.ArrivalCheckIn, true)
	register("/arrival/verify-pin", http.MethodPost, routes.ArrivalVerify, false)
	register("/arrival/location", http.MethodPost, routes.ArrivalLocation, false)
	register("/arrival/redeem", http.MethodPost, routes.ArrivalRedeem, false)
	register("/health", http.MethodGet, routes.Health, false)

	return mux
}

func method(expected string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != expected {
			w.Header().Set("Allow", expected)
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		handler(w, r)
	}
}
