package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"chargeperks/backend/services/perks-service/internal/http/middleware"
	"chargeperks/backend/services/perks-service/internal/service"
)

// ArrivalHandler exposes the arrival verification flow.
type ArrivalHandler struct {
	svc    *service.ArrivalService
	logger *zap.Logger
}

// NewArrivalHandler builds handler set.
func NewArrivalHandler(svc *service.ArrivalService, logger *zap.Logger) *ArrivalHandler {
	return &ArrivalHandler{svc: svc, logger: logger}
}

type checkInRequest struct {
	MerchantID string `json:"merchant_id"`
}

type verifyPinRequest struct {
	Token string `json:"token"`
	Pin   string `json:"pin"`
}

type locationRequest struct {
	Token string  `json:"token"`
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
}

type redeemRequest struct {
	Token string `json:"token"`
}

// HandleCheckIn handles POST /arrival/check-in. The plain PIN appears in this
// response only; afterwards the server holds just its hash.
func (h *ArrivalHandler) HandleCheckIn(w http.ResponseWriter, r *http.Request) {
	driverID, ok := middleware.DriverIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req checkInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	arrival, pin, err := h.svc.CheckIn(r.Context(), driverID, req.MerchantID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"token":          arrival.Token,
		"pin":            pin,
		"state":          arrival.State,
		"state_deadline": arrival.StateDeadline,
	})
}

// HandleVerifyPin handles POST /arrival/verify-pin.
func (h *ArrivalHandler) HandleVerifyPin(w http.ResponseWriter, r *http.Request) {
	var req verifyPinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	arrival, err := h.svc.VerifyPin(r.Context(), req.Token, req.Pin)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session": arrival,
	})
}

// HandleLocation handles POST /arrival/location, one poll per request. The
// response carries the promo code once the session reaches arrived.
func (h *ArrivalHandler) HandleLocation(w http.ResponseWriter, r *http.Request) {
	var req locationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	arrival, distance, err := h.svc.PollLocation(r.Context(), req.Token, req.Lat, req.Lng)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session":         arrival,
		"distance_meters": distance,
	})
}

// HandleRedeem handles POST /arrival/redeem.
func (h *ArrivalHandler) HandleRedeem(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	arrival, err := h.svc.Redeem(r.Context(), req.Token)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  arrival.State,
		"session": arrival,
	})
}
