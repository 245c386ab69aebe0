package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"chargeperks/backend/services/perks-service/internal/http/middleware"
	"chargeperks/backend/services/perks-service/internal/service"
)

// ActivationHandler exposes the exclusive-session operations.
type ActivationHandler struct {
	svc    *service.ActivationService
	logger *zap.Logger
}

// NewActivationHandler builds handler set.
func NewActivationHandler(svc *service.ActivationService, logger *zap.Logger) *ActivationHandler {
	return &ActivationHandler{svc: svc, logger: logger}
}

type activateRequest struct {
	ChargerID  string   `json:"charger_id"`
	MerchantID string   `json:"merchant_id"`
	IntentID   *string  `json:"intent_id"`
	Lat        float64  `json:"lat"`
	Lng        float64  `json:"lng"`
	Accuracy   *float64 `json:"accuracy"`
}

type completeRequest struct {
	SessionID string  `json:"session_id"`
	Feedback  *string `json:"feedback"`
}

type cancelRequest struct {
	SessionID string `json:"session_id"`
}

// HandleActivate handles POST /sessions/activate.
func (h *ActivationHandler) HandleActivate(w http.ResponseWriter, r *http.Request) {
	driverID, ok := middleware.DriverIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req activateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	session, resumed, err := h.svc.Activate(r.Context(), service.ActivateInput{
		DriverID:   driverID,
		ChargerID:  req.ChargerID,
		MerchantID: req.MerchantID,
		IntentID:   req.IntentID,
		Lat:        req.Lat,
		Lng:        req.Lng,
		Accuracy:   req.Accuracy,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session": session,
		"resumed": resumed,
	})
}

// HandleComplete handles POST /sessions/complete.
func (h *ActivationHandler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	driverID, ok := middleware.DriverIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	session, err := h.svc.Complete(r.Context(), driverID, req.SessionID, req.Feedback)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  session.Status,
		"session": session,
	})
}

// HandleCancel handles POST /sessions/cancel.
func (h *ActivationHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	driverID, ok := middleware.DriverIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	session, err := h.svc.Cancel(r.Context(), driverID, req.SessionID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  session.Status,
		"session": session,
	})
}

// HandleGetActive handles GET /sessions/active. A null session body is the
// normal "nothing active" answer, lazy expiry included.
func (h *ActivationHandler) HandleGetActive(w http.ResponseWriter, r *http.Request) {
	driverID, ok := middleware.DriverIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	includeExpired, _ := strconv.ParseBool(r.URL.Query().Get("include_expired"))

	session, err := h.svc.GetActive(r.Context(), driverID, includeExpired)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session": session,
	})
}
