package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"chargeperks/backend/services/perks-service/internal/repository"
	"chargeperks/backend/services/perks-service/internal/service"
)

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError maps the coordinator error taxonomy onto HTTP statuses.
// Out-of-radius responses always disclose the measured distance.
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var validationErr *service.ValidationError
	if errors.As(err, &validationErr) {
		writeError(w, http.StatusBadRequest, validationErr.Error())
		return
	}

	var radiusErr *service.OutOfRadiusError
	if errors.As(err, &radiusErr) {
		writeJSON(w, http.StatusForbidden, map[string]interface{}{
			"error":           radiusErr.Error(),
			"distance_meters": radiusErr.DistanceMeters,
			"radius_meters":   radiusErr.RadiusMeters,
		})
		return
	}

	switch {
	case errors.Is(err, repository.ErrChargerNotFound),
		errors.Is(err, repository.ErrMerchantNotFound),
		errors.Is(err, repository.ErrSessionNotFound),
		errors.Is(err, repository.ErrArrivalNotFound),
		errors.Is(err, service.ErrNotSessionOwner):
		// foreign sessions are reported as missing, not as forbidden
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, service.ErrSessionExpired):
		writeError(w, http.StatusConflict, "session already expired")
	case errors.Is(err, repository.ErrStateConflict):
		writeError(w, http.StatusConflict, "conflicting session state")
	case errors.Is(err, service.ErrArrivalExpired):
		writeError(w, http.StatusGone, "arrival session expired")
	case errors.Is(err, service.ErrInvalidPin):
		writeError(w, http.StatusUnprocessableEntity, "invalid pin code")
	case errors.Is(err, service.ErrTooManyPinAttempts):
		writeError(w, http.StatusTooManyRequests, "too many pin attempts")
	default:
		logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
