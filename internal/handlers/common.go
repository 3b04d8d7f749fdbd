// Package handlers exposes the engines over HTTP. Each handler decodes the
// request, calls the engine with the authenticated caller address, and maps
// the error taxonomy onto status codes.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/agoramarket/backend/internal/middleware"
	"github.com/agoramarket/backend/internal/models"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, models.ErrUnauthorized):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
	case errors.Is(err, models.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, models.ErrInsufficientFunds), errors.Is(err, models.ErrInsufficientStake):
		writeJSON(w, http.StatusPaymentRequired, map[string]string{"error": err.Error()})
	case errors.Is(err, models.ErrInvalidStatus), errors.Is(err, models.ErrAlreadyDone), errors.Is(err, models.ErrExpired):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, models.ErrInvalidProof):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	default:
		logger.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func callerFromRequest(r *http.Request) common.Address {
	return middleware.CallerFromCtx(r.Context())
}

// callerOr401 returns the authenticated address, writing 401 when absent.
func callerOr401(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	caller := callerFromRequest(r)
	if caller == (common.Address{}) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return common.Address{}, false
	}
	return caller, true
}
