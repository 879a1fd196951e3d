package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"bankledger/internal/db"
	"bankledger/internal/money"
	"bankledger/internal/services"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondServiceError maps the engine's error taxonomy onto HTTP
// statuses. Invariant trips are 500 on purpose: they mean a validation
// bug, not a rejectable request.
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, services.ErrInvalidAmount):
		respondError(w, http.StatusBadRequest, "invalid_amount")
	case errors.Is(err, services.ErrSelfTransfer):
		respondError(w, http.StatusBadRequest, "self_transfer")
	case errors.Is(err, services.ErrAccountNotActive):
		respondError(w, http.StatusConflict, "account_not_active")
	case errors.Is(err, services.ErrLoanNotActive):
		respondError(w, http.StatusConflict, "loan_not_active")
	case errors.Is(err, services.ErrAccountNotEmpty):
		respondError(w, http.StatusConflict, "account_not_empty")
	case errors.Is(err, services.ErrInsufficientFunds):
		respondError(w, http.StatusUnprocessableEntity, "insufficient_funds")
	case errors.Is(err, db.ErrContention), errors.Is(err, db.ErrLockTimeout):
		respondError(w, http.StatusServiceUnavailable, "contention")
	default:
		respondError(w, http.StatusInternalServerError, "operation failed")
	}
}

func valueToMoney(value any) string {
	return money.FormatMinor(money.ValueToInt64(value))
}
