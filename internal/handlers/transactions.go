package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"bankledger/internal/middleware"
	"bankledger/internal/services"

	"github.com/go-chi/chi/v5"
)

type movementRequest struct {
	AccountID string `json:"account_id"`
	Amount    string `json:"amount"`
	Reference string `json:"reference"`
}

func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromContext(r.Context())
	var req movementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	amountMinor, err := parseAmountMinor(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	txnID, err := h.engine.Deposit(r.Context(), services.DepositRequest{
		AccountID: req.AccountID,
		Amount:    amountMinor,
		Reference: optionalRef(req.Reference),
		Actor:     actor,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"transaction_id": txnID})
}

func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromContext(r.Context())
	var req movementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	amountMinor, err := parseAmountMinor(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	txnID, err := h.engine.Withdraw(r.Context(), services.WithdrawRequest{
		AccountID: req.AccountID,
		Amount:    amountMinor,
		Reference: optionalRef(req.Reference),
		Actor:     actor,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"transaction_id": txnID})
}

type transferRequest struct {
	FromAccountID string `json:"from_account_id"`
	ToAccountID   string `json:"to_account_id"`
	Amount        string `json:"amount"`
	Reference     string `json:"reference"`
}

func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromContext(r.Context())
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.FromAccountID == "" || req.ToAccountID == "" {
		respondError(w, http.StatusBadRequest, "from_account_id and to_account_id are required")
		return
	}
	amountMinor, err := parseAmountMinor(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	txnID, err := h.engine.Transfer(r.Context(), services.TransferRequest{
		FromAccountID: req.FromAccountID,
		ToAccountID:   req.ToAccountID,
		Amount:        amountMinor,
		Reference:     optionalRef(req.Reference),
		Actor:         actor,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"transaction_id": txnID})
}

func (h *Handler) PostFee(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromContext(r.Context())
	var req movementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	amountMinor, err := parseAmountMinor(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	txnID, err := h.engine.PostFee(r.Context(), services.FeeRequest{
		AccountID: req.AccountID,
		Amount:    amountMinor,
		Reference: optionalRef(req.Reference),
		Actor:     actor,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"transaction_id": txnID})
}

type interestBatchRequest struct {
	AccountTypeCode   string `json:"account_type_code"`
	AnnualRatePercent string `json:"annual_rate_percent"`
}

func (h *Handler) PostInterestBatch(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromContext(r.Context())
	var req interestBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	rate, err := parseRate(req.AnnualRatePercent)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_rate")
		return
	}
	result, err := h.engine.PostInterestBatch(r.Context(), services.InterestBatchRequest{
		AccountTypeCode:   req.AccountTypeCode,
		AnnualRatePercent: rate,
		Actor:             actor,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")
	limit, offset := pageParams(r, 50)
	records, err := h.ledger.ListByAccount(r.Context(), accountID, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load transactions")
		return
	}
	normalized := make([]map[string]any, 0, len(records))
	for _, record := range records {
		normalized = append(normalized, map[string]any{
			"id":                      record.ID,
			"account_id":              record.AccountID,
			"type":                    record.Type,
			"amount":                  valueToMoney(record.Amount),
			"counterparty_account_id": record.CounterpartyAccountID,
			"reference":               record.Reference,
			"actor":                   record.Actor,
			"created_at":              record.CreatedAt,
		})
	}
	respondJSON(w, http.StatusOK, normalized)
}

func (h *Handler) ListAuditRecords(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r, 100)
	records, err := h.audit.List(r.Context(), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load audit records")
		return
	}
	respondJSON(w, http.StatusOK, records)
}

func pageParams(r *http.Request, defaultLimit int) (int, int) {
	limit := defaultLimit
	offset := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	return limit, offset
}
