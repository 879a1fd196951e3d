package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"bankledger/internal/middleware"

	"github.com/go-chi/chi/v5"
)

type openAccountRequest struct {
	CustomerID      string `json:"customer_id"`
	BranchID        string `json:"branch_id"`
	AccountTypeCode string `json:"account_type_code"`
}

func (h *Handler) OpenAccount(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromContext(r.Context())
	var req openAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.CustomerID == "" || req.BranchID == "" || req.AccountTypeCode == "" {
		respondError(w, http.StatusBadRequest, "customer_id, branch_id and account_type_code are required")
		return
	}
	accountID, err := h.engine.OpenAccount(r.Context(), req.CustomerID, req.BranchID, req.AccountTypeCode, actor)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"account_id": accountID})
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	account, err := h.accounts.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusNotFound, "account not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"id":              account.ID,
		"customer_id":     account.CustomerID,
		"branch_id":       account.BranchID,
		"account_type_id": account.AccountTypeID,
		"balance":         valueToMoney(account.Balance),
		"status":          account.Status,
		"opened_at":       account.OpenedAt,
		"closed_at":       account.ClosedAt,
	})
}

func (h *Handler) ListCustomerAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.accounts.ListByCustomer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load accounts")
		return
	}
	normalized := make([]map[string]any, 0, len(accounts))
	for _, account := range accounts {
		normalized = append(normalized, map[string]any{
			"id":        account.ID,
			"balance":   valueToMoney(account.Balance),
			"status":    account.Status,
			"opened_at": account.OpenedAt,
		})
	}
	respondJSON(w, http.StatusOK, normalized)
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")
	account, err := h.accounts.GetByID(r.Context(), accountID)
	if err != nil {
		respondError(w, http.StatusNotFound, "account not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"account_id": accountID,
		"balance":    valueToMoney(account.Balance),
		"status":     account.Status,
	})
}

// SelfCheck compares the stored balance against the signed ledger sum.
// FEE records carry the nominal fee amount, so an account that ever had a
// fee capped at available balance reports a nonzero difference here.
func (h *Handler) SelfCheck(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")
	type row struct {
		AccountID      string `db:"account_id"`
		AccountBalance int64  `db:"account_balance"`
		LedgerSum      int64  `db:"ledger_sum"`
		Difference     int64  `db:"difference"`
	}
	query := `
		SELECT a.id AS account_id,
		       a.balance AS account_balance,
		       COALESCE(SUM(CASE WHEN t.type IN ('DEPOSIT', 'TRANSFER_IN', 'INTEREST') THEN t.amount ELSE -t.amount END), 0) AS ledger_sum,
		       (a.balance - COALESCE(SUM(CASE WHEN t.type IN ('DEPOSIT', 'TRANSFER_IN', 'INTEREST') THEN t.amount ELSE -t.amount END), 0)) AS difference
		FROM accounts a
		LEFT JOIN transactions t ON t.account_id = a.id
		WHERE a.id = $1
		GROUP BY a.id, a.balance
	`
	var rows []row
	if err := h.reconcileDB.SelectContext(r.Context(), &rows, query, accountID); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to self_check")
		return
	}
	if len(rows) == 0 {
		respondError(w, http.StatusNotFound, "account not found")
		return
	}
	item := rows[0]
	respondJSON(w, http.StatusOK, map[string]any{
		"account_id":      item.AccountID,
		"account_balance": valueToMoney(item.AccountBalance),
		"ledger_sum":      valueToMoney(item.LedgerSum),
		"difference":      valueToMoney(item.Difference),
	})
}

func (h *Handler) FreezeAccount(w http.ResponseWriter, r *http.Request) {
	h.statusChange(w, r, h.engine.FreezeAccount, "frozen")
}

func (h *Handler) UnfreezeAccount(w http.ResponseWriter, r *http.Request) {
	h.statusChange(w, r, h.engine.UnfreezeAccount, "active")
}

func (h *Handler) CloseAccount(w http.ResponseWriter, r *http.Request) {
	h.statusChange(w, r, h.engine.CloseAccount, "closed")
}

func (h *Handler) statusChange(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, accountID, actor string) error, result string) {
	actor, _ := middleware.ActorFromContext(r.Context())
	accountID := chi.URLParam(r, "id")
	if err := op(r.Context(), accountID, actor); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"account_id": accountID, "status": result})
}
