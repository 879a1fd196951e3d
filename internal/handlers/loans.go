package handlers

import (
	"encoding/json"
	"net/http"

	"bankledger/internal/middleware"
	"bankledger/internal/services"

	"github.com/go-chi/chi/v5"
)

type createLoanRequest struct {
	CustomerID      string `json:"customer_id"`
	BranchID        string `json:"branch_id"`
	ProductCode     string `json:"product_code"`
	Principal       string `json:"principal"`
	TargetAccountID string `json:"target_account_id"`
}

func (h *Handler) CreateLoan(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromContext(r.Context())
	var req createLoanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.CustomerID == "" || req.BranchID == "" || req.ProductCode == "" || req.TargetAccountID == "" {
		respondError(w, http.StatusBadRequest, "customer_id, branch_id, product_code and target_account_id are required")
		return
	}
	principalMinor, err := parseAmountMinor(req.Principal)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	loanID, err := h.loans.CreateAndDisburse(r.Context(), services.CreateLoanRequest{
		CustomerID:      req.CustomerID,
		BranchID:        req.BranchID,
		ProductCode:     req.ProductCode,
		Principal:       principalMinor,
		TargetAccountID: req.TargetAccountID,
		Actor:           actor,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"loan_id": loanID})
}

func (h *Handler) GetLoan(w http.ResponseWriter, r *http.Request) {
	loan, payments, err := h.loans.GetLoan(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	normalized := make([]map[string]any, 0, len(payments))
	for _, payment := range payments {
		normalized = append(normalized, map[string]any{
			"id":         payment.ID,
			"amount":     valueToMoney(payment.Amount),
			"method":     payment.Method,
			"reference":  payment.Reference,
			"created_at": payment.CreatedAt,
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"id":          loan.ID,
		"customer_id": loan.CustomerID,
		"branch_id":   loan.BranchID,
		"product_id":  loan.ProductID,
		"principal":   valueToMoney(loan.Principal),
		"disbursed":   valueToMoney(loan.Disbursed),
		"outstanding": valueToMoney(loan.Outstanding),
		"status":      loan.Status,
		"opened_at":   loan.OpenedAt,
		"closed_at":   loan.ClosedAt,
		"payments":    normalized,
	})
}

type loanPaymentRequest struct {
	FundingAccountID string `json:"funding_account_id"`
	Amount           string `json:"amount"`
	Method           string `json:"method"`
	Reference        string `json:"reference"`
}

func (h *Handler) RecordLoanPayment(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromContext(r.Context())
	var req loanPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.FundingAccountID == "" {
		respondError(w, http.StatusBadRequest, "funding_account_id is required")
		return
	}
	amountMinor, err := parseAmountMinor(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	paymentID, err := h.loans.RecordPayment(r.Context(), services.LoanPaymentRequest{
		LoanID:           chi.URLParam(r, "id"),
		FundingAccountID: req.FundingAccountID,
		Amount:           amountMinor,
		Method:           req.Method,
		Reference:        req.Reference,
		Actor:            actor,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"payment_id": paymentID})
}

func (h *Handler) DefaultLoan(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromContext(r.Context())
	loanID := chi.URLParam(r, "id")
	if err := h.loans.MarkDefaulted(r.Context(), loanID, actor); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"loan_id": loanID, "status": "defaulted"})
}
