package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"bankledger/internal/models"
	"bankledger/internal/services"
)

func TestCreateLoanHandler(t *testing.T) {
	var got services.CreateLoanRequest
	h := newTestHandler(testDeps{loans: stubLoanService{
		createFn: func(ctx context.Context, req services.CreateLoanRequest) (string, error) {
			got = req
			return "loan-1", nil
		},
	}})

	rr := serve(t, h, http.MethodPost, "/loans", `{"customer_id":"cust-1","branch_id":"br-hq","product_code":"PERSONAL12","principal":"50000.00","target_account_id":"acc-1"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if got.Principal != 5000000 || got.ProductCode != "PERSONAL12" || got.TargetAccountID != "acc-1" {
		t.Fatalf("unexpected request: %+v", got)
	}
}

func TestCreateLoanHandlerValidation(t *testing.T) {
	h := newTestHandler(testDeps{})
	rr := serve(t, h, http.MethodPost, "/loans", `{"customer_id":"cust-1","product_code":"PERSONAL12","principal":"50000.00"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("missing fields: expected 400, got %d", rr.Code)
	}
	rr = serve(t, h, http.MethodPost, "/loans", `{"customer_id":"cust-1","branch_id":"br-hq","product_code":"PERSONAL12","principal":"-1","target_account_id":"acc-1"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad principal: expected 400, got %d", rr.Code)
	}
}

func TestRecordLoanPaymentHandler(t *testing.T) {
	var got services.LoanPaymentRequest
	h := newTestHandler(testDeps{loans: stubLoanService{
		paymentFn: func(ctx context.Context, req services.LoanPaymentRequest) (string, error) {
			got = req
			return "pay-1", nil
		},
	}})

	rr := serve(t, h, http.MethodPost, "/loans/loan-1/payments", `{"funding_account_id":"acc-1","amount":"5000.00","method":"TRANSFER"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if got.LoanID != "loan-1" || got.FundingAccountID != "acc-1" || got.Amount != 500000 {
		t.Fatalf("unexpected request: %+v", got)
	}
}

func TestRecordLoanPaymentHandlerInactiveLoan(t *testing.T) {
	h := newTestHandler(testDeps{loans: stubLoanService{
		paymentFn: func(ctx context.Context, req services.LoanPaymentRequest) (string, error) {
			return "", services.ErrLoanNotActive
		},
	}})
	rr := serve(t, h, http.MethodPost, "/loans/loan-1/payments", `{"funding_account_id":"acc-1","amount":"10.00"}`)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
}

func TestGetLoanHandler(t *testing.T) {
	h := newTestHandler(testDeps{loans: stubLoanService{
		getLoanFn: func(ctx context.Context, loanID string) (models.Loan, []models.LoanPayment, error) {
			return models.Loan{
					ID:          loanID,
					CustomerID:  "cust-1",
					Principal:   5000000,
					Disbursed:   5000000,
					Outstanding: 4500000,
					Status:      models.LoanActive,
					OpenedAt:    time.Now(),
				}, []models.LoanPayment{{
					ID:     "pay-1",
					LoanID: loanID,
					Amount: 500000,
				}}, nil
		},
	}})

	rr := serve(t, h, http.MethodGet, "/loans/loan-1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid response: %v", err)
	}
	if payload["outstanding"] != "45000.00" {
		t.Fatalf("expected outstanding 45000.00, got %v", payload["outstanding"])
	}
	payments, ok := payload["payments"].([]any)
	if !ok || len(payments) != 1 {
		t.Fatalf("expected one payment, got %v", payload["payments"])
	}
}

func TestGetLoanHandlerNotFound(t *testing.T) {
	h := newTestHandler(testDeps{loans: stubLoanService{
		getLoanFn: func(ctx context.Context, loanID string) (models.Loan, []models.LoanPayment, error) {
			return models.Loan{}, nil, services.ErrNotFound
		},
	}})
	rr := serve(t, h, http.MethodGet, "/loans/nope", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestDefaultLoanHandler(t *testing.T) {
	var gotLoanID, gotActor string
	h := newTestHandler(testDeps{loans: stubLoanService{
		defaultFn: func(ctx context.Context, loanID, actor string) error {
			gotLoanID, gotActor = loanID, actor
			return nil
		},
	}})
	rr := serve(t, h, http.MethodPost, "/loans/loan-1/default", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if gotLoanID != "loan-1" || gotActor != "teller-1" {
		t.Fatalf("unexpected call: %s/%s", gotLoanID, gotActor)
	}
}
