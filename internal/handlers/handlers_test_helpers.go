package handlers

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"bankledger/internal/config"
	"bankledger/internal/models"
	"bankledger/internal/services"
	"bankledger/internal/websocket"
)

type stubEngine struct {
	openAccountFn   func(ctx context.Context, customerID, branchID, accountTypeCode, actor string) (string, error)
	depositFn       func(ctx context.Context, req services.DepositRequest) (string, error)
	withdrawFn      func(ctx context.Context, req services.WithdrawRequest) (string, error)
	transferFn      func(ctx context.Context, req services.TransferRequest) (string, error)
	postFeeFn       func(ctx context.Context, req services.FeeRequest) (string, error)
	interestBatchFn func(ctx context.Context, req services.InterestBatchRequest) (services.InterestBatchResult, error)
	freezeFn        func(ctx context.Context, accountID, actor string) error
	unfreezeFn      func(ctx context.Context, accountID, actor string) error
	closeFn         func(ctx context.Context, accountID, actor string) error
}

func (s stubEngine) OpenAccount(ctx context.Context, customerID, branchID, accountTypeCode, actor string) (string, error) {
	if s.openAccountFn == nil {
		return "", nil
	}
	return s.openAccountFn(ctx, customerID, branchID, accountTypeCode, actor)
}

func (s stubEngine) Deposit(ctx context.Context, req services.DepositRequest) (string, error) {
	if s.depositFn == nil {
		return "", nil
	}
	return s.depositFn(ctx, req)
}

func (s stubEngine) Withdraw(ctx context.Context, req services.WithdrawRequest) (string, error) {
	if s.withdrawFn == nil {
		return "", nil
	}
	return s.withdrawFn(ctx, req)
}

func (s stubEngine) Transfer(ctx context.Context, req services.TransferRequest) (string, error) {
	if s.transferFn == nil {
		return "", nil
	}
	return s.transferFn(ctx, req)
}

func (s stubEngine) PostFee(ctx context.Context, req services.FeeRequest) (string, error) {
	if s.postFeeFn == nil {
		return "", nil
	}
	return s.postFeeFn(ctx, req)
}

func (s stubEngine) PostInterestBatch(ctx context.Context, req services.InterestBatchRequest) (services.InterestBatchResult, error) {
	if s.interestBatchFn == nil {
		return services.InterestBatchResult{}, nil
	}
	return s.interestBatchFn(ctx, req)
}

func (s stubEngine) FreezeAccount(ctx context.Context, accountID, actor string) error {
	if s.freezeFn == nil {
		return nil
	}
	return s.freezeFn(ctx, accountID, actor)
}

func (s stubEngine) UnfreezeAccount(ctx context.Context, accountID, actor string) error {
	if s.unfreezeFn == nil {
		return nil
	}
	return s.unfreezeFn(ctx, accountID, actor)
}

func (s stubEngine) CloseAccount(ctx context.Context, accountID, actor string) error {
	if s.closeFn == nil {
		return nil
	}
	return s.closeFn(ctx, accountID, actor)
}

type stubLoanService struct {
	createFn  func(ctx context.Context, req services.CreateLoanRequest) (string, error)
	paymentFn func(ctx context.Context, req services.LoanPaymentRequest) (string, error)
	defaultFn func(ctx context.Context, loanID, actor string) error
	getLoanFn func(ctx context.Context, loanID string) (models.Loan, []models.LoanPayment, error)
}

func (s stubLoanService) CreateAndDisburse(ctx context.Context, req services.CreateLoanRequest) (string, error) {
	if s.createFn == nil {
		return "", nil
	}
	return s.createFn(ctx, req)
}

func (s stubLoanService) RecordPayment(ctx context.Context, req services.LoanPaymentRequest) (string, error) {
	if s.paymentFn == nil {
		return "", nil
	}
	return s.paymentFn(ctx, req)
}

func (s stubLoanService) MarkDefaulted(ctx context.Context, loanID, actor string) error {
	if s.defaultFn == nil {
		return nil
	}
	return s.defaultFn(ctx, loanID, actor)
}

func (s stubLoanService) GetLoan(ctx context.Context, loanID string) (models.Loan, []models.LoanPayment, error) {
	if s.getLoanFn == nil {
		return models.Loan{}, nil, nil
	}
	return s.getLoanFn(ctx, loanID)
}

type stubAccountReader struct {
	getByIDFn        func(ctx context.Context, accountID string) (models.Account, error)
	listByCustomerFn func(ctx context.Context, customerID string) ([]models.Account, error)
}

func (s stubAccountReader) GetByID(ctx context.Context, accountID string) (models.Account, error) {
	if s.getByIDFn == nil {
		return models.Account{}, nil
	}
	return s.getByIDFn(ctx, accountID)
}

func (s stubAccountReader) ListByCustomer(ctx context.Context, customerID string) ([]models.Account, error) {
	if s.listByCustomerFn == nil {
		return nil, nil
	}
	return s.listByCustomerFn(ctx, customerID)
}

type stubLedgerReader struct {
	listFn func(ctx context.Context, accountID string, limit, offset int) ([]models.Transaction, error)
}

func (s stubLedgerReader) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]models.Transaction, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, accountID, limit, offset)
}

type stubAuditReader struct {
	listFn func(ctx context.Context, limit, offset int) ([]models.AuditRecord, error)
}

func (s stubAuditReader) List(ctx context.Context, limit, offset int) ([]models.AuditRecord, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, limit, offset)
}

type stubReconcileDB struct {
	selectFn func(ctx context.Context, dest any, query string, args ...any) error
}

func (s stubReconcileDB) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	if s.selectFn == nil {
		return nil
	}
	return s.selectFn(ctx, dest, query, args...)
}

type testDeps struct {
	reconcileDB stubReconcileDB
	accounts    stubAccountReader
	ledger      stubLedgerReader
	audit       stubAuditReader
	engine      stubEngine
	loans       stubLoanService
}

func newTestHandler(deps testDeps) *Handler {
	cfg := config.Config{
		AppEnv:         "test",
		Port:           "0",
		AllowedOrigins: "*",
		LockTimeout:    time.Second,
	}
	return New(deps.reconcileDB, cfg, deps.accounts, deps.ledger, deps.audit, deps.engine, deps.loans, websocket.NewHub())
}

func serve(t *testing.T, h *Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	return serveAs(t, h, method, path, body, "teller-1")
}

func serveAs(t *testing.T, h *Handler, method, path, body, actor string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if actor != "" {
		req.Header.Set("X-Actor-ID", actor)
	}
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)
	return rr
}
