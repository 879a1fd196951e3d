package services

import (
	"context"
	"encoding/json"
	"fmt"

	"bankledger/internal/db"
	"bankledger/internal/models"
	"bankledger/internal/store"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// LoanService owns loan and payment state but never touches balances
// itself: all cash movement goes through the engine's in-transaction
// deposit and withdraw paths, inside the loan operation's own atomic
// unit.
type LoanService struct {
	txRunner db.TxRunner
	loans    LoanStore
	lookup   LookupStore
	audit    AuditStore
	engine   *LedgerService
}

type LoanStore interface {
	Create(ctx context.Context, tx store.Execer, id, customerID, branchID, productID string, principal int64) error
	GetByID(ctx context.Context, loanID string) (models.Loan, error)
	GetForUpdate(ctx context.Context, tx store.Getter, loanID string) (models.Loan, error)
	MarkDisbursed(ctx context.Context, tx store.Execer, loanID string, disbursed int64) error
	UpdateOutstanding(ctx context.Context, tx store.Execer, loanID string, outstanding int64) error
	SetStatus(ctx context.Context, tx store.Execer, loanID string, status models.LoanStatus) error
	CreatePayment(ctx context.Context, tx store.Execer, id, loanID string, amount int64, method, reference string) error
	ListPayments(ctx context.Context, loanID string) ([]models.LoanPayment, error)
}

func NewLoanService(txRunner db.TxRunner, loans LoanStore, lookup LookupStore, audit AuditStore, engine *LedgerService) *LoanService {
	return &LoanService{
		txRunner: txRunner,
		loans:    loans,
		lookup:   lookup,
		audit:    audit,
		engine:   engine,
	}
}

type CreateLoanRequest struct {
	CustomerID      string
	BranchID        string
	ProductCode     string
	Principal       int64
	TargetAccountID string
	Actor           string
}

// CreateAndDisburse creates the loan and delivers the principal as one
// atomic unit. If the disbursement deposit fails for any reason the loan
// row itself is rolled back; no PENDING loan survives a failed
// disbursement.
func (s *LoanService) CreateAndDisburse(ctx context.Context, req CreateLoanRequest) (string, error) {
	if req.Principal <= 0 {
		return "", ErrInvalidAmount
	}
	product, err := s.lookup.ResolveLoanProduct(ctx, req.ProductCode)
	if err != nil {
		return "", mapNoRows(err)
	}
	loanID := uuid.NewString()
	var disbursed posting
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.loans.Create(ctx, tx, loanID, req.CustomerID, req.BranchID, product.ID, req.Principal); err != nil {
			return err
		}
		reference := fmt.Sprintf("loan disbursement %s", loanID)
		var err error
		disbursed, err = s.engine.depositTx(ctx, tx, req.TargetAccountID, req.Principal, &reference, req.Actor)
		if err != nil {
			return err
		}
		if err := s.loans.MarkDisbursed(ctx, tx, loanID, req.Principal); err != nil {
			return err
		}
		detail, _ := json.Marshal(map[string]any{
			"product":           product.Code,
			"principal":         req.Principal,
			"target_account_id": req.TargetAccountID,
		})
		return s.audit.Log(ctx, tx, req.Actor, "loan.disburse", "loan", loanID, string(detail))
	})
	if err != nil {
		return "", err
	}
	s.engine.notifyBalance(disbursed)
	return loanID, nil
}

type LoanPaymentRequest struct {
	LoanID           string
	FundingAccountID string
	Amount           int64
	Method           string
	Reference        string
	Actor            string
}

// RecordPayment withdraws the full requested amount from the funding
// account and applies at most the outstanding balance to the loan. An
// overpayment still debits in full but clamps the loan at zero, which
// closes it.
func (s *LoanService) RecordPayment(ctx context.Context, req LoanPaymentRequest) (string, error) {
	if req.Amount <= 0 {
		return "", ErrInvalidAmount
	}
	paymentID := uuid.NewString()
	var withdrawn posting
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		loan, err := s.loans.GetForUpdate(ctx, tx, req.LoanID)
		if err != nil {
			return mapNoRows(err)
		}
		if loan.Status != models.LoanActive {
			return ErrLoanNotActive
		}
		reference := fmt.Sprintf("loan payment %s", req.LoanID)
		withdrawn, err = s.engine.withdrawTx(ctx, tx, req.FundingAccountID, req.Amount, &reference, req.Actor)
		if err != nil {
			return err
		}
		if err := s.loans.CreatePayment(ctx, tx, paymentID, req.LoanID, req.Amount, req.Method, req.Reference); err != nil {
			return err
		}
		applied := req.Amount
		if applied > loan.Outstanding {
			applied = loan.Outstanding
		}
		outstanding := loan.Outstanding - applied
		if err := s.loans.UpdateOutstanding(ctx, tx, req.LoanID, outstanding); err != nil {
			return err
		}
		detail, _ := json.Marshal(map[string]any{
			"amount":             req.Amount,
			"applied":            applied,
			"outstanding":        outstanding,
			"funding_account_id": req.FundingAccountID,
		})
		return s.audit.Log(ctx, tx, req.Actor, "loan.payment", "loan", req.LoanID, string(detail))
	})
	if err != nil {
		return "", err
	}
	s.engine.notifyBalance(withdrawn)
	return paymentID, nil
}

// MarkDefaulted is an administrative transition; nothing ledger-driven
// ever defaults a loan.
func (s *LoanService) MarkDefaulted(ctx context.Context, loanID, actor string) error {
	return s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		loan, err := s.loans.GetForUpdate(ctx, tx, loanID)
		if err != nil {
			return mapNoRows(err)
		}
		if loan.Status != models.LoanActive {
			return ErrLoanNotActive
		}
		if err := s.loans.SetStatus(ctx, tx, loanID, models.LoanDefaulted); err != nil {
			return err
		}
		return s.audit.Log(ctx, tx, actor, "loan.default", "loan", loanID, "{}")
	})
}

func (s *LoanService) GetLoan(ctx context.Context, loanID string) (models.Loan, []models.LoanPayment, error) {
	loan, err := s.loans.GetByID(ctx, loanID)
	if err != nil {
		return models.Loan{}, nil, mapNoRows(err)
	}
	payments, err := s.loans.ListPayments(ctx, loanID)
	if err != nil {
		return models.Loan{}, nil, err
	}
	return loan, payments, nil
}
