package handlers

import (
	"context"

	"bankledger/internal/models"
	"bankledger/internal/services"
)

type LedgerEngine interface {
	OpenAccount(ctx context.Context, customerID, branchID, accountTypeCode, actor string) (string, error)
	Deposit(ctx context.Context, req services.DepositRequest) (string, error)
	Withdraw(ctx context.Context, req services.WithdrawRequest) (string, error)
	Transfer(ctx context.Context, req services.TransferRequest) (string, error)
	PostFee(ctx context.Context, req services.FeeRequest) (string, error)
	PostInterestBatch(ctx context.Context, req services.InterestBatchRequest) (services.InterestBatchResult, error)
	FreezeAccount(ctx context.Context, accountID, actor string) error
	UnfreezeAccount(ctx context.Context, accountID, actor string) error
	CloseAccount(ctx context.Context, accountID, actor string) error
}

type LoanService interface {
	CreateAndDisburse(ctx context.Context, req services.CreateLoanRequest) (string, error)
	RecordPayment(ctx context.Context, req services.LoanPaymentRequest) (string, error)
	MarkDefaulted(ctx context.Context, loanID, actor string) error
	GetLoan(ctx context.Context, loanID string) (models.Loan, []models.LoanPayment, error)
}

type AccountReader interface {
	GetByID(ctx context.Context, accountID string) (models.Account, error)
	ListByCustomer(ctx context.Context, customerID string) ([]models.Account, error)
}

type LedgerReader interface {
	ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]models.Transaction, error)
}

type AuditReader interface {
	List(ctx context.Context, limit, offset int) ([]models.AuditRecord, error)
}
