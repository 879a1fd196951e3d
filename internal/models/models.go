package models

import "time"

type AccountStatus string

const (
	AccountActive AccountStatus = "ACTIVE"
	AccountFrozen AccountStatus = "FROZEN"
	AccountClosed AccountStatus = "CLOSED"
)

type TransactionType string

const (
	TxDeposit     TransactionType = "DEPOSIT"
	TxWithdrawal  TransactionType = "WITHDRAWAL"
	TxTransferIn  TransactionType = "TRANSFER_IN"
	TxTransferOut TransactionType = "TRANSFER_OUT"
	TxInterest    TransactionType = "INTEREST"
	TxFee         TransactionType = "FEE"
)

type LoanStatus string

const (
	LoanPending   LoanStatus = "PENDING"
	LoanActive    LoanStatus = "ACTIVE"
	LoanClosed    LoanStatus = "CLOSED"
	LoanDefaulted LoanStatus = "DEFAULTED"
)

type Account struct {
	ID            string        `db:"id" json:"id"`
	CustomerID    string        `db:"customer_id" json:"customer_id"`
	BranchID      string        `db:"branch_id" json:"branch_id"`
	AccountTypeID string        `db:"account_type_id" json:"account_type_id"`
	Balance       int64         `db:"balance" json:"balance"`
	Status        AccountStatus `db:"status" json:"status"`
	OpenedAt      time.Time     `db:"opened_at" json:"opened_at"`
	ClosedAt      *time.Time    `db:"closed_at" json:"closed_at,omitempty"`
}

// Transaction is one immutable ledger record. Amount is always positive;
// direction is carried by Type.
type Transaction struct {
	ID                    string          `db:"id" json:"id"`
	AccountID             string          `db:"account_id" json:"account_id"`
	Type                  TransactionType `db:"type" json:"type"`
	Amount                int64           `db:"amount" json:"amount"`
	CounterpartyAccountID *string         `db:"counterparty_account_id" json:"counterparty_account_id,omitempty"`
	Reference             *string         `db:"reference" json:"reference,omitempty"`
	Actor                 string          `db:"actor" json:"actor"`
	CreatedAt             time.Time       `db:"created_at" json:"created_at"`
}

type AuditRecord struct {
	ID         string    `db:"id" json:"id"`
	Actor      string    `db:"actor" json:"actor"`
	Action     string    `db:"action" json:"action"`
	EntityType string    `db:"entity_type" json:"entity_type"`
	EntityID   string    `db:"entity_id" json:"entity_id"`
	Detail     string    `db:"detail" json:"detail"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

type Loan struct {
	ID          string     `db:"id" json:"id"`
	CustomerID  string     `db:"customer_id" json:"customer_id"`
	BranchID    string     `db:"branch_id" json:"branch_id"`
	ProductID   string     `db:"product_id" json:"product_id"`
	Principal   int64      `db:"principal" json:"principal"`
	Disbursed   int64      `db:"disbursed" json:"disbursed"`
	Outstanding int64      `db:"outstanding" json:"outstanding"`
	Status      LoanStatus `db:"status" json:"status"`
	OpenedAt    time.Time  `db:"opened_at" json:"opened_at"`
	ClosedAt    *time.Time `db:"closed_at" json:"closed_at,omitempty"`
}

type LoanPayment struct {
	ID        string    `db:"id" json:"id"`
	LoanID    string    `db:"loan_id" json:"loan_id"`
	Amount    int64     `db:"amount" json:"amount"`
	Method    string    `db:"method" json:"method"`
	Reference string    `db:"reference" json:"reference"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type AccountType struct {
	ID   string `db:"id" json:"id"`
	Code string `db:"code" json:"code"`
	Name string `db:"name" json:"name"`
}

type LoanProduct struct {
	ID                string `db:"id" json:"id"`
	Code              string `db:"code" json:"code"`
	Name              string `db:"name" json:"name"`
	AnnualRatePercent string `db:"annual_rate_percent" json:"annual_rate_percent"`
	TermMonths        int    `db:"term_months" json:"term_months"`
}
