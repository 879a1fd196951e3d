package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"time"

	"bankledger/internal/db"
	"bankledger/internal/money"
	"bankledger/internal/models"
	"bankledger/internal/store"
	"bankledger/internal/websocket"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound           = errors.New("record not found")
	ErrAccountNotActive   = errors.New("account is not active")
	ErrLoanNotActive      = errors.New("loan is not active")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrSelfTransfer       = errors.New("cannot transfer to same account")
	ErrAccountNotEmpty    = errors.New("account balance must be zero to close")
	ErrInvariantViolation = errors.New("balance invariant violated")
)

// LedgerService is the only writer of account balances. Every operation
// runs as one transaction covering the balance change, the ledger append
// and the audit record.
type LedgerService struct {
	txRunner db.TxRunner
	accounts AccountStore
	ledger   LedgerStore
	audit    AuditStore
	lookup   LookupStore
	hub      BalanceHub
}

type AccountStore interface {
	Create(ctx context.Context, tx store.Execer, id, customerID, branchID, accountTypeID string) error
	GetByID(ctx context.Context, accountID string) (models.Account, error)
	GetForUpdate(ctx context.Context, tx store.Getter, accountID string) (models.Account, error)
	ApplyDelta(ctx context.Context, tx store.Execer, accountID string, delta int64) error
	SetStatus(ctx context.Context, tx store.Execer, accountID string, status models.AccountStatus) error
	CohortForUpdate(ctx context.Context, tx store.Selecter, accountTypeID string) ([]models.Account, error)
}

type LedgerStore interface {
	Append(ctx context.Context, tx store.Execer, input store.LedgerRecordInput) error
	SumByTypeOn(ctx context.Context, q store.Getter, accountID string, txType models.TransactionType, day time.Time) (int64, error)
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, actor, action, entityType, entityID, detail string) error
}

type LookupStore interface {
	ResolveAccountType(ctx context.Context, code string) (models.AccountType, error)
	ResolveLoanProduct(ctx context.Context, code string) (models.LoanProduct, error)
}

type BalanceHub interface {
	BroadcastBalance(customerID string, update websocket.BalanceUpdate)
}

func NewLedgerService(txRunner db.TxRunner, accounts AccountStore, ledger LedgerStore, audit AuditStore, lookup LookupStore, hub BalanceHub) *LedgerService {
	return &LedgerService{
		txRunner: txRunner,
		accounts: accounts,
		ledger:   ledger,
		audit:    audit,
		lookup:   lookup,
		hub:      hub,
	}
}

func (s *LedgerService) OpenAccount(ctx context.Context, customerID, branchID, accountTypeCode, actor string) (string, error) {
	accountType, err := s.lookup.ResolveAccountType(ctx, accountTypeCode)
	if err != nil {
		return "", mapNoRows(err)
	}
	accountID := uuid.NewString()
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.accounts.Create(ctx, tx, accountID, customerID, branchID, accountType.ID); err != nil {
			return err
		}
		detail, _ := json.Marshal(map[string]string{
			"customer_id":  customerID,
			"branch_id":    branchID,
			"account_type": accountType.Code,
		})
		return s.audit.Log(ctx, tx, actor, "account.open", "account", accountID, string(detail))
	})
	if err != nil {
		return "", err
	}
	return accountID, nil
}

type DepositRequest struct {
	AccountID string
	Amount    int64
	Reference *string
	Actor     string
}

func (s *LedgerService) Deposit(ctx context.Context, req DepositRequest) (string, error) {
	if req.Amount <= 0 {
		return "", ErrInvalidAmount
	}
	var posted posting
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		posted, err = s.depositTx(ctx, tx, req.AccountID, req.Amount, req.Reference, req.Actor)
		return err
	})
	if err != nil {
		return "", err
	}
	s.notifyBalance(posted)
	return posted.TxnID, nil
}

type WithdrawRequest struct {
	AccountID string
	Amount    int64
	Reference *string
	Actor     string
}

func (s *LedgerService) Withdraw(ctx context.Context, req WithdrawRequest) (string, error) {
	if req.Amount <= 0 {
		return "", ErrInvalidAmount
	}
	var posted posting
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		posted, err = s.withdrawTx(ctx, tx, req.AccountID, req.Amount, req.Reference, req.Actor)
		return err
	})
	if err != nil {
		return "", err
	}
	s.notifyBalance(posted)
	return posted.TxnID, nil
}

type TransferRequest struct {
	FromAccountID string
	ToAccountID   string
	Amount        int64
	Reference     *string
	Actor         string
}

func (s *LedgerService) Transfer(ctx context.Context, req TransferRequest) (string, error) {
	if req.Amount <= 0 {
		return "", ErrInvalidAmount
	}
	if req.FromAccountID == req.ToAccountID {
		return "", ErrSelfTransfer
	}
	var outID string
	var fromPosted, toPosted posting
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		fromAccount, toAccount, err := s.lockTwoAccounts(ctx, tx, req.FromAccountID, req.ToAccountID)
		if err != nil {
			return err
		}
		if fromAccount.Status != models.AccountActive || toAccount.Status != models.AccountActive {
			return ErrAccountNotActive
		}
		if fromAccount.Balance < req.Amount {
			return ErrInsufficientFunds
		}
		if err := s.applyDelta(ctx, tx, req.FromAccountID, -req.Amount); err != nil {
			return err
		}
		if err := s.applyDelta(ctx, tx, req.ToAccountID, req.Amount); err != nil {
			return err
		}
		outID = uuid.NewString()
		inID := uuid.NewString()
		if err := s.ledger.Append(ctx, tx, store.LedgerRecordInput{
			ID:                    outID,
			AccountID:             req.FromAccountID,
			Type:                  models.TxTransferOut,
			Amount:                req.Amount,
			CounterpartyAccountID: &req.ToAccountID,
			Reference:             req.Reference,
			Actor:                 req.Actor,
		}); err != nil {
			return err
		}
		if err := s.ledger.Append(ctx, tx, store.LedgerRecordInput{
			ID:                    inID,
			AccountID:             req.ToAccountID,
			Type:                  models.TxTransferIn,
			Amount:                req.Amount,
			CounterpartyAccountID: &req.FromAccountID,
			Reference:             req.Reference,
			Actor:                 req.Actor,
		}); err != nil {
			return err
		}
		fromPosted = posting{TxnID: outID, AccountID: req.FromAccountID, CustomerID: fromAccount.CustomerID, BalanceAfter: fromAccount.Balance - req.Amount}
		toPosted = posting{TxnID: inID, AccountID: req.ToAccountID, CustomerID: toAccount.CustomerID, BalanceAfter: toAccount.Balance + req.Amount}
		detail, _ := json.Marshal(map[string]any{
			"from_account_id": req.FromAccountID,
			"to_account_id":   req.ToAccountID,
			"amount":          req.Amount,
		})
		return s.audit.Log(ctx, tx, req.Actor, "transfer", "transaction", outID, string(detail))
	})
	if err != nil {
		return "", err
	}
	s.notifyBalance(fromPosted)
	s.notifyBalance(toPosted)
	return outID, nil
}

type FeeRequest struct {
	AccountID string
	Amount    int64
	Reference *string
	Actor     string
}

// PostFee debits at most the available balance but records the nominal
// fee amount in the ledger. A capped fee therefore leaves the ledger sum
// ahead of the actual debit; the reconciliation view surfaces this.
func (s *LedgerService) PostFee(ctx context.Context, req FeeRequest) (string, error) {
	if req.Amount <= 0 {
		return "", ErrInvalidAmount
	}
	var posted posting
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		account, err := s.accounts.GetForUpdate(ctx, tx, req.AccountID)
		if err != nil {
			return mapNoRows(err)
		}
		if account.Status != models.AccountActive {
			return ErrAccountNotActive
		}
		debit := req.Amount
		if debit > account.Balance {
			debit = account.Balance
		}
		if debit > 0 {
			if err := s.applyDelta(ctx, tx, req.AccountID, -debit); err != nil {
				return err
			}
		}
		txnID := uuid.NewString()
		if err := s.ledger.Append(ctx, tx, store.LedgerRecordInput{
			ID:        txnID,
			AccountID: req.AccountID,
			Type:      models.TxFee,
			Amount:    req.Amount,
			Reference: req.Reference,
			Actor:     req.Actor,
		}); err != nil {
			return err
		}
		posted = posting{TxnID: txnID, AccountID: req.AccountID, CustomerID: account.CustomerID, BalanceAfter: account.Balance - debit}
		detail, _ := json.Marshal(map[string]int64{
			"nominal": req.Amount,
			"debited": debit,
		})
		return s.audit.Log(ctx, tx, req.Actor, "fee.post", "transaction", txnID, string(detail))
	})
	if err != nil {
		return "", err
	}
	s.notifyBalance(posted)
	return posted.TxnID, nil
}

func (s *LedgerService) FreezeAccount(ctx context.Context, accountID, actor string) error {
	return s.changeStatus(ctx, accountID, actor, models.AccountActive, models.AccountFrozen, "account.freeze")
}

func (s *LedgerService) UnfreezeAccount(ctx context.Context, accountID, actor string) error {
	return s.changeStatus(ctx, accountID, actor, models.AccountFrozen, models.AccountActive, "account.unfreeze")
}

// CloseAccount is terminal and requires a zero balance so no funds are
// stranded.
func (s *LedgerService) CloseAccount(ctx context.Context, accountID, actor string) error {
	return s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		account, err := s.accounts.GetForUpdate(ctx, tx, accountID)
		if err != nil {
			return mapNoRows(err)
		}
		if account.Status != models.AccountActive {
			return ErrAccountNotActive
		}
		if account.Balance != 0 {
			return ErrAccountNotEmpty
		}
		if err := s.accounts.SetStatus(ctx, tx, accountID, models.AccountClosed); err != nil {
			return err
		}
		return s.audit.Log(ctx, tx, actor, "account.close", "account", accountID, "{}")
	})
}

func (s *LedgerService) changeStatus(ctx context.Context, accountID, actor string, from, to models.AccountStatus, action string) error {
	return s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		account, err := s.accounts.GetForUpdate(ctx, tx, accountID)
		if err != nil {
			return mapNoRows(err)
		}
		if account.Status != from {
			return ErrAccountNotActive
		}
		if err := s.accounts.SetStatus(ctx, tx, accountID, to); err != nil {
			return err
		}
		return s.audit.Log(ctx, tx, actor, action, "account", accountID, "{}")
	})
}

// posting carries the outcome of one balance-affecting write out of the
// transaction for the post-commit balance broadcast.
type posting struct {
	TxnID        string
	AccountID    string
	CustomerID   string
	BalanceAfter int64
}

func (s *LedgerService) depositTx(ctx context.Context, tx *sqlx.Tx, accountID string, amount int64, reference *string, actor string) (posting, error) {
	account, err := s.accounts.GetForUpdate(ctx, tx, accountID)
	if err != nil {
		return posting{}, mapNoRows(err)
	}
	if account.Status != models.AccountActive {
		return posting{}, ErrAccountNotActive
	}
	if err := s.applyDelta(ctx, tx, accountID, amount); err != nil {
		return posting{}, err
	}
	txnID := uuid.NewString()
	if err := s.ledger.Append(ctx, tx, store.LedgerRecordInput{
		ID:        txnID,
		AccountID: accountID,
		Type:      models.TxDeposit,
		Amount:    amount,
		Reference: reference,
		Actor:     actor,
	}); err != nil {
		return posting{}, err
	}
	detail, _ := json.Marshal(map[string]int64{"amount": amount})
	if err := s.audit.Log(ctx, tx, actor, "deposit", "transaction", txnID, string(detail)); err != nil {
		return posting{}, err
	}
	return posting{TxnID: txnID, AccountID: accountID, CustomerID: account.CustomerID, BalanceAfter: account.Balance + amount}, nil
}

func (s *LedgerService) withdrawTx(ctx context.Context, tx *sqlx.Tx, accountID string, amount int64, reference *string, actor string) (posting, error) {
	account, err := s.accounts.GetForUpdate(ctx, tx, accountID)
	if err != nil {
		return posting{}, mapNoRows(err)
	}
	if account.Status != models.AccountActive {
		return posting{}, ErrAccountNotActive
	}
	if account.Balance < amount {
		return posting{}, ErrInsufficientFunds
	}
	if err := s.applyDelta(ctx, tx, accountID, -amount); err != nil {
		return posting{}, err
	}
	txnID := uuid.NewString()
	if err := s.ledger.Append(ctx, tx, store.LedgerRecordInput{
		ID:        txnID,
		AccountID: accountID,
		Type:      models.TxWithdrawal,
		Amount:    amount,
		Reference: reference,
		Actor:     actor,
	}); err != nil {
		return posting{}, err
	}
	detail, _ := json.Marshal(map[string]int64{"amount": amount})
	if err := s.audit.Log(ctx, tx, actor, "withdraw", "transaction", txnID, string(detail)); err != nil {
		return posting{}, err
	}
	return posting{TxnID: txnID, AccountID: accountID, CustomerID: account.CustomerID, BalanceAfter: account.Balance - amount}, nil
}

func (s *LedgerService) applyDelta(ctx context.Context, tx store.Execer, accountID string, delta int64) error {
	err := s.accounts.ApplyDelta(ctx, tx, accountID, delta)
	if errors.Is(err, store.ErrBalanceInvariant) {
		log.Printf("balance invariant tripped: account=%s delta=%d", accountID, delta)
		return ErrInvariantViolation
	}
	return err
}

func (s *LedgerService) notifyBalance(p posting) {
	if s.hub == nil || p.AccountID == "" {
		return
	}
	s.hub.BroadcastBalance(p.CustomerID, websocket.BalanceUpdate{
		AccountID: p.AccountID,
		Balance:   money.FormatMinor(p.BalanceAfter),
	})
}

// lockTwoAccounts acquires both row holds in ascending id order no matter
// which side is source or destination. Every multi-account operation goes
// through here, so concurrent transfers cannot form a lock cycle.
func (s *LedgerService) lockTwoAccounts(ctx context.Context, tx *sqlx.Tx, firstID, secondID string) (models.Account, models.Account, error) {
	leftID, rightID := orderedIDs(firstID, secondID)
	leftAccount, err := s.accounts.GetForUpdate(ctx, tx, leftID)
	if err != nil {
		return models.Account{}, models.Account{}, mapNoRows(err)
	}
	rightAccount, err := s.accounts.GetForUpdate(ctx, tx, rightID)
	if err != nil {
		return models.Account{}, models.Account{}, mapNoRows(err)
	}
	if firstID == leftID {
		return leftAccount, rightAccount, nil
	}
	return rightAccount, leftAccount, nil
}

func orderedIDs(firstID, secondID string) (string, string) {
	if firstID <= secondID {
		return firstID, secondID
	}
	return secondID, firstID
}

func mapNoRows(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func monthlyRate(annualRatePercent decimal.Decimal) decimal.Decimal {
	return annualRatePercent.Div(decimal.NewFromInt(1200))
}
