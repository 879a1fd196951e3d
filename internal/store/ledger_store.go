package store

import (
	"context"
	"errors"
	"time"

	"bankledger/internal/models"
)

var ErrNonPositiveAmount = errors.New("ledger amount must be positive")

// LedgerStore is the append-only transaction log. Records are inserted
// once and never updated or deleted; there is no mutation query here.
type LedgerStore struct {
	db DB
}

func NewLedgerStore(db DB) *LedgerStore {
	return &LedgerStore{db: db}
}

type LedgerRecordInput struct {
	ID                    string
	AccountID             string
	Type                  models.TransactionType
	Amount                int64
	CounterpartyAccountID *string
	Reference             *string
	Actor                 string
}

func (s *LedgerStore) Append(ctx context.Context, tx Execer, input LedgerRecordInput) error {
	if input.Amount <= 0 {
		return ErrNonPositiveAmount
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO transactions (id, account_id, type, amount, counterparty_account_id, reference, actor)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, input.ID, input.AccountID, input.Type, input.Amount, input.CounterpartyAccountID, input.Reference, input.Actor)
	return err
}

// SumByTypeOn reports the total amount of one record type posted to an
// account on the given day. It accepts any Getter so callers inside a
// transaction observe their own appends.
func (s *LedgerStore) SumByTypeOn(ctx context.Context, q Getter, accountID string, txType models.TransactionType, day time.Time) (int64, error) {
	var sum int64
	err := q.GetContext(ctx, &sum, `
		SELECT COALESCE(SUM(amount), 0)
		FROM transactions
		WHERE account_id = $1 AND type = $2 AND created_at::date = $3::date
	`, accountID, txType, day)
	return sum, err
}

func (s *LedgerStore) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]models.Transaction, error) {
	var rows []models.Transaction
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, account_id, type, amount, counterparty_account_id, reference, actor, created_at
		FROM transactions
		WHERE account_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`, accountID, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
