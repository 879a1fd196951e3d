package store

import (
	"context"
	"errors"

	"bankledger/internal/models"
)

// ErrBalanceInvariant means ApplyDelta would have driven a balance below
// zero on a row the caller already holds. Validation should have made this
// unreachable; it is an integrity failure, not a user error.
var ErrBalanceInvariant = errors.New("balance invariant violated")

// AccountStore owns account rows. Balances change only through ApplyDelta
// inside an enclosing transaction; there is no balance setter.
type AccountStore struct {
	db DB
}

func NewAccountStore(db DB) *AccountStore {
	return &AccountStore{db: db}
}

func (s *AccountStore) Create(ctx context.Context, tx Execer, id, customerID, branchID, accountTypeID string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO accounts (id, customer_id, branch_id, account_type_id, balance, status)
		VALUES ($1, $2, $3, $4, 0, 'ACTIVE')
	`, id, customerID, branchID, accountTypeID)
	return err
}

func (s *AccountStore) GetByID(ctx context.Context, accountID string) (models.Account, error) {
	var row models.Account
	err := s.db.GetContext(ctx, &row, `
		SELECT id, customer_id, branch_id, account_type_id, balance, status, opened_at, closed_at
		FROM accounts
		WHERE id = $1
	`, accountID)
	if err != nil {
		return models.Account{}, err
	}
	return row, nil
}

// GetForUpdate takes an exclusive hold on the account row until the
// enclosing transaction commits or rolls back.
func (s *AccountStore) GetForUpdate(ctx context.Context, tx Getter, accountID string) (models.Account, error) {
	var row models.Account
	err := tx.GetContext(ctx, &row, `
		SELECT id, customer_id, branch_id, account_type_id, balance, status, opened_at, closed_at
		FROM accounts
		WHERE id = $1
		FOR UPDATE
	`, accountID)
	if err != nil {
		return models.Account{}, err
	}
	return row, nil
}

// ApplyDelta adjusts the balance by a signed amount. The SQL predicate is
// the last-resort non-negativity guard: a zero row count on a row the
// caller holds means the result would have gone negative.
func (s *AccountStore) ApplyDelta(ctx context.Context, tx Execer, accountID string, delta int64) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET balance = balance + $1, updated_at = NOW()
		WHERE id = $2 AND balance + $1 >= 0
	`, delta, accountID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrBalanceInvariant
	}
	return nil
}

func (s *AccountStore) SetStatus(ctx context.Context, tx Execer, accountID string, status models.AccountStatus) error {
	if status == models.AccountClosed {
		_, err := tx.ExecContext(ctx, `
			UPDATE accounts
			SET status = $1, closed_at = NOW(), updated_at = NOW()
			WHERE id = $2
		`, status, accountID)
		return err
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET status = $1, updated_at = NOW()
		WHERE id = $2
	`, status, accountID)
	return err
}

// CohortForUpdate locks and returns the ACTIVE, positive-balance accounts
// of one type, in ascending id order so batch locking cannot cycle with
// concurrent transfers.
func (s *AccountStore) CohortForUpdate(ctx context.Context, tx Selecter, accountTypeID string) ([]models.Account, error) {
	var rows []models.Account
	err := tx.SelectContext(ctx, &rows, `
		SELECT id, customer_id, branch_id, account_type_id, balance, status, opened_at, closed_at
		FROM accounts
		WHERE account_type_id = $1 AND status = 'ACTIVE' AND balance > 0
		ORDER BY id
		FOR UPDATE
	`, accountTypeID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *AccountStore) ListByCustomer(ctx context.Context, customerID string) ([]models.Account, error) {
	var rows []models.Account
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, customer_id, branch_id, account_type_id, balance, status, opened_at, closed_at
		FROM accounts
		WHERE customer_id = $1
		ORDER BY opened_at
	`, customerID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
