package store

import (
	"context"

	"bankledger/internal/models"
)

// LookupStore resolves master-data codes maintained outside the ledger
// core. Read-only.
type LookupStore struct {
	db DB
}

func NewLookupStore(db DB) *LookupStore {
	return &LookupStore{db: db}
}

func (s *LookupStore) ResolveAccountType(ctx context.Context, code string) (models.AccountType, error) {
	var row models.AccountType
	err := s.db.GetContext(ctx, &row, `
		SELECT id, code, name
		FROM account_types
		WHERE code = $1
	`, code)
	if err != nil {
		return models.AccountType{}, err
	}
	return row, nil
}

func (s *LookupStore) ResolveLoanProduct(ctx context.Context, code string) (models.LoanProduct, error) {
	var row models.LoanProduct
	err := s.db.GetContext(ctx, &row, `
		SELECT id, code, name, annual_rate_percent, term_months
		FROM loan_products
		WHERE code = $1
	`, code)
	if err != nil {
		return models.LoanProduct{}, err
	}
	return row, nil
}
