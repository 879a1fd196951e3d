package store

import (
	"context"

	"bankledger/internal/models"
)

type LoanStore struct {
	db DB
}

func NewLoanStore(db DB) *LoanStore {
	return &LoanStore{db: db}
}

func (s *LoanStore) Create(ctx context.Context, tx Execer, id, customerID, branchID, productID string, principal int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO loans (id, customer_id, branch_id, product_id, principal, disbursed, outstanding, status)
		VALUES ($1, $2, $3, $4, $5, 0, $5, 'PENDING')
	`, id, customerID, branchID, productID, principal)
	return err
}

func (s *LoanStore) GetByID(ctx context.Context, loanID string) (models.Loan, error) {
	var row models.Loan
	err := s.db.GetContext(ctx, &row, `
		SELECT id, customer_id, branch_id, product_id, principal, disbursed, outstanding, status, opened_at, closed_at
		FROM loans
		WHERE id = $1
	`, loanID)
	if err != nil {
		return models.Loan{}, err
	}
	return row, nil
}

func (s *LoanStore) GetForUpdate(ctx context.Context, tx Getter, loanID string) (models.Loan, error) {
	var row models.Loan
	err := tx.GetContext(ctx, &row, `
		SELECT id, customer_id, branch_id, product_id, principal, disbursed, outstanding, status, opened_at, closed_at
		FROM loans
		WHERE id = $1
		FOR UPDATE
	`, loanID)
	if err != nil {
		return models.Loan{}, err
	}
	return row, nil
}

func (s *LoanStore) MarkDisbursed(ctx context.Context, tx Execer, loanID string, disbursed int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE loans
		SET disbursed = $1, status = 'ACTIVE', updated_at = NOW()
		WHERE id = $2
	`, disbursed, loanID)
	return err
}

func (s *LoanStore) UpdateOutstanding(ctx context.Context, tx Execer, loanID string, outstanding int64) error {
	if outstanding == 0 {
		_, err := tx.ExecContext(ctx, `
			UPDATE loans
			SET outstanding = 0, status = 'CLOSED', closed_at = NOW(), updated_at = NOW()
			WHERE id = $1
		`, loanID)
		return err
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE loans
		SET outstanding = $1, updated_at = NOW()
		WHERE id = $2
	`, outstanding, loanID)
	return err
}

func (s *LoanStore) SetStatus(ctx context.Context, tx Execer, loanID string, status models.LoanStatus) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE loans
		SET status = $1, updated_at = NOW()
		WHERE id = $2
	`, status, loanID)
	return err
}

func (s *LoanStore) CreatePayment(ctx context.Context, tx Execer, id, loanID string, amount int64, method, reference string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO loan_payments (id, loan_id, amount, method, reference)
		VALUES ($1, $2, $3, $4, $5)
	`, id, loanID, amount, method, reference)
	return err
}

func (s *LoanStore) ListPayments(ctx context.Context, loanID string) ([]models.LoanPayment, error) {
	var rows []models.LoanPayment
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, loan_id, amount, method, reference, created_at
		FROM loan_payments
		WHERE loan_id = $1
		ORDER BY created_at
	`, loanID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
