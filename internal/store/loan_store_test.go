package store

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"bankledger/internal/models"
)

func TestLoanStoreCreateStartsPendingWithFullOutstanding(t *testing.T) {
	ctx := context.Background()
	var captured string
	execer := stubExecer{
		execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
			captured = query
			if args[4] != int64(50000) {
				t.Fatalf("unexpected principal: %v", args[4])
			}
			return stubResult{rows: 1}, nil
		},
	}
	store := NewLoanStore(stubDB{})
	if err := store.Create(ctx, execer, "loan-1", "cust-1", "br-1", "lp-1", 50000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Outstanding starts equal to principal and status PENDING.
	if !strings.Contains(captured, "$5, 'PENDING'") {
		t.Fatalf("unexpected insert: %s", captured)
	}
}

func TestLoanStoreUpdateOutstandingZeroCloses(t *testing.T) {
	ctx := context.Background()
	var captured string
	execer := stubExecer{
		execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
			captured = query
			return stubResult{rows: 1}, nil
		},
	}
	store := NewLoanStore(stubDB{})
	if err := store.UpdateOutstanding(ctx, execer, "loan-1", 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(captured, "'CLOSED'") || !strings.Contains(captured, "closed_at = NOW()") {
		t.Fatalf("zero outstanding must close the loan: %s", captured)
	}
}

func TestLoanStoreUpdateOutstandingNonZeroKeepsStatus(t *testing.T) {
	ctx := context.Background()
	var captured string
	execer := stubExecer{
		execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
			captured = query
			return stubResult{rows: 1}, nil
		},
	}
	store := NewLoanStore(stubDB{})
	if err := store.UpdateOutstanding(ctx, execer, "loan-1", 4500000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(captured, "CLOSED") {
		t.Fatalf("nonzero outstanding must not close the loan: %s", captured)
	}
}

func TestLoanStoreGetForUpdateLocksRow(t *testing.T) {
	ctx := context.Background()
	getter := stubGetter{
		getFn: func(_ context.Context, dest any, query string, args ...any) error {
			if !strings.Contains(query, "FOR UPDATE") {
				t.Fatalf("expected FOR UPDATE in query: %s", query)
			}
			*dest.(*models.Loan) = models.Loan{ID: "loan-1", Status: models.LoanActive, Outstanding: 100}
			return nil
		},
	}
	store := NewLoanStore(stubDB{})
	loan, err := store.GetForUpdate(ctx, getter, "loan-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loan.Outstanding != 100 {
		t.Fatalf("unexpected outstanding: %d", loan.Outstanding)
	}
}

func TestLoanStoreCreatePayment(t *testing.T) {
	ctx := context.Background()
	execer := stubExecer{
		execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
			if !strings.Contains(query, "INSERT INTO loan_payments") {
				t.Fatalf("unexpected query: %s", query)
			}
			if args[2] != int64(500000) {
				t.Fatalf("unexpected amount: %v", args[2])
			}
			return stubResult{rows: 1}, nil
		},
	}
	store := NewLoanStore(stubDB{})
	if err := store.CreatePayment(ctx, execer, "pay-1", "loan-1", 500000, "TRANSFER", "july installment"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
