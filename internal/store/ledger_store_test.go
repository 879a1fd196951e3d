package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"bankledger/internal/models"
)

func TestLedgerStoreAppendRejectsNonPositiveAmount(t *testing.T) {
	ctx := context.Background()
	execCalls := 0
	execer := stubExecer{
		execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
			execCalls++
			return stubResult{rows: 1}, nil
		},
	}
	store := NewLedgerStore(stubDB{})
	for _, amount := range []int64{0, -1} {
		err := store.Append(ctx, execer, LedgerRecordInput{
			ID:        "txn-1",
			AccountID: "acc-1",
			Type:      models.TxDeposit,
			Amount:    amount,
			Actor:     "teller-1",
		})
		if !errors.Is(err, ErrNonPositiveAmount) {
			t.Fatalf("amount %d: expected ErrNonPositiveAmount, got %v", amount, err)
		}
	}
	if execCalls != 0 {
		t.Fatalf("expected no inserts, got %d", execCalls)
	}
}

func TestLedgerStoreAppendInsertsRecord(t *testing.T) {
	ctx := context.Background()
	counterparty := "acc-2"
	execer := stubExecer{
		execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
			if !strings.Contains(query, "INSERT INTO transactions") {
				t.Fatalf("unexpected query: %s", query)
			}
			if args[2] != models.TxTransferOut {
				t.Fatalf("unexpected type: %v", args[2])
			}
			if args[4].(*string) == nil || *args[4].(*string) != counterparty {
				t.Fatalf("unexpected counterparty: %v", args[4])
			}
			return stubResult{rows: 1}, nil
		},
	}
	store := NewLedgerStore(stubDB{})
	err := store.Append(ctx, execer, LedgerRecordInput{
		ID:                    "txn-1",
		AccountID:             "acc-1",
		Type:                  models.TxTransferOut,
		Amount:                2000,
		CounterpartyAccountID: &counterparty,
		Actor:                 "teller-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLedgerStoreSumByTypeOn(t *testing.T) {
	ctx := context.Background()
	getter := stubGetter{
		getFn: func(_ context.Context, dest any, query string, args ...any) error {
			if !strings.Contains(query, "FROM transactions") {
				t.Fatalf("unexpected query: %s", query)
			}
			if args[0] != "acc-1" || args[1] != models.TxInterest {
				t.Fatalf("unexpected args: %#v", args)
			}
			*dest.(*int64) = 1600
			return nil
		},
	}
	store := NewLedgerStore(stubDB{})
	sum, err := store.SumByTypeOn(ctx, getter, "acc-1", models.TxInterest, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum != 1600 {
		t.Fatalf("unexpected sum: %d", sum)
	}
}
