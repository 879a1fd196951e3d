package services

import (
	"context"
	"errors"
	"testing"

	"bankledger/internal/models"
)

func TestOpenAccountUnknownType(t *testing.T) {
	h := newHarness()
	_, err := h.engine().OpenAccount(context.Background(), "cust-1", "br-hq", "NOPE", "teller-1")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(h.audits) != 0 {
		t.Fatalf("expected no audit records, got %d", len(h.audits))
	}
}

func TestOpenAccountCreatesActiveZeroBalance(t *testing.T) {
	h := newHarness()
	accountID, err := h.engine().OpenAccount(context.Background(), "cust-1", "br-hq", "SAVINGS", "teller-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	account := *h.accounts[accountID]
	if account.Balance != 0 || account.Status != models.AccountActive {
		t.Fatalf("unexpected account state: %+v", account)
	}
	if len(h.audits) != 1 || h.audits[0].Action != "account.open" {
		t.Fatalf("unexpected audit trail: %+v", h.audits)
	}
}

func TestDepositThenWithdrawScenario(t *testing.T) {
	h := newHarness()
	engine := h.engine()
	ctx := context.Background()
	accountID, err := engine.OpenAccount(ctx, "cust-1", "br-hq", "SAVINGS", "teller-1")
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if _, err := engine.Deposit(ctx, DepositRequest{AccountID: accountID, Amount: 150000, Actor: "teller-1"}); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}
	if _, err := engine.Withdraw(ctx, WithdrawRequest{AccountID: accountID, Amount: 30000, Actor: "teller-1"}); err != nil {
		t.Fatalf("withdraw failed: %v", err)
	}
	if got := h.balance(accountID); got != 120000 {
		t.Fatalf("expected balance 120000, got %d", got)
	}
	deposits := h.ledgerByType(models.TxDeposit)
	withdrawals := h.ledgerByType(models.TxWithdrawal)
	if len(deposits) != 1 || deposits[0].Amount != 150000 {
		t.Fatalf("unexpected deposit records: %+v", deposits)
	}
	if len(withdrawals) != 1 || withdrawals[0].Amount != 30000 {
		t.Fatalf("unexpected withdrawal records: %+v", withdrawals)
	}
}

func TestDepositValidation(t *testing.T) {
	h := newHarness()
	engine := h.engine()
	ctx := context.Background()
	h.addAccount("acc-frozen", "cust-1", 100, models.AccountFrozen)

	if _, err := engine.Deposit(ctx, DepositRequest{AccountID: "acc-frozen", Amount: 0, Actor: "t"}); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if _, err := engine.Deposit(ctx, DepositRequest{AccountID: "missing", Amount: 100, Actor: "t"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := engine.Deposit(ctx, DepositRequest{AccountID: "acc-frozen", Amount: 100, Actor: "t"}); !errors.Is(err, ErrAccountNotActive) {
		t.Fatalf("expected ErrAccountNotActive, got %v", err)
	}
	if len(h.ledger) != 0 || len(h.audits) != 0 {
		t.Fatalf("rejected operations must leave no records: ledger=%d audits=%d", len(h.ledger), len(h.audits))
	}
	if h.balance("acc-frozen") != 100 {
		t.Fatalf("balance must be untouched, got %d", h.balance("acc-frozen"))
	}
}

func TestWithdrawInsufficientFundsLeavesNoTrace(t *testing.T) {
	h := newHarness()
	engine := h.engine()
	h.addAccount("acc-1", "cust-1", 500, models.AccountActive)
	_, err := engine.Withdraw(context.Background(), WithdrawRequest{AccountID: "acc-1", Amount: 501, Actor: "t"})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if h.balance("acc-1") != 500 {
		t.Fatalf("balance must be unchanged, got %d", h.balance("acc-1"))
	}
	if len(h.ledger) != 0 || len(h.audits) != 0 {
		t.Fatalf("rejected withdrawal must leave no records")
	}
}

func TestTransferScenario(t *testing.T) {
	h := newHarness()
	engine := h.engine()
	h.addAccount("acc-a", "cust-a", 120000, models.AccountActive)
	h.addAccount("acc-b", "cust-b", 1000000, models.AccountActive)

	if _, err := engine.Transfer(context.Background(), TransferRequest{
		FromAccountID: "acc-b",
		ToAccountID:   "acc-a",
		Amount:        200000,
		Actor:         "teller-1",
	}); err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	if got := h.balance("acc-b"); got != 800000 {
		t.Fatalf("expected source balance 800000, got %d", got)
	}
	if got := h.balance("acc-a"); got != 320000 {
		t.Fatalf("expected destination balance 320000, got %d", got)
	}
	outs := h.ledgerByType(models.TxTransferOut)
	ins := h.ledgerByType(models.TxTransferIn)
	if len(outs) != 1 || len(ins) != 1 {
		t.Fatalf("expected exactly one record per side, got %d/%d", len(outs), len(ins))
	}
	if outs[0].Amount != ins[0].Amount {
		t.Fatalf("record amounts differ: %d vs %d", outs[0].Amount, ins[0].Amount)
	}
	if *outs[0].CounterpartyAccountID != "acc-a" || *ins[0].CounterpartyAccountID != "acc-b" {
		t.Fatalf("records must cross-reference counterparties: %+v %+v", outs[0], ins[0])
	}
}

func TestTransferValidation(t *testing.T) {
	h := newHarness()
	engine := h.engine()
	ctx := context.Background()
	h.addAccount("acc-1", "cust-1", 1000, models.AccountActive)
	h.addAccount("acc-2", "cust-2", 1000, models.AccountActive)
	h.addAccount("acc-frozen", "cust-3", 1000, models.AccountFrozen)

	cases := []struct {
		name string
		req  TransferRequest
		want error
	}{
		{"self transfer", TransferRequest{FromAccountID: "acc-1", ToAccountID: "acc-1", Amount: 100}, ErrSelfTransfer},
		{"zero amount", TransferRequest{FromAccountID: "acc-1", ToAccountID: "acc-2", Amount: 0}, ErrInvalidAmount},
		{"missing source", TransferRequest{FromAccountID: "nope", ToAccountID: "acc-1", Amount: 100}, ErrNotFound},
		{"frozen destination", TransferRequest{FromAccountID: "acc-1", ToAccountID: "acc-frozen", Amount: 100}, ErrAccountNotActive},
		{"insufficient funds", TransferRequest{FromAccountID: "acc-1", ToAccountID: "acc-2", Amount: 100000}, ErrInsufficientFunds},
	}
	for _, tc := range cases {
		if _, err := engine.Transfer(ctx, tc.req); !errors.Is(err, tc.want) {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
	if len(h.ledger) != 0 {
		t.Fatalf("rejected transfers must append nothing, got %d records", len(h.ledger))
	}
	if h.balance("acc-1") != 1000 || h.balance("acc-2") != 1000 {
		t.Fatalf("balances must be unchanged")
	}
}

func TestTransferBroadcastsBothBalances(t *testing.T) {
	h := newHarness()
	engine := h.engine()
	h.addAccount("acc-a", "cust-a", 1000, models.AccountActive)
	h.addAccount("acc-b", "cust-b", 1000, models.AccountActive)

	if _, err := engine.Transfer(context.Background(), TransferRequest{
		FromAccountID: "acc-b", ToAccountID: "acc-a", Amount: 10, Actor: "t",
	}); err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.broadcasts) != 2 {
		t.Fatalf("expected one broadcast per side, got %d", len(h.broadcasts))
	}
	got := map[string]string{}
	for _, b := range h.broadcasts {
		got[b.Update.AccountID] = b.Update.Balance
	}
	if got["acc-a"] != "10.10" || got["acc-b"] != "9.90" {
		t.Fatalf("unexpected broadcast balances: %v", got)
	}
}

func TestFeeCapsDebitButRecordsNominalAmount(t *testing.T) {
	h := newHarness()
	engine := h.engine()
	h.addAccount("acc-1", "cust-1", 300, models.AccountActive)

	if _, err := engine.PostFee(context.Background(), FeeRequest{AccountID: "acc-1", Amount: 1000, Actor: "system"}); err != nil {
		t.Fatalf("fee failed: %v", err)
	}
	// The debit stops at the available balance, yet the FEE record
	// carries the nominal amount. The ledger sum and the balance
	// deliberately disagree after a capped fee.
	if got := h.balance("acc-1"); got != 0 {
		t.Fatalf("expected balance 0, got %d", got)
	}
	fees := h.ledgerByType(models.TxFee)
	if len(fees) != 1 || fees[0].Amount != 1000 {
		t.Fatalf("expected one FEE record with nominal amount 1000, got %+v", fees)
	}
}

func TestFeeOnInactiveAccount(t *testing.T) {
	h := newHarness()
	engine := h.engine()
	h.addAccount("acc-closed", "cust-1", 100, models.AccountClosed)
	if _, err := engine.PostFee(context.Background(), FeeRequest{AccountID: "acc-closed", Amount: 50, Actor: "system"}); !errors.Is(err, ErrAccountNotActive) {
		t.Fatalf("expected ErrAccountNotActive, got %v", err)
	}
}

func TestAccountStatusTransitions(t *testing.T) {
	h := newHarness()
	engine := h.engine()
	ctx := context.Background()
	h.addAccount("acc-1", "cust-1", 0, models.AccountActive)

	if err := engine.FreezeAccount(ctx, "acc-1", "ops"); err != nil {
		t.Fatalf("freeze failed: %v", err)
	}
	if h.accounts["acc-1"].Status != models.AccountFrozen {
		t.Fatalf("expected FROZEN, got %s", h.accounts["acc-1"].Status)
	}
	if err := engine.FreezeAccount(ctx, "acc-1", "ops"); !errors.Is(err, ErrAccountNotActive) {
		t.Fatalf("double freeze must fail, got %v", err)
	}
	if err := engine.UnfreezeAccount(ctx, "acc-1", "ops"); err != nil {
		t.Fatalf("unfreeze failed: %v", err)
	}
	if err := engine.CloseAccount(ctx, "acc-1", "ops"); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if h.accounts["acc-1"].Status != models.AccountClosed || h.accounts["acc-1"].ClosedAt == nil {
		t.Fatalf("close must set terminal status and timestamp")
	}
}

func TestCloseAccountRequiresZeroBalance(t *testing.T) {
	h := newHarness()
	engine := h.engine()
	h.addAccount("acc-1", "cust-1", 5, models.AccountActive)
	if err := engine.CloseAccount(context.Background(), "acc-1", "ops"); !errors.Is(err, ErrAccountNotEmpty) {
		t.Fatalf("expected ErrAccountNotEmpty, got %v", err)
	}
}
