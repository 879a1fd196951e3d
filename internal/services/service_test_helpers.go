package services

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"bankledger/internal/models"
	"bankledger/internal/store"
	"bankledger/internal/websocket"

	"github.com/jmoiron/sqlx"
)

// The service tests run against in-memory stores backed by one shared
// harness. Row holds are simulated by a lock manager keyed on a session
// id carried in the context: GetForUpdate acquires, the tx runner
// releases everything at the end of the atomic unit, exactly the
// lifetime the real FOR UPDATE holds have. The concurrency tests depend
// on this: a broken acquisition order deadlocks them.

type sessionKeyType struct{}

var sessionKey sessionKeyType

func sessionContext(id string) context.Context {
	return context.WithValue(context.Background(), sessionKey, id)
}

func sessionID(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey).(string)
	return id
}

type lockManager struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
	held  map[string][]string
}

func newLockManager() *lockManager {
	return &lockManager{
		locks: make(map[string]*sync.Mutex),
		held:  make(map[string][]string),
	}
}

func (m *lockManager) acquire(session, key string) {
	if session == "" {
		return
	}
	m.mu.Lock()
	lock, ok := m.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[key] = lock
	}
	m.mu.Unlock()
	lock.Lock()
	m.mu.Lock()
	m.held[session] = append(m.held[session], key)
	m.mu.Unlock()
}

func (m *lockManager) releaseAll(session string) {
	if session == "" {
		return
	}
	m.mu.Lock()
	keys := m.held[session]
	delete(m.held, session)
	locks := make([]*sync.Mutex, 0, len(keys))
	for _, key := range keys {
		locks = append(locks, m.locks[key])
	}
	m.mu.Unlock()
	for i := len(locks) - 1; i >= 0; i-- {
		locks[i].Unlock()
	}
}

type auditEntry struct {
	Actor      string
	Action     string
	EntityType string
	EntityID   string
	Detail     string
}

type broadcast struct {
	CustomerID string
	Update     websocket.BalanceUpdate
}

type harness struct {
	mu         sync.Mutex
	locks      *lockManager
	accounts   map[string]*models.Account
	ledger     []store.LedgerRecordInput
	audits     []auditEntry
	loans      map[string]*models.Loan
	payments   []models.LoanPayment
	types      map[string]models.AccountType
	products   map[string]models.LoanProduct
	events     []string
	broadcasts []broadcast
}

func newHarness() *harness {
	return &harness{
		locks:    newLockManager(),
		accounts: make(map[string]*models.Account),
		loans:    make(map[string]*models.Loan),
		types: map[string]models.AccountType{
			"SAVINGS": {ID: "at-savings", Code: "SAVINGS", Name: "Savings Account"},
			"CURRENT": {ID: "at-current", Code: "CURRENT", Name: "Current Account"},
		},
		products: map[string]models.LoanProduct{
			"PERSONAL12": {ID: "lp-personal", Code: "PERSONAL12", Name: "Personal Loan 12m", AnnualRatePercent: "14.5", TermMonths: 12},
		},
	}
}

func (h *harness) addAccount(id, customerID string, balance int64, status models.AccountStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.accounts[id] = &models.Account{
		ID:            id,
		CustomerID:    customerID,
		BranchID:      "br-hq",
		AccountTypeID: "at-savings",
		Balance:       balance,
		Status:        status,
		OpenedAt:      time.Now(),
	}
}

func (h *harness) addLoan(id, customerID string, principal, outstanding int64, status models.LoanStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.loans[id] = &models.Loan{
		ID:          id,
		CustomerID:  customerID,
		BranchID:    "br-hq",
		ProductID:   "lp-personal",
		Principal:   principal,
		Disbursed:   principal,
		Outstanding: outstanding,
		Status:      status,
		OpenedAt:    time.Now(),
	}
}

func (h *harness) balance(id string) int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.accounts[id].Balance
}

func (h *harness) ledgerByType(txType models.TransactionType) []store.LedgerRecordInput {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []store.LedgerRecordInput
	for _, record := range h.ledger {
		if record.Type == txType {
			out = append(out, record)
		}
	}
	return out
}

func (h *harness) engine() *LedgerService {
	return NewLedgerService(memTxRunner{h}, memAccounts{h}, memLedger{h}, memAudit{h}, memLookup{h}, memHub{h})
}

func (h *harness) loanService() *LoanService {
	return NewLoanService(memTxRunner{h}, memLoans{h}, memLookup{h}, memAudit{h}, h.engine())
}

type snapshot struct {
	accounts map[string]models.Account
	ledger   []store.LedgerRecordInput
	audits   []auditEntry
	loans    map[string]models.Loan
	payments []models.LoanPayment
	events   []string
}

func (h *harness) snapshot() snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	snap := snapshot{
		accounts: make(map[string]models.Account, len(h.accounts)),
		ledger:   append([]store.LedgerRecordInput(nil), h.ledger...),
		audits:   append([]auditEntry(nil), h.audits...),
		loans:    make(map[string]models.Loan, len(h.loans)),
		payments: append([]models.LoanPayment(nil), h.payments...),
		events:   append([]string(nil), h.events...),
	}
	for id, account := range h.accounts {
		snap.accounts[id] = *account
	}
	for id, loan := range h.loans {
		snap.loans[id] = *loan
	}
	return snap
}

func (h *harness) restore(snap snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.accounts = make(map[string]*models.Account, len(snap.accounts))
	for id := range snap.accounts {
		account := snap.accounts[id]
		h.accounts[id] = &account
	}
	h.loans = make(map[string]*models.Loan, len(snap.loans))
	for id := range snap.loans {
		loan := snap.loans[id]
		h.loans[id] = &loan
	}
	h.ledger = snap.ledger
	h.audits = snap.audits
	h.payments = snap.payments
	h.events = snap.events
}

type memTxRunner struct {
	h *harness
}

// WithTx rolls the harness back on error by restoring a snapshot. The
// rollback path is only exercised by single-session tests; concurrent
// tests never fail their transactions.
func (r memTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	snap := r.h.snapshot()
	err := fn(nil)
	if err != nil {
		r.h.restore(snap)
	}
	r.h.locks.releaseAll(sessionID(ctx))
	return err
}

type memAccounts struct {
	h *harness
}

func (s memAccounts) Create(ctx context.Context, tx store.Execer, id, customerID, branchID, accountTypeID string) error {
	s.h.mu.Lock()
	defer s.h.mu.Unlock()
	s.h.accounts[id] = &models.Account{
		ID:            id,
		CustomerID:    customerID,
		BranchID:      branchID,
		AccountTypeID: accountTypeID,
		Status:        models.AccountActive,
		OpenedAt:      time.Now(),
	}
	return nil
}

func (s memAccounts) GetByID(ctx context.Context, accountID string) (models.Account, error) {
	s.h.mu.Lock()
	defer s.h.mu.Unlock()
	account, ok := s.h.accounts[accountID]
	if !ok {
		return models.Account{}, sql.ErrNoRows
	}
	return *account, nil
}

func (s memAccounts) GetForUpdate(ctx context.Context, tx store.Getter, accountID string) (models.Account, error) {
	s.h.locks.acquire(sessionID(ctx), "account:"+accountID)
	s.h.mu.Lock()
	defer s.h.mu.Unlock()
	account, ok := s.h.accounts[accountID]
	if !ok {
		return models.Account{}, sql.ErrNoRows
	}
	return *account, nil
}

func (s memAccounts) ApplyDelta(ctx context.Context, tx store.Execer, accountID string, delta int64) error {
	s.h.mu.Lock()
	defer s.h.mu.Unlock()
	account, ok := s.h.accounts[accountID]
	if !ok {
		return sql.ErrNoRows
	}
	if account.Balance+delta < 0 {
		return store.ErrBalanceInvariant
	}
	account.Balance += delta
	s.h.events = append(s.h.events, "delta:"+accountID)
	return nil
}

func (s memAccounts) SetStatus(ctx context.Context, tx store.Execer, accountID string, status models.AccountStatus) error {
	s.h.mu.Lock()
	defer s.h.mu.Unlock()
	account, ok := s.h.accounts[accountID]
	if !ok {
		return sql.ErrNoRows
	}
	account.Status = status
	if status == models.AccountClosed {
		now := time.Now()
		account.ClosedAt = &now
	}
	return nil
}

func (s memAccounts) CohortForUpdate(ctx context.Context, tx store.Selecter, accountTypeID string) ([]models.Account, error) {
	s.h.mu.Lock()
	var ids []string
	for id, account := range s.h.accounts {
		if account.AccountTypeID == accountTypeID && account.Status == models.AccountActive && account.Balance > 0 {
			ids = append(ids, id)
		}
	}
	s.h.mu.Unlock()
	sort.Strings(ids)
	cohort := make([]models.Account, 0, len(ids))
	for _, id := range ids {
		account, err := s.GetForUpdate(ctx, nil, id)
		if err != nil {
			return nil, err
		}
		cohort = append(cohort, account)
	}
	return cohort, nil
}

type memLedger struct {
	h *harness
}

func (s memLedger) Append(ctx context.Context, tx store.Execer, input store.LedgerRecordInput) error {
	if input.Amount <= 0 {
		return store.ErrNonPositiveAmount
	}
	s.h.mu.Lock()
	defer s.h.mu.Unlock()
	s.h.ledger = append(s.h.ledger, input)
	s.h.events = append(s.h.events, "append:"+input.AccountID)
	return nil
}

func (s memLedger) SumByTypeOn(ctx context.Context, q store.Getter, accountID string, txType models.TransactionType, day time.Time) (int64, error) {
	s.h.mu.Lock()
	defer s.h.mu.Unlock()
	var sum int64
	for _, record := range s.h.ledger {
		if record.AccountID == accountID && record.Type == txType {
			sum += record.Amount
		}
	}
	return sum, nil
}

type memAudit struct {
	h *harness
}

func (s memAudit) Log(ctx context.Context, tx store.Execer, actor, action, entityType, entityID, detail string) error {
	s.h.mu.Lock()
	defer s.h.mu.Unlock()
	s.h.audits = append(s.h.audits, auditEntry{
		Actor:      actor,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Detail:     detail,
	})
	return nil
}

type memLookup struct {
	h *harness
}

func (s memLookup) ResolveAccountType(ctx context.Context, code string) (models.AccountType, error) {
	s.h.mu.Lock()
	defer s.h.mu.Unlock()
	accountType, ok := s.h.types[code]
	if !ok {
		return models.AccountType{}, sql.ErrNoRows
	}
	return accountType, nil
}

func (s memLookup) ResolveLoanProduct(ctx context.Context, code string) (models.LoanProduct, error) {
	s.h.mu.Lock()
	defer s.h.mu.Unlock()
	product, ok := s.h.products[code]
	if !ok {
		return models.LoanProduct{}, sql.ErrNoRows
	}
	return product, nil
}

type memLoans struct {
	h *harness
}

func (s memLoans) Create(ctx context.Context, tx store.Execer, id, customerID, branchID, productID string, principal int64) error {
	s.h.mu.Lock()
	defer s.h.mu.Unlock()
	s.h.loans[id] = &models.Loan{
		ID:          id,
		CustomerID:  customerID,
		BranchID:    branchID,
		ProductID:   productID,
		Principal:   principal,
		Outstanding: principal,
		Status:      models.LoanPending,
		OpenedAt:    time.Now(),
	}
	return nil
}

func (s memLoans) GetByID(ctx context.Context, loanID string) (models.Loan, error) {
	s.h.mu.Lock()
	defer s.h.mu.Unlock()
	loan, ok := s.h.loans[loanID]
	if !ok {
		return models.Loan{}, sql.ErrNoRows
	}
	return *loan, nil
}

func (s memLoans) GetForUpdate(ctx context.Context, tx store.Getter, loanID string) (models.Loan, error) {
	s.h.locks.acquire(sessionID(ctx), "loan:"+loanID)
	s.h.mu.Lock()
	defer s.h.mu.Unlock()
	loan, ok := s.h.loans[loanID]
	if !ok {
		return models.Loan{}, sql.ErrNoRows
	}
	return *loan, nil
}

func (s memLoans) MarkDisbursed(ctx context.Context, tx store.Execer, loanID string, disbursed int64) error {
	s.h.mu.Lock()
	defer s.h.mu.Unlock()
	loan, ok := s.h.loans[loanID]
	if !ok {
		return sql.ErrNoRows
	}
	loan.Disbursed = disbursed
	loan.Status = models.LoanActive
	return nil
}

func (s memLoans) UpdateOutstanding(ctx context.Context, tx store.Execer, loanID string, outstanding int64) error {
	s.h.mu.Lock()
	defer s.h.mu.Unlock()
	loan, ok := s.h.loans[loanID]
	if !ok {
		return sql.ErrNoRows
	}
	loan.Outstanding = outstanding
	if outstanding == 0 {
		loan.Status = models.LoanClosed
		now := time.Now()
		loan.ClosedAt = &now
	}
	return nil
}

func (s memLoans) SetStatus(ctx context.Context, tx store.Execer, loanID string, status models.LoanStatus) error {
	s.h.mu.Lock()
	defer s.h.mu.Unlock()
	loan, ok := s.h.loans[loanID]
	if !ok {
		return sql.ErrNoRows
	}
	loan.Status = status
	return nil
}

func (s memLoans) CreatePayment(ctx context.Context, tx store.Execer, id, loanID string, amount int64, method, reference string) error {
	s.h.mu.Lock()
	defer s.h.mu.Unlock()
	s.h.payments = append(s.h.payments, models.LoanPayment{
		ID:        id,
		LoanID:    loanID,
		Amount:    amount,
		Method:    method,
		Reference: reference,
		CreatedAt: time.Now(),
	})
	return nil
}

func (s memLoans) ListPayments(ctx context.Context, loanID string) ([]models.LoanPayment, error) {
	s.h.mu.Lock()
	defer s.h.mu.Unlock()
	var out []models.LoanPayment
	for _, payment := range s.h.payments {
		if payment.LoanID == loanID {
			out = append(out, payment)
		}
	}
	return out, nil
}

type memHub struct {
	h *harness
}

func (s memHub) BroadcastBalance(customerID string, update websocket.BalanceUpdate) {
	s.h.mu.Lock()
	defer s.h.mu.Unlock()
	s.h.broadcasts = append(s.h.broadcasts, broadcast{CustomerID: customerID, Update: update})
}
