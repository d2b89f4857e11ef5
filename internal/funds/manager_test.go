package funds

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"custody-platform/internal/database"
)

type fakeStore struct {
	mu       sync.Mutex
	accounts map[string]*database.Account
	entries  []database.LedgerEntry
}

func newFakeStore(accounts ...*database.Account) *fakeStore {
	s := &fakeStore{accounts: make(map[string]*database.Account)}
	for _, a := range accounts {
		s.accounts[a.ID] = a
	}
	return s
}

func (s *fakeStore) GetAccountByID(_ context.Context, accountID string) (*database.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return nil, database.ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *fakeStore) AdjustPrincipal(_ context.Context, accountID string, delta decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return database.ErrAccountNotFound
	}
	nextBalance := a.Balance.Add(delta)
	nextAvailable := a.AvailableBalance.Add(delta)
	if nextBalance.IsNegative() || nextAvailable.IsNegative() {
		return database.ErrPreconditionFailed
	}
	a.Balance = nextBalance
	a.AvailableBalance = nextAvailable
	return nil
}

func (s *fakeStore) AppendLedgerEntry(_ context.Context, entry *database.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, *entry)
	return nil
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func fundedAccount(id, balance string) *database.Account {
	return &database.Account{
		ID:               id,
		Status:           database.AccountActive,
		Balance:          dec(balance),
		AvailableBalance: dec(balance),
	}
}

func newTestManager(store *fakeStore) *Manager {
	return NewManager(store, nil, zerolog.Nop())
}

// ============================================================================
// TEST: Deposit and withdraw
// ============================================================================

func TestDeposit(t *testing.T) {
	store := newFakeStore(fundedAccount("acct-1", "0"))
	m := newTestManager(store)

	if err := m.Deposit(context.Background(), "acct-1", dec("250.50")); err != nil {
		t.Fatalf("Deposit returned error: %v", err)
	}

	info, err := m.BalanceInfo(context.Background(), "acct-1")
	if err != nil {
		t.Fatalf("BalanceInfo returned error: %v", err)
	}
	if !info.Balance.Equal(dec("250.50")) {
		t.Errorf("balance = %s, want 250.50", info.Balance)
	}
	if !info.AvailableBalance.Equal(dec("250.50")) {
		t.Errorf("available = %s, want 250.50", info.AvailableBalance)
	}

	if len(store.entries) != 1 || store.entries[0].Kind != database.EntryDeposit {
		t.Errorf("expected one DEPOSIT entry, got %+v", store.entries)
	}
}

func TestWithdraw(t *testing.T) {
	store := newFakeStore(fundedAccount("acct-1", "100"))
	m := newTestManager(store)

	if err := m.Withdraw(context.Background(), "acct-1", dec("40")); err != nil {
		t.Fatalf("Withdraw returned error: %v", err)
	}

	info, _ := m.BalanceInfo(context.Background(), "acct-1")
	if !info.Balance.Equal(dec("60")) {
		t.Errorf("balance = %s, want 60", info.Balance)
	}

	if len(store.entries) != 1 || store.entries[0].Kind != database.EntryWithdraw {
		t.Fatalf("expected one WITHDRAW entry, got %+v", store.entries)
	}
	if !store.entries[0].Amount.Equal(dec("-40")) {
		t.Errorf("entry amount = %s, want -40", store.entries[0].Amount)
	}
}

func TestWithdraw_InsufficientBalance(t *testing.T) {
	store := newFakeStore(fundedAccount("acct-1", "10"))
	m := newTestManager(store)

	err := m.Withdraw(context.Background(), "acct-1", dec("25"))
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	info, _ := m.BalanceInfo(context.Background(), "acct-1")
	if !info.Balance.Equal(dec("10")) {
		t.Errorf("balance changed on failed withdraw: %s", info.Balance)
	}
}

func TestInvalidAmounts(t *testing.T) {
	m := newTestManager(newFakeStore(fundedAccount("acct-1", "10")))

	cases := []struct {
		name string
		call func() error
	}{
		{"deposit zero", func() error { return m.Deposit(context.Background(), "acct-1", decimal.Zero) }},
		{"deposit negative", func() error { return m.Deposit(context.Background(), "acct-1", dec("-1")) }},
		{"withdraw zero", func() error { return m.Withdraw(context.Background(), "acct-1", decimal.Zero) }},
		{"withdraw negative", func() error { return m.Withdraw(context.Background(), "acct-1", dec("-1")) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.call(); !errors.Is(err, ErrInvalidAmount) {
				t.Errorf("expected ErrInvalidAmount, got %v", err)
			}
		})
	}
}

func TestWithdraw_UnknownAccount(t *testing.T) {
	m := newTestManager(newFakeStore())
	if err := m.Withdraw(context.Background(), "missing", dec("5")); !errors.Is(err, database.ErrAccountNotFound) {
		t.Errorf("expected ErrAccountNotFound, got %v", err)
	}
}

// ============================================================================
// TEST: Concurrent withdrawals never overdraw
// ============================================================================

func TestWithdraw_ConcurrentNeverOverdraws(t *testing.T) {
	const workers = 100
	amount := dec("10")

	// Balance covers exactly half the attempts.
	store := newFakeStore(fundedAccount("acct-1", "500"))
	m := newTestManager(store)

	var wg sync.WaitGroup
	results := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- m.Withdraw(context.Background(), "acct-1", amount)
		}()
	}
	wg.Wait()
	close(results)

	var ok, insufficient int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrInsufficientBalance):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if ok != 50 || insufficient != 50 {
		t.Errorf("successes = %d, insufficient = %d, want 50/50", ok, insufficient)
	}

	info, _ := m.BalanceInfo(context.Background(), "acct-1")
	if !info.Balance.IsZero() {
		t.Errorf("final balance = %s, want exactly 0", info.Balance)
	}
	if info.Balance.IsNegative() {
		t.Error("balance went negative under concurrency")
	}
}
