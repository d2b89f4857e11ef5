package gift

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"custody-platform/internal/database"
)

type fakeStore struct {
	mu       sync.Mutex
	accounts map[string]*database.Account
	entries  []database.LedgerEntry

	// failAdjusts makes the next N AdjustBalance calls fail with a
	// precondition error to exercise the retry path.
	failAdjusts int
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

func (s *fakeStore) AdjustBalance(_ context.Context, accountID string, field database.BalanceField, delta decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAdjusts > 0 {
		s.failAdjusts--
		return database.ErrPreconditionFailed
	}
	a, ok := s.accounts[accountID]
	if !ok {
		return database.ErrAccountNotFound
	}
	if field != database.FieldGiftBalance {
		return database.ErrInvalidBalanceField
	}
	next := a.GiftBalance.Add(delta)
	if next.IsNegative() {
		return database.ErrPreconditionFailed
	}
	a.GiftBalance = next
	return nil
}

func (s *fakeStore) AppendLedgerEntry(_ context.Context, entry *database.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, *entry)
	return nil
}

type fakeNotifier struct {
	granted   chan decimal.Decimal
	threshold chan decimal.Decimal
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{
		granted:   make(chan decimal.Decimal, 4),
		threshold: make(chan decimal.Decimal, 4),
	}
}

func (n *fakeNotifier) SendGiftGranted(_ string, amount decimal.Decimal) {
	n.granted <- amount
}

func (n *fakeNotifier) SendGiftThreshold(_ string, remaining decimal.Decimal) {
	n.threshold <- remaining
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func giftAccount(id, balance string) *database.Account {
	return &database.Account{
		ID:          id,
		GiftBalance: dec(balance),
		Status:      database.AccountActive,
	}
}

func newTestManager(store *fakeStore, notifier Notifier) *Manager {
	return NewManager(store, notifier, DefaultConfig(), zerolog.Nop())
}

// ============================================================================
// TEST: Spend
// ============================================================================

func TestSpend_CappedByGiftBalance(t *testing.T) {
	store := newFakeStore(giftAccount("acct-1", "20"))
	m := newTestManager(store, nil)

	spent, err := m.Spend(context.Background(), "acct-1", dec("100"))
	if err != nil {
		t.Fatalf("Spend returned error: %v", err)
	}
	if !spent.Equal(dec("20")) {
		t.Errorf("spent = %s, want 20", spent)
	}

	balance, _ := m.Balance(context.Background(), "acct-1")
	if !balance.IsZero() {
		t.Errorf("remaining gift balance = %s, want 0", balance)
	}
}

func TestSpend_PartialWhenBalanceCovers(t *testing.T) {
	store := newFakeStore(giftAccount("acct-1", "50"))
	m := newTestManager(store, nil)

	spent, err := m.Spend(context.Background(), "acct-1", dec("12.50"))
	if err != nil {
		t.Fatalf("Spend returned error: %v", err)
	}
	if !spent.Equal(dec("12.50")) {
		t.Errorf("spent = %s, want 12.50", spent)
	}

	balance, _ := m.Balance(context.Background(), "acct-1")
	if !balance.Equal(dec("37.50")) {
		t.Errorf("remaining gift balance = %s, want 37.50", balance)
	}
}

func TestSpend_ZeroGiftBalanceIsNotAnError(t *testing.T) {
	store := newFakeStore(giftAccount("acct-1", "0"))
	m := newTestManager(store, nil)

	spent, err := m.Spend(context.Background(), "acct-1", dec("10"))
	if err != nil {
		t.Fatalf("Spend returned error: %v", err)
	}
	if !spent.IsZero() {
		t.Errorf("spent = %s, want 0", spent)
	}
	if len(store.entries) != 0 {
		t.Errorf("expected no ledger entries, got %d", len(store.entries))
	}
}

func TestSpend_InvalidAmount(t *testing.T) {
	m := newTestManager(newFakeStore(giftAccount("acct-1", "10")), nil)

	if _, err := m.Spend(context.Background(), "acct-1", dec("-5")); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount, got %v", err)
	}
	if _, err := m.Spend(context.Background(), "acct-1", decimal.Zero); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount for zero, got %v", err)
	}
}

func TestSpend_UnknownAccount(t *testing.T) {
	m := newTestManager(newFakeStore(), nil)

	if _, err := m.Spend(context.Background(), "missing", dec("10")); !errors.Is(err, database.ErrAccountNotFound) {
		t.Errorf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestSpend_RecordsGiftUsageEntry(t *testing.T) {
	store := newFakeStore(giftAccount("acct-1", "30"))
	m := newTestManager(store, nil)

	if _, err := m.Spend(context.Background(), "acct-1", dec("10")); err != nil {
		t.Fatalf("Spend returned error: %v", err)
	}

	if len(store.entries) != 1 {
		t.Fatalf("expected 1 ledger entry, got %d", len(store.entries))
	}
	entry := store.entries[0]
	if entry.Kind != database.EntryGiftUsage {
		t.Errorf("entry kind = %s, want GIFT_USAGE", entry.Kind)
	}
	if !entry.Amount.Equal(dec("-10")) {
		t.Errorf("entry amount = %s, want -10", entry.Amount)
	}
}

func TestSpend_RetriesOnConflict(t *testing.T) {
	store := newFakeStore(giftAccount("acct-1", "30"))
	store.failAdjusts = 2
	m := newTestManager(store, nil)

	spent, err := m.Spend(context.Background(), "acct-1", dec("10"))
	if err != nil {
		t.Fatalf("Spend returned error after retryable conflicts: %v", err)
	}
	if !spent.Equal(dec("10")) {
		t.Errorf("spent = %s, want 10", spent)
	}
}

// ============================================================================
// TEST: Threshold notification
// ============================================================================

func TestSpend_ThresholdNotification(t *testing.T) {
	store := newFakeStore(giftAccount("acct-1", "7"))
	notifier := newFakeNotifier()
	m := newTestManager(store, notifier)

	// 7 - 4 = 3, below the 5.00 threshold.
	if _, err := m.Spend(context.Background(), "acct-1", dec("4")); err != nil {
		t.Fatalf("Spend returned error: %v", err)
	}

	select {
	case remaining := <-notifier.threshold:
		if !remaining.Equal(dec("3")) {
			t.Errorf("threshold notification remaining = %s, want 3", remaining)
		}
	case <-time.After(time.Second):
		t.Fatal("threshold notification not delivered")
	}
}

func TestSpend_NoNotificationAboveThreshold(t *testing.T) {
	store := newFakeStore(giftAccount("acct-1", "50"))
	notifier := newFakeNotifier()
	m := newTestManager(store, notifier)

	if _, err := m.Spend(context.Background(), "acct-1", dec("10")); err != nil {
		t.Fatalf("Spend returned error: %v", err)
	}

	select {
	case <-notifier.threshold:
		t.Fatal("unexpected threshold notification at remaining 40")
	case <-time.After(50 * time.Millisecond):
	}
}

// ============================================================================
// TEST: Grant
// ============================================================================

func TestGrant(t *testing.T) {
	store := newFakeStore(giftAccount("acct-1", "0"))
	notifier := newFakeNotifier()
	m := newTestManager(store, notifier)

	if err := m.Grant(context.Background(), "acct-1", dec("30")); err != nil {
		t.Fatalf("Grant returned error: %v", err)
	}

	balance, _ := m.Balance(context.Background(), "acct-1")
	if !balance.Equal(dec("30")) {
		t.Errorf("gift balance = %s, want 30", balance)
	}

	select {
	case amount := <-notifier.granted:
		if !amount.Equal(dec("30")) {
			t.Errorf("grant notification amount = %s, want 30", amount)
		}
	case <-time.After(time.Second):
		t.Fatal("grant notification not delivered")
	}
}

func TestGrant_InvalidAmount(t *testing.T) {
	m := newTestManager(newFakeStore(giftAccount("acct-1", "0")), nil)

	if err := m.Grant(context.Background(), "acct-1", decimal.Zero); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount, got %v", err)
	}
}
