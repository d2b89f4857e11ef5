package accounts

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"custody-platform/internal/auth"
	"custody-platform/internal/database"
)

type fakeStore struct {
	mu       sync.Mutex
	accounts map[string]*database.Account
	nextID   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{accounts: make(map[string]*database.Account)}
}

func (s *fakeStore) CreateAccount(_ context.Context, account *database.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Email == account.Email {
			return database.ErrDuplicateEmail
		}
	}
	if account.ID == "" {
		s.nextID++
		account.ID = fmt.Sprintf("acct-%d", s.nextID)
	}
	cp := *account
	s.accounts[account.ID] = &cp
	return nil
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

func (s *fakeStore) GetAccountByEmail(_ context.Context, email string) (*database.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Email == email {
			cp := *a
			return &cp, nil
		}
	}
	return nil, database.ErrAccountNotFound
}

func (s *fakeStore) CloseAccount(_ context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return database.ErrAccountNotFound
	}
	if a.Status == database.AccountClosed {
		return nil
	}
	if !a.Balance.IsZero() || !a.GiftBalance.IsZero() || !a.CustodyFeeBalance.IsZero() {
		return database.ErrAccountNotEmpty
	}
	a.Status = database.AccountClosed
	return nil
}

type fakeGranter struct {
	mu     sync.Mutex
	grants map[string]decimal.Decimal
}

func newFakeGranter() *fakeGranter {
	return &fakeGranter{grants: make(map[string]decimal.Decimal)}
}

func (g *fakeGranter) Grant(_ context.Context, accountID string, amount decimal.Decimal) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.grants[accountID] = amount
	return nil
}

func newTestService(store *fakeStore, gifts GiftGranter) *Service {
	return NewService(
		store,
		auth.NewPasswordManager(4, 8),
		auth.NewJWTManager("test-secret", time.Hour),
		gifts,
		decimal.NewFromInt(30),
		zerolog.Nop(),
	)
}

const strongPassword = "Str0ng-Pass!"

// ============================================================================
// TEST: Registration and referrer chain
// ============================================================================

func TestRegister_NoReferrer(t *testing.T) {
	store := newFakeStore()
	granter := newFakeGranter()
	svc := newTestService(store, granter)

	account, err := svc.Register(context.Background(), "alice@example.com", strongPassword, "")
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	if len(account.ReferrerChain) != 0 {
		t.Errorf("chain = %v, want empty", account.ReferrerChain)
	}
	if account.SettlementCadence != database.CadenceWeekly {
		t.Errorf("cadence = %s, want WEEKLY", account.SettlementCadence)
	}
	if !account.Balance.IsZero() || !account.CustodyFeeBalance.IsZero() {
		t.Error("new account must start with zero balances")
	}
	if got := granter.grants[account.ID]; !got.Equal(decimal.NewFromInt(30)) {
		t.Errorf("gift grant = %s, want 30", got)
	}
}

func TestRegister_ChainDepths(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, nil)
	ctx := context.Background()

	root, err := svc.Register(ctx, "root@example.com", strongPassword, "")
	if err != nil {
		t.Fatalf("register root: %v", err)
	}
	mid, err := svc.Register(ctx, "mid@example.com", strongPassword, root.ID)
	if err != nil {
		t.Fatalf("register mid: %v", err)
	}
	leaf, err := svc.Register(ctx, "leaf@example.com", strongPassword, mid.ID)
	if err != nil {
		t.Fatalf("register leaf: %v", err)
	}

	if len(mid.ReferrerChain) != 1 || mid.ReferrerChain[0] != root.ID {
		t.Errorf("mid chain = %v, want [%s]", mid.ReferrerChain, root.ID)
	}
	if len(leaf.ReferrerChain) != 2 || leaf.ReferrerChain[0] != mid.ID || leaf.ReferrerChain[1] != root.ID {
		t.Errorf("leaf chain = %v, want [%s %s]", leaf.ReferrerChain, mid.ID, root.ID)
	}

	// A fourth level still carries at most two uplines.
	deep, err := svc.Register(ctx, "deep@example.com", strongPassword, leaf.ID)
	if err != nil {
		t.Fatalf("register deep: %v", err)
	}
	if len(deep.ReferrerChain) != 2 || deep.ReferrerChain[0] != leaf.ID || deep.ReferrerChain[1] != mid.ID {
		t.Errorf("deep chain = %v, want [%s %s]", deep.ReferrerChain, leaf.ID, mid.ID)
	}
}

func TestRegister_UnknownReferrer(t *testing.T) {
	svc := newTestService(newFakeStore(), nil)
	if _, err := svc.Register(context.Background(), "a@example.com", strongPassword, "ghost"); !errors.Is(err, ErrReferrerNotFound) {
		t.Errorf("expected ErrReferrerNotFound, got %v", err)
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	svc := newTestService(newFakeStore(), nil)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "a@example.com", strongPassword, ""); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if _, err := svc.Register(ctx, "a@example.com", strongPassword, ""); !errors.Is(err, database.ErrDuplicateEmail) {
		t.Errorf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestRegister_Validation(t *testing.T) {
	svc := newTestService(newFakeStore(), nil)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "not-an-email", strongPassword, ""); !errors.Is(err, ErrInvalidEmail) {
		t.Errorf("expected ErrInvalidEmail, got %v", err)
	}
	if _, err := svc.Register(ctx, "a@example.com", "weak", ""); !errors.Is(err, auth.ErrWeakPassword) {
		t.Errorf("expected ErrWeakPassword, got %v", err)
	}
}

// ============================================================================
// TEST: Authentication
// ============================================================================

func TestAuthenticate(t *testing.T) {
	svc := newTestService(newFakeStore(), nil)
	ctx := context.Background()

	account, err := svc.Register(ctx, "alice@example.com", strongPassword, "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	tokens, err := svc.Authenticate(ctx, "alice@example.com", strongPassword)
	if err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}
	if tokens.AccessToken == "" || tokens.TokenType != "Bearer" {
		t.Errorf("unexpected token response: %+v", tokens)
	}

	claims, err := auth.NewJWTManager("test-secret", time.Hour).ValidateAccessToken(tokens.AccessToken)
	if err != nil {
		t.Fatalf("token does not validate: %v", err)
	}
	if claims.AccountID != account.ID {
		t.Errorf("token account = %s, want %s", claims.AccountID, account.ID)
	}
}

func TestAuthenticate_BadCredentials(t *testing.T) {
	svc := newTestService(newFakeStore(), nil)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "alice@example.com", strongPassword, ""); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := svc.Authenticate(ctx, "alice@example.com", "Wrong-Pass1"); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials for wrong password, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, "nobody@example.com", strongPassword); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
}

// ============================================================================
// TEST: Closure
// ============================================================================

func TestClose_RefusedWhileFunded(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, nil)
	ctx := context.Background()

	account, err := svc.Register(ctx, "alice@example.com", strongPassword, "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	store.mu.Lock()
	store.accounts[account.ID].Balance = decimal.NewFromInt(10)
	store.mu.Unlock()

	if err := svc.Close(ctx, account.ID); !errors.Is(err, database.ErrAccountNotEmpty) {
		t.Errorf("expected ErrAccountNotEmpty, got %v", err)
	}

	store.mu.Lock()
	store.accounts[account.ID].Balance = decimal.Zero
	store.mu.Unlock()

	if err := svc.Close(ctx, account.ID); err != nil {
		t.Errorf("Close after emptying returned error: %v", err)
	}

	// The row survives the close so ledger and settlement history keep a
	// valid account reference.
	closed, err := svc.Get(ctx, account.ID)
	if err != nil {
		t.Fatalf("closed account no longer readable: %v", err)
	}
	if closed.Status != database.AccountClosed {
		t.Errorf("expected status %q after close, got %q", database.AccountClosed, closed.Status)
	}
}

func TestClose_Idempotent(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, nil)
	ctx := context.Background()

	account, err := svc.Register(ctx, "bob@example.com", strongPassword, "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := svc.Close(ctx, account.ID); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := svc.Close(ctx, account.ID); err != nil {
		t.Errorf("second close returned error: %v", err)
	}
}
