// Package accounts implements the account lifecycle: registration with
// referral chain capture, authentication, and closure.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"custody-platform/internal/auth"
	"custody-platform/internal/database"
)

// maxChainDepth caps the referrer chain at two levels of upline.
const maxChainDepth = 2

var (
	// ErrInvalidEmail is returned when the email is empty or malformed.
	ErrInvalidEmail = errors.New("invalid email address")

	// ErrReferrerNotFound is returned when the named referrer does not exist.
	ErrReferrerNotFound = errors.New("referrer account not found")
)

// Store is the persistence surface the service needs.
type Store interface {
	CreateAccount(ctx context.Context, account *database.Account) error
	GetAccountByID(ctx context.Context, accountID string) (*database.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*database.Account, error)
	CloseAccount(ctx context.Context, accountID string) error
}

// GiftGranter issues the registration gift balance.
type GiftGranter interface {
	Grant(ctx context.Context, accountID string, amount decimal.Decimal) error
}

// Service manages the account lifecycle.
type Service struct {
	store     Store
	passwords *auth.PasswordManager
	tokens    *auth.JWTManager
	gifts     GiftGranter
	giftGrant decimal.Decimal
	logger    zerolog.Logger
}

// NewService creates the account lifecycle service. gifts may be nil to
// disable the registration grant.
func NewService(store Store, passwords *auth.PasswordManager, tokens *auth.JWTManager, gifts GiftGranter, giftGrant decimal.Decimal, logger zerolog.Logger) *Service {
	return &Service{
		store:     store,
		passwords: passwords,
		tokens:    tokens,
		gifts:     gifts,
		giftGrant: giftGrant,
		logger:    logger.With().Str("component", "accounts").Logger(),
	}
}

// Register creates a new account with zero balances, WEEKLY settlement
// cadence, and the referrer chain captured at creation time. The chain is
// the direct referrer plus the referrer's own direct referrer, at most two
// deep, and never changes afterwards. The registration gift balance is
// granted before returning.
func (s *Service) Register(ctx context.Context, email, password, referrerID string) (*database.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !validEmail(email) {
		return nil, ErrInvalidEmail
	}
	if err := s.passwords.ValidatePasswordStrength(password); err != nil {
		return nil, auth.ErrWeakPassword
	}

	chain, err := s.buildReferrerChain(ctx, referrerID)
	if err != nil {
		return nil, err
	}

	hash, err := s.passwords.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	account := &database.Account{
		Email:             email,
		PasswordHash:      hash,
		Balance:           decimal.Zero,
		AvailableBalance:  decimal.Zero,
		UsedMargin:        decimal.Zero,
		GiftBalance:       decimal.Zero,
		CustodyFeeBalance: decimal.Zero,
		CustodyFeePending: decimal.Zero,
		SettlementCadence: database.CadenceWeekly,
		ReferrerChain:     chain,
		ServiceStartTime:  time.Now().UTC(),
		Status:            database.AccountActive,
	}
	if err := s.store.CreateAccount(ctx, account); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("account_id", account.ID).
		Str("email", email).
		Int("chain_depth", len(chain)).
		Msg("Account registered")

	if s.gifts != nil && s.giftGrant.IsPositive() {
		if err := s.gifts.Grant(ctx, account.ID, s.giftGrant); err != nil {
			// The account is live; the grant can be re-issued manually.
			s.logger.Error().Err(err).Str("account_id", account.ID).Msg("Registration gift grant failed")
		} else {
			account.GiftBalance = s.giftGrant
		}
	}
	return account, nil
}

// Authenticate verifies the credentials and issues an access token.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*auth.TokenResponse, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	account, err := s.store.GetAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, database.ErrAccountNotFound) {
			return nil, auth.ErrInvalidCredentials
		}
		return nil, err
	}
	if account.Status == database.AccountClosed {
		return nil, auth.ErrInvalidCredentials
	}
	if !s.passwords.VerifyPassword(password, account.PasswordHash) {
		return nil, auth.ErrInvalidCredentials
	}

	return s.tokens.IssueTokenResponse(auth.UserClaims{
		AccountID: account.ID,
		Email:     account.Email,
	})
}

// Close marks the account closed, keeping its ledger and settlement history
// intact. Closure is refused while balance, gift_balance, or
// custody_fee_balance is non-zero; the caller gets ErrAccountNotEmpty.
func (s *Service) Close(ctx context.Context, accountID string) error {
	if err := s.store.CloseAccount(ctx, accountID); err != nil {
		return err
	}
	s.logger.Info().Str("account_id", accountID).Msg("Account closed")
	return nil
}

// Get returns one account by id.
func (s *Service) Get(ctx context.Context, accountID string) (*database.Account, error) {
	return s.store.GetAccountByID(ctx, accountID)
}

// buildReferrerChain resolves the direct referrer and inherits the first
// entry of its own chain.
func (s *Service) buildReferrerChain(ctx context.Context, referrerID string) ([]string, error) {
	if referrerID == "" {
		return nil, nil
	}

	referrer, err := s.store.GetAccountByID(ctx, referrerID)
	if err != nil {
		if errors.Is(err, database.ErrAccountNotFound) {
			return nil, ErrReferrerNotFound
		}
		return nil, err
	}

	chain := []string{referrer.ID}
	if len(referrer.ReferrerChain) > 0 {
		chain = append(chain, referrer.ReferrerChain[0])
	}
	if len(chain) > maxChainDepth {
		chain = chain[:maxChainDepth]
	}
	return chain, nil
}

func validEmail(email string) bool {
	if email == "" || len(email) > 254 {
		return false
	}
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 {
		return false
	}
	return strings.Contains(email[at+1:], ".")
}
