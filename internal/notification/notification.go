package notification

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// NotificationType represents the type of notification
type NotificationType string

const (
	NotifyGiftGranted   NotificationType = "gift_account_created"
	NotifyGiftThreshold NotificationType = "gift_balance_low"
	NotifyBalanceChange NotificationType = "balance_change"
	NotifySettlement    NotificationType = "settlement_completed"
	NotifyCommission    NotificationType = "commission_received"
	NotifyError         NotificationType = "error"
	NotifyInfo          NotificationType = "info"
)

// Notification represents one message destined for an account holder.
type Notification struct {
	Type      NotificationType       `json:"type"`
	AccountID string                 `json:"account_id,omitempty"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Amount    decimal.Decimal        `json:"amount"`
	Timestamp time.Time              `json:"timestamp"`
	Extra     map[string]interface{} `json:"extra,omitempty"`
}

// Notifier interface for different notification providers
type Notifier interface {
	Send(notification *Notification) error
	Name() string
	IsEnabled() bool
}

// Manager fans notifications out to the registered providers. Delivery is
// best effort: provider errors are logged and never returned to money paths.
type Manager struct {
	notifiers []Notifier
	enabled   bool
	logger    zerolog.Logger
}

// NewManager creates a new notification manager
func NewManager(logger zerolog.Logger) *Manager {
	return &Manager{
		notifiers: make([]Notifier, 0),
		enabled:   true,
		logger:    logger.With().Str("component", "notification").Logger(),
	}
}

// AddNotifier adds a notification provider
func (m *Manager) AddNotifier(n Notifier) {
	m.notifiers = append(m.notifiers, n)
}

// Send delivers a notification to all enabled providers.
func (m *Manager) Send(notification *Notification) {
	if !m.enabled {
		return
	}
	if notification.Timestamp.IsZero() {
		notification.Timestamp = time.Now().UTC()
	}

	for _, n := range m.notifiers {
		if !n.IsEnabled() {
			continue
		}
		if err := n.Send(notification); err != nil {
			m.logger.Warn().
				Err(err).
				Str("provider", n.Name()).
				Str("type", string(notification.Type)).
				Str("account_id", notification.AccountID).
				Msg("Notification delivery failed")
		}
	}
}

// SendGiftGranted announces the initial gift balance grant.
func (m *Manager) SendGiftGranted(accountID string, amount decimal.Decimal) {
	m.Send(&Notification{
		Type:      NotifyGiftGranted,
		AccountID: accountID,
		Title:     "Gift balance granted",
		Message:   fmt.Sprintf("A gift balance of %s has been credited to your account", amount),
		Amount:    amount,
	})
}

// SendGiftThreshold warns that the gift balance fell below the configured
// threshold after a spend.
func (m *Manager) SendGiftThreshold(accountID string, remaining decimal.Decimal) {
	m.Send(&Notification{
		Type:      NotifyGiftThreshold,
		AccountID: accountID,
		Title:     "Gift balance running low",
		Message:   fmt.Sprintf("Your gift balance is down to %s", remaining),
		Amount:    remaining,
	})
}

// SendBalanceChange announces a deposit or withdrawal.
func (m *Manager) SendBalanceChange(accountID, direction string, amount, newBalance decimal.Decimal) {
	m.Send(&Notification{
		Type:      NotifyBalanceChange,
		AccountID: accountID,
		Title:     fmt.Sprintf("Funds %s", direction),
		Message:   fmt.Sprintf("%s of %s processed, balance is now %s", direction, amount, newBalance),
		Amount:    amount,
		Extra: map[string]interface{}{
			"direction":   direction,
			"new_balance": newBalance.String(),
		},
	})
}

// SendSettlementCompleted announces a completed custody fee settlement.
func (m *Manager) SendSettlementCompleted(accountID string, totalFee, giftApplied decimal.Decimal) {
	m.Send(&Notification{
		Type:      NotifySettlement,
		AccountID: accountID,
		Title:     "Custody fee settled",
		Message:   fmt.Sprintf("Custody fees of %s settled (%s covered by gift balance)", totalFee, giftApplied),
		Amount:    totalFee,
		Extra: map[string]interface{}{
			"gift_applied": giftApplied.String(),
		},
	})
}

// SendCommissionReceived announces a referral commission credit.
func (m *Manager) SendCommissionReceived(accountID string, amount decimal.Decimal) {
	m.Send(&Notification{
		Type:      NotifyCommission,
		AccountID: accountID,
		Title:     "Referral commission received",
		Message:   fmt.Sprintf("A referral commission of %s was credited to your fee balance", amount),
		Amount:    amount,
	})
}
