package settlement

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// RetryConfig defines the payout retry behavior.
type RetryConfig struct {
	// BackoffDelays is the delay schedule between retry attempts; the last
	// delay repeats once the schedule is exhausted.
	BackoffDelays []time.Duration

	// BatchSize bounds how many payouts a single pass processes.
	BatchSize int
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		BackoffDelays: []time.Duration{5 * time.Second, 15 * time.Second, 45 * time.Second},
		BatchSize:     100,
	}
}

// Reconciler retries commission credits that failed after their settlement
// debit committed. Credits are idempotent under the correlation id, so a
// payout is retried until it applies; money owed to an upline is never
// dropped.
type Reconciler struct {
	store  Store
	queue  PayoutQueue
	config *RetryConfig
	logger zerolog.Logger

	interval time.Duration
	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewReconciler creates a payout reconciler polling the queue every interval.
func NewReconciler(store Store, queue PayoutQueue, config *RetryConfig, interval time.Duration, logger zerolog.Logger) *Reconciler {
	if config == nil {
		config = DefaultRetryConfig()
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Reconciler{
		store:    store,
		queue:    queue,
		config:   config,
		interval: interval,
		logger:   logger.With().Str("component", "payout_reconciler").Logger(),
		stopChan: make(chan struct{}),
	}
}

// Start starts the reconciliation loop.
func (r *Reconciler) Start() error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("payout reconciler already running")
	}
	r.running = true
	r.stopChan = make(chan struct{})
	r.mu.Unlock()

	r.logger.Info().Dur("interval", r.interval).Msg("Starting payout reconciler")

	r.wg.Add(1)
	go r.runLoop()
	return nil
}

// Stop stops the reconciliation loop.
func (r *Reconciler) Stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return fmt.Errorf("payout reconciler not running")
	}
	r.running = false
	r.mu.Unlock()

	close(r.stopChan)
	r.wg.Wait()

	r.logger.Info().Msg("Payout reconciler stopped")
	return nil
}

func (r *Reconciler) runLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.RunOnce(context.Background())
		case <-r.stopChan:
			return
		}
	}
}

// RunOnce processes one batch of due payouts and returns how many applied.
func (r *Reconciler) RunOnce(ctx context.Context) int {
	now := time.Now().UTC()

	payouts, err := r.queue.DequeueDue(ctx, now, r.config.BatchSize)
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to dequeue pending payouts")
		return 0
	}

	applied := 0
	for _, payout := range payouts {
		// A payout may already be on the ledger if an earlier attempt
		// committed but its dequeue was lost. Drop it without re-crediting.
		exists, err := r.store.HasCommissionCredit(ctx, payout.AccountID, payout.CorrelationID)
		if err != nil {
			r.requeue(ctx, payout, now, err)
			continue
		}
		if exists {
			r.logger.Debug().
				Str("account_id", payout.AccountID).
				Str("correlation_id", payout.CorrelationID).
				Msg("Commission payout already applied, dropping")
			continue
		}
		if err := r.store.ApplyCommissionCredit(ctx, payout.AccountID, payout.Amount, payout.CorrelationID); err != nil {
			r.requeue(ctx, payout, now, err)
			continue
		}
		applied++
		r.logger.Info().
			Str("account_id", payout.AccountID).
			Str("amount", payout.Amount.String()).
			Str("correlation_id", payout.CorrelationID).
			Int("attempts", payout.Attempts+1).
			Msg("Reconciled commission payout")
	}
	return applied
}

// requeue schedules the next attempt on the backoff schedule. The last delay
// repeats indefinitely: a payout only leaves the queue by applying.
func (r *Reconciler) requeue(ctx context.Context, payout PendingPayout, now time.Time, cause error) {
	delayIdx := payout.Attempts
	if delayIdx >= len(r.config.BackoffDelays) {
		delayIdx = len(r.config.BackoffDelays) - 1
	}
	payout.Attempts++
	payout.NextAttempt = now.Add(r.config.BackoffDelays[delayIdx])

	r.logger.Warn().
		Err(cause).
		Str("account_id", payout.AccountID).
		Str("correlation_id", payout.CorrelationID).
		Int("attempts", payout.Attempts).
		Time("next_attempt", payout.NextAttempt).
		Msg("Commission payout retry failed, rescheduling")

	if err := r.queue.Enqueue(ctx, payout); err != nil {
		r.logger.Error().
			Err(err).
			Str("account_id", payout.AccountID).
			Str("correlation_id", payout.CorrelationID).
			Msg("Failed to requeue payout")
	}
}
