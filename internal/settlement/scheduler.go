package settlement

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"custody-platform/internal/database"
)

// SchedulerConfig holds configuration for the settlement scheduler
type SchedulerConfig struct {
	// CheckInterval is how often to sweep for accounts with pending fees
	CheckInterval time.Duration

	// MaxConcurrent is the maximum number of concurrent account settlements
	MaxConcurrent int

	// SettlementTimeout is the maximum time allowed for a single account's settlement
	SettlementTimeout time.Duration
}

// DefaultSchedulerConfig returns default scheduler configuration
func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		CheckInterval:     1 * time.Hour,
		MaxConcurrent:     5,
		SettlementTimeout: 30 * time.Second,
	}
}

// Scheduler periodically sweeps accounts with pending custody fees and
// settles the due ones. Settle is idempotent, so overlapping or redundant
// sweeps are harmless.
type Scheduler struct {
	engine *Engine
	store  Store
	config *SchedulerConfig
	logger zerolog.Logger

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewScheduler creates a new settlement scheduler
func NewScheduler(engine *Engine, store Store, config *SchedulerConfig, logger zerolog.Logger) *Scheduler {
	if config == nil {
		config = DefaultSchedulerConfig()
	}
	return &Scheduler{
		engine:   engine,
		store:    store,
		config:   config,
		logger:   logger.With().Str("component", "settlement_scheduler").Logger(),
		stopChan: make(chan struct{}),
	}
}

// Start starts the settlement scheduler
func (s *Scheduler) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("settlement scheduler already running")
	}
	s.running = true
	s.stopChan = make(chan struct{}) // Reinitialize for restart capability
	s.mu.Unlock()

	s.logger.Info().
		Dur("check_interval", s.config.CheckInterval).
		Int("max_concurrent", s.config.MaxConcurrent).
		Msg("Starting settlement scheduler")

	s.wg.Add(1)
	go s.runLoop()
	return nil
}

// Stop stops the settlement scheduler
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("settlement scheduler not running")
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopChan)
	s.wg.Wait()

	s.logger.Info().Msg("Settlement scheduler stopped")
	return nil
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) runLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.CheckInterval)
	defer ticker.Stop()

	// Run immediately on start
	s.sweep()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopChan:
			return
		}
	}
}

// sweep settles every account with pending fees, bounded by MaxConcurrent.
func (s *Scheduler) sweep() {
	ctx := context.Background()

	accounts, err := s.store.GetAccountsWithPendingFees(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list accounts with pending fees")
		return
	}
	if len(accounts) == 0 {
		return
	}

	s.logger.Debug().Int("accounts", len(accounts)).Msg("Sweeping accounts with pending fees")

	semaphore := make(chan struct{}, s.config.MaxConcurrent)
	var wg sync.WaitGroup

	for _, account := range accounts {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(a *database.Account) {
			defer wg.Done()
			defer func() { <-semaphore }()
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error().
						Interface("panic", r).
						Str("account_id", a.ID).
						Msg("Panic recovered during settlement sweep")
				}
			}()

			s.processAccount(ctx, a.ID)
		}(account)
	}

	wg.Wait()
}

func (s *Scheduler) processAccount(ctx context.Context, accountID string) {
	ctx, cancel := context.WithTimeout(ctx, s.config.SettlementTimeout)
	defer cancel()

	if err := s.engine.UpdateCadence(ctx, accountID); err != nil {
		s.logger.Warn().Err(err).Str("account_id", accountID).Msg("Cadence check failed")
	}

	record, err := s.engine.Settle(ctx, accountID)
	if err != nil {
		s.logger.Error().Err(err).Str("account_id", accountID).Msg("Scheduled settlement failed")
		return
	}

	switch record.Outcome {
	case database.OutcomeSettled:
		if record.TotalFee.IsPositive() {
			s.logger.Info().
				Str("account_id", accountID).
				Str("total_fee", record.TotalFee.String()).
				Msg("Scheduled settlement completed")
		}
	case database.OutcomeInsufficientBalance:
		s.logger.Warn().
			Str("account_id", accountID).
			Str("pending", record.ProfitBasis.String()).
			Msg("Settlement deferred, insufficient balance")
	}
}
