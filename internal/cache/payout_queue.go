package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"custody-platform/internal/settlement"
)

// payoutQueueKey is the sorted set holding pending commission payouts,
// scored by their next attempt time.
const payoutQueueKey = "settlement:payouts:pending"

// RedisPayoutQueue is a Redis-backed settlement.PayoutQueue. Payouts survive
// process restarts; entries are scored by next attempt time so DequeueDue is
// a range read.
type RedisPayoutQueue struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewRedisPayoutQueue creates a payout queue on the cache service's Redis
// connection.
func NewRedisPayoutQueue(cs *CacheService, logger zerolog.Logger) *RedisPayoutQueue {
	return &RedisPayoutQueue{
		client: cs.Client(),
		logger: logger.With().Str("component", "payout_queue").Logger(),
	}
}

// Enqueue adds or reschedules a pending payout.
func (q *RedisPayoutQueue) Enqueue(ctx context.Context, payout settlement.PendingPayout) error {
	data, err := json.Marshal(payout)
	if err != nil {
		return fmt.Errorf("failed to marshal payout: %w", err)
	}

	score := float64(payout.NextAttempt.Unix())
	if err := q.client.ZAdd(ctx, payoutQueueKey, redis.Z{Score: score, Member: string(data)}).Err(); err != nil {
		return fmt.Errorf("failed to enqueue payout: %w", err)
	}
	return nil
}

// DequeueDue removes and returns up to limit payouts whose next attempt time
// has passed.
func (q *RedisPayoutQueue) DequeueDue(ctx context.Context, now time.Time, limit int) ([]settlement.PendingPayout, error) {
	members, err := q.client.ZRangeByScore(ctx, payoutQueueKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   fmt.Sprintf("%d", now.Unix()),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read payout queue: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	removable := make([]interface{}, len(members))
	for i, m := range members {
		removable[i] = m
	}
	if err := q.client.ZRem(ctx, payoutQueueKey, removable...).Err(); err != nil {
		return nil, fmt.Errorf("failed to claim payouts: %w", err)
	}

	payouts := make([]settlement.PendingPayout, 0, len(members))
	for _, m := range members {
		var p settlement.PendingPayout
		if err := json.Unmarshal([]byte(m), &p); err != nil {
			// A corrupt entry is unrecoverable from the queue; the
			// settlement record still holds the owed amount.
			q.logger.Error().Err(err).Str("member", m).Msg("Dropping undecodable payout entry")
			continue
		}
		payouts = append(payouts, p)
	}
	return payouts, nil
}

// Len returns the number of queued payouts.
func (q *RedisPayoutQueue) Len(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, payoutQueueKey).Result()
}
