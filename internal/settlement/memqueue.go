package settlement

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryPayoutQueue is a process-local PayoutQueue used when Redis is not
// configured. Queued payouts do not survive a restart; the settlement
// records still hold every amount owed, keyed by correlation id.
type MemoryPayoutQueue struct {
	mu      sync.Mutex
	payouts []PendingPayout
}

// NewMemoryPayoutQueue creates an empty in-memory payout queue.
func NewMemoryPayoutQueue() *MemoryPayoutQueue {
	return &MemoryPayoutQueue{}
}

func (q *MemoryPayoutQueue) Enqueue(_ context.Context, payout PendingPayout) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.payouts = append(q.payouts, payout)
	return nil
}

func (q *MemoryPayoutQueue) DequeueDue(_ context.Context, now time.Time, limit int) ([]PendingPayout, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	sort.Slice(q.payouts, func(i, j int) bool {
		return q.payouts[i].NextAttempt.Before(q.payouts[j].NextAttempt)
	})

	var due []PendingPayout
	var rest []PendingPayout
	for _, p := range q.payouts {
		if len(due) < limit && !p.NextAttempt.After(now) {
			due = append(due, p)
			continue
		}
		rest = append(rest, p)
	}
	q.payouts = rest
	return due, nil
}

// Len returns the number of queued payouts.
func (q *MemoryPayoutQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.payouts)
}
