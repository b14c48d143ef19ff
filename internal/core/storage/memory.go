package storage

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/adserve-lab/chargecounter/internal/core/counter"
)

// MemoryStore is the in-memory CounterStore. Counters are spread over a fixed
// number of lock shards by key hash; keys on different shards never contend.
// Authoritative for tests and single-process deployments — budgets guarded by
// this store do not survive a restart.
type MemoryStore struct {
	shards [counter.ShardCount]memoryShard
}

type memoryShard struct {
	mu      sync.RWMutex
	records map[string]*counter.Record
}

// NewMemoryStore creates an empty in-memory counter store.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{}
	for i := range s.shards {
		s.shards[i].records = make(map[string]*counter.Record)
	}
	return s
}

func (s *MemoryStore) shardFor(key counter.Key) *memoryShard {
	return &s.shards[counter.ShardFor(key.String())]
}

func (s *MemoryStore) Get(_ context.Context, key counter.Key) (counter.Record, error) {
	sh := s.shardFor(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	if rec, ok := sh.records[key.String()]; ok {
		return *rec, nil
	}
	return counter.NewRecord(key, decimal.Zero), nil
}

func (s *MemoryStore) Apply(_ context.Context, key counter.Key, delta, limit decimal.Decimal) counter.Outcome {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	rec, ok := sh.records[key.String()]
	if !ok {
		fresh := counter.NewRecord(key, limit)
		rec = &fresh
	}

	candidate := rec.Value.Add(delta)
	if candidate.GreaterThan(limit) {
		return counter.Rejected(counter.ReasonOverLimit, rec.Value)
	}
	if candidate.IsNegative() {
		return counter.Rejected(counter.ReasonNegativeBalance, rec.Value)
	}

	rec.Value = candidate
	rec.Limit = limit
	rec.UpdatedAt = time.Now().UTC()
	if !ok {
		sh.records[key.String()] = rec
	}
	return counter.Committed(candidate)
}

func (s *MemoryStore) Revert(_ context.Context, key counter.Key, delta decimal.Decimal) counter.Outcome {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	rec, ok := sh.records[key.String()]
	if !ok {
		return counter.Committed(decimal.Zero)
	}

	next := rec.Value.Sub(delta)
	if next.IsNegative() {
		next = decimal.Zero
	}
	rec.Value = next
	rec.UpdatedAt = time.Now().UTC()
	return counter.Committed(next)
}

func (s *MemoryStore) ResetExpired(_ context.Context, cutoff time.Time) (int, error) {
	reset := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for k, rec := range sh.records {
			if rec.Key.Expired(cutoff) {
				delete(sh.records, k)
				reset++
			}
		}
		sh.mu.Unlock()
	}
	return reset, nil
}

func (s *MemoryStore) Close() error { return nil }
