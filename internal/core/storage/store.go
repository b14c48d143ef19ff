package storage

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/adserve-lab/chargecounter/internal/core/counter"
)

// ErrUnavailable is returned when the counter authority cannot be reached.
// Callers map it to a Deferred outcome and may retry with the same request id.
var ErrUnavailable = errors.New("counter store unavailable")

// CounterStore is the single authority for counter state.
//
// Apply is the contract everything else rests on: an indivisible
// read-check-write. For any sequence of concurrent Apply calls on the same
// key the store behaves as if they were applied in some serial order, and at
// no point may the sum of committed deltas exceed the limit. Independent keys
// never block each other.
type CounterStore interface {
	// Get returns the current record for a key, creating a zero-valued
	// default if absent. Never mutates stored state.
	Get(ctx context.Context, key counter.Key) (counter.Record, error)

	// Apply atomically adds delta to the counter iff the result stays within
	// [0, limit]. Commits in full or rejects in full; a rejected request
	// leaves the stored value untouched.
	Apply(ctx context.Context, key counter.Key, delta, limit decimal.Decimal) counter.Outcome

	// Revert unconditionally subtracts delta from the counter, flooring at
	// zero. Used only for multi-key compensation.
	Revert(ctx context.Context, key counter.Key, delta decimal.Decimal) counter.Outcome

	// ResetExpired removes counters whose window fully elapsed before the
	// cutoff, returning how many were reset. Serialized per key with Apply.
	ResetExpired(ctx context.Context, cutoff time.Time) (int, error)

	Close() error
}
