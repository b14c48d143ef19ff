package counter

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Kind classifies what a counter accumulates: monetary spend or delivery count.
// Both share the same atomic apply semantics; only the limit source differs.
type Kind string

const (
	KindBudget   Kind = "budget"
	KindDelivery Kind = "delivery"
)

// Sentinel errors for the charge/control error taxonomy.
// Validation errors are raised at the processor boundary before any store access;
// ErrInconsistent is raised by the policy engine when a multi-key compensation
// write fails and must be surfaced to an operator.
var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrUnknownControlType = errors.New("unknown control type")
	ErrInconsistent       = errors.New("counter state inconsistent")
)

// Unlimited is the effective limit for counters with no configured budget or
// cap. 10^17 fits every backend's numeric range: 18 integer digits in the
// NUMERIC(24,6) limit column, and stores doing fixed-point integer math must
// check IsUnlimited before converting (10^17 in micros exceeds int64).
var Unlimited = decimal.New(1, 17)

// IsUnlimited reports whether limit carries no effective upper bound.
func IsUnlimited(limit decimal.Decimal) bool {
	return !limit.LessThan(Unlimited)
}

// ValidateEntityID rejects ids that would collide with the counter key
// encoding: ':' separates key parts and '/' namespaces derived keys, so an id
// containing either could alias another entity's counter.
func ValidateEntityID(id string) error {
	if strings.ContainsAny(id, ":/") {
		return fmt.Errorf("%w: id %q must not contain ':' or '/'", ErrInvalidInput, id)
	}
	return nil
}

// Key identifies one logical counter: (entity id, counter kind, window).
// The window start is part of the key, so a new window always begins at zero
// without touching the previous window's record.
type Key struct {
	EntityID    string
	Kind        Kind
	Control     ControlType
	WindowStart time.Time // zero for unbounded windows
}

// String renders the canonical storage key.
func (k Key) String() string {
	ws := int64(0)
	if !k.WindowStart.IsZero() {
		ws = k.WindowStart.Unix()
	}
	return string(k.Kind) + ":" + k.EntityID + ":" + k.Control.Name + ":" + strconv.FormatInt(ws, 10)
}

// Expired reports whether the key's window has fully elapsed at the given time.
// Unbounded counters never expire.
func (k Key) Expired(now time.Time) bool {
	if k.Control.Window <= 0 || k.WindowStart.IsZero() {
		return false
	}
	return !now.Before(k.WindowStart.Add(k.Control.Window))
}

// Record is the materialized state of one counter.
type Record struct {
	Key       Key
	Value     decimal.Decimal
	Limit     decimal.Decimal
	UpdatedAt time.Time
}

// NewRecord returns the lazily-created default record for a key.
func NewRecord(key Key, limit decimal.Decimal) Record {
	return Record{Key: key, Value: decimal.Zero, Limit: limit}
}

// Status is the disposition of an atomic apply.
type Status string

const (
	StatusCommitted Status = "committed"
	StatusRejected  Status = "rejected"
	StatusDeferred  Status = "deferred"
)

// Reason qualifies a rejection.
type Reason string

const (
	ReasonOverLimit       Reason = "over_limit"
	ReasonNegativeBalance Reason = "negative_balance"
)

// Outcome is the result of an atomic apply: either the delta was committed in
// full (Value holds the new counter value), rejected in full (stored value
// untouched), or deferred because the counter authority was unreachable.
type Outcome struct {
	Status Status
	Value  decimal.Decimal
	Reason Reason
	Err    error // underlying store error; set only for deferred outcomes
}

func Committed(value decimal.Decimal) Outcome {
	return Outcome{Status: StatusCommitted, Value: value}
}

func Rejected(reason Reason, current decimal.Decimal) Outcome {
	return Outcome{Status: StatusRejected, Value: current, Reason: reason}
}

func Deferred(err error) Outcome {
	return Outcome{Status: StatusDeferred, Err: err}
}

func (o Outcome) Committed() bool { return o.Status == StatusCommitted }

func (o Outcome) String() string {
	switch o.Status {
	case StatusCommitted:
		return fmt.Sprintf("committed(%s)", o.Value)
	case StatusRejected:
		return fmt.Sprintf("rejected(%s)", o.Reason)
	default:
		return "deferred"
	}
}
