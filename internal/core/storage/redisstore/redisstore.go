package redisstore

import (
	"context"
	"fmt"
	"math"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/adserve-lab/chargecounter/internal/core/counter"
	"github.com/adserve-lab/chargecounter/internal/core/storage"
)

// Values are stored as integer micros (10^-6 units) so the Lua arithmetic
// stays exact; decimals with more than six fractional digits never reach the
// store (cost scale is validated at the processor boundary).
const microScale = 6

// unlimitedMicros is the limit argument for counters with no upper bound.
// counter.Unlimited in micros exceeds int64, so it never reaches Lua as a
// number; the scripts skip the cap check on a negative limit.
const unlimitedMicros = int64(-1)

const keyPrefix = "cc:counter:"

// Each counter is a hash: field v holds the value in micros, field l the
// limit in micros (-1 for unlimited) so reads report the effective cap.
//
// applyScript performs the atomic read-check-write server-side. Argument 3 is
// the absolute window deadline in epoch milliseconds (0 for unbounded
// counters); PEXPIREAT makes window expiry idempotent across writes.
var applyScript = redis.NewScript(`
local current = tonumber(redis.call('HGET', KEYS[1], 'v') or '0')
local delta = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])
local deadline = tonumber(ARGV[3])
local candidate = current + delta
if limit >= 0 and candidate > limit then
  return {'over', tostring(current)}
end
if candidate < 0 then
  return {'negative', tostring(current)}
end
redis.call('HSET', KEYS[1], 'v', tostring(candidate), 'l', ARGV[2])
if deadline > 0 then
  redis.call('PEXPIREAT', KEYS[1], deadline)
end
return {'ok', tostring(candidate)}
`)

var revertScript = redis.NewScript(`
local current = tonumber(redis.call('HGET', KEYS[1], 'v') or '0')
local next = current - tonumber(ARGV[1])
if next < 0 then next = 0 end
redis.call('HSET', KEYS[1], 'v', tostring(next))
return tostring(next)
`)

// Store implements storage.CounterStore on Redis. Window rollover is handled
// by key TTLs rather than a sweep: each windowed counter key carries an
// absolute expiry at its window end, so ResetExpired has nothing to do.
type Store struct {
	rdb *redis.Client
}

type Config struct {
	Addr     string
	Password string
	DB       int
}

func New(cfg Config) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &Store{rdb: rdb}, nil
}

func (s *Store) Get(ctx context.Context, key counter.Key) (counter.Record, error) {
	fields, err := s.rdb.HMGet(ctx, keyPrefix+key.String(), "v", "l").Result()
	if err != nil {
		return counter.Record{}, fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}
	if fields[0] == nil {
		return counter.NewRecord(key, decimal.Zero), nil
	}
	value, err := microsField(fields[0])
	if err != nil {
		return counter.Record{}, fmt.Errorf("corrupt counter value for %s: %w", key, err)
	}
	rec := counter.Record{Key: key, Value: value}
	if fields[1] != nil {
		limit, err := limitFromField(fields[1])
		if err != nil {
			return counter.Record{}, fmt.Errorf("corrupt counter limit for %s: %w", key, err)
		}
		rec.Limit = limit
	}
	return rec, nil
}

func (s *Store) Apply(ctx context.Context, key counter.Key, delta, limit decimal.Decimal) counter.Outcome {
	deadline := int64(0)
	if key.Control.Window > 0 && !key.WindowStart.IsZero() {
		deadline = key.WindowStart.Add(key.Control.Window).UnixMilli()
	}

	res, err := applyScript.Run(ctx, s.rdb,
		[]string{keyPrefix + key.String()},
		delta.Shift(microScale).IntPart(),
		limitMicros(limit),
		deadline,
	).Result()
	if err != nil {
		return counter.Deferred(fmt.Errorf("%w: %v", storage.ErrUnavailable, err))
	}

	status, value, err := parseScriptReply(res)
	if err != nil {
		return counter.Deferred(err)
	}
	switch status {
	case "ok":
		return counter.Committed(value)
	case "negative":
		return counter.Rejected(counter.ReasonNegativeBalance, value)
	default:
		return counter.Rejected(counter.ReasonOverLimit, value)
	}
}

func (s *Store) Revert(ctx context.Context, key counter.Key, delta decimal.Decimal) counter.Outcome {
	res, err := revertScript.Run(ctx, s.rdb,
		[]string{keyPrefix + key.String()},
		delta.Shift(microScale).IntPart(),
	).Result()
	if err != nil {
		return counter.Deferred(fmt.Errorf("%w: %v", storage.ErrUnavailable, err))
	}
	raw, ok := res.(string)
	if !ok {
		return counter.Deferred(fmt.Errorf("unexpected revert script result: %#v", res))
	}
	micros, err := decimal.NewFromString(raw)
	if err != nil {
		return counter.Deferred(fmt.Errorf("corrupt revert result %q: %w", raw, err))
	}
	return counter.Committed(micros.Shift(-microScale))
}

// ResetExpired is a no-op: windowed keys expire via PEXPIREAT exactly at
// their window end, which also guarantees a window is never reset twice.
func (s *Store) ResetExpired(context.Context, time.Time) (int, error) {
	return 0, nil
}

func (s *Store) Close() error { return s.rdb.Close() }

// maxScriptLimit is the largest limit representable in int64 micros. Limits
// beyond it can never reject anyway, so they collapse to the unlimited cap.
var maxScriptLimit = decimal.New(math.MaxInt64, -microScale)

// limitMicros converts a limit to the script's integer cap argument.
func limitMicros(limit decimal.Decimal) int64 {
	if counter.IsUnlimited(limit) || limit.GreaterThan(maxScriptLimit) {
		return unlimitedMicros
	}
	return limit.Shift(microScale).IntPart()
}

func microsField(field interface{}) (decimal.Decimal, error) {
	raw, ok := field.(string)
	if !ok {
		return decimal.Zero, fmt.Errorf("unexpected field type %T", field)
	}
	micros, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, err
	}
	return micros.Shift(-microScale), nil
}

func limitFromField(field interface{}) (decimal.Decimal, error) {
	raw, ok := field.(string)
	if !ok {
		return decimal.Zero, fmt.Errorf("unexpected field type %T", field)
	}
	if raw == "-1" {
		return counter.Unlimited, nil
	}
	micros, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, err
	}
	return micros.Shift(-microScale), nil
}

func parseScriptReply(res interface{}) (string, decimal.Decimal, error) {
	arr, ok := res.([]interface{})
	if !ok || len(arr) != 2 {
		return "", decimal.Zero, fmt.Errorf("unexpected apply script result: %#v", res)
	}
	status, ok := arr[0].(string)
	if !ok {
		return "", decimal.Zero, fmt.Errorf("unexpected apply script status: %#v", arr[0])
	}
	value, err := microsField(arr[1])
	if err != nil {
		return "", decimal.Zero, fmt.Errorf("corrupt counter value: %w", err)
	}
	return status, value, nil
}
