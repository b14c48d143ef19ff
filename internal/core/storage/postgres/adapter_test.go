package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/adserve-lab/chargecounter/internal/core/counter"
)

func testKey() counter.Key {
	return counter.Key{EntityID: "camp-1", Kind: counter.KindBudget, Control: counter.ControlTotal}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestAdapter_ApplyCommits(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	adapter := NewAdapterWithDB(db)
	key := testKey()

	mock.ExpectQuery(regexp.QuoteMeta(queryApplyCounter)).
		WithArgs(key.String(), "camp-1", "budget", "total", nil, int64(0),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow("10.5"))

	out := adapter.Apply(context.Background(), key, dec("10.5"), dec("100"))
	require.Equal(t, counter.StatusCommitted, out.Status)
	require.True(t, dec("10.5").Equal(out.Value))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_ApplyRejectedWhenGuardFails(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	adapter := NewAdapterWithDB(db)
	key := testKey()

	// Guarded upsert updates nothing → no row returned.
	mock.ExpectQuery(regexp.QuoteMeta(queryApplyCounter)).
		WillReturnRows(sqlmock.NewRows([]string{"value"}))
	// Best-effort read of the untouched value for the rejection outcome.
	mock.ExpectQuery(regexp.QuoteMeta(queryGetCounter)).
		WithArgs(key.String()).
		WillReturnRows(sqlmock.NewRows([]string{"value", "limit_value", "updated_at"}).
			AddRow("95", "100", time.Now().UTC()))

	out := adapter.Apply(context.Background(), key, dec("10"), dec("100"))
	require.Equal(t, counter.StatusRejected, out.Status)
	require.Equal(t, counter.ReasonOverLimit, out.Reason)
	require.True(t, dec("95").Equal(out.Value))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_ApplyDeltaAboveLimitRejectsWithoutUpsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	adapter := NewAdapterWithDB(db)
	key := testKey()

	mock.ExpectQuery(regexp.QuoteMeta(queryGetCounter)).
		WithArgs(key.String()).
		WillReturnRows(sqlmock.NewRows([]string{"value", "limit_value", "updated_at"}))

	out := adapter.Apply(context.Background(), key, dec("101"), dec("100"))
	require.Equal(t, counter.StatusRejected, out.Status)
	require.Equal(t, counter.ReasonOverLimit, out.Reason)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_ApplyNegativeDelta(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	adapter := NewAdapterWithDB(db)
	key := testKey()

	mock.ExpectQuery(regexp.QuoteMeta(queryApplyNegative)).
		WithArgs(key.String(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow("3"))

	out := adapter.Apply(context.Background(), key, dec("-2"), dec("100"))
	require.Equal(t, counter.StatusCommitted, out.Status)
	require.True(t, dec("3").Equal(out.Value))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_ApplyNegativeDeltaBelowZeroRejected(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	adapter := NewAdapterWithDB(db)
	key := testKey()

	mock.ExpectQuery(regexp.QuoteMeta(queryApplyNegative)).
		WillReturnRows(sqlmock.NewRows([]string{"value"}))
	mock.ExpectQuery(regexp.QuoteMeta(queryGetCounter)).
		WithArgs(key.String()).
		WillReturnRows(sqlmock.NewRows([]string{"value", "limit_value", "updated_at"}).
			AddRow("1", "100", time.Now().UTC()))

	out := adapter.Apply(context.Background(), key, dec("-5"), dec("100"))
	require.Equal(t, counter.StatusRejected, out.Status)
	require.Equal(t, counter.ReasonNegativeBalance, out.Reason)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_ApplyStoreErrorDefers(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	adapter := NewAdapterWithDB(db)

	mock.ExpectQuery(regexp.QuoteMeta(queryApplyCounter)).
		WillReturnError(context.DeadlineExceeded)

	out := adapter.Apply(context.Background(), testKey(), dec("1"), dec("100"))
	require.Equal(t, counter.StatusDeferred, out.Status)
	require.Error(t, out.Err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_RevertFloorsAtZero(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	adapter := NewAdapterWithDB(db)
	key := testKey()

	mock.ExpectQuery(regexp.QuoteMeta(queryRevertCounter)).
		WithArgs(key.String(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow("0"))

	out := adapter.Revert(context.Background(), key, dec("8"))
	require.Equal(t, counter.StatusCommitted, out.Status)
	require.True(t, out.Value.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_ResetExpired(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	adapter := NewAdapterWithDB(db)

	mock.ExpectExec(regexp.QuoteMeta(queryResetExpired)).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := adapter.ResetExpired(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_ApplyUnlimitedLimitFitsColumn(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	adapter := NewAdapterWithDB(db)
	key := testKey()

	// The unconfigured-limit sentinel must arrive as a value the
	// NUMERIC(24,6) limit column can hold (18 integer digits), or every
	// charge against an unconfigured entity overflows and defers.
	mock.ExpectQuery(regexp.QuoteMeta(queryApplyCounter)).
		WithArgs(key.String(), "camp-1", "budget", "total", nil, int64(0),
			sqlmock.AnyArg(), "100000000000000000", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow("10.5"))

	out := adapter.Apply(context.Background(), key, dec("10.5"), counter.Unlimited)
	require.Equal(t, counter.StatusCommitted, out.Status)
	require.True(t, dec("10.5").Equal(out.Value))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_GetMissingReturnsDefault(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	adapter := NewAdapterWithDB(db)
	key := testKey()

	mock.ExpectQuery(regexp.QuoteMeta(queryGetCounter)).
		WithArgs(key.String()).
		WillReturnRows(sqlmock.NewRows([]string{"value", "limit_value", "updated_at"}))

	rec, err := adapter.Get(context.Background(), key)
	require.NoError(t, err)
	require.True(t, rec.Value.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}
