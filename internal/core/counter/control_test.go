package counter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseControlType(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantName   string
		wantWindow time.Duration
		wantError  bool
	}{
		{name: "total", input: "total", wantName: "total", wantWindow: 0},
		{name: "daily", input: "daily", wantName: "daily", wantWindow: 24 * time.Hour},
		{name: "hourly", input: "hourly", wantName: "hourly", wantWindow: time.Hour},
		{name: "mixed case", input: "  DAILY ", wantName: "daily", wantWindow: 24 * time.Hour},
		{name: "custom minutes", input: "custom:10m", wantName: "custom:10m", wantWindow: 10 * time.Minute},
		{name: "custom days suffix", input: "custom:3d", wantName: "custom:3d", wantWindow: 72 * time.Hour},
		{name: "empty invalid", input: "", wantError: true},
		{name: "unknown invalid", input: "weekly", wantError: true},
		{name: "custom empty invalid", input: "custom:", wantError: true},
		{name: "custom negative invalid", input: "custom:-1m", wantError: true},
		{name: "custom garbage invalid", input: "custom:xd", wantError: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ct, err := ParseControlType(tc.input)
			if tc.wantError {
				require.Error(t, err)
				require.ErrorIs(t, err, ErrUnknownControlType)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.wantName, ct.Name)
			require.Equal(t, tc.wantWindow, ct.Window)
		})
	}
}

func TestControlType_WindowStart(t *testing.T) {
	now := time.Date(2026, 2, 11, 10, 35, 42, 123456789, time.UTC)

	require.True(t, ControlTotal.WindowStart(now, time.UTC).IsZero())

	require.Equal(t,
		time.Date(2026, 2, 11, 10, 0, 0, 0, time.UTC),
		ControlHourly.WindowStart(now, time.UTC),
	)

	require.Equal(t,
		time.Date(2026, 2, 11, 0, 0, 0, 0, time.UTC),
		ControlDaily.WindowStart(now, time.UTC),
	)

	// Daily windows follow the configured timezone's calendar day, not UTC's.
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	require.Equal(t,
		time.Date(2026, 2, 11, 0, 0, 0, 0, ny),
		ControlDaily.WindowStart(now, ny),
	)

	// 02:00 UTC is still the previous calendar day in New York.
	early := time.Date(2026, 2, 11, 2, 0, 0, 0, time.UTC)
	require.Equal(t,
		time.Date(2026, 2, 10, 0, 0, 0, 0, ny),
		ControlDaily.WindowStart(early, ny),
	)
}

func TestKey_Expired(t *testing.T) {
	now := time.Date(2026, 2, 11, 12, 0, 0, 0, time.UTC)

	daily := Key{EntityID: "grp-1", Kind: KindDelivery, Control: ControlDaily,
		WindowStart: time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)}
	require.True(t, daily.Expired(now))

	current := Key{EntityID: "grp-1", Kind: KindDelivery, Control: ControlDaily,
		WindowStart: time.Date(2026, 2, 11, 0, 0, 0, 0, time.UTC)}
	require.False(t, current.Expired(now))

	total := Key{EntityID: "camp-1", Kind: KindBudget, Control: ControlTotal}
	require.False(t, total.Expired(now))
}
