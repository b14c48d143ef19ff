package counter

import (
	"fmt"
	"strings"
	"time"
)

// ControlType classifies which window a delivery counter belongs to.
// Window == 0 means the counter never resets (total cap / whole-flight budget).
type ControlType struct {
	Name   string
	Window time.Duration
}

// Built-in control types. Custom windows are expressed as "custom:<duration>"
// where <duration> accepts Go syntax plus a "d" suffix for days.
var (
	ControlTotal  = ControlType{Name: "total"}
	ControlDaily  = ControlType{Name: "daily", Window: 24 * time.Hour}
	ControlHourly = ControlType{Name: "hourly", Window: time.Hour}
)

// ParseControlType resolves a control type string from an inbound request.
// Returns ErrUnknownControlType for anything unrecognized.
func ParseControlType(s string) (ControlType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "total":
		return ControlTotal, nil
	case "daily":
		return ControlDaily, nil
	case "hourly":
		return ControlHourly, nil
	}

	if rest, ok := strings.CutPrefix(strings.ToLower(strings.TrimSpace(s)), "custom:"); ok {
		d, err := parseWindow(rest)
		if err != nil {
			return ControlType{}, fmt.Errorf("%w: %q: %v", ErrUnknownControlType, s, err)
		}
		return ControlType{Name: "custom:" + rest, Window: d}, nil
	}

	return ControlType{}, fmt.Errorf("%w: %q", ErrUnknownControlType, s)
}

// parseWindow parses a window duration string.
// Supports Go duration syntax (e.g., "10s", "1m", "1h") plus "Xd" for days.
func parseWindow(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("window must not be empty")
	}

	// Handle "d" suffix (days) — not supported by time.ParseDuration.
	if len(s) > 1 && s[len(s)-1] == 'd' {
		var days int
		if _, err := fmt.Sscanf(s, "%dd", &days); err != nil {
			return 0, fmt.Errorf("invalid window %q: %w", s, err)
		}
		if days <= 0 {
			return 0, fmt.Errorf("window must be positive, got %q", s)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid window %q: %w", s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("window must be positive, got %q", s)
	}
	return d, nil
}

// WindowStart computes the start of the window containing now for this control
// type. Daily windows begin at midnight in the configured timezone; hourly and
// custom windows are aligned to absolute-time boundaries; total has no window.
func (c ControlType) WindowStart(now time.Time, loc *time.Location) time.Time {
	if c.Window <= 0 {
		return time.Time{}
	}
	if loc == nil {
		loc = time.UTC
	}
	if c.Name == "daily" {
		local := now.In(loc)
		return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	}
	return now.Truncate(c.Window)
}
