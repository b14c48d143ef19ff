package counter

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// DefaultCostScale is the maximum number of fractional digits accepted for a
// monetary cost. Four matches common currency micro-pricing in ad exchanges.
const DefaultCostScale = 4

// ParseCost parses a cost string into an exact decimal and validates it
// against the charge precision rules: well-formed, non-negative, and at most
// maxScale fractional digits. Costs are never handled as floats — cumulative
// rounding drift across millions of charges is not acceptable.
func ParseCost(s string, maxScale int32) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: cost is required", ErrInvalidInput)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: malformed cost %q", ErrInvalidInput, s)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: cost must not be negative, got %s", ErrInvalidInput, d)
	}
	if maxScale <= 0 {
		maxScale = DefaultCostScale
	}
	if d.Exponent() < -maxScale {
		return decimal.Zero, fmt.Errorf("%w: cost %s exceeds %d fractional digits", ErrInvalidInput, d, maxScale)
	}
	return d, nil
}
