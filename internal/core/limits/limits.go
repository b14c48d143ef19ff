package limits

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/adserve-lab/chargecounter/internal/core/counter"
)

// Source supplies budget limits, delivery caps, and the calendar timezone per
// campaign/group id. It is the read-only configuration collaborator: the
// engine never writes limits, only counters.
type Source interface {
	// CampaignBudget returns the total budget for a campaign.
	// ok is false when no budget is configured (treated as unlimited).
	CampaignBudget(id string) (budget decimal.Decimal, ok bool)

	// GroupBudget returns the total budget for an ad group.
	GroupBudget(id string) (budget decimal.Decimal, ok bool)

	// GroupCap returns the delivery cap for (group, control type).
	GroupCap(id string, control counter.ControlType) (cap int64, ok bool)

	// Location returns the timezone used for calendar window boundaries.
	Location() *time.Location
}

// Unlimited is the effective limit applied when no budget or cap is
// configured for an entity. Aliased from counter so store backends can
// special-case it without importing this package.
var Unlimited = counter.Unlimited
