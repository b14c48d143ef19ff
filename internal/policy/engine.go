// Package policy decides whether a proposed counter delta is allowed and
// applies it through the counter store. Monetary budgets and delivery quotas
// are two instantiations of the same atomic-counter-with-limit core; the
// engine only differs in how it resolves keys and limits for each.
package policy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/adserve-lab/chargecounter/internal/core/counter"
	"github.com/adserve-lab/chargecounter/internal/core/limits"
	"github.com/adserve-lab/chargecounter/internal/core/storage"
)

// Engine applies charges and delivery-control deltas against configured limits.
type Engine struct {
	store  storage.CounterStore
	limits limits.Source
	now    func() time.Time

	// coupleGroupBudget controls whether a charge is also checked against the
	// group-level budget. When coupled, the charge is all-or-nothing across
	// both counters.
	coupleGroupBudget bool
}

type Option func(*Engine)

// WithClock overrides the time source. Tests only.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithGroupBudgetCoupling enables or disables the group-level budget check on
// charges. Defaults to enabled.
func WithGroupBudgetCoupling(enabled bool) Option {
	return func(e *Engine) { e.coupleGroupBudget = enabled }
}

func NewEngine(store storage.CounterStore, src limits.Source, opts ...Option) *Engine {
	e := &Engine{
		store:             store,
		limits:            src,
		now:               time.Now,
		coupleGroupBudget: true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// campaignKey and groupBudgetKey are unbounded budget counters; budget windows
// are whole-flight in this engine, daily spend pacing is a delivery-control
// concern.
func campaignKey(campaignID string) counter.Key {
	return counter.Key{EntityID: campaignID, Kind: counter.KindBudget, Control: counter.ControlTotal}
}

func groupBudgetKey(groupID string) counter.Key {
	return counter.Key{EntityID: "group/" + groupID, Kind: counter.KindBudget, Control: counter.ControlTotal}
}

// ApplyCharge charges cost against the campaign budget and, when coupling is
// enabled, the group budget. All-or-nothing: if either cap would be exceeded
// the whole charge is rejected and neither counter changes. Commit order is
// fixed (campaign before group) so concurrent multi-key charges cannot
// deadlock; a second-phase rejection is compensated by reverting the first.
//
// Returns ErrInconsistent when the compensating write fails — the one case
// where atomicity across two keys cannot be restored without a transaction
// log. The caller must surface it, never swallow it.
func (e *Engine) ApplyCharge(ctx context.Context, campaignID, groupID string, cost decimal.Decimal) (counter.Outcome, error) {
	if cost.IsNegative() {
		return counter.Outcome{}, fmt.Errorf("%w: negative cost %s", counter.ErrInvalidInput, cost)
	}

	campKey := campaignKey(campaignID)
	campLimit, ok := e.limits.CampaignBudget(campaignID)
	if !ok {
		campLimit = limits.Unlimited
	}

	// Zero-cost charge: a committed no-op, stored value untouched.
	if cost.IsZero() {
		rec, err := e.store.Get(ctx, campKey)
		if err != nil {
			return counter.Deferred(err), nil
		}
		return counter.Committed(rec.Value), nil
	}

	first := e.store.Apply(ctx, campKey, cost, campLimit)
	if !first.Committed() {
		return first, nil
	}

	groupLimit, capped := e.limits.GroupBudget(groupID)
	if !e.coupleGroupBudget || !capped {
		return first, nil
	}

	second := e.store.Apply(ctx, groupBudgetKey(groupID), cost, groupLimit)
	if second.Committed() {
		return first, nil
	}

	// Compensate the campaign commit so the charge is all-or-nothing.
	revert := e.store.Revert(ctx, campKey, cost)
	if !revert.Committed() {
		slog.Error("[Policy] Compensation failed after group budget rejection",
			"campaign_id", campaignID,
			"group_id", groupID,
			"cost", cost,
			"error", revert.Err,
		)
		return second, fmt.Errorf("%w: campaign %s charged %s but group %s rejected and revert failed",
			counter.ErrInconsistent, campaignID, cost, groupID)
	}
	return second, nil
}

// ApplyDeliveryControl applies a delivery-count delta against the cap for
// (groupID, control) in the control type's current window. count may be
// negative to roll back a previously reserved slot; the counter never goes
// below zero (such a delta is rejected).
func (e *Engine) ApplyDeliveryControl(ctx context.Context, groupID string, count int64, control counter.ControlType) (counter.Outcome, error) {
	key := counter.Key{
		EntityID:    groupID,
		Kind:        counter.KindDelivery,
		Control:     control,
		WindowStart: control.WindowStart(e.now(), e.limits.Location()),
	}

	cap, ok := e.limits.GroupCap(groupID, control)
	limit := limits.Unlimited
	if ok {
		limit = decimal.NewFromInt(cap)
	}

	if count == 0 {
		rec, err := e.store.Get(ctx, key)
		if err != nil {
			return counter.Deferred(err), nil
		}
		return counter.Committed(rec.Value), nil
	}

	return e.store.Apply(ctx, key, decimal.NewFromInt(count), limit), nil
}
