// Package charge is the inbound charge processor: it validates
// charge-for-result requests, applies them through the policy engine, and
// emits committed charges to billing.
package charge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/adserve-lab/chargecounter/internal/billing"
	"github.com/adserve-lab/chargecounter/internal/core/counter"
	"github.com/adserve-lab/chargecounter/internal/policy"
	"github.com/adserve-lab/chargecounter/internal/telemetry"
)

// Request is one charge-for-result call. RequestID is optional; when absent a
// fresh id is assigned, which also opts the request out of replay protection.
type Request struct {
	CampaignID string
	GroupID    string
	Cost       string
	RequestID  string
}

// Service validates and processes charge requests.
type Service struct {
	engine       *policy.Engine
	recorder     billing.Recorder
	maxCostScale int32

	// flight collapses concurrent requests carrying the same request id into
	// a single engine call; replays keeps settled outcomes so a retry after a
	// Deferred outcome commits at most once.
	flight  singleflight.Group
	replays *replayCache
}

func NewService(engine *policy.Engine, recorder billing.Recorder, maxCostScale int32, replayTTL time.Duration) *Service {
	if maxCostScale <= 0 {
		maxCostScale = counter.DefaultCostScale
	}
	return &Service{
		engine:       engine,
		recorder:     recorder,
		maxCostScale: maxCostScale,
		replays:      newReplayCache(replayTTL),
	}
}

// Charge applies one monetary charge. Validation failures return
// counter.ErrInvalidInput before any counter is touched; a compensation
// failure returns counter.ErrInconsistent alongside the outcome.
func (s *Service) Charge(ctx context.Context, req Request) (counter.Outcome, error) {
	campaignID := strings.TrimSpace(req.CampaignID)
	groupID := strings.TrimSpace(req.GroupID)
	if campaignID == "" {
		return counter.Outcome{}, fmt.Errorf("%w: campaign id is required", counter.ErrInvalidInput)
	}
	if groupID == "" {
		return counter.Outcome{}, fmt.Errorf("%w: group id is required", counter.ErrInvalidInput)
	}
	if err := counter.ValidateEntityID(campaignID); err != nil {
		return counter.Outcome{}, err
	}
	if err := counter.ValidateEntityID(groupID); err != nil {
		return counter.Outcome{}, err
	}

	cost, err := counter.ParseCost(req.Cost, s.maxCostScale)
	if err != nil {
		return counter.Outcome{}, err
	}

	requestID := strings.TrimSpace(req.RequestID)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	// Replaying a settled request id returns the recorded outcome without
	// touching the store; a delta is committed at most once per request id.
	if out, ok := s.replays.get(requestID); ok {
		slog.Debug("[Charge] Replayed request id", "request_id", requestID, "outcome", out.String())
		return out, nil
	}

	type result struct {
		out counter.Outcome
		err error
	}
	v, _, _ := s.flight.Do(requestID, func() (interface{}, error) {
		out, err := s.engine.ApplyCharge(ctx, campaignID, groupID, cost)
		if err == nil && out.Status != counter.StatusDeferred {
			// Deferred outcomes stay uncached so the caller's retry reaches
			// the store again.
			s.replays.put(requestID, out)
		}
		if err == nil && out.Committed() && !cost.IsZero() {
			s.emit(ctx, requestID, campaignID, groupID, cost, out.Value)
		}
		return result{out: out, err: err}, nil
	})

	res := v.(result)
	telemetry.RecordCharge(res.out)
	if errors.Is(res.err, counter.ErrInconsistent) {
		telemetry.RecordInconsistency()
	}
	return res.out, res.err
}

// emit sends the committed charge to billing. At-least-once: a failed
// emission is logged for out-of-band reconciliation rather than unwinding the
// already-committed counters.
func (s *Service) emit(ctx context.Context, requestID, campaignID, groupID string, cost, newSpend decimal.Decimal) {
	rec := billing.ChargeRecord{
		ID:         uuid.NewString(),
		RequestID:  requestID,
		CampaignID: campaignID,
		GroupID:    groupID,
		Cost:       cost,
		NewSpend:   newSpend,
		RecordedAt: time.Now().UTC(),
	}
	if err := s.recorder.Record(ctx, rec); err != nil {
		slog.Error("[Charge] Failed to emit charge record",
			"request_id", requestID,
			"campaign_id", campaignID,
			"error", err,
		)
	}
}
