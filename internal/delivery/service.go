// Package delivery is the inbound delivery-count controller: callers ask it
// whether a group may serve more ads under its configured cap before (or
// reserve slots after) serving.
package delivery

import (
	"context"
	"fmt"
	"strings"

	"github.com/adserve-lab/chargecounter/internal/core/counter"
	"github.com/adserve-lab/chargecounter/internal/policy"
	"github.com/adserve-lab/chargecounter/internal/telemetry"
)

// Request is one counter-control call for a group.
type Request struct {
	GroupID string
	Count   int64
	Type    string
}

// Decision is the controller's answer: serve or don't.
type Decision struct {
	Allowed bool
	Outcome counter.Outcome
}

// Service validates and processes delivery-control requests.
type Service struct {
	engine *policy.Engine
}

func NewService(engine *policy.Engine) *Service {
	return &Service{engine: engine}
}

// Control applies the delivery-count delta for (group, type). Unrecognized
// type strings fail with counter.ErrUnknownControlType; an empty group id
// fails with counter.ErrInvalidInput. Neither touches any counter.
func (s *Service) Control(ctx context.Context, req Request) (Decision, error) {
	groupID := strings.TrimSpace(req.GroupID)
	if groupID == "" {
		return Decision{}, fmt.Errorf("%w: group id is required", counter.ErrInvalidInput)
	}
	if err := counter.ValidateEntityID(groupID); err != nil {
		return Decision{}, err
	}

	control, err := counter.ParseControlType(req.Type)
	if err != nil {
		return Decision{}, err
	}

	out, err := s.engine.ApplyDeliveryControl(ctx, groupID, req.Count, control)
	if err != nil {
		return Decision{}, err
	}

	telemetry.RecordDeliveryControl(out)
	return Decision{Allowed: out.Committed(), Outcome: out}, nil
}
