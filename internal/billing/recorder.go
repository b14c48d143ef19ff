// Package billing emits committed charges to the billing/audit collaborator.
// This service is a producer only: records are written at-least-once and
// deduplicated downstream by request id.
package billing

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
)

// ChargeRecord is one committed charge as seen by billing.
type ChargeRecord struct {
	ID         string // audit record id, assigned by the recorder
	RequestID  string
	CampaignID string
	GroupID    string
	Cost       decimal.Decimal
	NewSpend   decimal.Decimal // campaign spend-to-date after the commit
	RecordedAt time.Time
}

// Recorder receives committed charge events.
type Recorder interface {
	Record(ctx context.Context, rec ChargeRecord) error
}

// LogRecorder writes charge records to the structured log. Default when no
// durable audit store is configured.
type LogRecorder struct{}

func NewLogRecorder() *LogRecorder { return &LogRecorder{} }

func (*LogRecorder) Record(_ context.Context, rec ChargeRecord) error {
	slog.Info("[Billing] Charge recorded",
		"audit_id", rec.ID,
		"request_id", rec.RequestID,
		"campaign_id", rec.CampaignID,
		"group_id", rec.GroupID,
		"cost", rec.Cost,
		"new_spend", rec.NewSpend,
	)
	return nil
}
