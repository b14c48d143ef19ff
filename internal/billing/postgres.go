package billing

import (
	"context"
	"database/sql"
	"fmt"
)

// queryInsertChargeAudit is idempotent on request_id: a replayed emission for
// the same charge inserts nothing, which keeps at-least-once delivery safe.
const queryInsertChargeAudit = `
	INSERT INTO charge_audit (
		id, request_id, campaign_id, group_id, cost, new_spend, recorded_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (request_id) DO NOTHING
`

// PostgresRecorder persists charge records to the charge_audit table.
type PostgresRecorder struct {
	db *sql.DB
}

func NewPostgresRecorder(db *sql.DB) *PostgresRecorder {
	return &PostgresRecorder{db: db}
}

func (r *PostgresRecorder) Record(ctx context.Context, rec ChargeRecord) error {
	_, err := r.db.ExecContext(ctx, queryInsertChargeAudit,
		rec.ID,
		rec.RequestID,
		rec.CampaignID,
		rec.GroupID,
		rec.Cost,
		rec.NewSpend,
		rec.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record charge %s: %w", rec.RequestID, err)
	}
	return nil
}
