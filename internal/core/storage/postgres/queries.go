package postgres

// Counter rows are keyed by the canonical counter key string; entity id, kind,
// control and window columns are denormalized for operational queries.
const (
	// queryApplyCounter performs the atomic read-check-write for non-negative
	// deltas in a single statement. The insert arm covers lazy creation (the
	// caller guarantees delta <= limit before reaching it); the conflict arm
	// is guarded so an over-limit or below-zero candidate updates nothing and
	// returns no row.
	queryApplyCounter = `
		INSERT INTO counters (
			counter_key, entity_id, kind, control, window_start, window_seconds,
			value, limit_value, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (counter_key) DO UPDATE SET
			value       = counters.value + EXCLUDED.value,
			limit_value = EXCLUDED.limit_value,
			updated_at  = EXCLUDED.updated_at
		WHERE counters.value + EXCLUDED.value <= EXCLUDED.limit_value
		  AND counters.value + EXCLUDED.value >= 0
		RETURNING value
	`

	// queryApplyNegative handles rollback deltas. No insert arm: subtracting
	// from an absent counter would go below zero and must be rejected.
	queryApplyNegative = `
		UPDATE counters
		SET value = value + $2, updated_at = $3
		WHERE counter_key = $1
		  AND value + $2 >= 0
		RETURNING value
	`

	queryRevertCounter = `
		UPDATE counters
		SET value = GREATEST(value - $2, 0), updated_at = $3
		WHERE counter_key = $1
		RETURNING value
	`

	queryGetCounter = `
		SELECT value, limit_value, updated_at
		FROM counters
		WHERE counter_key = $1
	`

	queryResetExpired = `
		DELETE FROM counters
		WHERE window_seconds > 0
		  AND window_start + make_interval(secs => window_seconds) <= $1
	`
)
