package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/HanTheDev/content-gateway/internal/models"
)

// Record stores a finished generation and its usage events in one transaction. Recording the
// same request twice is a no-op.
func (db *DB) Record(ctx context.Context, result models.GenerationResult) error {
	artifacts, err := json.Marshal(result.Artifacts)
	if err != nil {
		return fmt.Errorf("encode artifacts: %w", err)
	}

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
        INSERT INTO generation_results (request_id, requester_id, started_at, completed_at, total_latency_ms,
                                        real_provider_count, fallback_count, failed_count, artifacts)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (request_id) DO NOTHING
    `

	tag, err := tx.Exec(ctx, query,
		result.RequestID,
		result.RequesterID,
		result.StartedAt,
		result.CompletedAt,
		result.TotalLatencyMs,
		result.RealProviderCount,
		result.FallbackCount,
		result.FailedCount,
		artifacts,
	)
	if err != nil {
		return fmt.Errorf("insert generation result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil
	}

	usageQuery := `
        INSERT INTO usage_events (id, request_id, user_id, feature, period_key, kind, outcome, provider,
                                  units, cost, latency_ms, cache_hit, at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
    `

	batch := &pgx.Batch{}
	for _, ev := range result.Usage {
		batch.Queue(usageQuery,
			ev.ID,
			ev.RequestID,
			ev.UserID,
			string(ev.Feature),
			ev.PeriodKey,
			string(ev.Kind),
			ev.Outcome,
			ev.Provider,
			ev.Units,
			ev.Cost,
			ev.LatencyMs,
			ev.CacheHit,
			ev.At,
		)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert usage events: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// UsageSummary aggregates a user's usage events in [from, to) per feature.
func (db *DB) UsageSummary(ctx context.Context, userID string, from, to time.Time) ([]models.UsageSummary, error) {
	query := `
        SELECT feature,
               COUNT(*) FILTER (WHERE kind = 'generation'),
               COUNT(*) FILTER (WHERE kind = 'generation' AND outcome = 'cache_hit'),
               COUNT(*) FILTER (WHERE kind = 'generation' AND outcome IN ('degraded', 'quota_denied')),
               COUNT(*) FILTER (WHERE kind = 'provider_call'),
               COUNT(*) FILTER (WHERE kind = 'provider_call' AND outcome <> 'succeeded'),
               COALESCE(SUM(cost) FILTER (WHERE kind = 'provider_call'), 0)
        FROM usage_events
        WHERE user_id = $1 AND at >= $2 AND at < $3
        GROUP BY feature
        ORDER BY feature
    `

	rows, err := db.Pool.Query(ctx, query, userID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.UsageSummary
	for rows.Next() {
		s := models.UsageSummary{UserID: userID}
		var feature string
		if err := rows.Scan(
			&feature,
			&s.Generations,
			&s.CacheHits,
			&s.Degraded,
			&s.ProviderCalls,
			&s.FailedCalls,
			&s.TotalCost,
		); err != nil {
			return nil, err
		}
		s.Feature = models.ContentType(feature)
		out = append(out, s)
	}
	return out, rows.Err()
}
