package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/Nijaek/analytics-dashboard/internal/domain"
	"github.com/Nijaek/analytics-dashboard/internal/repository"
)

// The rollup table versions rows by computed_at: re-inserting the same
// (project_id, event_name, hour) with a newer timestamp replaces the old
// row, which makes the aggregator's recompute-and-insert an upsert.
const createRollupsTable = `
	CREATE TABLE IF NOT EXISTS event_rollups_hourly (
		project_id Int64,
		event_name LowCardinality(String),
		hour DateTime('UTC'),
		count UInt64,
		unique_sessions UInt64,
		unique_users UInt64,
		computed_at DateTime64(3, 'UTC')
	) ENGINE = ReplacingMergeTree(computed_at)
	ORDER BY (project_id, event_name, hour)
	SETTINGS index_granularity = 8192
	`

// UpsertRollups writes a set of hourly rollup rows, replacing any previous
// version of the same (project, event name, hour)
func (r *Repository) UpsertRollups(ctx context.Context, rollups []*domain.HourlyRollup) error {
	if len(rollups) == 0 {
		return nil
	}

	batch, err := r.client.Conn().PrepareBatch(ctx, "INSERT INTO event_rollups_hourly")
	if err != nil {
		return fmt.Errorf("failed to prepare rollup batch: %w", err)
	}

	computedAt := time.Now().UTC()
	for _, rollup := range rollups {
		err := batch.Append(
			rollup.ProjectID,
			rollup.EventName,
			rollup.Hour,
			rollup.Count,
			rollup.UniqueSessions,
			rollup.UniqueUsers,
			computedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to append rollup to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send rollup batch: %w", err)
	}
	return nil
}

// RollupTotals sums hourly rollups over a half-open window of whole hours.
// Distinct counts are sums of per-hour uniques, not a cross-hour dedup.
func (r *Repository) RollupTotals(ctx context.Context, q repository.RangeQuery) (*repository.Totals, error) {
	query := `
		SELECT
			sum(count) AS total,
			sum(unique_sessions) AS sessions,
			sum(unique_users) AS users
		FROM event_rollups_hourly FINAL
		WHERE project_id = ? AND hour >= ? AND hour < ?
	`

	totals := &repository.Totals{}
	row := r.client.Conn().QueryRow(ctx, query, q.ProjectID, q.Start, q.End)
	if err := row.Scan(&totals.Events, &totals.UniqueSessions, &totals.UniqueUsers); err != nil {
		return nil, fmt.Errorf("failed to query rollup totals: %w", err)
	}
	return totals, nil
}

// RollupEventCounts sums hourly rollups per event name over a half-open
// window of whole hours
func (r *Repository) RollupEventCounts(ctx context.Context, q repository.RangeQuery) ([]repository.EventCount, error) {
	query := `
		SELECT
			event_name,
			sum(count) AS total,
			sum(unique_sessions) AS sessions,
			sum(unique_users) AS users
		FROM event_rollups_hourly FINAL
		WHERE project_id = ? AND hour >= ? AND hour < ?
		GROUP BY event_name
		ORDER BY total DESC
	`

	rows, err := r.client.Conn().Query(ctx, query, q.ProjectID, q.Start, q.End)
	if err != nil {
		return nil, fmt.Errorf("failed to query rollup event counts: %w", err)
	}
	defer r.closeRows(rows)

	var counts []repository.EventCount
	for rows.Next() {
		var c repository.EventCount
		if err := rows.Scan(&c.EventName, &c.Count, &c.UniqueSessions, &c.UniqueUsers); err != nil {
			return nil, fmt.Errorf("failed to scan rollup event count row: %w", err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rollup event count rows: %w", err)
	}
	return counts, nil
}

// RollupBuckets sums hourly rollups per hour or day bucket over a half-open
// window of whole hours
func (r *Repository) RollupBuckets(ctx context.Context, q repository.RangeQuery, g repository.Granularity) ([]repository.BucketCount, error) {
	bucketExpr := "hour"
	if g == repository.GranularityDaily {
		bucketExpr = "toStartOfDay(hour)"
	}

	query := fmt.Sprintf(`
		SELECT
			%s AS bucket,
			sum(count) AS total
		FROM event_rollups_hourly FINAL
		WHERE project_id = ? AND hour >= ? AND hour < ?
		GROUP BY bucket
		ORDER BY bucket ASC
	`, bucketExpr)

	rows, err := r.client.Conn().Query(ctx, query, q.ProjectID, q.Start, q.End)
	if err != nil {
		return nil, fmt.Errorf("failed to query rollup buckets: %w", err)
	}
	defer r.closeRows(rows)

	var buckets []repository.BucketCount
	for rows.Next() {
		var b repository.BucketCount
		if err := rows.Scan(&b.Bucket, &b.Count); err != nil {
			return nil, fmt.Errorf("failed to scan rollup bucket row: %w", err)
		}
		buckets = append(buckets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rollup bucket rows: %w", err)
	}
	return buckets, nil
}
