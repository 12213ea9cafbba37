package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"github.com/Nijaek/analytics-dashboard/internal/domain"
	"github.com/Nijaek/analytics-dashboard/internal/repository"
)

// Repository implements repository.EventRepository and
// repository.RollupRepository on ClickHouse.
//
// The events table is a ReplacingMergeTree keyed by (project_id, id): the
// queue delivers at least once, so a redelivered batch re-inserts the same
// event ids and the engine collapses them. Reads use FINAL for that reason.
type Repository struct {
	client *Client
	log    *zap.Logger
}

// NewRepository creates a new ClickHouse repository
func NewRepository(client *Client, log *zap.Logger) *Repository {
	return &Repository{
		client: client,
		log:    log,
	}
}

const createEventsTable = `
	CREATE TABLE IF NOT EXISTS events (
		id String,
		project_id Int64,
		event_name LowCardinality(String),
		distinct_id String,
		properties String,
		session_id String,
		page_url String,
		referrer String,
		user_agent String,
		identity_hash String,
		occurred_at DateTime64(3, 'UTC'),
		received_at DateTime64(3, 'UTC')
	) ENGINE = ReplacingMergeTree
	PRIMARY KEY (project_id, id)
	ORDER BY (project_id, id)
	PARTITION BY toYYYYMM(occurred_at)
	SETTINGS index_granularity = 8192
	`

// InitSchema creates the events and rollup tables if they don't exist
func (r *Repository) InitSchema(ctx context.Context) error {
	if err := r.client.Conn().Exec(ctx, createEventsTable); err != nil {
		return fmt.Errorf("failed to create events table: %w", err)
	}
	if err := r.client.Conn().Exec(ctx, createRollupsTable); err != nil {
		return fmt.Errorf("failed to create rollups table: %w", err)
	}

	r.log.Info("ClickHouse schema initialized successfully")
	return nil
}

// InsertBatch inserts a batch of events into ClickHouse
func (r *Repository) InsertBatch(ctx context.Context, events []*domain.Event) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	batch, err := r.client.Conn().PrepareBatch(ctx, "INSERT INTO events")
	if err != nil {
		return 0, fmt.Errorf("failed to prepare batch: %w", err)
	}

	insertedCount := 0
	for _, event := range events {
		properties := event.Properties
		if properties == "" {
			properties = "{}"
		}

		err := batch.Append(
			event.ID,
			event.ProjectID,
			event.EventName,
			event.DistinctID,
			properties,
			event.SessionID,
			event.PageURL,
			event.Referrer,
			event.UserAgent,
			event.IdentityHash,
			event.OccurredAt,
			event.ReceivedAt,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to append event to batch: %w", err)
		}
		insertedCount++
	}

	if err := batch.Send(); err != nil {
		return 0, fmt.Errorf("failed to send batch: %w", err)
	}

	return insertedCount, nil
}

// Ping checks if the ClickHouse connection is alive
func (r *Repository) Ping(ctx context.Context) error {
	return r.client.Conn().Ping(ctx)
}

// Close closes the ClickHouse connection
func (r *Repository) Close() error {
	return r.client.Close()
}

// RawTotals aggregates raw events over a half-open window
func (r *Repository) RawTotals(ctx context.Context, q repository.RangeQuery) (*repository.Totals, error) {
	query := `
		SELECT
			count() AS total,
			uniqExactIf(session_id, session_id != '') AS sessions,
			uniqExactIf(distinct_id, distinct_id != '') AS users
		FROM events FINAL
		WHERE project_id = ? AND occurred_at >= ? AND occurred_at < ?
	`

	totals := &repository.Totals{}
	row := r.client.Conn().QueryRow(ctx, query, q.ProjectID, q.Start, q.End)
	if err := row.Scan(&totals.Events, &totals.UniqueSessions, &totals.UniqueUsers); err != nil {
		return nil, fmt.Errorf("failed to query raw totals: %w", err)
	}
	return totals, nil
}

// RawEventCounts aggregates raw events per event name over a half-open window
func (r *Repository) RawEventCounts(ctx context.Context, q repository.RangeQuery) ([]repository.EventCount, error) {
	query := `
		SELECT
			event_name,
			count() AS total,
			uniqExactIf(session_id, session_id != '') AS sessions,
			uniqExactIf(distinct_id, distinct_id != '') AS users
		FROM events FINAL
		WHERE project_id = ? AND occurred_at >= ? AND occurred_at < ?
		GROUP BY event_name
		ORDER BY total DESC
	`

	rows, err := r.client.Conn().Query(ctx, query, q.ProjectID, q.Start, q.End)
	if err != nil {
		return nil, fmt.Errorf("failed to query raw event counts: %w", err)
	}
	defer r.closeRows(rows)

	var counts []repository.EventCount
	for rows.Next() {
		var c repository.EventCount
		if err := rows.Scan(&c.EventName, &c.Count, &c.UniqueSessions, &c.UniqueUsers); err != nil {
			return nil, fmt.Errorf("failed to scan raw event count row: %w", err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating raw event count rows: %w", err)
	}
	return counts, nil
}

// RawBuckets counts raw events per hour or day bucket over a half-open window
func (r *Repository) RawBuckets(ctx context.Context, q repository.RangeQuery, g repository.Granularity) ([]repository.BucketCount, error) {
	bucketExpr := "toStartOfHour(occurred_at)"
	if g == repository.GranularityDaily {
		bucketExpr = "toStartOfDay(occurred_at)"
	}

	query := fmt.Sprintf(`
		SELECT
			%s AS bucket,
			count() AS total
		FROM events FINAL
		WHERE project_id = ? AND occurred_at >= ? AND occurred_at < ?
		GROUP BY bucket
		ORDER BY bucket ASC
	`, bucketExpr)

	rows, err := r.client.Conn().Query(ctx, query, q.ProjectID, q.Start, q.End)
	if err != nil {
		return nil, fmt.Errorf("failed to query raw buckets: %w", err)
	}
	defer r.closeRows(rows)

	var buckets []repository.BucketCount
	for rows.Next() {
		var b repository.BucketCount
		if err := rows.Scan(&b.Bucket, &b.Count); err != nil {
			return nil, fmt.Errorf("failed to scan raw bucket row: %w", err)
		}
		buckets = append(buckets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating raw bucket rows: %w", err)
	}
	return buckets, nil
}

// Sessions lists per-session aggregates, most recently active first
func (r *Repository) Sessions(ctx context.Context, q repository.RangeQuery, limit, offset int) ([]repository.SessionSummary, uint64, error) {
	var total uint64
	countQuery := `
		SELECT uniqExact(session_id)
		FROM events FINAL
		WHERE project_id = ? AND occurred_at >= ? AND occurred_at < ? AND session_id != ''
	`
	row := r.client.Conn().QueryRow(ctx, countQuery, q.ProjectID, q.Start, q.End)
	if err := row.Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count sessions: %w", err)
	}

	query := `
		SELECT
			session_id,
			count() AS event_count,
			min(occurred_at) AS first_seen,
			max(occurred_at) AS last_seen,
			anyLast(distinct_id) AS distinct_id
		FROM events FINAL
		WHERE project_id = ? AND occurred_at >= ? AND occurred_at < ? AND session_id != ''
		GROUP BY session_id
		ORDER BY last_seen DESC
		LIMIT ? OFFSET ?
	`

	rows, err := r.client.Conn().Query(ctx, query, q.ProjectID, q.Start, q.End, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer r.closeRows(rows)

	var sessions []repository.SessionSummary
	for rows.Next() {
		var s repository.SessionSummary
		if err := rows.Scan(&s.SessionID, &s.EventCount, &s.FirstSeen, &s.LastSeen, &s.DistinctID); err != nil {
			return nil, 0, fmt.Errorf("failed to scan session row: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating session rows: %w", err)
	}
	return sessions, total, nil
}

// Users lists per-user aggregates, most active first
func (r *Repository) Users(ctx context.Context, q repository.RangeQuery, limit, offset int) ([]repository.UserSummary, uint64, error) {
	var total uint64
	countQuery := `
		SELECT uniqExact(distinct_id)
		FROM events FINAL
		WHERE project_id = ? AND occurred_at >= ? AND occurred_at < ? AND distinct_id != ''
	`
	row := r.client.Conn().QueryRow(ctx, countQuery, q.ProjectID, q.Start, q.End)
	if err := row.Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	query := `
		SELECT
			distinct_id,
			count() AS event_count,
			uniqExactIf(session_id, session_id != '') AS session_count,
			min(occurred_at) AS first_seen,
			max(occurred_at) AS last_seen
		FROM events FINAL
		WHERE project_id = ? AND occurred_at >= ? AND occurred_at < ? AND distinct_id != ''
		GROUP BY distinct_id
		ORDER BY event_count DESC
		LIMIT ? OFFSET ?
	`

	rows, err := r.client.Conn().Query(ctx, query, q.ProjectID, q.Start, q.End, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query users: %w", err)
	}
	defer r.closeRows(rows)

	var users []repository.UserSummary
	for rows.Next() {
		var u repository.UserSummary
		if err := rows.Scan(&u.DistinctID, &u.EventCount, &u.SessionCount, &u.FirstSeen, &u.LastSeen); err != nil {
			return nil, 0, fmt.Errorf("failed to scan user row: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating user rows: %w", err)
	}
	return users, total, nil
}

// AggregateHour recomputes per-(project, event name) aggregates for all
// projects with events inside one hour
func (r *Repository) AggregateHour(ctx context.Context, hour time.Time) ([]*domain.HourlyRollup, error) {
	hourStart := hour.UTC().Truncate(time.Hour)
	hourEnd := hourStart.Add(time.Hour)

	query := `
		SELECT
			project_id,
			event_name,
			count() AS total,
			uniqExactIf(session_id, session_id != '') AS sessions,
			uniqExactIf(distinct_id, distinct_id != '') AS users
		FROM events FINAL
		WHERE occurred_at >= ? AND occurred_at < ?
		GROUP BY project_id, event_name
	`

	rows, err := r.client.Conn().Query(ctx, query, hourStart, hourEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate hour %s: %w", hourStart.Format(time.RFC3339), err)
	}
	defer r.closeRows(rows)

	var rollups []*domain.HourlyRollup
	for rows.Next() {
		rollup := &domain.HourlyRollup{Hour: hourStart}
		if err := rows.Scan(&rollup.ProjectID, &rollup.EventName, &rollup.Count, &rollup.UniqueSessions, &rollup.UniqueUsers); err != nil {
			return nil, fmt.Errorf("failed to scan hourly aggregate row: %w", err)
		}
		rollups = append(rollups, rollup)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating hourly aggregate rows: %w", err)
	}
	return rollups, nil
}

func (r *Repository) closeRows(rows driver.Rows) {
	if err := rows.Close(); err != nil {
		r.log.Error("Failed to close rows", zap.Error(err))
	}
}
