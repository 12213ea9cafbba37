package repository

import (
	"context"
	"time"

	"github.com/Nijaek/analytics-dashboard/internal/domain"
)

// RangeQuery scopes a read to one project and a half-open [Start, End) window
type RangeQuery struct {
	ProjectID int64
	Start     time.Time
	End       time.Time
}

// Totals holds aggregate counters for a window
type Totals struct {
	Events         uint64
	UniqueSessions uint64
	UniqueUsers    uint64
}

// EventCount is one event name's aggregates within a window
type EventCount struct {
	EventName      string
	Count          uint64
	UniqueSessions uint64
	UniqueUsers    uint64
}

// BucketCount is one timeseries bucket
type BucketCount struct {
	Bucket time.Time
	Count  uint64
}

// SessionSummary aggregates one session's raw events
type SessionSummary struct {
	SessionID  string
	EventCount uint64
	FirstSeen  time.Time
	LastSeen   time.Time
	DistinctID string
}

// UserSummary aggregates one identified user's raw events
type UserSummary struct {
	DistinctID   string
	EventCount   uint64
	SessionCount uint64
	FirstSeen    time.Time
	LastSeen     time.Time
}

// Granularity selects the bucket width for timeseries reads
type Granularity string

const (
	GranularityHourly Granularity = "hourly"
	GranularityDaily  Granularity = "daily"
)

// EventRepository defines storage operations over raw events
type EventRepository interface {
	// InsertBatch bulk-inserts events; redelivered duplicates must collapse
	// on event id rather than fail
	InsertBatch(ctx context.Context, events []*domain.Event) (int, error)

	// InitSchema creates tables if they don't exist
	InitSchema(ctx context.Context) error

	// Ping checks if the storage connection is alive
	Ping(ctx context.Context) error

	// Close releases the underlying connection
	Close() error

	// RawTotals aggregates raw events over a window
	RawTotals(ctx context.Context, q RangeQuery) (*Totals, error)

	// RawEventCounts aggregates raw events per event name over a window
	RawEventCounts(ctx context.Context, q RangeQuery) ([]EventCount, error)

	// RawBuckets counts raw events per time bucket over a window
	RawBuckets(ctx context.Context, q RangeQuery, g Granularity) ([]BucketCount, error)

	// Sessions lists session aggregates, most recent first
	Sessions(ctx context.Context, q RangeQuery, limit, offset int) ([]SessionSummary, uint64, error)

	// Users lists identified-user aggregates, most active first
	Users(ctx context.Context, q RangeQuery, limit, offset int) ([]UserSummary, uint64, error)

	// AggregateHour recomputes per-(project, event name) aggregates for one
	// hour across all projects with events in it
	AggregateHour(ctx context.Context, hour time.Time) ([]*domain.HourlyRollup, error)
}

// RollupRepository defines operations over the pre-aggregated hourly rows
type RollupRepository interface {
	// UpsertRollups replaces rollup rows keyed by (project, event name, hour)
	UpsertRollups(ctx context.Context, rollups []*domain.HourlyRollup) error

	// RollupTotals sums rollups for hours within [Start, End)
	RollupTotals(ctx context.Context, q RangeQuery) (*Totals, error)

	// RollupEventCounts sums rollups per event name for hours within [Start, End)
	RollupEventCounts(ctx context.Context, q RangeQuery) ([]EventCount, error)

	// RollupBuckets sums rollups per time bucket for hours within [Start, End)
	RollupBuckets(ctx context.Context, q RangeQuery, g Granularity) ([]BucketCount, error)
}
