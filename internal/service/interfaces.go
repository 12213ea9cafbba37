package service

import (
	"context"
	"time"

	"github.com/Nijaek/analytics-dashboard/internal/dto"
	"github.com/Nijaek/analytics-dashboard/internal/repository"
)

// IngestServicer defines the interface for event ingestion
type IngestServicer interface {
	// IngestBatch validates, enriches and enqueues a batch of events.
	// It returns the number accepted plus a per-event rejection list;
	// a non-nil error means the whole batch failed.
	IngestBatch(ctx context.Context, projectID int64, events []dto.EventIn, clientIP, userAgent string) (int, []string, error)
}

// AnalyticsServicer defines the interface for dashboard reads
type AnalyticsServicer interface {
	Overview(ctx context.Context, projectID int64, start, end time.Time) (*dto.OverviewResponse, error)
	Timeseries(ctx context.Context, projectID int64, start, end time.Time, g repository.Granularity) (*dto.TimeseriesResponse, error)
	TopEvents(ctx context.Context, projectID int64, start, end time.Time, limit int) (*dto.TopEventsResponse, error)
	Sessions(ctx context.Context, projectID int64, start, end time.Time, limit, offset int) (*dto.SessionsResponse, error)
	Users(ctx context.Context, projectID int64, start, end time.Time, limit, offset int) (*dto.UsersResponse, error)
}
