package consumer

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/Nijaek/analytics-dashboard/internal/domain"
	"github.com/Nijaek/analytics-dashboard/internal/queue"
	"github.com/Nijaek/analytics-dashboard/internal/repository"
)

// MockQueueConsumer is a mock implementation of queue.Consumer
type MockQueueConsumer struct {
	mock.Mock
}

func (m *MockQueueConsumer) Claim(ctx context.Context, max int64) ([]queue.Message, error) {
	args := m.Called(ctx, max)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]queue.Message), args.Error(1)
}

func (m *MockQueueConsumer) Ack(ctx context.Context, ids ...string) error {
	args := m.Called(ctx, ids)
	return args.Error(0)
}

// MockBroadcaster is a mock implementation of live.Broadcaster
type MockBroadcaster struct {
	mock.Mock
}

func (m *MockBroadcaster) Publish(ctx context.Context, projectID int64, payload []byte) error {
	args := m.Called(ctx, projectID, payload)
	return args.Error(0)
}

// MockEventRepository is a mock implementation of repository.EventRepository
type MockEventRepository struct {
	mock.Mock
}

func (m *MockEventRepository) InsertBatch(ctx context.Context, events []*domain.Event) (int, error) {
	args := m.Called(ctx, events)
	return args.Int(0), args.Error(1)
}

func (m *MockEventRepository) InitSchema(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockEventRepository) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockEventRepository) Close() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockEventRepository) RawTotals(ctx context.Context, q repository.RangeQuery) (*repository.Totals, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.Totals), args.Error(1)
}

func (m *MockEventRepository) RawEventCounts(ctx context.Context, q repository.RangeQuery) ([]repository.EventCount, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]repository.EventCount), args.Error(1)
}

func (m *MockEventRepository) RawBuckets(ctx context.Context, q repository.RangeQuery, g repository.Granularity) ([]repository.BucketCount, error) {
	args := m.Called(ctx, q, g)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]repository.BucketCount), args.Error(1)
}

func (m *MockEventRepository) Sessions(ctx context.Context, q repository.RangeQuery, limit, offset int) ([]repository.SessionSummary, uint64, error) {
	args := m.Called(ctx, q, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Get(1).(uint64), args.Error(2)
	}
	return args.Get(0).([]repository.SessionSummary), args.Get(1).(uint64), args.Error(2)
}

func (m *MockEventRepository) Users(ctx context.Context, q repository.RangeQuery, limit, offset int) ([]repository.UserSummary, uint64, error) {
	args := m.Called(ctx, q, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Get(1).(uint64), args.Error(2)
	}
	return args.Get(0).([]repository.UserSummary), args.Get(1).(uint64), args.Error(2)
}

func (m *MockEventRepository) AggregateHour(ctx context.Context, hour time.Time) ([]*domain.HourlyRollup, error) {
	args := m.Called(ctx, hour)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.HourlyRollup), args.Error(1)
}

// MockRollupRepository is a mock implementation of repository.RollupRepository
type MockRollupRepository struct {
	mock.Mock
}

func (m *MockRollupRepository) UpsertRollups(ctx context.Context, rollups []*domain.HourlyRollup) error {
	args := m.Called(ctx, rollups)
	return args.Error(0)
}

func (m *MockRollupRepository) RollupTotals(ctx context.Context, q repository.RangeQuery) (*repository.Totals, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.Totals), args.Error(1)
}

func (m *MockRollupRepository) RollupEventCounts(ctx context.Context, q repository.RangeQuery) ([]repository.EventCount, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]repository.EventCount), args.Error(1)
}

func (m *MockRollupRepository) RollupBuckets(ctx context.Context, q repository.RangeQuery, g repository.Granularity) ([]repository.BucketCount, error) {
	args := m.Called(ctx, q, g)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]repository.BucketCount), args.Error(1)
}
