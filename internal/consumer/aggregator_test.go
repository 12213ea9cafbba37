package consumer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/Nijaek/analytics-dashboard/internal/domain"
)

func rollupFor(projectID int64, hour time.Time) *domain.HourlyRollup {
	return &domain.HourlyRollup{
		ProjectID: projectID,
		EventName: "page_view",
		Hour:      hour,
		Count:     10,
	}
}

func TestAggregator_Run_RecomputesCurrentHour(t *testing.T) {
	mockEvents := new(MockEventRepository)
	mockRollups := new(MockRollupRepository)
	agg := NewAggregator(mockEvents, mockRollups, time.Minute, zap.NewNop())

	now := time.Date(2026, 8, 28, 14, 22, 0, 0, time.UTC)
	hour := time.Date(2026, 8, 28, 14, 0, 0, 0, time.UTC)

	mockEvents.On("AggregateHour", mock.Anything, hour).
		Return([]*domain.HourlyRollup{rollupFor(1, hour)}, nil)
	mockRollups.On("UpsertRollups", mock.Anything, mock.Anything).Return(nil)

	agg.run(context.Background(), now)

	mockEvents.AssertExpectations(t)
	mockRollups.AssertNumberOfCalls(t, "UpsertRollups", 1)
}

func TestAggregator_Run_FinalizesClosedHours(t *testing.T) {
	mockEvents := new(MockEventRepository)
	mockRollups := new(MockRollupRepository)
	agg := NewAggregator(mockEvents, mockRollups, time.Minute, zap.NewNop())

	hour14 := time.Date(2026, 8, 28, 14, 0, 0, 0, time.UTC)
	hour15 := time.Date(2026, 8, 28, 15, 0, 0, 0, time.UTC)
	hour16 := time.Date(2026, 8, 28, 16, 0, 0, 0, time.UTC)

	mockEvents.On("AggregateHour", mock.Anything, hour14).
		Return([]*domain.HourlyRollup{rollupFor(1, hour14)}, nil)
	mockEvents.On("AggregateHour", mock.Anything, hour15).
		Return([]*domain.HourlyRollup{rollupFor(1, hour15)}, nil)
	mockEvents.On("AggregateHour", mock.Anything, hour16).
		Return([]*domain.HourlyRollup{rollupFor(1, hour16)}, nil)
	mockRollups.On("UpsertRollups", mock.Anything, mock.Anything).Return(nil)

	agg.run(context.Background(), hour14.Add(30*time.Minute))

	// Two hours pass between ticks; both closed hours get a final recompute
	agg.run(context.Background(), hour16.Add(10*time.Minute))

	mockEvents.AssertExpectations(t)
	mockEvents.AssertNumberOfCalls(t, "AggregateHour", 4)
}

func TestAggregator_Run_RetriesFailedFinalization(t *testing.T) {
	mockEvents := new(MockEventRepository)
	mockRollups := new(MockRollupRepository)
	agg := NewAggregator(mockEvents, mockRollups, time.Minute, zap.NewNop())

	hour14 := time.Date(2026, 8, 28, 14, 0, 0, 0, time.UTC)
	hour15 := time.Date(2026, 8, 28, 15, 0, 0, 0, time.UTC)

	// Intra-hour recompute succeeds, the finalization after the boundary
	// fails once, the retry on the following tick succeeds
	mockEvents.On("AggregateHour", mock.Anything, hour14).
		Return([]*domain.HourlyRollup{rollupFor(1, hour14)}, nil).Once()
	mockEvents.On("AggregateHour", mock.Anything, hour14).
		Return(nil, errors.New("query timeout")).Once()
	mockEvents.On("AggregateHour", mock.Anything, hour14).
		Return([]*domain.HourlyRollup{rollupFor(1, hour14)}, nil).Once()
	mockEvents.On("AggregateHour", mock.Anything, hour15).
		Return([]*domain.HourlyRollup{rollupFor(1, hour15)}, nil)
	mockRollups.On("UpsertRollups", mock.Anything, mock.Anything).Return(nil)

	agg.run(context.Background(), hour14.Add(30*time.Minute))

	agg.run(context.Background(), hour15.Add(10*time.Minute))
	assert.Equal(t, hour14, agg.lastHour)

	agg.run(context.Background(), hour15.Add(11*time.Minute))
	assert.Equal(t, hour15, agg.lastHour)

	agg.run(context.Background(), hour15.Add(12*time.Minute))

	mockEvents.AssertExpectations(t)
	mockEvents.AssertNumberOfCalls(t, "AggregateHour", 6)
}

func TestAggregator_Run_UpsertFailureKeepsHourPending(t *testing.T) {
	mockEvents := new(MockEventRepository)
	mockRollups := new(MockRollupRepository)
	agg := NewAggregator(mockEvents, mockRollups, time.Minute, zap.NewNop())

	hour14 := time.Date(2026, 8, 28, 14, 0, 0, 0, time.UTC)
	hour15 := time.Date(2026, 8, 28, 15, 0, 0, 0, time.UTC)

	mockEvents.On("AggregateHour", mock.Anything, hour14).
		Return([]*domain.HourlyRollup{rollupFor(1, hour14)}, nil)
	mockEvents.On("AggregateHour", mock.Anything, hour15).
		Return([]*domain.HourlyRollup{}, nil)
	mockRollups.On("UpsertRollups", mock.Anything, mock.Anything).
		Return(errors.New("storage down")).Once()
	mockRollups.On("UpsertRollups", mock.Anything, mock.Anything).Return(nil)

	agg.lastHour = hour14

	agg.run(context.Background(), hour15.Add(5*time.Minute))
	assert.Equal(t, hour14, agg.lastHour)

	agg.run(context.Background(), hour15.Add(6*time.Minute))
	assert.Equal(t, hour15, agg.lastHour)

	mockRollups.AssertNumberOfCalls(t, "UpsertRollups", 2)
}

func TestAggregator_Run_PerProjectFailureIsolation(t *testing.T) {
	mockEvents := new(MockEventRepository)
	mockRollups := new(MockRollupRepository)
	agg := NewAggregator(mockEvents, mockRollups, time.Minute, zap.NewNop())

	hour := time.Date(2026, 8, 28, 14, 0, 0, 0, time.UTC)

	mockEvents.On("AggregateHour", mock.Anything, hour).
		Return([]*domain.HourlyRollup{rollupFor(1, hour), rollupFor(2, hour)}, nil)
	mockRollups.On("UpsertRollups", mock.Anything, mock.MatchedBy(func(rollups []*domain.HourlyRollup) bool {
		return len(rollups) == 1 && rollups[0].ProjectID == 1
	})).Return(errors.New("storage down"))
	mockRollups.On("UpsertRollups", mock.Anything, mock.MatchedBy(func(rollups []*domain.HourlyRollup) bool {
		return len(rollups) == 1 && rollups[0].ProjectID == 2
	})).Return(nil)

	agg.run(context.Background(), hour.Add(5*time.Minute))

	mockRollups.AssertExpectations(t)
	mockRollups.AssertNumberOfCalls(t, "UpsertRollups", 2)
}

func TestAggregator_Run_AggregateFailureSkipsUpsert(t *testing.T) {
	mockEvents := new(MockEventRepository)
	mockRollups := new(MockRollupRepository)
	agg := NewAggregator(mockEvents, mockRollups, time.Minute, zap.NewNop())

	hour := time.Date(2026, 8, 28, 14, 0, 0, 0, time.UTC)

	mockEvents.On("AggregateHour", mock.Anything, hour).
		Return(nil, errors.New("query timeout"))

	agg.run(context.Background(), hour.Add(5*time.Minute))

	mockRollups.AssertNotCalled(t, "UpsertRollups", mock.Anything, mock.Anything)
}

func TestAggregator_Run_NoRowsNoUpsert(t *testing.T) {
	mockEvents := new(MockEventRepository)
	mockRollups := new(MockRollupRepository)
	agg := NewAggregator(mockEvents, mockRollups, time.Minute, zap.NewNop())

	hour := time.Date(2026, 8, 28, 14, 0, 0, 0, time.UTC)

	mockEvents.On("AggregateHour", mock.Anything, hour).
		Return([]*domain.HourlyRollup{}, nil)

	agg.run(context.Background(), hour.Add(5*time.Minute))

	mockRollups.AssertNotCalled(t, "UpsertRollups", mock.Anything, mock.Anything)
	assert.Equal(t, hour, agg.lastHour)
}
