package consumer

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Nijaek/analytics-dashboard/internal/domain"
	"github.com/Nijaek/analytics-dashboard/internal/repository"
)

// Aggregator periodically recomputes hourly rollups from raw events. The
// current hour is recomputed on every tick; when an hour closes it gets one
// last recompute so late-arriving events inside the skew window are counted.
type Aggregator struct {
	events   repository.EventRepository
	rollups  repository.RollupRepository
	interval time.Duration
	lastHour time.Time
	log      *zap.Logger
}

// NewAggregator creates a new rollup aggregator
func NewAggregator(events repository.EventRepository, rollups repository.RollupRepository, interval time.Duration, log *zap.Logger) *Aggregator {
	return &Aggregator{
		events:   events,
		rollups:  rollups,
		interval: interval,
		log:      log,
	}
}

// Start runs the aggregation loop until the context is canceled
func (a *Aggregator) Start(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.run(ctx, time.Now().UTC())

	for {
		select {
		case <-ctx.Done():
			a.log.Info("Aggregator shutting down")
			return nil
		case <-ticker.C:
			a.run(ctx, time.Now().UTC())
		}
	}
}

// run recomputes every hour that closed since the previous tick, then the
// current hour. lastHour only advances past hours whose final recompute
// fully succeeded, so a failed finalization is retried on the next tick.
func (a *Aggregator) run(ctx context.Context, now time.Time) {
	currentHour := now.Truncate(time.Hour)

	finalized := currentHour
	if !a.lastHour.IsZero() {
		for hour := a.lastHour; hour.Before(currentHour); hour = hour.Add(time.Hour) {
			if err := a.recomputeHour(ctx, hour); err != nil {
				finalized = hour
				break
			}
		}
	}

	a.recomputeHour(ctx, currentHour)
	a.lastHour = finalized
}

// recomputeHour rebuilds the rollup rows for one hour. Upserts are issued
// per project so one project's failure doesn't block the rest.
func (a *Aggregator) recomputeHour(ctx context.Context, hour time.Time) error {
	rollups, err := a.events.AggregateHour(ctx, hour)
	if err != nil {
		a.log.Error("Failed to aggregate hour",
			zap.Time("hour", hour),
			zap.Error(err))
		return err
	}
	if len(rollups) == 0 {
		return nil
	}

	byProject := make(map[int64][]*domain.HourlyRollup)
	for _, rollup := range rollups {
		byProject[rollup.ProjectID] = append(byProject[rollup.ProjectID], rollup)
	}

	var upsertErr error
	for projectID, projectRollups := range byProject {
		if err := a.rollups.UpsertRollups(ctx, projectRollups); err != nil {
			a.log.Error("Failed to upsert rollups",
				zap.Int64("project_id", projectID),
				zap.Time("hour", hour),
				zap.Error(err))
			upsertErr = err
			continue
		}
	}
	if upsertErr != nil {
		return upsertErr
	}

	a.log.Debug("Recomputed hourly rollups",
		zap.Time("hour", hour),
		zap.Int("rows", len(rollups)),
		zap.Int("projects", len(byProject)))
	return nil
}
