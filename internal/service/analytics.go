package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/Nijaek/analytics-dashboard/internal/dto"
	"github.com/Nijaek/analytics-dashboard/internal/repository"
)

// ErrInvalidRange is returned when a query range is empty or inverted
var ErrInvalidRange = errors.New("range end must be after range start")

// AnalyticsService answers dashboard reads by combining precomputed hourly
// rollups with raw-event queries. Whole hours inside the range come from
// the rollup table; the ragged edges are aggregated from raw events.
type AnalyticsService struct {
	events  repository.EventRepository
	rollups repository.RollupRepository
	log     *zap.Logger
}

// NewAnalyticsService creates a new analytics service
func NewAnalyticsService(events repository.EventRepository, rollups repository.RollupRepository, log *zap.Logger) *AnalyticsService {
	return &AnalyticsService{
		events:  events,
		rollups: rollups,
		log:     log,
	}
}

type window struct {
	start time.Time
	end   time.Time
}

type rangeSplit struct {
	raw    []window
	rollup *window
}

// splitRange divides [start, end) into raw and rollup windows. The rollup
// window covers the whole hours inside the range clamped to now; the
// remainders before the first whole hour and after the last one stay raw.
// All windows are half-open so no event is counted twice.
func splitRange(start, end, now time.Time) rangeSplit {
	eff := end
	if now.Before(eff) {
		eff = now
	}
	if !eff.After(start) {
		return rangeSplit{}
	}

	ceilStart := start.Truncate(time.Hour)
	if ceilStart.Before(start) {
		ceilStart = ceilStart.Add(time.Hour)
	}
	floorEnd := eff.Truncate(time.Hour)

	if !floorEnd.After(ceilStart) {
		return rangeSplit{raw: []window{{start: start, end: eff}}}
	}

	split := rangeSplit{rollup: &window{start: ceilStart, end: floorEnd}}
	if start.Before(ceilStart) {
		split.raw = append(split.raw, window{start: start, end: ceilStart})
	}
	if floorEnd.Before(eff) {
		split.raw = append(split.raw, window{start: floorEnd, end: eff})
	}
	return split
}

// Overview returns totals and the top event name for a project over a range
func (s *AnalyticsService) Overview(ctx context.Context, projectID int64, start, end time.Time) (*dto.OverviewResponse, error) {
	if !end.After(start) {
		return nil, ErrInvalidRange
	}

	split := splitRange(start, end, time.Now().UTC())

	totals := repository.Totals{}
	if split.rollup != nil {
		t, err := s.rollups.RollupTotals(ctx, s.query(projectID, *split.rollup))
		if err != nil {
			return nil, err
		}
		addTotals(&totals, t)
	}
	for _, w := range split.raw {
		t, err := s.events.RawTotals(ctx, s.query(projectID, w))
		if err != nil {
			return nil, err
		}
		addTotals(&totals, t)
	}

	topEvents, err := s.mergedEventCounts(ctx, projectID, split)
	if err != nil {
		return nil, err
	}
	topEvent := ""
	if len(topEvents) > 0 {
		topEvent = topEvents[0].EventName
	}

	return &dto.OverviewResponse{
		TotalEvents:    totals.Events,
		UniqueSessions: totals.UniqueSessions,
		UniqueUsers:    totals.UniqueUsers,
		TopEvent:       topEvent,
		PeriodStart:    start,
		PeriodEnd:      end,
	}, nil
}

// Timeseries returns bucketed event counts for a project over a range
func (s *AnalyticsService) Timeseries(ctx context.Context, projectID int64, start, end time.Time, g repository.Granularity) (*dto.TimeseriesResponse, error) {
	if !end.After(start) {
		return nil, ErrInvalidRange
	}

	split := splitRange(start, end, time.Now().UTC())

	merged := make(map[time.Time]uint64)
	if split.rollup != nil {
		buckets, err := s.rollups.RollupBuckets(ctx, s.query(projectID, *split.rollup), g)
		if err != nil {
			return nil, err
		}
		for _, b := range buckets {
			merged[b.Bucket] += b.Count
		}
	}
	for _, w := range split.raw {
		buckets, err := s.events.RawBuckets(ctx, s.query(projectID, w), g)
		if err != nil {
			return nil, err
		}
		for _, b := range buckets {
			merged[b.Bucket] += b.Count
		}
	}

	points := make([]dto.TimeseriesPoint, 0, len(merged))
	for bucket, count := range merged {
		points = append(points, dto.TimeseriesPoint{Timestamp: bucket, Count: count})
	}
	sort.Slice(points, func(i, j int) bool {
		return points[i].Timestamp.Before(points[j].Timestamp)
	})

	return &dto.TimeseriesResponse{
		Data:        points,
		Granularity: string(g),
	}, nil
}

// TopEvents returns the most frequent event names for a project over a range
func (s *AnalyticsService) TopEvents(ctx context.Context, projectID int64, start, end time.Time, limit int) (*dto.TopEventsResponse, error) {
	if !end.After(start) {
		return nil, ErrInvalidRange
	}

	split := splitRange(start, end, time.Now().UTC())
	counts, err := s.mergedEventCounts(ctx, projectID, split)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(counts) > limit {
		counts = counts[:limit]
	}

	data := make([]dto.TopEvent, 0, len(counts))
	for _, c := range counts {
		data = append(data, dto.TopEvent{
			EventName:      c.EventName,
			Count:          c.Count,
			UniqueSessions: c.UniqueSessions,
			UniqueUsers:    c.UniqueUsers,
		})
	}
	return &dto.TopEventsResponse{Data: data}, nil
}

// Sessions lists per-session aggregates. Session listings need raw rows,
// so this path skips the rollup table entirely.
func (s *AnalyticsService) Sessions(ctx context.Context, projectID int64, start, end time.Time, limit, offset int) (*dto.SessionsResponse, error) {
	if !end.After(start) {
		return nil, ErrInvalidRange
	}

	sessions, total, err := s.events.Sessions(ctx, repository.RangeQuery{ProjectID: projectID, Start: start, End: end}, limit, offset)
	if err != nil {
		return nil, err
	}

	data := make([]dto.SessionSummary, 0, len(sessions))
	for _, sess := range sessions {
		data = append(data, dto.SessionSummary{
			SessionID:  sess.SessionID,
			EventCount: sess.EventCount,
			FirstSeen:  sess.FirstSeen,
			LastSeen:   sess.LastSeen,
			DistinctID: sess.DistinctID,
		})
	}
	return &dto.SessionsResponse{Data: data, Total: total}, nil
}

// Users lists per-user aggregates from raw rows
func (s *AnalyticsService) Users(ctx context.Context, projectID int64, start, end time.Time, limit, offset int) (*dto.UsersResponse, error) {
	if !end.After(start) {
		return nil, ErrInvalidRange
	}

	users, total, err := s.events.Users(ctx, repository.RangeQuery{ProjectID: projectID, Start: start, End: end}, limit, offset)
	if err != nil {
		return nil, err
	}

	data := make([]dto.UserSummary, 0, len(users))
	for _, u := range users {
		data = append(data, dto.UserSummary{
			DistinctID:   u.DistinctID,
			EventCount:   u.EventCount,
			SessionCount: u.SessionCount,
			FirstSeen:    u.FirstSeen,
			LastSeen:     u.LastSeen,
		})
	}
	return &dto.UsersResponse{Data: data, Total: total}, nil
}

// mergedEventCounts combines rollup and raw per-event-name aggregates and
// returns them sorted by count descending
func (s *AnalyticsService) mergedEventCounts(ctx context.Context, projectID int64, split rangeSplit) ([]repository.EventCount, error) {
	merged := make(map[string]*repository.EventCount)

	add := func(counts []repository.EventCount) {
		for _, c := range counts {
			existing, ok := merged[c.EventName]
			if !ok {
				copied := c
				merged[c.EventName] = &copied
				continue
			}
			existing.Count += c.Count
			existing.UniqueSessions += c.UniqueSessions
			existing.UniqueUsers += c.UniqueUsers
		}
	}

	if split.rollup != nil {
		counts, err := s.rollups.RollupEventCounts(ctx, s.query(projectID, *split.rollup))
		if err != nil {
			return nil, err
		}
		add(counts)
	}
	for _, w := range split.raw {
		counts, err := s.events.RawEventCounts(ctx, s.query(projectID, w))
		if err != nil {
			return nil, err
		}
		add(counts)
	}

	result := make([]repository.EventCount, 0, len(merged))
	for _, c := range merged {
		result = append(result, *c)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].EventName < result[j].EventName
	})
	return result, nil
}

func (s *AnalyticsService) query(projectID int64, w window) repository.RangeQuery {
	return repository.RangeQuery{ProjectID: projectID, Start: w.start, End: w.end}
}

func addTotals(dst *repository.Totals, src *repository.Totals) {
	dst.Events += src.Events
	dst.UniqueSessions += src.UniqueSessions
	dst.UniqueUsers += src.UniqueUsers
}
