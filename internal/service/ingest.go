package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Nijaek/analytics-dashboard/internal/domain"
	"github.com/Nijaek/analytics-dashboard/internal/dto"
	"github.com/Nijaek/analytics-dashboard/internal/live"
	"github.com/Nijaek/analytics-dashboard/internal/queue"
	"github.com/Nijaek/analytics-dashboard/internal/repository"
)

const (
	// Timestamps outside this skew window are replaced with receive time.
	maxFutureSkew = 5 * time.Minute
	maxPastSkew   = 30 * 24 * time.Hour

	// Oversized properties objects are dropped, not rejected.
	maxPropertiesBytes = 8 * 1024
)

// IngestService validates and enriches incoming events and hands them to
// the queue. If the queue is unavailable it falls back to a direct write so
// accepted events are never dropped.
type IngestService struct {
	publisher   queue.Publisher
	repository  repository.EventRepository
	broadcaster live.Broadcaster
	secretKey   string
	log         *zap.Logger
}

// NewIngestService creates a new ingest service
func NewIngestService(publisher queue.Publisher, repo repository.EventRepository, broadcaster live.Broadcaster, secretKey string, log *zap.Logger) *IngestService {
	return &IngestService{
		publisher:   publisher,
		repository:  repo,
		broadcaster: broadcaster,
		secretKey:   secretKey,
		log:         log,
	}
}

// IngestBatch validates each event in the batch, assigns ids, hashes the
// client IP and enqueues the accepted events as a single queue message
func (s *IngestService) IngestBatch(ctx context.Context, projectID int64, events []dto.EventIn, clientIP, userAgent string) (int, []string, error) {
	receivedAt := time.Now().UTC()
	identityHash := s.hashClientIP(clientIP, receivedAt)

	accepted := make([]*domain.Event, 0, len(events))
	var rejected []string

	for i, in := range events {
		event, reason := s.buildEvent(projectID, in, identityHash, userAgent, receivedAt)
		if reason != "" {
			rejected = append(rejected, fmt.Sprintf("events[%d]: %s", i, reason))
			continue
		}
		accepted = append(accepted, event)
	}

	if len(accepted) == 0 {
		return 0, rejected, nil
	}

	payload, err := json.Marshal(accepted)
	if err != nil {
		return 0, rejected, fmt.Errorf("failed to marshal event batch: %w", err)
	}

	if _, err := s.publisher.EnqueueBatch(ctx, projectID, payload); err != nil {
		s.log.Warn("Queue unavailable, falling back to direct write",
			zap.Int64("project_id", projectID),
			zap.Int("events", len(accepted)),
			zap.Error(err))
		if err := s.writeDirect(ctx, projectID, accepted); err != nil {
			return 0, rejected, err
		}
	}

	return len(accepted), rejected, nil
}

func (s *IngestService) buildEvent(projectID int64, in dto.EventIn, identityHash, userAgent string, receivedAt time.Time) (*domain.Event, string) {
	if in.Event == "" {
		return nil, "event is required"
	}

	occurredAt := receivedAt
	if in.OccurredAt != "" {
		parsed, err := time.Parse(time.RFC3339, in.OccurredAt)
		if err != nil {
			return nil, "occurred_at is not a valid RFC 3339 timestamp"
		}
		occurredAt = parsed.UTC()
		if occurredAt.After(receivedAt.Add(maxFutureSkew)) || occurredAt.Before(receivedAt.Add(-maxPastSkew)) {
			occurredAt = receivedAt
		}
	}

	properties := "{}"
	if len(in.Properties) > 0 {
		raw, err := json.Marshal(in.Properties)
		if err != nil || len(raw) > maxPropertiesBytes {
			s.log.Debug("Dropping event properties",
				zap.Int64("project_id", projectID),
				zap.String("event", in.Event))
		} else {
			properties = string(raw)
		}
	}

	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}

	return &domain.Event{
		ID:           id.String(),
		ProjectID:    projectID,
		EventName:    in.Event,
		DistinctID:   in.DistinctID,
		Properties:   properties,
		SessionID:    in.SessionID,
		PageURL:      in.PageURL,
		Referrer:     in.Referrer,
		UserAgent:    userAgent,
		IdentityHash: identityHash,
		OccurredAt:   occurredAt,
		ReceivedAt:   receivedAt,
	}, ""
}

// writeDirect persists and broadcasts events without the queue. Publish
// failures are logged only; the write already succeeded.
func (s *IngestService) writeDirect(ctx context.Context, projectID int64, events []*domain.Event) error {
	if _, err := s.repository.InsertBatch(ctx, events); err != nil {
		return fmt.Errorf("fallback write failed: %w", err)
	}
	for _, event := range events {
		raw, err := json.Marshal(event)
		if err != nil {
			continue
		}
		if err := s.broadcaster.Publish(ctx, projectID, raw); err != nil {
			s.log.Warn("Failed to publish live event",
				zap.Int64("project_id", projectID),
				zap.Error(err))
		}
	}
	return nil
}

// hashClientIP produces a keyed hash of the client IP with a key that
// rotates daily, so the same visitor is only correlatable within one day
func (s *IngestService) hashClientIP(clientIP string, now time.Time) string {
	if clientIP == "" {
		return ""
	}
	key := s.secretKey + ":" + now.UTC().Format("2006-01-02")
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(clientIP))
	return hex.EncodeToString(mac.Sum(nil))
}
