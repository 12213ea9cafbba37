package consumer

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/Nijaek/analytics-dashboard/internal/domain"
	"github.com/Nijaek/analytics-dashboard/internal/live"
	"github.com/Nijaek/analytics-dashboard/internal/repository"
)

// shutdownFlushTimeout bounds the final flush once the run context is
// already canceled
const shutdownFlushTimeout = 10 * time.Second

// BatchWriterConfig configures the batch writer
type BatchWriterConfig struct {
	MaxBatchSize int
	FlushTimeout time.Duration
}

// BatchWriter accumulates envelopes, writes their events to the repository
// and fans successfully persisted events out to live subscribers
type BatchWriter struct {
	repository  repository.EventRepository
	broadcaster live.Broadcaster
	config      BatchWriterConfig
	log         *zap.Logger
}

// NewBatchWriter creates a new batch writer
func NewBatchWriter(repo repository.EventRepository, broadcaster live.Broadcaster, config BatchWriterConfig, log *zap.Logger) *BatchWriter {
	return &BatchWriter{
		repository:  repo,
		broadcaster: broadcaster,
		config:      config,
		log:         log,
	}
}

// Start begins processing envelopes, batching, and writing to the repository
func (w *BatchWriter) Start(ctx context.Context, in <-chan *Envelope) {
	ticker := time.NewTicker(w.config.FlushTimeout)
	defer ticker.Stop()

	batch := make([]*Envelope, 0, w.config.MaxBatchSize)
	batchEvents := 0

	flush := func(flushCtx context.Context) {
		w.processBatch(flushCtx, batch)
		batch = make([]*Envelope, 0, w.config.MaxBatchSize)
		batchEvents = 0
	}

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Batch writer shutting down")
			if len(batch) > 0 {
				w.log.Info("Flushing final batch", zap.Int("event_count", batchEvents))
				// The run context is canceled; give the final write its
				// own deadline so the batch isn't lost.
				flushCtx, cancel := context.WithTimeout(context.Background(), shutdownFlushTimeout)
				flush(flushCtx)
				cancel()
			}
			return

		case envelope, ok := <-in:
			if !ok {
				w.log.Info("Batch writer input channel closed")
				if len(batch) > 0 {
					w.log.Info("Flushing final batch", zap.Int("event_count", batchEvents))
					flushCtx, cancel := context.WithTimeout(context.Background(), shutdownFlushTimeout)
					flush(flushCtx)
					cancel()
				}
				return
			}

			batch = append(batch, envelope)
			batchEvents += len(envelope.Events)

			if batchEvents >= w.config.MaxBatchSize {
				w.log.Info("Batch size threshold reached", zap.Int("event_count", batchEvents))
				flush(ctx)
				ticker.Reset(w.config.FlushTimeout)
			}

		case <-ticker.C:
			if len(batch) > 0 {
				w.log.Info("Batch timeout reached", zap.Int("event_count", batchEvents))
				flush(ctx)
			}
		}
	}
}

// processBatch inserts all events from the batch, then acks and broadcasts.
// Events reach live subscribers only after they are durably written.
func (w *BatchWriter) processBatch(ctx context.Context, envelopes []*Envelope) {
	if len(envelopes) == 0 {
		return
	}

	var events []*domain.Event
	for _, env := range envelopes {
		events = append(events, env.Events...)
	}

	insertedCount, err := w.repository.InsertBatch(ctx, events)
	if err != nil {
		w.log.Error("Failed to insert batch",
			zap.Error(err),
			zap.Int("event_count", len(events)))
		w.nackAll(ctx, envelopes)
		return
	}

	if insertedCount != len(events) {
		w.log.Warn("Partial insert success",
			zap.Int("inserted", insertedCount),
			zap.Int("expected", len(events)))
		w.nackAll(ctx, envelopes)
		return
	}

	w.log.Info("Successfully inserted events", zap.Int("count", insertedCount))
	w.ackAll(ctx, envelopes)
	w.broadcastAll(ctx, envelopes)
}

// ackAll acknowledges all envelopes
func (w *BatchWriter) ackAll(ctx context.Context, envelopes []*Envelope) {
	for _, env := range envelopes {
		if err := env.Ack(ctx); err != nil {
			w.log.Error("Failed to ack envelope", zap.Error(err))
		}
	}
}

// nackAll negatively acknowledges all envelopes, leaving them for redelivery
func (w *BatchWriter) nackAll(ctx context.Context, envelopes []*Envelope) {
	for _, env := range envelopes {
		if err := env.Nack(ctx); err != nil {
			w.log.Error("Failed to nack envelope", zap.Error(err))
		}
	}
}

// broadcastAll publishes each persisted event to its project's live channel.
// Publish failures are logged only; persistence already succeeded.
func (w *BatchWriter) broadcastAll(ctx context.Context, envelopes []*Envelope) {
	for _, env := range envelopes {
		for _, event := range env.Events {
			raw, err := json.Marshal(event)
			if err != nil {
				w.log.Error("Failed to marshal event for broadcast",
					zap.String("event_id", event.ID),
					zap.Error(err))
				continue
			}
			if err := w.broadcaster.Publish(ctx, env.ProjectID, raw); err != nil {
				w.log.Warn("Failed to publish live event",
					zap.Int64("project_id", env.ProjectID),
					zap.Error(err))
			}
		}
	}
}
