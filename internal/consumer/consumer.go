package consumer

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Nijaek/analytics-dashboard/internal/config"
	"github.com/Nijaek/analytics-dashboard/internal/live"
	"github.com/Nijaek/analytics-dashboard/internal/queue"
	"github.com/Nijaek/analytics-dashboard/internal/repository"
)

// Consumer orchestrates a pipeline of stages to process stream messages
type Consumer struct {
	receiver    *Receiver
	parser      *ParserStage
	batchWriter *BatchWriter
}

// NewConsumer creates a new consumer with a pipeline architecture
func NewConsumer(cfg *config.Config, queueConsumer queue.Consumer, repo repository.EventRepository, broadcaster live.Broadcaster, log *zap.Logger) *Consumer {
	receiver := NewReceiver(queueConsumer, ReceiverConfig{
		MaxMessages: cfg.Consumer.BatchSizeMax,
		BufferSize:  100,
	}, log)

	parser := NewParserStage(queueConsumer, NewJSONBatchParser(), log)

	batchWriter := NewBatchWriter(repo, broadcaster, BatchWriterConfig{
		MaxBatchSize: int(cfg.Consumer.BatchSizeMax),
		FlushTimeout: time.Duration(cfg.Consumer.BatchTimeoutSec) * time.Second,
	}, log)

	return &Consumer{
		receiver:    receiver,
		parser:      parser,
		batchWriter: batchWriter,
	}
}

// Start begins the consumer pipeline
func (c *Consumer) Start(ctx context.Context) error {
	messageChan := make(chan queue.Message, 100)
	envelopeChan := make(chan *Envelope, 100)

	var wg sync.WaitGroup

	// Start all pipeline stages
	wg.Add(3)

	// Stage 1: Claim messages from the stream
	go func() {
		defer wg.Done()
		c.receiver.Start(ctx, messageChan)
	}()

	// Stage 2: Parse messages into envelopes
	go func() {
		defer wg.Done()
		c.parser.Start(ctx, messageChan, envelopeChan)
	}()

	// Stage 3: Batch, persist and broadcast
	go func() {
		defer wg.Done()
		c.batchWriter.Start(ctx, envelopeChan)
	}()

	wg.Wait()
	return nil
}
