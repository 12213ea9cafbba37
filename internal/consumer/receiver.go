package consumer

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Nijaek/analytics-dashboard/internal/queue"
)

// ReceiverConfig configures the stream receiver
type ReceiverConfig struct {
	MaxMessages int64
	BufferSize  int
}

// Receiver handles claiming messages from the stream
type Receiver struct {
	consumer queue.Consumer
	config   ReceiverConfig
	log      *zap.Logger
}

// NewReceiver creates a new stream receiver
func NewReceiver(consumer queue.Consumer, config ReceiverConfig, log *zap.Logger) *Receiver {
	return &Receiver{
		consumer: consumer,
		config:   config,
		log:      log,
	}
}

// Start begins claiming messages and sends them to the output channel
func (r *Receiver) Start(ctx context.Context, out chan<- queue.Message) {
	defer close(out)

	for {
		select {
		case <-ctx.Done():
			r.log.Info("Receiver shutting down")
			return
		default:
			messages, err := r.consumer.Claim(ctx, r.config.MaxMessages)
			if err != nil {
				if ctx.Err() != nil {
					r.log.Info("Receiver shutting down")
					return
				}
				r.log.Error("Error claiming messages from stream", zap.Error(err))
				time.Sleep(1 * time.Second)
				continue
			}

			if len(messages) == 0 {
				continue
			}

			r.log.Debug("Claimed messages from stream", zap.Int("message_count", len(messages)))

			// Send messages to the next stage
			for _, msg := range messages {
				select {
				case <-ctx.Done():
					r.log.Info("Receiver shutting down while sending messages")
					return
				case out <- msg:
					// Message sent to next stage
				}
			}
		}
	}
}
