package consumer

import (
	"context"

	"go.uber.org/zap"

	"github.com/Nijaek/analytics-dashboard/internal/queue"
)

// ParserStage handles parsing queue messages into domain envelopes
type ParserStage struct {
	consumer queue.Consumer
	parser   BatchParser
	log      *zap.Logger
}

// NewParserStage creates a new parser stage
func NewParserStage(consumer queue.Consumer, parser BatchParser, log *zap.Logger) *ParserStage {
	return &ParserStage{
		consumer: consumer,
		parser:   parser,
		log:      log,
	}
}

// Start begins parsing messages and outputs envelopes
func (p *ParserStage) Start(ctx context.Context, in <-chan queue.Message, out chan<- *Envelope) {
	defer close(out)

	for {
		select {
		case <-ctx.Done():
			p.log.Info("Parser stage shutting down")
			return
		case msg, ok := <-in:
			if !ok {
				p.log.Info("Parser stage input channel closed")
				return
			}

			envelope := p.parseMessage(ctx, msg)
			if envelope == nil {
				continue
			}

			select {
			case <-ctx.Done():
				return
			case out <- envelope:
				// Envelope sent to next stage
			}
		}
	}
}

// parseMessage parses a single queue message into an envelope. Malformed
// messages are acknowledged so they don't redeliver forever.
func (p *ParserStage) parseMessage(ctx context.Context, msg queue.Message) *Envelope {
	events, err := p.parser.Parse(msg.Data)
	if err != nil {
		p.log.Warn("Failed to parse message",
			zap.String("message_id", msg.ID),
			zap.Error(err))
		if err := p.consumer.Ack(ctx, msg.ID); err != nil {
			p.log.Error("Failed to ack malformed message",
				zap.String("message_id", msg.ID),
				zap.Error(err))
		}
		return nil
	}

	ack := func(ctx context.Context) error {
		return p.consumer.Ack(ctx, msg.ID)
	}

	nack := func(ctx context.Context) error {
		// Unacknowledged messages redeliver once their idle time passes
		// the visibility timeout; nothing to do here.
		return nil
	}

	return NewEnvelope(msg.ProjectID, events, ack, nack)
}
