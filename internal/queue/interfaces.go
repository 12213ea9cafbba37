package queue

import "context"

// Message is one claimed queue entry: a batch payload plus the receipt needed
// to acknowledge it. An unacked message becomes claimable again once it has
// been idle past the visibility timeout.
type Message struct {
	ID        string
	ProjectID int64
	Data      []byte
}

// Publisher defines the interface for appending event batches to the queue
type Publisher interface {
	EnqueueBatch(ctx context.Context, projectID int64, payload []byte) (string, error)
}

// Consumer defines the interface for claiming and acknowledging messages
// within a competing consumer group
type Consumer interface {
	Claim(ctx context.Context, max int64) ([]Message, error)
	Ack(ctx context.Context, ids ...string) error
}
