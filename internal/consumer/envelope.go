package consumer

import (
	"context"

	"github.com/Nijaek/analytics-dashboard/internal/domain"
)

// Envelope wraps one queue message's worth of events with acknowledgment
// callbacks
type Envelope struct {
	ProjectID int64
	Events    []*domain.Event
	ack       func(context.Context) error
	nack      func(context.Context) error
}

// NewEnvelope creates a new message envelope
func NewEnvelope(projectID int64, events []*domain.Event, ack, nack func(context.Context) error) *Envelope {
	return &Envelope{
		ProjectID: projectID,
		Events:    events,
		ack:       ack,
		nack:      nack,
	}
}

// Ack acknowledges successful processing
func (e *Envelope) Ack(ctx context.Context) error {
	if e.ack != nil {
		return e.ack(ctx)
	}
	return nil
}

// Nack negatively acknowledges processing
func (e *Envelope) Nack(ctx context.Context) error {
	if e.nack != nil {
		return e.nack(ctx)
	}
	return nil
}
