package consumer

import (
	"github.com/Nijaek/analytics-dashboard/internal/domain"
)

// BatchParser defines the interface for parsing raw message payloads into
// event batches
type BatchParser interface {
	Parse(data []byte) ([]*domain.Event, error)
}
