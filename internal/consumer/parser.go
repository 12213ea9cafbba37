package consumer

import (
	"encoding/json"
	"fmt"

	"github.com/Nijaek/analytics-dashboard/internal/domain"
)

// JSONBatchParser implements BatchParser for JSON-encoded event batches
type JSONBatchParser struct{}

// NewJSONBatchParser creates a new JSON batch parser
func NewJSONBatchParser() *JSONBatchParser {
	return &JSONBatchParser{}
}

// Parse parses a JSON payload into a batch of events
func (p *JSONBatchParser) Parse(data []byte) ([]*domain.Event, error) {
	var events []*domain.Event
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event batch: %w", err)
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("event batch is empty")
	}

	for i, event := range events {
		if event == nil {
			return nil, fmt.Errorf("event %d is null", i)
		}
		if event.ID == "" {
			return nil, fmt.Errorf("event %d has no id", i)
		}
		if event.EventName == "" {
			return nil, fmt.Errorf("event %d has no name", i)
		}
		if event.Properties == "" {
			event.Properties = "{}"
		}
	}

	return events, nil
}
