package dto

// EventIn is a single raw event inside an ingest batch. Per-event validation
// happens in the ingest service so one bad event never rejects the batch.
type EventIn struct {
	Event      string                 `json:"event" example:"page_view"`
	DistinctID string                 `json:"distinct_id" example:"user_123"`
	Properties map[string]interface{} `json:"properties"`
	SessionID  string                 `json:"session_id" example:"sess_9f2c"`
	PageURL    string                 `json:"page_url" example:"https://example.com/pricing"`
	Referrer   string                 `json:"referrer" example:"https://news.ycombinator.com"`
	OccurredAt string                 `json:"occurred_at" example:"2026-08-29T14:03:11Z"`
}

// IngestRequest represents a batched event ingest request
type IngestRequest struct {
	Events []EventIn `json:"events" binding:"required,min=1,max=1000"`
}

// TicketRequest represents a live-ticket issuance request
type TicketRequest struct {
	ProjectID int64 `json:"project_id" binding:"required" example:"1"`
}
