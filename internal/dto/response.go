package dto

import "time"

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error" example:"validation_error"`
	Message string `json:"message,omitempty" example:"event name is required"`
}

// IngestResponse represents a successful batch ingest response
type IngestResponse struct {
	Accepted int      `json:"accepted" example:"3"`
	Rejected int      `json:"rejected" example:"0"`
	Errors   []string `json:"errors,omitempty" example:"event 2: event name is required"`
}

// TicketResponse represents an issued single-use live ticket
type TicketResponse struct {
	Ticket    string `json:"ticket" example:"8b5df0f3-6f1e-4b0a-9c58-1d2f0a2f7c11"`
	ExpiresIn int    `json:"expires_in" example:"30"`
}

// OverviewResponse summarizes a project over a time range
type OverviewResponse struct {
	TotalEvents    uint64    `json:"total_events" example:"1500"`
	UniqueSessions uint64    `json:"unique_sessions" example:"420"`
	UniqueUsers    uint64    `json:"unique_users" example:"310"`
	TopEvent       string    `json:"top_event,omitempty" example:"page_view"`
	PeriodStart    time.Time `json:"period_start"`
	PeriodEnd      time.Time `json:"period_end"`
}

// TimeseriesPoint is a single bucket in a timeseries
type TimeseriesPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Count     uint64    `json:"count" example:"42"`
}

// TimeseriesResponse represents bucketed event counts over a range
type TimeseriesResponse struct {
	Data        []TimeseriesPoint `json:"data"`
	Granularity string            `json:"granularity" example:"hourly"`
}

// TopEvent is one ranked entry in the top-events listing
type TopEvent struct {
	EventName      string `json:"event_name" example:"page_view"`
	Count          uint64 `json:"count" example:"900"`
	UniqueSessions uint64 `json:"unique_sessions" example:"210"`
	UniqueUsers    uint64 `json:"unique_users" example:"180"`
}

// TopEventsResponse represents the ranked event-name listing
type TopEventsResponse struct {
	Data []TopEvent `json:"data"`
}

// SessionSummary aggregates one session's activity
type SessionSummary struct {
	SessionID  string    `json:"session_id" example:"sess_9f2c"`
	EventCount uint64    `json:"event_count" example:"12"`
	FirstSeen  time.Time `json:"first_seen"`
	LastSeen   time.Time `json:"last_seen"`
	DistinctID string    `json:"distinct_id,omitempty" example:"user_123"`
}

// SessionsResponse represents the sessions listing
type SessionsResponse struct {
	Data  []SessionSummary `json:"data"`
	Total uint64           `json:"total" example:"87"`
}

// UserSummary aggregates one identified user's activity
type UserSummary struct {
	DistinctID   string    `json:"distinct_id" example:"user_123"`
	EventCount   uint64    `json:"event_count" example:"31"`
	SessionCount uint64    `json:"session_count" example:"4"`
	FirstSeen    time.Time `json:"first_seen"`
	LastSeen     time.Time `json:"last_seen"`
}

// UsersResponse represents the identified-users listing
type UsersResponse struct {
	Data  []UserSummary `json:"data"`
	Total uint64        `json:"total" example:"44"`
}
