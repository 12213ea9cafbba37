package domain

import "time"

// Event is a single behavioral event as stored in ClickHouse. Immutable once
// the persister commits it; the gateway and queue only hold transient copies.
type Event struct {
	ID           string    `ch:"id" json:"id"`
	ProjectID    int64     `ch:"project_id" json:"project_id"`
	EventName    string    `ch:"event_name" json:"event"`
	DistinctID   string    `ch:"distinct_id" json:"distinct_id,omitempty"`
	Properties   string    `ch:"properties" json:"properties,omitempty"`
	SessionID    string    `ch:"session_id" json:"session_id,omitempty"`
	PageURL      string    `ch:"page_url" json:"page_url,omitempty"`
	Referrer     string    `ch:"referrer" json:"referrer,omitempty"`
	UserAgent    string    `ch:"user_agent" json:"user_agent,omitempty"`
	IdentityHash string    `ch:"identity_hash" json:"identity_hash,omitempty"`
	OccurredAt   time.Time `ch:"occurred_at" json:"occurred_at"`
	ReceivedAt   time.Time `ch:"received_at" json:"received_at"`
}

// HourlyRollup is one pre-aggregated row keyed by (project, event name, hour).
// Written only by the aggregator, recompute-and-replace.
type HourlyRollup struct {
	ProjectID      int64     `ch:"project_id" json:"project_id"`
	EventName      string    `ch:"event_name" json:"event_name"`
	Hour           time.Time `ch:"hour" json:"hour"`
	Count          uint64    `ch:"count" json:"count"`
	UniqueSessions uint64    `ch:"unique_sessions" json:"unique_sessions"`
	UniqueUsers    uint64    `ch:"unique_users" json:"unique_users"`
	ComputedAt     time.Time `ch:"computed_at" json:"-"`
}
