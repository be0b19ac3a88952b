package domain

import "time"

// FeedStats is a point-in-time view of the ingestion path.
type FeedStats struct {
	Connected      bool          `json:"connected"`
	URL            string        `json:"url"`
	Accepted       uint64        `json:"accepted"`
	Rejected       uint64        `json:"rejected"`
	LastError      string        `json:"last_error,omitempty"`
	LastMessageAt  time.Time     `json:"last_message_at"`
	MessageLatency time.Duration `json:"message_latency_ns"`
	Reconnects     uint64        `json:"reconnects"`
}

// ServiceStatus summarises the running service.
type ServiceStatus struct {
	Mode          string    `json:"mode"`
	Venue         string    `json:"exchange"`
	Instrument    string    `json:"symbol"`
	UptimeSeconds int64     `json:"uptime_seconds"`
	BookVersion   uint64    `json:"book_version"`
	Estimates     uint64    `json:"estimates"`
	Feed          FeedStats `json:"feed"`
}

// RejectedFrame records a feed frame the normaliser refused.
type RejectedFrame struct {
	Error      string    `json:"error"`
	Raw        string    `json:"raw"`
	RejectedAt time.Time `json:"rejected_at"`
}
