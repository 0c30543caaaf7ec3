package models

import "time"

// MCPSession is soft state for a stdio/HTTP/SSE MCP client: a session id,
// last-activity timestamp, and the last delivered event id for SSE replay.
type MCPSession struct {
	ID               string    `json:"id"`
	CreatedAt        time.Time `json:"createdAt"`
	LastActivityAt   time.Time `json:"lastActivityAt"`
	LastDeliveredEventID uint64 `json:"lastDeliveredEventId"`
}

func (s *MCPSession) IsExpired(idleTimeout time.Duration, now time.Time) bool {
	return now.Sub(s.LastActivityAt) > idleTimeout
}

// RateCounter is a per-IP sliding-window counter for the rate limiter.
type RateCounter struct {
	IP           string    `json:"ip"`
	MinuteCount  int       `json:"minuteCount"`
	MinuteResetAt time.Time `json:"minuteResetAt"`
	HourCount    int       `json:"hourCount"`
	HourResetAt  time.Time `json:"hourResetAt"`
}
