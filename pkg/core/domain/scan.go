package domain

import "time"

// TokenHeader carries the shared secret between this service, its telemetry
// sink and its analytics endpoint.
const TokenHeader = "X-QR-Token"

// ScanEvent describes one redirect request. It is built per request,
// handed to the telemetry sink once and never retried.
type ScanEvent struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"ts"`
	Slug        string    `json:"slug"`
	Destination string    `json:"dest"` // pre-UTM destination
	IPTruncated string    `json:"ip_truncated"`
	UserAgent   string    `json:"ua"`
	Referer     string    `json:"ref"`
	Country     string    `json:"country"`
	Region      string    `json:"region"`
	City        string    `json:"city"`
	Method      string    `json:"method,omitempty"`
}

// Client is the request metadata the dispatcher copies into a ScanEvent.
// IP is already truncated.
type Client struct {
	IPTruncated string
	UserAgent   string
	Referer     string
	Country     string
	Region      string
	City        string
	Method      string
}
