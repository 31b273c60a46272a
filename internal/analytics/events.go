// Package analytics holds the types shared by the dashboard's reporting core:
// event counts returned by the reporting API and the access events emitted
// for every served request.
package analytics

import "time"

// UnknownEventName replaces an event name the upstream row did not carry.
const UnknownEventName = "unknown_event"

// EventCount is one row of a report: how many times an event fired in the
// report window. Values are never mutated after a fetch produces them.
type EventCount struct {
	EventName string `json:"eventName"`
	Count     int64  `json:"count"`
}

// RealtimeCounts is the realtime report together with the window it covers
// after clamping.
type RealtimeCounts struct {
	WindowMinutes int          `json:"windowMinutes"`
	Events        []EventCount `json:"events"`
}

// ReportKind names one of the two reports served.
type ReportKind string

const (
	ReportAggregate ReportKind = "aggregate"
	ReportRealtime  ReportKind = "realtime"
)

// AccessEvent describes one served report request. It is published to Kafka
// when access-event collection is enabled.
type AccessEvent struct {
	Report        ReportKind `json:"report"`
	WindowMinutes int        `json:"window_minutes,omitempty"`
	Rows          int        `json:"rows"`
	CacheHit      bool       `json:"cache_hit"`
	LatencyMs     int64      `json:"latency_ms"`
	Outcome       string     `json:"outcome"`
	RequestID     string     `json:"request_id,omitempty"`
	Timestamp     time.Time  `json:"timestamp"`
}
