package domain

import (
	"encoding/json"
	"time"
)

// Event types emitted by the client.
const (
	EventLogin           = "login"
	EventLogoutForced    = "logout_forced"
	EventLogoutVoluntary = "logout_voluntary"
	EventLogoutRestored  = "logout_restored"
	EventTokenInvalid    = "token_invalid"
	EventLockApplied     = "lock_applied"
	EventLockFailed      = "lock_failed"
	EventUnlock          = "unlock"
)

// SourceClient is the Source of events produced by the classlock client.
const SourceClient = "classlock"

// Event is a client telemetry event (optional user and device).
type Event struct {
	DeviceKey string          `json:"deviceKey,omitempty"`
	UserID    string          `json:"userId,omitempty"`
	EventType string          `json:"eventType"`
	Source    string          `json:"source,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// NewEvent returns an Event stamped with the current UTC time. metadata is JSON-encoded
// when non-nil; an unencodable value is dropped.
func NewEvent(eventType, userID, deviceKey string, metadata any) *Event {
	e := &Event{
		DeviceKey: deviceKey,
		UserID:    userID,
		EventType: eventType,
		Source:    SourceClient,
		CreatedAt: time.Now().UTC(),
	}
	if metadata != nil {
		if raw, err := json.Marshal(metadata); err == nil {
			e.Metadata = raw
		}
	}
	return e
}
