package models

import "time"

// Event types recorded in the watering log.
const (
	EventRunStart     = "RUN_START"
	EventRunEnd       = "RUN_END"
	EventCatchUp      = "CATCH_UP"
	EventConfigUpdate = "CONFIG_UPDATE"
	EventTimeSync     = "TIME_SYNC"
	EventError        = "ERROR"
)

// WateringEvent is a single log entry.
type WateringEvent struct {
	EventID     string    `json:"event_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Type        string    `json:"type"`        // RUN_START | RUN_END | CATCH_UP | CONFIG_UPDATE | TIME_SYNC | ERROR
	Description string    `json:"description"` // human-readable
	Metadata    any       `json:"metadata,omitempty"`
}
