package models

import "time"

// WateringRun is the single in-flight watering cycle.
type WateringRun struct {
	ID         string        `json:"id"`
	StartEpoch int64         `json:"start_epoch"`
	Duration   time.Duration `json:"duration"`
	Active     bool          `json:"active"`
}
