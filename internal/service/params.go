package service

import (
	"time"

	"water_timer/internal/models"
)

const maxIntervalDays = 3650

// ConfigUpdate is a requested schedule change.
type ConfigUpdate struct {
	IntervalDays  int
	IntervalHours int
	DurationMS    int64
}

// Validate checks every field; nothing is applied when it fails.
func (u ConfigUpdate) Validate() error {
	switch {
	case u.IntervalDays < 0:
		return &ValidationError{Field: "interval.days", Reason: "must be >= 0"}
	case u.IntervalDays > maxIntervalDays:
		return &ValidationError{Field: "interval.days", Reason: "is too large"}
	case u.IntervalHours < 0:
		return &ValidationError{Field: "interval.hours", Reason: "must be >= 0"}
	case u.IntervalHours > maxIntervalDays*24:
		return &ValidationError{Field: "interval.hours", Reason: "is too large"}
	case u.IntervalDays == 0 && u.IntervalHours == 0:
		return &ValidationError{Field: "interval", Reason: "must be longer than zero"}
	case u.DurationMS <= 0:
		return &ValidationError{Field: "duration", Reason: "must be > 0"}
	case u.DurationMS > models.MaxDurationMS:
		return &ValidationError{Field: "duration", Reason: "must be at most 24h"}
	}
	return nil
}

func (u ConfigUpdate) schedule(now time.Time) models.WateringSchedule {
	s := models.WateringSchedule{
		IntervalDays:  u.IntervalDays,
		IntervalHours: u.IntervalHours,
		DurationMS:    u.DurationMS,
	}
	s.NextTriggerEpoch = now.Unix() + s.IntervalSeconds()
	return s
}

// LogFilter selects event log entries.
type LogFilter struct {
	From  time.Time // inclusive; zero means no lower bound
	To    time.Time // inclusive; zero means no upper bound
	Type  string    // "", "RUN_START", "RUN_END", "CATCH_UP", "CONFIG_UPDATE", "TIME_SYNC", "ERROR"
	Limit int       // keep only the newest Limit events; 0 means all
}
