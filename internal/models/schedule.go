package models

import "time"

const (
	secondsPerDay  = 86400
	secondsPerHour = 3600
)

// MaxDurationMS caps a single run at one day.
const MaxDurationMS = int64(24 * time.Hour / time.Millisecond)

// WateringSchedule is the persisted schedule (one per device).
type WateringSchedule struct {
	IntervalDays     int   `json:"interval_days"`
	IntervalHours    int   `json:"interval_hours"`
	DurationMS       int64 `json:"duration_ms"`
	NextTriggerEpoch int64 `json:"next_trigger_epoch"` // seconds since epoch, UTC
}

// IntervalSeconds is the derived watering period.
func (s WateringSchedule) IntervalSeconds() int64 {
	return int64(s.IntervalDays)*secondsPerDay + int64(s.IntervalHours)*secondsPerHour
}

// Interval returns IntervalSeconds as a time.Duration.
func (s WateringSchedule) Interval() time.Duration {
	return time.Duration(s.IntervalSeconds()) * time.Second
}

// Duration returns DurationMS as a time.Duration.
func (s WateringSchedule) Duration() time.Duration {
	return time.Duration(s.DurationMS) * time.Millisecond
}

// NextTrigger returns the next trigger instant in UTC.
func (s WateringSchedule) NextTrigger() time.Time {
	return time.Unix(s.NextTriggerEpoch, 0).UTC()
}

// Valid reports whether the interval and duration are usable.
func (s WateringSchedule) Valid() bool {
	return s.IntervalDays >= 0 && s.IntervalHours >= 0 && s.IntervalSeconds() > 0 &&
		s.DurationMS > 0 && s.DurationMS <= MaxDurationMS
}

// ScheduleSnapshot is a consistent read-only view of the scheduler,
// published whole so readers never see half of an update.
type ScheduleSnapshot struct {
	Schedule       WateringSchedule `json:"schedule"`
	Run            *WateringRun     `json:"run,omitempty"`
	AdvancePending bool             `json:"advance_pending"`
	TakenAt        time.Time        `json:"taken_at"`
}
