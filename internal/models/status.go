package models

import "time"

// Status is what the status endpoints report.
type Status struct {
	TimeLeftSeconds  int64      `json:"time_left"`
	IntervalSeconds  int64      `json:"interval_seconds"`
	IntervalDays     int        `json:"interval_days"`
	IntervalHours    int        `json:"interval_hours"`
	DurationMS       int64      `json:"duration_ms"`
	NextTriggerEpoch int64      `json:"next_trigger_epoch"`
	ValveOpen        bool       `json:"valve_open"`
	RunStartedAt     *time.Time `json:"run_started_at,omitempty"`
	AdvancePending   bool       `json:"advance_pending"`
	ClockSynced      bool       `json:"clock_synced"`
	LastSyncAt       *time.Time `json:"last_sync_at,omitempty"`
	ComputedAt       time.Time  `json:"computed_at"`
}
