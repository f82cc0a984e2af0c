package main

import (
	"encoding/json"
	"time"

	"water_timer/internal/config"
	"water_timer/internal/repository"
	"water_timer/internal/repository/db"

	"github.com/spf13/cobra"
)

// storedSchedule is what the schedule command prints. Nil fields were never
// written or do not parse.
type storedSchedule struct {
	Store            string `json:"store"`
	IntervalDays     *int   `json:"interval_days"`
	IntervalHours    *int   `json:"interval_hours"`
	DurationMS       *int64 `json:"duration_ms"`
	NextTriggerEpoch *int64 `json:"next_trigger_epoch"`
	NextTrigger      string `json:"next_trigger,omitempty"`
	TimeLeftSeconds  *int64 `json:"time_left,omitempty"`
}

func newScheduleCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Print the persisted schedule and exit",
		Long:  `water_timer schedule [--config=<file>]`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			sqlDB, err := db.InitDB(cfg.DB.Path)
			if err != nil {
				return err
			}
			defer sqlDB.Close()

			kv, err := repository.OpenSettings(cfg.Store.Driver, cfg.Store.Path, sqlDB)
			if err != nil {
				return err
			}
			loaded, err := repository.NewScheduleRepo(kv).Load(cmd.Context())
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(describe(cfg.Store.Driver, loaded, time.Now()))
		},
	}
}

func describe(driver string, l repository.LoadedSchedule, now time.Time) storedSchedule {
	out := storedSchedule{Store: driver}
	s := l.Schedule
	if l.HasIntervalDays {
		out.IntervalDays = &s.IntervalDays
	}
	if l.HasIntervalHours {
		out.IntervalHours = &s.IntervalHours
	}
	if l.HasDuration {
		out.DurationMS = &s.DurationMS
	}
	if l.HasNextTrigger {
		out.NextTriggerEpoch = &s.NextTriggerEpoch
		out.NextTrigger = s.NextTrigger().Format(time.RFC3339)
		left := max(0, s.NextTriggerEpoch-now.Unix())
		out.TimeLeftSeconds = &left
	}
	return out
}
