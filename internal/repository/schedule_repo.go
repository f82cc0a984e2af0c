package repository

import (
	"context"
	"fmt"
	"strconv"

	"water_timer/internal/models"
)

// Persisted schedule keys.
const (
	KeyIntervalDays     = "interval_days"
	KeyIntervalHours    = "interval_hours"
	KeyDurationMS       = "watering_duration_ms"
	KeyNextTriggerEpoch = "next_trigger_epoch"
)

// LoadedSchedule is what the store held at boot. A Has* flag is false when
// the key was never written or its value does not parse.
type LoadedSchedule struct {
	Schedule models.WateringSchedule

	HasIntervalDays  bool
	HasIntervalHours bool
	HasDuration      bool
	HasNextTrigger   bool
}

// ScheduleRepo maps a WateringSchedule onto the four persisted keys.
type ScheduleRepo struct {
	kv KeyValueStore
}

func NewScheduleRepo(kv KeyValueStore) *ScheduleRepo { return &ScheduleRepo{kv: kv} }

// Load reads every schedule key. Only a store failure is an error.
func (r *ScheduleRepo) Load(ctx context.Context) (LoadedSchedule, error) {
	var out LoadedSchedule

	days, ok, err := r.getInt(ctx, KeyIntervalDays)
	if err != nil {
		return LoadedSchedule{}, err
	}
	out.Schedule.IntervalDays, out.HasIntervalDays = int(days), ok

	hours, ok, err := r.getInt(ctx, KeyIntervalHours)
	if err != nil {
		return LoadedSchedule{}, err
	}
	out.Schedule.IntervalHours, out.HasIntervalHours = int(hours), ok

	out.Schedule.DurationMS, out.HasDuration, err = r.getInt(ctx, KeyDurationMS)
	if err != nil {
		return LoadedSchedule{}, err
	}

	out.Schedule.NextTriggerEpoch, out.HasNextTrigger, err = r.getInt(ctx, KeyNextTriggerEpoch)
	if err != nil {
		return LoadedSchedule{}, err
	}
	return out, nil
}

func (r *ScheduleRepo) getInt(ctx context.Context, key string) (int64, bool, error) {
	raw, ok, err := r.kv.Get(ctx, key)
	if err != nil {
		return 0, false, fmt.Errorf("load %s: %w", key, err)
	}
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, nil
	}
	return n, true, nil
}

// Save writes all four keys in one transaction.
func (r *ScheduleRepo) Save(ctx context.Context, s models.WateringSchedule) error {
	tx, err := r.kv.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin schedule write: %w", err)
	}
	tx.Set(KeyIntervalDays, strconv.Itoa(s.IntervalDays))
	tx.Set(KeyIntervalHours, strconv.Itoa(s.IntervalHours))
	tx.Set(KeyDurationMS, strconv.FormatInt(s.DurationMS, 10))
	tx.Set(KeyNextTriggerEpoch, strconv.FormatInt(s.NextTriggerEpoch, 10))
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schedule: %w", err)
	}
	return nil
}

// SaveNextTrigger writes next_trigger_epoch alone.
func (r *ScheduleRepo) SaveNextTrigger(ctx context.Context, epoch int64) error {
	tx, err := r.kv.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin next trigger write: %w", err)
	}
	tx.Set(KeyNextTriggerEpoch, strconv.FormatInt(epoch, 10))
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit next trigger: %w", err)
	}
	return nil
}
