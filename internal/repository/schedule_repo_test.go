package repository

import (
	"context"
	"errors"
	"testing"

	"water_timer/internal/models"
)

func TestScheduleRepo_SaveLoad(t *testing.T) {
	kv := NewSettingsMemory()
	repo := NewScheduleRepo(kv)

	want := models.WateringSchedule{IntervalDays: 1, IntervalHours: 6, DurationMS: 5000, NextTriggerEpoch: 1700000000}
	if err := repo.Save(context.Background(), want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := repo.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Schedule != want {
		t.Fatalf("got %+v, want %+v", got.Schedule, want)
	}
	if !got.HasIntervalDays || !got.HasIntervalHours || !got.HasDuration || !got.HasNextTrigger {
		t.Fatalf("expected every key present: %+v", got)
	}

	snap := kv.Snapshot()
	if snap[KeyDurationMS] != "5000" || snap[KeyNextTriggerEpoch] != "1700000000" {
		t.Fatalf("unexpected persisted values: %v", snap)
	}
}

func TestScheduleRepo_LoadMissingAndMalformed(t *testing.T) {
	kv := NewSettingsMemory()
	tx, _ := kv.Begin(context.Background())
	tx.Set(KeyIntervalDays, "two")
	tx.Set(KeyDurationMS, "5000")
	_ = tx.Commit()

	got, err := NewScheduleRepo(kv).Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.HasIntervalDays {
		t.Fatalf("malformed interval_days reported present")
	}
	if got.HasNextTrigger || got.HasIntervalHours {
		t.Fatalf("missing keys reported present: %+v", got)
	}
	if !got.HasDuration || got.Schedule.DurationMS != 5000 {
		t.Fatalf("duration not loaded: %+v", got)
	}
}

func TestScheduleRepo_SaveNextTriggerOnly(t *testing.T) {
	kv := NewSettingsMemory()
	repo := NewScheduleRepo(kv)
	if err := repo.SaveNextTrigger(context.Background(), 42); err != nil {
		t.Fatalf("SaveNextTrigger: %v", err)
	}
	snap := kv.Snapshot()
	if len(snap) != 1 || snap[KeyNextTriggerEpoch] != "42" {
		t.Fatalf("unexpected keys: %v", snap)
	}
}

func TestScheduleRepo_FailedSaveLeavesPrevious(t *testing.T) {
	kv := NewSettingsMemory()
	repo := NewScheduleRepo(kv)
	old := models.WateringSchedule{IntervalDays: 1, DurationMS: 5000, NextTriggerEpoch: 100}
	if err := repo.Save(context.Background(), old); err != nil {
		t.Fatalf("Save: %v", err)
	}

	kv.SetFailCommit(errors.New("write failed"))
	if err := repo.Save(context.Background(), models.WateringSchedule{IntervalHours: 2, DurationMS: 1, NextTriggerEpoch: 999}); err == nil {
		t.Fatalf("expected error")
	}
	kv.SetFailCommit(nil)

	got, _ := repo.Load(context.Background())
	if got.Schedule != old {
		t.Fatalf("schedule changed after failed save: %+v", got.Schedule)
	}
}

type failingKV struct{ err error }

func (f failingKV) Get(context.Context, string) (string, bool, error) { return "", false, f.err }
func (f failingKV) Begin(context.Context) (KeyValueTx, error)         { return nil, f.err }

func TestScheduleRepo_StoreErrors(t *testing.T) {
	repo := NewScheduleRepo(failingKV{err: errors.New("nvs closed")})
	if _, err := repo.Load(context.Background()); err == nil {
		t.Fatalf("expected load error")
	}
	if err := repo.Save(context.Background(), models.WateringSchedule{}); err == nil {
		t.Fatalf("expected save error")
	}
	if err := repo.SaveNextTrigger(context.Background(), 1); err == nil {
		t.Fatalf("expected save error")
	}
}
