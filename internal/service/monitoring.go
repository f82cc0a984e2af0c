package service

import (
	"context"
	"sync/atomic"
	"time"

	"water_timer/internal/metrics"
	"water_timer/internal/models"
	"water_timer/internal/timesync"
	"water_timer/internal/valve"
)

const (
	minMonitorCadence = 500 * time.Millisecond
	maxMonitorCadence = time.Second
)

type SnapshotSource interface {
	Snapshot() models.ScheduleSnapshot
}

type ValveState interface {
	Current() (valve.RunHandle, bool)
}

type SyncState interface {
	Synced() (bool, time.Time)
}

// StatusMonitor periodically computes time_left from a schedule snapshot.
// It never mutates or persists anything.
type StatusMonitor struct {
	sched   SnapshotSource
	valve   ValveState
	sync    SyncState
	clock   timesync.Clock
	metrics *metrics.Metrics

	status atomic.Pointer[models.Status]
}

// NewStatusMonitor builds a monitor. sync may be nil when time sync is disabled.
func NewStatusMonitor(sched SnapshotSource, v ValveState, sync SyncState, clock timesync.Clock, m *metrics.Metrics) *StatusMonitor {
	return &StatusMonitor{sched: sched, valve: v, sync: sync, clock: clock, metrics: m}
}

// Compute derives the status at now.
func (m *StatusMonitor) Compute(now time.Time) models.Status {
	snap := m.sched.Snapshot()
	s := snap.Schedule

	left := s.NextTriggerEpoch - now.Unix()
	if left < 0 {
		left = 0
	}
	st := models.Status{
		TimeLeftSeconds:  left,
		IntervalSeconds:  s.IntervalSeconds(),
		IntervalDays:     s.IntervalDays,
		IntervalHours:    s.IntervalHours,
		DurationMS:       s.DurationMS,
		NextTriggerEpoch: s.NextTriggerEpoch,
		AdvancePending:   snap.AdvancePending,
		ComputedAt:       now.UTC(),
	}
	if h, ok := m.valve.Current(); ok {
		st.ValveOpen = true
		started := h.StartedAt.UTC()
		st.RunStartedAt = &started
	}
	if m.sync != nil {
		ok, at := m.sync.Synced()
		st.ClockSynced = ok
		if !at.IsZero() {
			st.LastSyncAt = &at
		}
	}
	return st
}

// Refresh computes and stores the current status.
func (m *StatusMonitor) Refresh() models.Status {
	st := m.Compute(m.clock.Now())
	m.status.Store(&st)
	m.metrics.SetTimeLeft(st.TimeLeftSeconds)
	return st
}

// Status returns the last computed status, computing one if none exists yet.
func (m *StatusMonitor) Status() models.Status {
	if p := m.status.Load(); p != nil {
		return *p
	}
	return m.Refresh()
}

// Run refreshes at cadence, clamped to [0.5s, 1s], until ctx is done.
func (m *StatusMonitor) Run(ctx context.Context, cadence time.Duration) {
	cadence = min(max(cadence, minMonitorCadence), maxMonitorCadence)

	m.Refresh()
	t := time.NewTicker(cadence)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.Refresh()
		}
	}
}
