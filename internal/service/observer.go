package service

import (
	"time"

	"water_timer/internal/metrics"
	"water_timer/internal/models"
	"water_timer/internal/timesync"
	"water_timer/internal/valve"
)

// RunObserver turns actuator callbacks into events and metrics. It never
// touches the scheduler lock, so the actuator may call it from any path.
type RunObserver struct {
	events  EventPublisher
	metrics *metrics.Metrics
	onEnd   func()
}

var _ valve.Listener = (*RunObserver)(nil)

// NewRunObserver builds an observer; onEnd (may be nil) runs after every run ends.
func NewRunObserver(events EventPublisher, m *metrics.Metrics, onEnd func()) *RunObserver {
	if events == nil {
		events = nopPublisher{}
	}
	return &RunObserver{events: events, metrics: m, onEnd: onEnd}
}

func (o *RunObserver) RunStarted(h valve.RunHandle) {
	o.metrics.RunStarted()
	o.events.Publish(models.WateringEvent{
		OccurredAt:  h.StartedAt.UTC(),
		Type:        models.EventRunStart,
		Description: "valve opened",
		Metadata: map[string]any{
			"run_id":      h.ID,
			"duration_ms": h.Duration.Milliseconds(),
		},
	})
}

func (o *RunObserver) RunEnded(h valve.RunHandle, reason string, at time.Time) {
	o.metrics.RunEnded(reason)
	o.events.Publish(models.WateringEvent{
		OccurredAt:  at.UTC(),
		Type:        models.EventRunEnd,
		Description: "valve closed (" + reason + ")",
		Metadata: map[string]any{
			"run_id":  h.ID,
			"reason":  reason,
			"open_ms": at.Sub(h.StartedAt).Milliseconds(),
		},
	})
	if o.onEnd != nil {
		o.onEnd()
	}
}

// TimeSyncRecorder reports reconciler outcomes as TIME_SYNC events and the
// clock_synced gauge.
func TimeSyncRecorder(events EventPublisher, m *metrics.Metrics) timesync.SyncListener {
	if events == nil {
		events = nopPublisher{}
	}
	return func(ok bool, offset time.Duration, err error) {
		m.SetClockSynced(ok)
		ev := models.WateringEvent{
			Type:        models.EventTimeSync,
			Description: "clock synchronised",
			Metadata:    map[string]any{"ok": ok, "offset_ms": offset.Milliseconds()},
		}
		if !ok {
			ev.Description = "time sync failed, keeping local clock"
			if err != nil {
				ev.Metadata = map[string]any{"ok": false, "offset_ms": offset.Milliseconds(), "error": err.Error()}
			}
		}
		events.Publish(ev)
	}
}
