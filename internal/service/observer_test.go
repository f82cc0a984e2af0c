package service

import (
	"errors"
	"testing"
	"time"

	"water_timer/internal/models"
	"water_timer/internal/valve"
)

func TestRunObserver_RecordsStartAndEnd(t *testing.T) {
	pub := &recordingPublisher{}
	ended := 0
	o := NewRunObserver(pub, nil, func() { ended++ })
	h := valve.RunHandle{ID: "run-1", StartedAt: baseTime, Duration: 5 * time.Second}

	o.RunStarted(h)
	o.RunEnded(h, valve.ReasonExpired, baseTime.Add(5*time.Second))

	starts := pub.ofType(models.EventRunStart)
	if len(starts) != 1 || starts[0].Metadata.(map[string]any)["duration_ms"] != int64(5000) {
		t.Fatalf("start events=%+v", starts)
	}
	ends := pub.ofType(models.EventRunEnd)
	if len(ends) != 1 {
		t.Fatalf("end events=%d", len(ends))
	}
	md := ends[0].Metadata.(map[string]any)
	if md["reason"] != valve.ReasonExpired || md["open_ms"] != int64(5000) {
		t.Fatalf("end metadata=%v", md)
	}
	if ended != 1 {
		t.Fatalf("onEnd called %d times", ended)
	}
}

func TestTimeSyncRecorder(t *testing.T) {
	pub := &recordingPublisher{}
	rec := TimeSyncRecorder(pub, nil)

	rec(true, 1500*time.Millisecond, nil)
	rec(false, 1500*time.Millisecond, errors.New("timeout"))

	evs := pub.ofType(models.EventTimeSync)
	if len(evs) != 2 {
		t.Fatalf("events=%d", len(evs))
	}
	if md := evs[0].Metadata.(map[string]any); md["ok"] != true || md["offset_ms"] != int64(1500) {
		t.Fatalf("success metadata=%v", md)
	}
	if md := evs[1].Metadata.(map[string]any); md["ok"] != false || md["error"] != "timeout" {
		t.Fatalf("failure metadata=%v", md)
	}
}
