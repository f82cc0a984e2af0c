package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"water_timer/internal/valve"
)

func runController(t *testing.T, c *Controller) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, 10*time.Millisecond) }()
	return cancel, done
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestController_RunsDueTriggerAndClosesOnShutdown(t *testing.T) {
	f := newFixture(t, SchedulerConfig{}, hourly(baseTime))
	f.init(t)
	f.clock.Set(baseTime.Add(time.Second))

	cancel, done := runController(t, NewController(f.sched, nil, nil))
	waitFor(t, func() bool { s, _ := f.act.counts(); return s == 1 })
	waitFor(t, func() bool { return !f.sched.Pending() })
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("controller did not stop")
	}
	if _, stops := f.act.counts(); stops != 1 || f.act.Active() {
		t.Fatalf("valve left open on shutdown")
	}
	if next := f.sched.Snapshot().Schedule.NextTriggerEpoch; next != baseTime.Add(time.Hour).Unix() {
		t.Fatalf("next=%d", next)
	}
}

func TestController_StartFaultStopsLoop(t *testing.T) {
	f := newFixture(t, SchedulerConfig{}, hourly(baseTime))
	f.init(t)
	f.act.startErr = &valve.HardwareFaultError{Op: "open", Err: errors.New("no output")}

	cancel, done := runController(t, NewController(f.sched, nil, nil))
	defer cancel()

	select {
	case err := <-done:
		if !errors.Is(err, valve.ErrHardwareFault) {
			t.Fatalf("err=%v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("fault did not stop the controller")
	}
}

func TestController_ExpiryFaultStopsLoop(t *testing.T) {
	f := newFixture(t, SchedulerConfig{}, hourly(baseTime.Add(time.Hour)))
	f.init(t)
	faults := make(chan error, 1)

	cancel, done := runController(t, NewController(f.sched, faults, nil))
	defer cancel()
	faults <- &valve.HardwareFaultError{Op: "close", Err: errors.New("relay welded")}

	select {
	case err := <-done:
		if !errors.Is(err, valve.ErrHardwareFault) {
			t.Fatalf("err=%v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("fault did not stop the controller")
	}
}

func TestController_NudgeRetriesPendingAdvance(t *testing.T) {
	f := newFixture(t, SchedulerConfig{}, hourly(baseTime))
	f.init(t)
	f.clock.Set(baseTime.Add(time.Minute))
	f.kv.SetFailCommit(errors.New("disk full"))

	cancel, done := runController(t, NewController(f.sched, nil, nil))
	defer func() {
		cancel()
		<-done
	}()
	waitFor(t, func() bool { s, _ := f.act.counts(); return s == 1 })
	if !f.sched.Pending() {
		t.Fatalf("advance should be pending while the store fails")
	}

	f.kv.SetFailCommit(nil)
	f.sched.Nudge()
	waitFor(t, func() bool { return !f.sched.Pending() })
	if s, _ := f.act.counts(); s != 1 {
		t.Fatalf("retry restarted the valve: %d", s)
	}
}
