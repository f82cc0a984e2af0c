package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"water_timer/internal/models"
	"water_timer/internal/repository"
	"water_timer/internal/valve"
)

var baseTime = time.Date(2025, time.June, 1, 6, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{t: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// fakeActuator keeps a run active until finish is called.
type fakeActuator struct {
	mu       sync.Mutex
	active   bool
	starts   int
	stops    int
	startErr error
	stopErr  error
}

func (a *fakeActuator) Start(d time.Duration) (valve.RunHandle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.startErr != nil {
		return valve.RunHandle{}, a.startErr
	}
	if a.active {
		return valve.RunHandle{}, valve.ErrBusy
	}
	a.active = true
	a.starts++
	return valve.RunHandle{ID: fmt.Sprintf("run-%d", a.starts), StartedAt: baseTime, Duration: d}, nil
}

func (a *fakeActuator) Stop() (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.active {
		return false, nil
	}
	a.active = false
	a.stops++
	return true, a.stopErr
}

func (a *fakeActuator) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

func (a *fakeActuator) finish() {
	a.mu.Lock()
	a.active = false
	a.mu.Unlock()
}

func (a *fakeActuator) counts() (starts, stops int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.starts, a.stops
}

// hookStore records writes and runs beforeSave ahead of each full save.
type hookStore struct {
	repository.ScheduleStore

	mu         sync.Mutex
	loadErr    error
	beforeSave func()
	failNext   func(epoch int64) error // consulted before each SaveNextTrigger
	saves      int
	epochs     []int64
}

func (h *hookStore) Load(ctx context.Context) (repository.LoadedSchedule, error) {
	if h.loadErr != nil {
		return repository.LoadedSchedule{}, h.loadErr
	}
	return h.ScheduleStore.Load(ctx)
}

func (h *hookStore) Save(ctx context.Context, s models.WateringSchedule) error {
	if h.beforeSave != nil {
		h.beforeSave()
	}
	err := h.ScheduleStore.Save(ctx, s)
	if err == nil {
		h.mu.Lock()
		h.saves++
		h.mu.Unlock()
	}
	return err
}

func (h *hookStore) SaveNextTrigger(ctx context.Context, epoch int64) error {
	h.mu.Lock()
	failNext := h.failNext
	h.mu.Unlock()
	if failNext != nil {
		if err := failNext(epoch); err != nil {
			return err
		}
	}
	err := h.ScheduleStore.SaveNextTrigger(ctx, epoch)
	if err == nil {
		h.mu.Lock()
		h.epochs = append(h.epochs, epoch)
		h.mu.Unlock()
	}
	return err
}

func (h *hookStore) setFailNext(fn func(epoch int64) error) {
	h.mu.Lock()
	h.failNext = fn
	h.mu.Unlock()
}

func (h *hookStore) committedEpochs() []int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]int64(nil), h.epochs...)
}

// fakeOracle answers increments exactly unless failOn says otherwise.
type fakeOracle struct {
	mu     sync.Mutex
	calls  []int64 // from epochs
	failOn func(call int) error
	gate   chan struct{} // when set, Increment blocks until it is closed
	enter  chan struct{}
}

func (o *fakeOracle) Now(context.Context) (time.Time, error) { return baseTime, nil }

func (o *fakeOracle) Increment(ctx context.Context, from time.Time, span time.Duration) (time.Time, error) {
	o.mu.Lock()
	o.calls = append(o.calls, from.Unix())
	n := len(o.calls)
	failOn, gate, enter := o.failOn, o.gate, o.enter
	o.mu.Unlock()

	if enter != nil {
		select {
		case enter <- struct{}{}:
		default:
		}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return time.Time{}, ctx.Err()
		}
	}
	if failOn != nil {
		if err := failOn(n); err != nil {
			return time.Time{}, err
		}
	}
	return from.Add(span), nil
}

func (o *fakeOracle) fromEpochs() []int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]int64(nil), o.calls...)
}

var errOracleDown = errors.New("oracle down")

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.WateringEvent
}

func (p *recordingPublisher) Publish(ev models.WateringEvent) {
	p.mu.Lock()
	p.events = append(p.events, ev)
	p.mu.Unlock()
}

func (p *recordingPublisher) ofType(typ string) []models.WateringEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []models.WateringEvent
	for _, ev := range p.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

type schedulerFixture struct {
	kv     *repository.SettingsMemory
	store  *hookStore
	act    *fakeActuator
	clock  *fakeClock
	events *recordingPublisher
	sched  *Scheduler
}

// newFixture builds a scheduler over an in-memory store seeded with stored.
func newFixture(t *testing.T, cfg SchedulerConfig, stored *models.WateringSchedule, opts ...SchedulerOption) *schedulerFixture {
	t.Helper()
	f := &schedulerFixture{
		kv:     repository.NewSettingsMemory(),
		act:    &fakeActuator{},
		clock:  newFakeClock(baseTime),
		events: &recordingPublisher{},
	}
	repo := repository.NewScheduleRepo(f.kv)
	if stored != nil {
		if err := repo.Save(context.Background(), *stored); err != nil {
			t.Fatalf("seed store: %v", err)
		}
	}
	f.store = &hookStore{ScheduleStore: repo}
	opts = append([]SchedulerOption{WithEvents(f.events)}, opts...)
	f.sched = NewScheduler(f.store, f.act, f.clock, cfg, nil, opts...)
	return f
}

func (f *schedulerFixture) init(t *testing.T) models.WateringSchedule {
	t.Helper()
	s, err := f.sched.Initialize(context.Background())
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return s
}

func hourly(next time.Time) *models.WateringSchedule {
	return &models.WateringSchedule{IntervalHours: 1, DurationMS: 2000, NextTriggerEpoch: next.Unix()}
}
