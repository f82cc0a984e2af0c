package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"water_timer/internal/logger"
	"water_timer/internal/metrics"
	"water_timer/internal/models"
	"water_timer/internal/repository"
	"water_timer/internal/timesync"
	"water_timer/internal/valve"
)

// Action is what Tick decided.
type Action int

const (
	ActionWait Action = iota
	ActionNoOp
	ActionTriggerRun
)

func (a Action) String() string {
	switch a {
	case ActionWait:
		return "wait"
	case ActionNoOp:
		return "noop"
	case ActionTriggerRun:
		return "trigger_run"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Decision is the result of Tick. Wait is set for ActionWait only.
type Decision struct {
	Action Action
	Wait   time.Duration
}

// Actuator is the valve as the scheduler sees it.
type Actuator interface {
	Start(d time.Duration) (valve.RunHandle, error)
	Stop() (bool, error)
	Active() bool
}

// EventPublisher takes watering events without blocking.
type EventPublisher interface {
	Publish(ev models.WateringEvent)
}

type nopPublisher struct{}

func (nopPublisher) Publish(models.WateringEvent) {}

type SchedulerConfig struct {
	DefaultIntervalDays  int
	DefaultIntervalHours int
	DefaultDurationMS    int64

	Strategy          string // StrategyLocal | StrategyRemote
	MaxRemoteSteps    int
	MaxFailedCycles   int
	SyncBeforeCatchUp bool
}

func (c *SchedulerConfig) normalize() {
	d := models.WateringSchedule{
		IntervalDays:  c.DefaultIntervalDays,
		IntervalHours: c.DefaultIntervalHours,
		DurationMS:    c.DefaultDurationMS,
	}
	if d.IntervalDays < 0 || d.IntervalHours < 0 || d.IntervalSeconds() <= 0 {
		c.DefaultIntervalDays, c.DefaultIntervalHours = 1, 0
	}
	if c.DefaultDurationMS <= 0 || c.DefaultDurationMS > models.MaxDurationMS {
		c.DefaultDurationMS = 5000
	}
	if c.Strategy == "" {
		c.Strategy = StrategyLocal
	}
	if c.MaxRemoteSteps <= 0 {
		c.MaxRemoteSteps = 48
	}
	if c.MaxFailedCycles <= 0 {
		c.MaxFailedCycles = 5
	}
}

type SchedulerOption func(*Scheduler)

// WithOracle enables delegated increments when the strategy is remote.
func WithOracle(o timesync.Oracle) SchedulerOption { return func(s *Scheduler) { s.oracle = o } }

// WithPreSync runs fn before a remote catch-up when SyncBeforeCatchUp is set.
func WithPreSync(fn func(ctx context.Context) error) SchedulerOption {
	return func(s *Scheduler) { s.preSync = fn }
}

func WithEvents(p EventPublisher) SchedulerOption { return func(s *Scheduler) { s.events = p } }

func WithMetrics(m *metrics.Metrics) SchedulerOption { return func(s *Scheduler) { s.metrics = m } }

// Scheduler owns the watering schedule. All mutation happens under mu;
// readers use the published snapshot. Oracle round trips run outside mu so
// a slow network never delays a configuration update or a status read.
type Scheduler struct {
	repo    repository.ScheduleStore
	act     Actuator
	clock   timesync.Clock
	oracle  timesync.Oracle
	preSync func(ctx context.Context) error
	events  EventPublisher
	metrics *metrics.Metrics
	log     *logger.Logger
	cfg     SchedulerConfig

	advanceMu sync.Mutex // one advance at a time

	mu              sync.Mutex
	sched           models.WateringSchedule
	run             *models.WateringRun
	pending         bool   // an advance is owed for the last run
	gen             uint64 // bumped whenever the schedule is replaced
	failedCycles    int    // consecutive oracle failures
	advanceFailures int    // consecutive failed attempts for the owed advance

	snap   atomic.Pointer[models.ScheduleSnapshot]
	wake   chan struct{}
	faults chan error
}

func NewScheduler(repo repository.ScheduleStore, act Actuator, clock timesync.Clock, cfg SchedulerConfig, log *logger.Logger, opts ...SchedulerOption) *Scheduler {
	cfg.normalize()
	if log == nil {
		log = logger.Nop()
	}
	s := &Scheduler{
		repo:   repo,
		act:    act,
		clock:  clock,
		events: nopPublisher{},
		log:    log,
		cfg:    cfg,
		wake:   make(chan struct{}, 1),
		faults: make(chan error, 1),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Initialize loads the persisted schedule. Missing or invalid values fall
// back to the defaults; a missing next trigger is seeded as now + interval.
func (s *Scheduler) Initialize(ctx context.Context) (models.WateringSchedule, error) {
	loaded, err := s.repo.Load(ctx)
	if err != nil {
		return models.WateringSchedule{}, &PersistenceError{Op: "load", Err: err}
	}
	sched := s.resolve(loaded)

	if !loaded.HasNextTrigger {
		now := s.clock.Now()
		sched.NextTriggerEpoch = now.Unix() + sched.IntervalSeconds()

		var perr error
		if !loaded.HasIntervalDays && !loaded.HasIntervalHours && !loaded.HasDuration {
			perr = s.repo.Save(ctx, sched) // first boot
		} else {
			perr = s.repo.SaveNextTrigger(ctx, sched.NextTriggerEpoch)
		}
		if perr != nil {
			s.metrics.PersistenceError("seed")
			s.log.Warnw("schedule_seed_not_persisted", "next_trigger_epoch", sched.NextTriggerEpoch, "error", perr)
		}
	}

	s.mu.Lock()
	s.sched = sched
	s.run = nil
	s.pending = false
	s.gen++
	s.publishLocked()
	s.mu.Unlock()

	s.log.Infow("schedule_loaded",
		"interval_days", sched.IntervalDays,
		"interval_hours", sched.IntervalHours,
		"duration_ms", sched.DurationMS,
		"next_trigger", sched.NextTrigger().Format(time.RFC3339),
	)
	return sched, nil
}

func (s *Scheduler) resolve(l repository.LoadedSchedule) models.WateringSchedule {
	out := models.WateringSchedule{
		IntervalDays:  s.cfg.DefaultIntervalDays,
		IntervalHours: s.cfg.DefaultIntervalHours,
		DurationMS:    s.cfg.DefaultDurationMS,
	}
	if l.HasIntervalDays && l.Schedule.IntervalDays >= 0 {
		out.IntervalDays = l.Schedule.IntervalDays
	}
	if l.HasIntervalHours && l.Schedule.IntervalHours >= 0 {
		out.IntervalHours = l.Schedule.IntervalHours
	}
	if out.IntervalSeconds() <= 0 {
		s.log.Warnw("stored_interval_invalid", "interval_days", out.IntervalDays, "interval_hours", out.IntervalHours)
		out.IntervalDays, out.IntervalHours = s.cfg.DefaultIntervalDays, s.cfg.DefaultIntervalHours
	}
	if l.HasDuration {
		if d := l.Schedule.DurationMS; d > 0 && d <= models.MaxDurationMS {
			out.DurationMS = d
		} else {
			s.log.Warnw("stored_duration_invalid", "duration_ms", d)
		}
	}
	if l.HasNextTrigger {
		out.NextTriggerEpoch = l.Schedule.NextTriggerEpoch
	}
	return out
}

// Tick decides what to do at now. It never mutates the schedule.
func (s *Scheduler) Tick(now time.Time) Decision {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending || s.act.Active() {
		return Decision{Action: ActionNoOp}
	}
	next := s.sched.NextTrigger()
	if !now.Before(next) {
		return Decision{Action: ActionTriggerRun}
	}
	return Decision{Action: ActionWait, Wait: next.Sub(now)}
}

// Step runs one controller iteration: tick, start a due run and advance the
// schedule past now. Only a hardware fault is returned as an error.
func (s *Scheduler) Step(ctx context.Context) (Decision, error) {
	now := s.clock.Now()
	d := s.Tick(now)

	switch d.Action {
	case ActionTriggerRun:
		started, err := s.triggerRun(now)
		if err != nil {
			return d, err
		}
		if started {
			_, _ = s.OnRunComplete(ctx, s.clock.Now())
		}
	case ActionNoOp:
		if s.Pending() {
			_, _ = s.OnRunComplete(ctx, s.clock.Now())
		}
	}
	return d, nil
}

func (s *Scheduler) triggerRun(now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending || now.Unix() < s.sched.NextTriggerEpoch {
		return false, nil
	}
	d := s.sched.Duration()
	h, err := s.act.Start(d)
	if errors.Is(err, valve.ErrBusy) {
		return false, nil
	}
	if err != nil {
		s.log.Errorw("run_start_failed", "error", err)
		return false, err
	}

	s.run = &models.WateringRun{ID: h.ID, StartEpoch: h.StartedAt.Unix(), Duration: d, Active: true}
	s.pending = true
	s.advanceFailures = 0
	s.publishLocked()
	s.log.Infow("run_triggered", "run_id", h.ID, "due", s.sched.NextTrigger().Format(time.RFC3339))
	return true, nil
}

// OnRunComplete advances next_trigger_epoch past now, committing each step
// before the next one starts. Missed periods are absorbed without starting
// the valve again. On failure the committed epoch is kept and the advance
// stays owed for the next tick.
func (s *Scheduler) OnRunComplete(ctx context.Context, now time.Time) (AdvanceResult, error) {
	s.advanceMu.Lock()
	defer s.advanceMu.Unlock()

	s.mu.Lock()
	gen, from, interval := s.gen, s.sched.NextTriggerEpoch, s.sched.IntervalSeconds()
	remote := s.oracle != nil && s.cfg.Strategy == StrategyRemote && s.failedCycles < s.cfg.MaxFailedCycles
	s.mu.Unlock()

	res := AdvanceResult{From: from, To: from, Strategy: StrategyLocal}
	if remote {
		res.Strategy = StrategyRemote
	}
	target := now.Unix()
	if from > target {
		s.finishAdvance(gen, res)
		return res, nil
	}

	if remote && s.cfg.SyncBeforeCatchUp && s.preSync != nil {
		if err := s.preSync(ctx); err == nil {
			target = max(target, s.clock.Now().Unix())
		}
	}

	for from <= target {
		var next, inc int64
		viaOracle := remote && res.RemoteIncrements < int64(s.cfg.MaxRemoteSteps)
		if viaOracle {
			n, err := remoteStep(ctx, s.oracle, from, interval)
			if err != nil {
				return res, s.failAdvance(gen, res, err, true)
			}
			next, inc = n, 1
		} else {
			inc = localSteps(from, target, interval)
			next = from + inc*interval
		}

		if err := s.commitNext(ctx, gen, next); err != nil {
			if errors.Is(err, errSuperseded) {
				return res, nil
			}
			return res, s.failAdvance(gen, res, err, false)
		}
		if viaOracle {
			res.RemoteIncrements += inc
		} else {
			res.LocalIncrements += inc
		}
		from, res.To = next, next
	}

	s.finishAdvance(gen, res)
	return res, nil
}

func (s *Scheduler) commitNext(ctx context.Context, gen uint64, next int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen != gen {
		return errSuperseded
	}
	if err := s.repo.SaveNextTrigger(ctx, next); err != nil {
		s.metrics.PersistenceError("advance")
		return &PersistenceError{Op: "advance", Err: err}
	}
	s.sched.NextTriggerEpoch = next
	s.publishLocked()
	return nil
}

func (s *Scheduler) finishAdvance(gen uint64, res AdvanceResult) {
	s.mu.Lock()
	if s.gen == gen {
		s.pending = false
		s.failedCycles = 0
		s.advanceFailures = 0
		s.publishLocked()
	}
	s.mu.Unlock()

	s.metrics.CatchUp(StrategyLocal, res.LocalIncrements)
	s.metrics.CatchUp(StrategyRemote, res.RemoteIncrements)
	if res.Increments() == 0 {
		return
	}
	s.log.Infow("schedule_advanced",
		"from", res.From, "to", res.To,
		"increments", res.Increments(), "strategy", res.Strategy)
	s.events.Publish(models.WateringEvent{
		Type:        models.EventCatchUp,
		Description: fmt.Sprintf("next run moved forward by %d period(s)", res.Increments()),
		Metadata: map[string]any{
			"from":              res.From,
			"to":                res.To,
			"strategy":          res.Strategy,
			"local_increments":  res.LocalIncrements,
			"remote_increments": res.RemoteIncrements,
		},
	})
}

func (s *Scheduler) failAdvance(gen uint64, res AdvanceResult, cause error, oracleFailure bool) error {
	s.mu.Lock()
	first := false
	if s.gen == gen {
		if oracleFailure {
			s.failedCycles++
		}
		s.advanceFailures++
		first = s.advanceFailures == 1
		s.publishLocked()
	}
	failedCycles := s.failedCycles
	s.mu.Unlock()

	s.metrics.CatchUpFailed()
	s.metrics.CatchUp(StrategyLocal, res.LocalIncrements)
	s.metrics.CatchUp(StrategyRemote, res.RemoteIncrements)
	s.log.Warnw("catch_up_failed",
		"committed_epoch", res.To,
		"increments_done", res.Increments(),
		"failed_cycles", failedCycles,
		"error", cause)
	if first {
		s.events.Publish(models.WateringEvent{
			Type:        models.EventError,
			Description: "schedule advance failed: " + cause.Error(),
			Metadata:    map[string]any{"committed_epoch": res.To, "strategy": res.Strategy},
		})
	}
	return cause
}

// ApplyConfigUpdate stops any active run, then replaces the schedule with
// next = now + interval. A failed commit leaves the old schedule in place.
func (s *Scheduler) ApplyConfigUpdate(ctx context.Context, upd ConfigUpdate) (models.WateringSchedule, error) {
	if err := upd.Validate(); err != nil {
		return models.WateringSchedule{}, err
	}

	s.mu.Lock()
	if _, err := s.act.Stop(); err != nil {
		s.mu.Unlock()
		s.reportFault(err)
		return models.WateringSchedule{}, err
	}

	next := upd.schedule(s.clock.Now())
	if err := s.repo.Save(ctx, next); err != nil {
		s.mu.Unlock()
		s.metrics.PersistenceError("config_update")
		s.log.Errorw("config_update_not_persisted", "error", err)
		return models.WateringSchedule{}, &PersistenceError{Op: "config_update", Err: err}
	}
	s.sched = next
	s.gen++
	s.run = nil
	s.pending = false
	s.failedCycles = 0
	s.advanceFailures = 0
	s.publishLocked()
	s.mu.Unlock()

	s.Nudge()
	s.metrics.ConfigUpdated()
	s.log.Infow("config_updated",
		"interval_days", next.IntervalDays,
		"interval_hours", next.IntervalHours,
		"duration_ms", next.DurationMS,
		"next_trigger", next.NextTrigger().Format(time.RFC3339))
	s.events.Publish(models.WateringEvent{
		Type:        models.EventConfigUpdate,
		Description: "schedule replaced",
		Metadata: map[string]any{
			"interval_days":      next.IntervalDays,
			"interval_hours":     next.IntervalHours,
			"duration_ms":        next.DurationMS,
			"next_trigger_epoch": next.NextTriggerEpoch,
		},
	})
	return next, nil
}

// StopRun closes the valve without touching the schedule.
func (s *Scheduler) StopRun() (bool, error) {
	stopped, err := s.act.Stop()
	if err != nil {
		s.reportFault(err)
	}
	return stopped, err
}

// Snapshot returns the last published state.
func (s *Scheduler) Snapshot() models.ScheduleSnapshot {
	if p := s.snap.Load(); p != nil {
		return *p
	}
	return models.ScheduleSnapshot{}
}

// Pending reports whether an advance is still owed.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Nudge wakes the controller loop without waiting for the next tick.
func (s *Scheduler) Nudge() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) Wake() <-chan struct{} { return s.wake }

// Faults delivers hardware faults seen outside the controller loop.
func (s *Scheduler) Faults() <-chan error { return s.faults }

func (s *Scheduler) reportFault(err error) {
	if !errors.Is(err, valve.ErrHardwareFault) {
		return
	}
	select {
	case s.faults <- err:
	default:
	}
}

func (s *Scheduler) publishLocked() {
	snap := &models.ScheduleSnapshot{
		Schedule:       s.sched,
		AdvancePending: s.pending,
		TakenAt:        s.clock.Now(),
	}
	if s.run != nil {
		r := *s.run
		r.Active = s.act.Active()
		snap.Run = &r
	}
	s.snap.Store(snap)
}
