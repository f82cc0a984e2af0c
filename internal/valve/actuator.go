package valve

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"water_timer/internal/logger"

	"github.com/google/uuid"
)

var (
	ErrBusy          = errors.New("valve: run already active")
	ErrHardwareFault = errors.New("valve: hardware fault")
)

// HardwareFaultError reports an output that could not be driven.
type HardwareFaultError struct {
	Op  string // "open" | "close"
	Err error
}

func (e *HardwareFaultError) Error() string {
	return fmt.Sprintf("valve %s: %v", e.Op, e.Err)
}

func (e *HardwareFaultError) Unwrap() []error { return []error{ErrHardwareFault, e.Err} }

// Stop reasons.
const (
	ReasonExpired = "expired"
	ReasonStopped = "stopped"
)

// RunHandle identifies one started run.
type RunHandle struct {
	ID        string
	StartedAt time.Time
	Duration  time.Duration
}

// Listener is told about run starts and ends. It is always called without
// the actuator lock held.
type Listener interface {
	RunStarted(h RunHandle)
	RunEnded(h RunHandle, reason string, at time.Time)
}

// Timer is the part of *time.Timer the actuator needs.
type Timer interface {
	Stop() bool
}

// AfterFunc arms f to run once after d.
type AfterFunc func(d time.Duration, f func()) Timer

func stdAfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

type Option func(*Actuator)

func WithClock(now func() time.Time) Option { return func(a *Actuator) { a.now = now } }

func WithAfterFunc(fn AfterFunc) Option { return func(a *Actuator) { a.afterFunc = fn } }

func WithListener(l Listener) Option { return func(a *Actuator) { a.listener = l } }

type activeRun struct {
	handle RunHandle
	timer  Timer
}

// Actuator opens the valve for a bounded duration. Its expiry timer only
// takes the actuator's own lock, so nothing outside can keep the valve open.
type Actuator struct {
	out       Output
	log       *logger.Logger
	now       func() time.Time
	afterFunc AfterFunc
	listener  Listener

	mu     sync.Mutex
	active *activeRun

	faults chan error
}

func NewActuator(out Output, log *logger.Logger, opts ...Option) *Actuator {
	if log == nil {
		log = logger.Nop()
	}
	a := &Actuator{
		out:       out,
		log:       log,
		now:       time.Now,
		afterFunc: stdAfterFunc,
		faults:    make(chan error, 1),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// SetListener replaces the listener. Call before the first Start.
func (a *Actuator) SetListener(l Listener) {
	a.mu.Lock()
	a.listener = l
	a.mu.Unlock()
}

// Faults delivers hardware faults raised by the expiry path.
func (a *Actuator) Faults() <-chan error { return a.faults }

// Start opens the valve and arms the expiry timer for d.
func (a *Actuator) Start(d time.Duration) (RunHandle, error) {
	a.mu.Lock()
	if a.active != nil {
		a.mu.Unlock()
		return RunHandle{}, ErrBusy
	}
	if err := a.out.Set(true); err != nil {
		_ = a.out.Set(false)
		a.mu.Unlock()
		a.log.Errorw("valve_open_failed", "error", err)
		return RunHandle{}, &HardwareFaultError{Op: "open", Err: err}
	}

	h := RunHandle{ID: uuid.NewString(), StartedAt: a.now(), Duration: d}
	run := &activeRun{handle: h}
	run.timer = a.afterFunc(d, func() { a.expire(h.ID) })
	a.active = run
	l := a.listener
	a.mu.Unlock()

	a.log.Infow("valve_opened", "run_id", h.ID, "duration_ms", d.Milliseconds())
	if l != nil {
		l.RunStarted(h)
	}
	return h, nil
}

func (a *Actuator) expire(id string) {
	a.mu.Lock()
	if a.active == nil || a.active.handle.ID != id {
		a.mu.Unlock()
		return // stopped before the timer fired
	}
	h := a.active.handle
	err := a.out.Set(false)
	a.active = nil
	l := a.listener
	a.mu.Unlock()

	at := a.now()
	if err != nil {
		fault := &HardwareFaultError{Op: "close", Err: err}
		a.log.Errorw("valve_close_failed", "run_id", id, "error", err)
		select {
		case a.faults <- fault:
		default:
		}
	} else {
		a.log.Infow("valve_closed", "run_id", id, "reason", ReasonExpired)
	}
	if l != nil {
		l.RunEnded(h, ReasonExpired, at)
	}
}

// Stop forces the valve closed. stopped is false when no run was active.
func (a *Actuator) Stop() (stopped bool, err error) {
	a.mu.Lock()
	if a.active == nil {
		a.mu.Unlock()
		return false, nil
	}
	run := a.active
	run.timer.Stop()
	setErr := a.out.Set(false)
	a.active = nil
	l := a.listener
	a.mu.Unlock()

	if setErr != nil {
		a.log.Errorw("valve_close_failed", "run_id", run.handle.ID, "error", setErr)
		err = &HardwareFaultError{Op: "close", Err: setErr}
	} else {
		a.log.Infow("valve_closed", "run_id", run.handle.ID, "reason", ReasonStopped)
	}
	if l != nil {
		l.RunEnded(run.handle, ReasonStopped, a.now())
	}
	return true, err
}

// Active reports whether a run is in progress.
func (a *Actuator) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active != nil
}

// Current returns the active run, if any.
func (a *Actuator) Current() (RunHandle, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.active == nil {
		return RunHandle{}, false
	}
	return a.active.handle, true
}
