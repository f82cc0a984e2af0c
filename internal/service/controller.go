package service

import (
	"context"
	"time"

	"water_timer/internal/logger"
)

const minLoopWait = 10 * time.Millisecond

// Controller drives the scheduler until ctx is canceled or the valve faults.
type Controller struct {
	sched       *Scheduler
	valveFaults <-chan error
	log         *logger.Logger
}

// NewController builds the loop. valveFaults carries faults raised by the
// actuator's own expiry path (may be nil).
func NewController(sched *Scheduler, valveFaults <-chan error, log *logger.Logger) *Controller {
	if log == nil {
		log = logger.Nop()
	}
	return &Controller{sched: sched, valveFaults: valveFaults, log: log}
}

// Run ticks at most every tick, sooner when the next trigger is closer or the
// scheduler is nudged. It returns nil on cancellation and the fault otherwise.
// The valve is closed on the way out.
func (c *Controller) Run(ctx context.Context, tick time.Duration) error {
	if tick <= 0 {
		tick = time.Second
	}
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			if _, err := c.sched.StopRun(); err != nil {
				c.log.Errorw("valve_close_on_shutdown_failed", "error", err)
				return err
			}
			return nil
		case err := <-c.valveFaults:
			c.log.Errorw("valve_fault", "error", err)
			return err
		case err := <-c.sched.Faults():
			c.log.Errorw("valve_fault", "error", err)
			return err
		case <-c.sched.Wake():
		case <-timer.C:
		}

		d, err := c.sched.Step(ctx)
		if err != nil {
			c.log.Errorw("controller_stopped", "error", err)
			return err
		}

		wait := tick
		if d.Action == ActionWait && d.Wait < wait {
			wait = max(d.Wait, minLoopWait)
		}
		timer.Reset(wait)
	}
}
