package timesync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"water_timer/internal/logger"

	"github.com/robfig/cron/v3"
)

// SyncListener is told about every sync attempt.
type SyncListener func(ok bool, offset time.Duration, err error)

// Reconciler keeps a SyncedClock aligned with the oracle: once at boot,
// then on a cron schedule. Failures never block; the previous offset stays.
type Reconciler struct {
	oracle   Oracle
	clock    *SyncedClock
	log      *logger.Logger
	spec     string
	timeout  time.Duration
	listener SyncListener

	mu   sync.Mutex
	cron *cron.Cron
}

func NewReconciler(oracle Oracle, clock *SyncedClock, spec string, timeout time.Duration, log *logger.Logger) *Reconciler {
	if log == nil {
		log = logger.Nop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Reconciler{oracle: oracle, clock: clock, log: log, spec: spec, timeout: timeout}
}

// OnSync registers l. Call before Start.
func (r *Reconciler) OnSync(l SyncListener) { r.listener = l }

// Sync asks the oracle for the time once and applies the offset.
func (r *Reconciler) Sync(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	before := r.clock.Local()
	remote, err := r.oracle.Now(ctx)
	if err != nil {
		r.clock.MarkUnsynced()
		r.log.Warnw("time_sync_failed", "error", err, "offset", r.clock.Offset().String())
		if r.listener != nil {
			r.listener(false, r.clock.Offset(), err)
		}
		return err
	}
	after := r.clock.Local()
	mid := before.Add(after.Sub(before) / 2)

	off := r.clock.Apply(remote, mid)
	r.log.Infow("time_synced", "offset", off.String(), "oracle_time", remote.Format(time.RFC3339))
	if r.listener != nil {
		r.listener(true, off, nil)
	}
	return nil
}

// Start runs a boot sync and schedules the periodic resync. A failed boot
// sync is not an error. An empty spec disables the resync.
func (r *Reconciler) Start(ctx context.Context) error {
	_ = r.Sync(ctx)

	if r.spec == "" {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(r.spec, func() {
		if ctx.Err() != nil {
			return
		}
		_ = r.Sync(ctx)
	}); err != nil {
		return fmt.Errorf("schedule time resync %q: %w", r.spec, err)
	}
	c.Start()

	r.mu.Lock()
	r.cron = c
	r.mu.Unlock()
	return nil
}

// Stop halts the resync schedule and waits for a running sync to finish.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	c := r.cron
	r.cron = nil
	r.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}
