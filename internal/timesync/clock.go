package timesync

import (
	"sync/atomic"
	"time"
)

// Clock is the wall clock the scheduler reads.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SyncedClock is the local clock corrected by the last oracle offset.
// Until the first successful sync it returns local time unchanged.
type SyncedClock struct {
	base     func() time.Time
	offset   atomic.Int64 // nanoseconds
	synced   atomic.Bool
	lastSync atomic.Int64 // unix nanoseconds, 0 = never
}

func NewSyncedClock(base func() time.Time) *SyncedClock {
	if base == nil {
		base = time.Now
	}
	return &SyncedClock{base: base}
}

func (c *SyncedClock) Now() time.Time {
	return c.base().Add(time.Duration(c.offset.Load())).UTC()
}

// Local returns the uncorrected base clock.
func (c *SyncedClock) Local() time.Time { return c.base() }

// Apply records that the oracle read oracleNow when the local clock read localAt.
func (c *SyncedClock) Apply(oracleNow, localAt time.Time) time.Duration {
	off := oracleNow.Sub(localAt)
	c.offset.Store(int64(off))
	c.synced.Store(true)
	c.lastSync.Store(localAt.UnixNano())
	return off
}

// MarkUnsynced keeps the offset but reports the clock as not confirmed.
func (c *SyncedClock) MarkUnsynced() { c.synced.Store(false) }

func (c *SyncedClock) Offset() time.Duration { return time.Duration(c.offset.Load()) }

// Synced reports whether the last attempt succeeded and when the last success was.
func (c *SyncedClock) Synced() (bool, time.Time) {
	ns := c.lastSync.Load()
	if ns == 0 {
		return c.synced.Load(), time.Time{}
	}
	return c.synced.Load(), time.Unix(0, ns).UTC()
}
