package service

import (
	"context"
	"fmt"
	"time"

	"water_timer/internal/timesync"
)

// Catch-up strategies.
const (
	StrategyLocal  = "local"
	StrategyRemote = "remote"
)

// localSteps returns how many whole intervals take from past now.
func localSteps(from, now, interval int64) int64 {
	if from > now {
		return 0
	}
	return (now-from)/interval + 1
}

// remoteStep asks the oracle for from+interval. Any other answer is an
// oracle failure so the trigger stays congruent to the original epoch.
func remoteStep(ctx context.Context, oracle timesync.Oracle, from, interval int64) (int64, error) {
	t, err := oracle.Increment(ctx, time.Unix(from, 0).UTC(), time.Duration(interval)*time.Second)
	if err != nil {
		return 0, err
	}
	next := t.Unix()
	switch {
	case next <= from:
		return 0, errOracleRegression
	case next != from+interval:
		return 0, fmt.Errorf("%w: got %d want %d", errOracleMismatch, next, from+interval)
	}
	return next, nil
}

// AdvanceResult summarises one catch-up advance.
type AdvanceResult struct {
	From             int64
	To               int64
	LocalIncrements  int64
	RemoteIncrements int64
	Strategy         string
}

func (r AdvanceResult) Increments() int64 { return r.LocalIncrements + r.RemoteIncrements }
