package timesync

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrUnavailable wraps every failure to reach the oracle, including an open breaker.
var ErrUnavailable = errors.New("timesync: oracle unavailable")

// Oracle is a remote source of absolute UTC time.
type Oracle interface {
	Now(ctx context.Context) (time.Time, error)
	// Increment returns from advanced by span. Repeating a call with the
	// same input yields the same answer.
	Increment(ctx context.Context, from time.Time, span time.Duration) (time.Time, error)
}

// FormatSpan renders d as D:HH:MM:SS, whole seconds only.
func FormatSpan(d time.Duration) string {
	total := int64(d / time.Second)
	if total < 0 {
		total = 0
	}
	days := total / 86400
	total %= 86400
	return fmt.Sprintf("%d:%02d:%02d:%02d", days, total/3600, (total%3600)/60, total%60)
}
