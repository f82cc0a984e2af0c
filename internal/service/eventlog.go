package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"water_timer/internal/models"
	"water_timer/internal/repository"
)

// maxLogRange bounds one log query.
const maxLogRange = 366 * 24 * time.Hour

type EventLogService struct {
	eventRepo repository.EventRepo
}

func NewEventLogService(eventRepo repository.EventRepo) *EventLogService {
	return &EventLogService{eventRepo: eventRepo}
}

// ErrInvalidFilter is matched by every rejected log filter.
var ErrInvalidFilter = errors.New("invalid log filter")

var (
	errInvalidTimeRange = fmt.Errorf("%w: From must be <= To", ErrInvalidFilter)
	errTimeRangeTooWide = fmt.Errorf("%w: at most 366 days per query", ErrInvalidFilter)
	errUnknownEventType = fmt.Errorf("%w: unknown event type", ErrInvalidFilter)
	errNegativeLimit    = fmt.Errorf("%w: limit must not be negative", ErrInvalidFilter)
)

var knownEventTypes = map[string]bool{
	models.EventRunStart:     true,
	models.EventRunEnd:       true,
	models.EventCatchUp:      true,
	models.EventConfigUpdate: true,
	models.EventTimeSync:     true,
	models.EventError:        true,
}

// normalizeToUTC returns t in UTC, preserving zero time values.
func normalizeToUTC(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}

// normalizeEventType trims spaces and uppercases the event type filter.
func normalizeEventType(s string) string {
	return strings.TrimSpace(strings.ToUpper(s))
}

// normalizeAndValidateFilter prepares query parameters and validates the time range.
func normalizeAndValidateFilter(f LogFilter) (time.Time, time.Time, string, error) {
	from := normalizeToUTC(f.From)
	to := normalizeToUTC(f.To)

	if !from.IsZero() && !to.IsZero() {
		if from.After(to) {
			return time.Time{}, time.Time{}, "", errInvalidTimeRange
		}
		if to.Sub(from) > maxLogRange {
			return time.Time{}, time.Time{}, "", errTimeRangeTooWide
		}
	}

	eventType := normalizeEventType(f.Type)
	if eventType != "" && !knownEventTypes[eventType] {
		return time.Time{}, time.Time{}, "", errUnknownEventType
	}
	return from, to, eventType, nil
}

// IsFilterError reports whether err came from a malformed log filter.
func IsFilterError(err error) bool {
	return errors.Is(err, ErrInvalidFilter)
}

func (s *EventLogService) List(ctx context.Context, f LogFilter) ([]models.WateringEvent, error) {
	from, to, typ, err := normalizeAndValidateFilter(f)
	if err != nil {
		return nil, err
	}
	if f.Limit < 0 {
		return nil, errNegativeLimit
	}
	return s.eventRepo.List(ctx, repository.EventQuery{From: from, To: to, Type: typ, Limit: f.Limit})
}
