package notify

import (
	"context"

	"water_timer/internal/models"
	"water_timer/internal/repository"
)

// EventLogSink appends events to the persistent event log.
type EventLogSink struct {
	repo repository.EventRepo
}

func NewEventLogSink(repo repository.EventRepo) *EventLogSink { return &EventLogSink{repo: repo} }

func (s *EventLogSink) Name() string { return "event_log" }

func (s *EventLogSink) Write(ctx context.Context, ev models.WateringEvent) error {
	return s.repo.Append(ctx, ev)
}
