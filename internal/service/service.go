package service

import (
	"context"
	"time"

	"water_timer/internal/models"
	"water_timer/internal/repository"
)

type Authorization interface {
	SignUp(ctx context.Context, username, password string) (int, error)
	GenerateToken(ctx context.Context, username, password string) (string, error)
	ParseToken(accessToken string) (int, error)
}

// Schedule exposes the write path and a consistent read of the scheduler.
type Schedule interface {
	ApplyConfigUpdate(ctx context.Context, upd ConfigUpdate) (models.WateringSchedule, error)
	StopRun() (bool, error)
	Snapshot() models.ScheduleSnapshot
}

// Monitoring exposes the periodically computed status.
type Monitoring interface {
	Status() models.Status
}

// EventLog exposes append-only logs with filtering access.
type EventLog interface {
	List(ctx context.Context, f LogFilter) ([]models.WateringEvent, error)
}

// Service aggregates what the HTTP layer needs.
type Service struct {
	Schedule
	Monitoring
	EventLog
	Authorization
}

type AuthConfig struct {
	SigningKey string
	TokenTTL   time.Duration
}

// NewService wires the running scheduler and monitor with the repository-backed services.
func NewService(repos *repository.Repository, sched Schedule, monitor Monitoring, auth AuthConfig) *Service {
	return &Service{
		Schedule:      sched,
		Monitoring:    monitor,
		EventLog:      NewEventLogService(repos.EventRepo),
		Authorization: NewAuthService(repos.Auth, auth.SigningKey, auth.TokenTTL),
	}
}
