package repository

import (
	"context"
	"database/sql"
	"fmt"

	"water_timer/internal/config"
	"water_timer/internal/models"
)

type Authorization interface {
	Create(ctx context.Context, username, hash string) (int, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}

type ScheduleStore interface {
	Load(ctx context.Context) (LoadedSchedule, error)
	Save(ctx context.Context, s models.WateringSchedule) error
	SaveNextTrigger(ctx context.Context, epoch int64) error
}

type EventRepo interface {
	Append(ctx context.Context, e models.WateringEvent) error
	List(ctx context.Context, q EventQuery) ([]models.WateringEvent, error)
}

type Repository struct {
	Schedule  ScheduleStore
	EventRepo EventRepo
	Auth      Authorization
}

// NewRepository wires the event log and users onto db and the schedule onto kv.
func NewRepository(db *sql.DB, kv KeyValueStore) *Repository {
	return &Repository{
		Schedule:  NewScheduleRepo(kv),
		EventRepo: NewEventSQLite(db),
		Auth:      NewUserSQLite(db),
	}
}

// OpenSettings returns the KeyValueStore selected by driver.
func OpenSettings(driver, path string, db *sql.DB) (KeyValueStore, error) {
	switch driver {
	case config.StoreSQLite, "":
		return NewSettingsSQLite(db), nil
	case config.StoreFile:
		return OpenSettingsFile(path)
	case config.StoreMemory:
		return NewSettingsMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
