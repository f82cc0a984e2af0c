package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"water_timer/internal/models"
	"water_timer/internal/repository/db"

	"github.com/DATA-DOG/go-sqlmock"
)

func testCtx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	t.Cleanup(cancel)
	return c
}

func newEventMock(t *testing.T) (*EventSQLite, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewEventSQLite(db), mock
}

func TestEventAppend_FillsDefaults(t *testing.T) {
	t.Parallel()
	repo, mock := newEventMock(t)

	mock.ExpectExec(regexp.QuoteMeta(insertEventSQL)).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), models.EventRunStart, "valve opened", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Append(testCtx(t), models.WateringEvent{
		Type:        "  run_start ",
		Description: "valve opened",
		Metadata:    map[string]any{"duration_ms": 5000},
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("mock expectations: %v", err)
	}
}

func TestEventAppend_FormatsTimestamp(t *testing.T) {
	t.Parallel()
	repo, mock := newEventMock(t)

	at := time.Date(2025, 6, 1, 7, 30, 0, 0, time.FixedZone("X", 2*3600))
	mock.ExpectExec(regexp.QuoteMeta(insertEventSQL)).
		WithArgs("ev-1", "2025-06-01 05:30:00", models.EventCatchUp, "advanced", nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Append(testCtx(t), models.WateringEvent{
		EventID:     "ev-1",
		OccurredAt:  at,
		Type:        models.EventCatchUp,
		Description: "advanced",
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("mock expectations: %v", err)
	}
}

func TestEventAppend_DBError(t *testing.T) {
	t.Parallel()
	repo, mock := newEventMock(t)

	mock.ExpectExec("INSERT INTO watering_events").WillReturnError(errors.New("disk full"))

	err := repo.Append(testCtx(t), models.WateringEvent{Type: models.EventError, Description: "x"})
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("mock expectations: %v", err)
	}
}

func TestEventList_NoFilters_ParsesMetadata(t *testing.T) {
	t.Parallel()
	repo, mock := newEventMock(t)

	now := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	js, _ := json.Marshal(map[string]any{"increments": 3})

	rows := sqlmock.NewRows([]string{"id", "occurred_at", "type", "message", "meta"}).
		AddRow("1", now, models.EventCatchUp, "m1", string(js)).
		AddRow("2", now.Add(time.Hour), models.EventRunEnd, "m2", nil).
		AddRow("3", now.Add(2*time.Hour), models.EventError, "m3", "{not json")

	mock.ExpectQuery(regexp.QuoteMeta(selectEventsSQL + " ORDER BY occurred_at ASC, rowid ASC")).
		WillReturnRows(rows)

	got, err := repo.List(testCtx(t), EventQuery{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("want 3, got %d", len(got))
	}
	b, _ := json.Marshal(got[0].Metadata)
	if string(b) != string(js) {
		t.Fatalf("metadata mismatch: %s vs %s", b, js)
	}
	if got[1].Metadata != nil {
		t.Fatalf("expected nil meta, got %#v", got[1].Metadata)
	}
	if raw, ok := got[2].Metadata.(string); !ok || raw != "{not json" {
		t.Fatalf("expected raw metadata kept, got %#v", got[2].Metadata)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("mock expectations: %v", err)
	}
}

func TestEventList_WithFilters(t *testing.T) {
	t.Parallel()
	repo, mock := newEventMock(t)

	from := time.Date(2025, 1, 1, 11, 0, 0, 0, time.UTC)
	to := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	query := selectEventsSQL + ` WHERE occurred_at >= ? AND occurred_at <= ? AND type = ? ORDER BY occurred_at ASC, rowid ASC`
	rows := sqlmock.NewRows([]string{"id", "occurred_at", "type", "message", "meta"}).
		AddRow("2", from, models.EventRunStart, "b", nil)

	mock.ExpectQuery(regexp.QuoteMeta(query)).
		WithArgs("2025-01-01 11:00:00", "2025-01-01 12:00:00", models.EventRunStart).
		WillReturnRows(rows)

	got, err := repo.List(testCtx(t), EventQuery{From: from, To: to, Type: " run_start "})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 || got[0].EventID != "2" {
		t.Fatalf("unexpected results: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("mock expectations: %v", err)
	}
}

func TestEventList_ScanError(t *testing.T) {
	t.Parallel()
	repo, mock := newEventMock(t)

	rows := sqlmock.NewRows([]string{"id", "occurred_at", "type", "message", "meta"}).
		AddRow("x", 123, models.EventRunEnd, "msg", nil)
	mock.ExpectQuery(regexp.QuoteMeta(selectEventsSQL + " ORDER BY occurred_at ASC, rowid ASC")).
		WillReturnRows(rows)

	if _, err := repo.List(testCtx(t), EventQuery{}); err == nil {
		t.Fatalf("expected scan error, got nil")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("mock expectations: %v", err)
	}
}

func TestEventList_LimitReadsNewestAndReturnsOldestFirst(t *testing.T) {
	t.Parallel()
	repo, mock := newEventMock(t)

	at := time.Date(2025, 6, 1, 6, 0, 0, 0, time.UTC)
	query := selectEventsSQL + ` WHERE type = ? ORDER BY occurred_at DESC, rowid DESC LIMIT ?`
	rows := sqlmock.NewRows([]string{"id", "occurred_at", "type", "message", "meta"}).
		AddRow("3", at.Add(2*time.Hour), models.EventRunEnd, "c", nil).
		AddRow("2", at.Add(time.Hour), models.EventRunEnd, "b", nil)

	mock.ExpectQuery(regexp.QuoteMeta(query)).
		WithArgs(models.EventRunEnd, 2).
		WillReturnRows(rows)

	got, err := repo.List(testCtx(t), EventQuery{Type: models.EventRunEnd, Limit: 2})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 || got[0].EventID != "2" || got[1].EventID != "3" {
		t.Fatalf("want [2 3] oldest first, got %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("mock expectations: %v", err)
	}
}

func TestEventSQLite_NewestRunsFromRealDB(t *testing.T) {
	conn, err := db.InitDB(filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatalf("InitDB: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	repo := NewEventSQLite(conn)
	ctx := testCtx(t)

	at := time.Date(2025, 6, 1, 6, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		for _, typ := range []string{models.EventRunStart, models.EventRunEnd} {
			ev := models.WateringEvent{
				EventID:     fmt.Sprintf("%s-%d", typ, i),
				OccurredAt:  at.Add(time.Duration(i) * time.Hour),
				Type:        typ,
				Description: "run",
			}
			if err := repo.Append(ctx, ev); err != nil {
				t.Fatalf("Append: %v", err)
			}
		}
	}

	got, err := repo.List(ctx, EventQuery{Type: models.EventRunEnd, Limit: 2})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 || got[0].EventID != "RUN_END-3" || got[1].EventID != "RUN_END-4" {
		t.Fatalf("unexpected newest runs: %+v", got)
	}

	all, err := repo.List(ctx, EventQuery{From: at.Add(3 * time.Hour)})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 4 || !all[0].OccurredAt.Equal(at.Add(3*time.Hour)) {
		t.Fatalf("unexpected range: %+v", all)
	}
}
