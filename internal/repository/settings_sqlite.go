package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const (
	selectSettingSQL = `SELECT value FROM settings WHERE key = ?`

	upsertSettingSQL = `
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value=excluded.value,
			updated_at=excluded.updated_at
	`
)

// SettingsSQLite keeps keys in the settings table; each commit is one SQL transaction.
type SettingsSQLite struct {
	db *sql.DB
}

func NewSettingsSQLite(db *sql.DB) *SettingsSQLite { return &SettingsSQLite{db: db} }

var _ KeyValueStore = (*SettingsSQLite)(nil)

func (s *SettingsSQLite) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, selectSettingSQL, key).Scan(&v)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("select setting %q: %w", key, err)
	}
	return v, true, nil
}

func (s *SettingsSQLite) Begin(ctx context.Context) (KeyValueTx, error) {
	return &sqliteTx{ctx: ctx, db: s.db, staged: newStaged()}, nil
}

type sqliteTx struct {
	ctx context.Context
	db  *sql.DB
	*staged
}

func (t *sqliteTx) Set(key, value string) { t.set(key, value) }

func (t *sqliteTx) Commit() error {
	if t.done {
		return ErrTxDone
	}
	t.done = true

	tx, err := t.db.BeginTx(t.ctx, nil)
	if err != nil {
		return fmt.Errorf("begin settings transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now().UTC()
	for _, k := range t.keys {
		if _, err := tx.ExecContext(t.ctx, upsertSettingSQL, k, t.values[k], now); err != nil {
			return fmt.Errorf("upsert setting %q: %w", k, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit settings transaction: %w", err)
	}
	return nil
}

func (t *sqliteTx) Rollback() { t.done = true }
