package repository

import (
	"context"
	"errors"
)

// ErrTxDone is returned when a transaction is used after Commit or Rollback.
var ErrTxDone = errors.New("repository: transaction already finished")

// KeyValueStore is the durable key/value store backing the schedule.
type KeyValueStore interface {
	// Get returns the committed value for key; ok is false if the key was never written.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Begin(ctx context.Context) (KeyValueTx, error)
}

// KeyValueTx stages writes. Commit applies every staged key or none of them.
type KeyValueTx interface {
	Set(key, value string)
	Commit() error
	Rollback()
}

// staged is the write set shared by every driver's transaction.
type staged struct {
	keys   []string
	values map[string]string
	done   bool
}

func newStaged() *staged {
	return &staged{values: make(map[string]string, 4)}
}

func (s *staged) set(key, value string) {
	if s.done {
		return
	}
	if _, seen := s.values[key]; !seen {
		s.keys = append(s.keys, key)
	}
	s.values[key] = value
}
