package repository

import (
	"context"
	"sync"
)

// SettingsMemory is a process-local store for tests and dry runs.
type SettingsMemory struct {
	mu         sync.Mutex
	values     map[string]string
	failCommit error
}

var _ KeyValueStore = (*SettingsMemory)(nil)

func NewSettingsMemory() *SettingsMemory {
	return &SettingsMemory{values: map[string]string{}}
}

func (s *SettingsMemory) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *SettingsMemory) Begin(context.Context) (KeyValueTx, error) {
	return &memoryTx{store: s, staged: newStaged()}, nil
}

// SetFailCommit makes subsequent commits fail with err (nil clears it).
func (s *SettingsMemory) SetFailCommit(err error) {
	s.mu.Lock()
	s.failCommit = err
	s.mu.Unlock()
}

// Snapshot returns a copy of the committed values.
func (s *SettingsMemory) Snapshot() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

type memoryTx struct {
	store *SettingsMemory
	*staged
}

func (t *memoryTx) Set(key, value string) { t.set(key, value) }

func (t *memoryTx) Commit() error {
	if t.done {
		return ErrTxDone
	}
	t.done = true

	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if t.store.failCommit != nil {
		return t.store.failCommit
	}
	for _, k := range t.keys {
		t.store.values[k] = t.values[k]
	}
	return nil
}

func (t *memoryTx) Rollback() { t.done = true }
