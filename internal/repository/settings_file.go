package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// SettingsFile keeps every key in one JSON file. A commit writes the whole
// snapshot to <path>.tmp, syncs it and renames it over the live file, so a
// failed write leaves the previous file intact.
type SettingsFile struct {
	path string

	mu     sync.Mutex
	values map[string]string
}

var _ KeyValueStore = (*SettingsFile)(nil)

// OpenSettingsFile loads path if it exists.
func OpenSettingsFile(path string) (*SettingsFile, error) {
	s := &SettingsFile{path: path, values: map[string]string{}}

	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("read settings file %q: %w", path, err)
	}
	if len(b) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(b, &s.values); err != nil {
		return nil, fmt.Errorf("decode settings file %q: %w", path, err)
	}
	return s, nil
}

func (s *SettingsFile) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *SettingsFile) Begin(context.Context) (KeyValueTx, error) {
	return &fileTx{store: s, staged: newStaged()}, nil
}

func (s *SettingsFile) commit(st *staged) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]string, len(s.values)+len(st.keys))
	for k, v := range s.values {
		next[k] = v
	}
	for _, k := range st.keys {
		next[k] = st.values[k]
	}
	if err := writeSnapshot(s.path, next); err != nil {
		return err
	}
	s.values = next
	return nil
}

func writeSnapshot(path string, values map[string]string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create settings dir: %w", err)
		}
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open temp settings file: %w", err)
	}
	if err := json.NewEncoder(f).Encode(values); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("sync temp settings file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close temp settings file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace settings file: %w", err)
	}
	return nil
}

type fileTx struct {
	store *SettingsFile
	*staged
}

func (t *fileTx) Set(key, value string) { t.set(key, value) }

func (t *fileTx) Commit() error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	return t.store.commit(t.staged)
}

func (t *fileTx) Rollback() { t.done = true }
