package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/voxdoc/voxdoc-back/internal/domain"
)

// FileStore is the flat, file-per-job fallback backend used when the
// primary store is unreachable.
type FileStore struct {
	dir   string
	locks *keyedMutex
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return &FileStore{dir: dir, locks: newKeyedMutex()}, nil
}

func (s *FileStore) path(jobID string) string {
	// Job ids are UUIDs issued by us, but never trust them as path input.
	return filepath.Join(s.dir, filepath.Base(jobID)+".json")
}

func (s *FileStore) Set(_ context.Context, jobID string, state domain.JobState) error {
	extendOnTerminal(&state)
	encoded, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode job state: %w", err)
	}

	unlock := s.locks.lock(jobID)
	defer unlock()

	tmp := s.path(jobID) + ".tmp"
	if err := os.WriteFile(tmp, encoded, 0o644); err != nil {
		return fmt.Errorf("write job state: %w", err)
	}
	if err := os.Rename(tmp, s.path(jobID)); err != nil {
		return fmt.Errorf("replace job state: %w", err)
	}
	return nil
}

func (s *FileStore) Get(_ context.Context, jobID string) (domain.JobState, error) {
	unlock := s.locks.lock(jobID)
	defer unlock()
	return s.readLocked(jobID)
}

func (s *FileStore) readLocked(jobID string) (domain.JobState, error) {
	encoded, err := os.ReadFile(s.path(jobID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.JobState{}, ErrNotFound
		}
		return domain.JobState{}, fmt.Errorf("read job state: %w", err)
	}

	var state domain.JobState
	if err := json.Unmarshal(encoded, &state); err != nil {
		return domain.JobState{}, fmt.Errorf("decode job state: %w", err)
	}
	if time.Now().UTC().After(state.ExpiresAt) {
		return domain.JobState{}, ErrNotFound
	}
	return state, nil
}

func (s *FileStore) Delete(_ context.Context, jobID string) error {
	unlock := s.locks.lock(jobID)
	err := os.Remove(s.path(jobID))
	unlock()
	s.locks.forget(jobID)

	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete job state: %w", err)
	}
	return nil
}

func (s *FileStore) Update(_ context.Context, jobID string, update domain.StateUpdate) error {
	unlock := s.locks.lock(jobID)
	defer unlock()

	state, err := s.readLocked(jobID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		state = NewState(domain.JobStatusQueued)
	}
	update.Apply(&state)
	extendOnTerminal(&state)

	encoded, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode job state: %w", err)
	}
	tmp := s.path(jobID) + ".tmp"
	if err := os.WriteFile(tmp, encoded, 0o644); err != nil {
		return fmt.Errorf("write job state: %w", err)
	}
	if err := os.Rename(tmp, s.path(jobID)); err != nil {
		return fmt.Errorf("replace job state: %w", err)
	}
	return nil
}
