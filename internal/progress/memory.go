package progress

import (
	"context"
	"time"

	"github.com/voxdoc/voxdoc-back/internal/domain"
)

// MemoryStore keeps job state in memory for local development and tests.
type MemoryStore struct {
	locks  *keyedMutex
	states map[string]domain.JobState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		locks:  newKeyedMutex(),
		states: make(map[string]domain.JobState),
	}
}

func (s *MemoryStore) Set(_ context.Context, jobID string, state domain.JobState) error {
	extendOnTerminal(&state)
	unlock := s.locks.lock(jobID)
	defer unlock()
	s.states[jobID] = cloneState(state)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, jobID string) (domain.JobState, error) {
	unlock := s.locks.lock(jobID)
	defer unlock()

	state, ok := s.states[jobID]
	if !ok || time.Now().UTC().After(state.ExpiresAt) {
		return domain.JobState{}, ErrNotFound
	}
	return cloneState(state), nil
}

func (s *MemoryStore) Delete(_ context.Context, jobID string) error {
	unlock := s.locks.lock(jobID)
	delete(s.states, jobID)
	unlock()
	s.locks.forget(jobID)
	return nil
}

func (s *MemoryStore) Update(_ context.Context, jobID string, update domain.StateUpdate) error {
	unlock := s.locks.lock(jobID)
	defer unlock()

	state, ok := s.states[jobID]
	if !ok || time.Now().UTC().After(state.ExpiresAt) {
		state = NewState(domain.JobStatusQueued)
	}
	update.Apply(&state)
	extendOnTerminal(&state)
	s.states[jobID] = cloneState(state)
	return nil
}

func cloneState(state domain.JobState) domain.JobState {
	clone := state
	if state.Artifacts != nil {
		clone.Artifacts = make(map[domain.ArtifactKind]domain.Artifact, len(state.Artifacts))
		for kind, artifact := range state.Artifacts {
			clone.Artifacts[kind] = artifact
		}
	}
	return clone
}
