// Package progress provides the durable, TTL-bounded job state store with a
// primary structured backend and a flat-file fallback.
package progress

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/voxdoc/voxdoc-back/internal/domain"
)

// ErrNotFound indicates no live (non-expired) state exists for the job.
var ErrNotFound = errors.New("job state not found")

var (
	// DefaultTTL bounds how long in-flight job state is retained. Set once
	// at startup from configuration, before any store is used.
	DefaultTTL = time.Hour
	// FinishedTTL is the extended retention applied once a job reaches a
	// terminal state, so finished artifacts stay fetchable longer.
	FinishedTTL = 24 * time.Hour
)

// ConfigureRetention overrides the retention windows. Non-positive values
// leave the current window unchanged.
func ConfigureRetention(inflight, finished time.Duration) {
	if inflight > 0 {
		DefaultTTL = inflight
	}
	if finished > 0 {
		FinishedTTL = finished
	}
}

// Store is the durable task-state substrate. Get treats expired records as
// absent; Delete is idempotent; Update is a read-merge-write, never a full
// overwrite, so concurrent partial updates from different stages compose.
type Store interface {
	Set(ctx context.Context, jobID string, state domain.JobState) error
	Get(ctx context.Context, jobID string) (domain.JobState, error)
	Delete(ctx context.Context, jobID string) error
	Update(ctx context.Context, jobID string, update domain.StateUpdate) error
}

// NewState builds the initial queued state with the default retention window.
func NewState(status domain.JobStatus) domain.JobState {
	now := time.Now().UTC()
	return domain.JobState{
		Status:    status,
		Progress:  0,
		UpdatedAt: now,
		ExpiresAt: now.Add(DefaultTTL),
	}
}

// InitializingState is the safe default returned to pollers racing job
// creation, instead of a spurious "not found".
func InitializingState() domain.JobState {
	now := time.Now().UTC()
	return domain.JobState{
		Status:    domain.JobStatusQueued,
		Progress:  0,
		Message:   "initializing",
		UpdatedAt: now,
		ExpiresAt: now.Add(DefaultTTL),
	}
}

// extendOnTerminal stretches retention once the job reaches a terminal
// status so finished artifacts outlive the in-flight TTL.
func extendOnTerminal(state *domain.JobState) {
	if state.Status.Terminal() {
		extended := time.Now().UTC().Add(FinishedTTL)
		if extended.After(state.ExpiresAt) {
			state.ExpiresAt = extended
		}
	}
}

// keyedMutex serializes updates per job id so read-merge-write cycles from
// racing stages cannot interleave on the same record.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

func (m *keyedMutex) lock(key string) func() {
	m.mu.Lock()
	lock, ok := m.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[key] = lock
	}
	m.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

func (m *keyedMutex) forget(key string) {
	m.mu.Lock()
	delete(m.locks, key)
	m.mu.Unlock()
}
