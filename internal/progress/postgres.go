package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/voxdoc/voxdoc-back/internal/domain"
)

// PostgresStore is the primary structured backend, keyed by job id with an
// explicit expires_at column.
//
// Expected schema:
//
//	CREATE TABLE task_progress (
//	    job_id     TEXT PRIMARY KEY,
//	    data       JSONB NOT NULL,
//	    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
//	    expires_at TIMESTAMPTZ NOT NULL
//	);
type PostgresStore struct {
	pool  *pgxpool.Pool
	locks *keyedMutex
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pg pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping pg: %w", err)
	}
	return &PostgresStore{pool: pool, locks: newKeyedMutex()}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Set(ctx context.Context, jobID string, state domain.JobState) error {
	extendOnTerminal(&state)
	encoded, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode job state: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO task_progress (job_id, data, created_at, expires_at)
		VALUES ($1, $2, now(), $3)
		ON CONFLICT (job_id) DO UPDATE
		SET data = EXCLUDED.data, expires_at = EXCLUDED.expires_at
	`, jobID, encoded, state.ExpiresAt)
	if err != nil {
		return fmt.Errorf("upsert job state: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, jobID string) (domain.JobState, error) {
	var encoded []byte
	err := s.pool.QueryRow(ctx, `
		SELECT data FROM task_progress
		WHERE job_id = $1 AND expires_at > now()
	`, jobID).Scan(&encoded)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.JobState{}, ErrNotFound
		}
		return domain.JobState{}, fmt.Errorf("query job state: %w", err)
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

func (s *PostgresStore) Delete(ctx context.Context, jobID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM task_progress WHERE job_id = $1`, jobID)
	if err != nil {
		return fmt.Errorf("delete job state: %w", err)
	}
	s.locks.forget(jobID)
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, jobID string, update domain.StateUpdate) error {
	unlock := s.locks.lock(jobID)
	defer unlock()

	state, err := s.Get(ctx, jobID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		state = NewState(domain.JobStatusQueued)
	}
	update.Apply(&state)
	return s.Set(ctx, jobID, state)
}

// CleanupExpired removes expired rows; callers run it periodically.
func (s *PostgresStore) CleanupExpired(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM task_progress WHERE expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("cleanup expired states: %w", err)
	}
	return tag.RowsAffected(), nil
}
