package progress

import (
	"context"
	"errors"
	"log"

	"github.com/voxdoc/voxdoc-back/internal/domain"
)

// Tiered composes a primary structured store with a flat-file fallback.
// Writes hit the primary first and mirror to the fallback only when the
// primary fails; reads prefer the primary, then the fallback, then a
// synthesized initializing state so pollers racing job creation never see a
// spurious "not found".
type Tiered struct {
	primary  Store
	fallback Store
	logger   *log.Logger
}

func NewTiered(primary, fallback Store, logger *log.Logger) *Tiered {
	return &Tiered{primary: primary, fallback: fallback, logger: logger}
}

func (t *Tiered) Set(ctx context.Context, jobID string, state domain.JobState) error {
	err := t.primary.Set(ctx, jobID, state)
	if err == nil {
		return nil
	}
	if t.logger != nil {
		t.logger.Printf("primary progress store set failed job_id=%s, using fallback: %v", jobID, err)
	}
	return t.fallback.Set(ctx, jobID, state)
}

func (t *Tiered) Get(ctx context.Context, jobID string) (domain.JobState, error) {
	state, err := t.primary.Get(ctx, jobID)
	if err == nil {
		return state, nil
	}
	if !errors.Is(err, ErrNotFound) && t.logger != nil {
		t.logger.Printf("primary progress store get failed job_id=%s, trying fallback: %v", jobID, err)
	}

	state, fallbackErr := t.fallback.Get(ctx, jobID)
	if fallbackErr == nil {
		return state, nil
	}
	// Unknown, expired or unreachable on both tiers: synthesize the safe
	// default instead of a "not found", which would surface as a client
	// error during the submit/poll race.
	return InitializingState(), nil
}

func (t *Tiered) Delete(ctx context.Context, jobID string) error {
	primaryErr := t.primary.Delete(ctx, jobID)
	fallbackErr := t.fallback.Delete(ctx, jobID)
	if primaryErr != nil {
		return primaryErr
	}
	return fallbackErr
}

func (t *Tiered) Update(ctx context.Context, jobID string, update domain.StateUpdate) error {
	err := t.primary.Update(ctx, jobID, update)
	if err == nil {
		return nil
	}
	if t.logger != nil {
		t.logger.Printf("primary progress store update failed job_id=%s, using fallback: %v", jobID, err)
	}
	return t.fallback.Update(ctx, jobID, update)
}
