package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/voxdoc/voxdoc-back/internal/domain"
	"github.com/voxdoc/voxdoc-back/internal/progress"
	"github.com/voxdoc/voxdoc-back/internal/queue"
	"github.com/voxdoc/voxdoc-back/internal/storage"
)

var (
	ErrInvalidOutputKind = errors.New("invalid output kind")
	ErrUnsupportedFile   = errors.New("unsupported file type")
	ErrEmptyUpload       = errors.New("empty upload")
)

// JobsService accepts conversion submissions, persists the upload, seeds the
// progress record and hands the job to the queue.
type JobsService struct {
	store     progress.Store
	producer  queue.Producer
	outputs   *storage.OutputStore
	uploadDir string
}

func NewJobsService(
	store progress.Store,
	producer queue.Producer,
	outputs *storage.OutputStore,
	uploadDir string,
) *JobsService {
	return &JobsService{
		store:     store,
		producer:  producer,
		outputs:   outputs,
		uploadDir: uploadDir,
	}
}

type SubmitInput struct {
	Filename   string
	Content    []byte
	Output     domain.OutputKind
	TargetLang string
	Speed      float64
	UserRef    string
}

// Submit validates the request, stores the upload under a job-namespaced
// name and enqueues the conversion. It returns immediately with the job.
func (s *JobsService) Submit(ctx context.Context, input SubmitInput) (*domain.Job, error) {
	if !input.Output.Valid() {
		return nil, ErrInvalidOutputKind
	}
	if len(input.Content) == 0 {
		return nil, ErrEmptyUpload
	}
	ext := strings.ToLower(filepath.Ext(input.Filename))
	if ext != ".pdf" && ext != ".txt" {
		return nil, ErrUnsupportedFile
	}
	if input.TargetLang == "" {
		input.TargetLang = "en"
	}
	if input.Speed <= 0 {
		input.Speed = 1.0
	}
	if input.Speed < 0.5 {
		input.Speed = 0.5
	}
	if input.Speed > 2.0 {
		input.Speed = 2.0
	}

	now := time.Now().UTC()
	job := &domain.Job{
		ID:         uuid.NewString(),
		Filename:   filepath.Base(input.Filename),
		Output:     input.Output,
		TargetLang: input.TargetLang,
		Speed:      input.Speed,
		UserRef:    input.UserRef,
		CreatedAt:  now,
	}

	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	job.UploadPath = filepath.Join(s.uploadDir, job.ID+"_"+job.Filename)
	if err := os.WriteFile(job.UploadPath, input.Content, 0o644); err != nil {
		return nil, fmt.Errorf("persist upload: %w", err)
	}

	if err := s.store.Set(ctx, job.ID, progress.NewState(domain.JobStatusQueued)); err != nil {
		return nil, fmt.Errorf("seed job state: %w", err)
	}

	message := domain.QueueMessage{
		JobID:       job.ID,
		Filename:    job.Filename,
		UploadPath:  job.UploadPath,
		Output:      job.Output,
		TargetLang:  job.TargetLang,
		Speed:       job.Speed,
		UserRef:     job.UserRef,
		Attempt:     0,
		RequestedAt: now,
	}
	if err := s.producer.Enqueue(ctx, message); err != nil {
		status := domain.JobStatusError
		errText := "failed to enqueue conversion"
		_ = s.store.Update(ctx, job.ID, domain.StateUpdate{Status: &status, Error: &errText})
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	return job, nil
}

// State returns the current progress record; unknown or expired ids come
// back as the safe initializing default from the tiered store.
func (s *JobsService) State(ctx context.Context, jobID string) (domain.JobState, error) {
	return s.store.Get(ctx, jobID)
}

// ResolveArtifact walks the output store's retrieval chain for one produced
// artifact of the job.
func (s *JobsService) ResolveArtifact(
	ctx context.Context,
	jobID string,
	kind domain.ArtifactKind,
) (storage.Resolved, error) {
	state, err := s.store.Get(ctx, jobID)
	if err != nil {
		return storage.Resolved{}, err
	}
	artifact, ok := state.Artifacts[kind]
	if !ok {
		return storage.Resolved{}, storage.ErrArtifactNotFound
	}
	return s.outputs.Resolve(ctx, jobID, kind, artifact)
}
