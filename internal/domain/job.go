package domain

import (
	"time"
)

type OutputKind string

const (
	OutputAudio    OutputKind = "audio"
	OutputDocument OutputKind = "document"
	OutputBoth     OutputKind = "both"
)

// WantsAudio reports whether the requested output includes an audio artifact.
func (k OutputKind) WantsAudio() bool {
	return k == OutputAudio || k == OutputBoth
}

// WantsDocument reports whether the requested output includes a document artifact.
func (k OutputKind) WantsDocument() bool {
	return k == OutputDocument || k == OutputBoth
}

func (k OutputKind) Valid() bool {
	switch k {
	case OutputAudio, OutputDocument, OutputBoth:
		return true
	}
	return false
}

type JobStatus string

const (
	JobStatusQueued       JobStatus = "queued"
	JobStatusExtracting   JobStatus = "extracting"
	JobStatusTranslating  JobStatus = "translating"
	JobStatusSynthesizing JobStatus = "synthesizing"
	JobStatusAssembling   JobStatus = "assembling"
	JobStatusRendering    JobStatus = "rendering"
	JobStatusCompleted    JobStatus = "completed"
	JobStatusWarning      JobStatus = "completed_with_warning"
	JobStatusError        JobStatus = "error"
)

// Terminal reports whether a job in this status will never transition again.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusWarning, JobStatusError:
		return true
	}
	return false
}

type ArtifactKind string

const (
	ArtifactAudio    ArtifactKind = "audio"
	ArtifactDocument ArtifactKind = "document"
)

// ContentType returns the MIME type served for this artifact kind.
func (k ArtifactKind) ContentType() string {
	if k == ArtifactAudio {
		return "audio/mpeg"
	}
	return "application/pdf"
}

// Artifact references one produced output across the storage tiers. At least
// one of LocalPath, Cached or RemoteURL must be resolvable for a completed job.
type Artifact struct {
	Kind      ArtifactKind `json:"kind"`
	LocalPath string       `json:"local_path,omitempty"`
	Cached    bool         `json:"cached,omitempty"`
	RemoteURL string       `json:"remote_url,omitempty"`
}

// Job is the canonical async conversion request processed by the worker.
type Job struct {
	ID         string
	Filename   string
	UploadPath string
	Output     OutputKind
	TargetLang string
	Speed      float64
	UserRef    string
	CreatedAt  time.Time
}

// JobState is the durable progress record owned by the progress store.
// It is mutated exclusively through merge updates, never full overwrites.
type JobState struct {
	Status    JobStatus                 `json:"status"`
	Progress  int                       `json:"progress"`
	Message   string                    `json:"message,omitempty"`
	Error     string                    `json:"error,omitempty"`
	Artifacts map[ArtifactKind]Artifact `json:"artifacts,omitempty"`
	UpdatedAt time.Time                 `json:"updated_at"`
	ExpiresAt time.Time                 `json:"expires_at"`
}

// StateUpdate is a partial JobState. Nil fields are left untouched by Apply;
// Artifacts entries are merged per kind.
type StateUpdate struct {
	Status    *JobStatus
	Progress  *int
	Message   *string
	Error     *string
	Artifacts map[ArtifactKind]Artifact
}

// Apply merges the update into the state in place. Progress never decreases
// while the job is non-terminal, and a terminal status is never replaced by
// a pipeline stage.
func (u StateUpdate) Apply(state *JobState) {
	if u.Status != nil {
		if !state.Status.Terminal() || u.Status.Terminal() {
			state.Status = *u.Status
		}
	}
	if u.Progress != nil && (*u.Progress >= state.Progress || state.Status.Terminal()) {
		state.Progress = *u.Progress
	}
	if u.Message != nil {
		state.Message = *u.Message
	}
	if u.Error != nil {
		state.Error = *u.Error
	}
	if len(u.Artifacts) > 0 {
		if state.Artifacts == nil {
			state.Artifacts = make(map[ArtifactKind]Artifact, len(u.Artifacts))
		}
		for kind, artifact := range u.Artifacts {
			state.Artifacts[kind] = artifact
		}
	}
	state.UpdatedAt = time.Now().UTC()
}

// QueueMessage is the transport format sent to queue backends.
type QueueMessage struct {
	JobID       string     `json:"job_id"`
	Filename    string     `json:"filename"`
	UploadPath  string     `json:"upload_path"`
	Output      OutputKind `json:"output"`
	TargetLang  string     `json:"target_lang"`
	Speed       float64    `json:"speed"`
	UserRef     string     `json:"user_ref,omitempty"`
	Attempt     int        `json:"attempt"`
	RequestedAt time.Time  `json:"requested_at"`
}

// Chunk is a bounded, ordered segment of extracted text, the unit of
// parallel synthesis. Index defines the canonical reassembly order.
type Chunk struct {
	Index      int
	Text       string
	Translated string
	AudioPath  string
}
