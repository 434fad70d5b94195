package domain

import "testing"

func TestOutputKindBranchSelection(t *testing.T) {
	tests := []struct {
		kind         OutputKind
		wantAudio    bool
		wantDocument bool
	}{
		{OutputAudio, true, false},
		{OutputDocument, false, true},
		{OutputBoth, true, true},
	}
	for _, tc := range tests {
		if got := tc.kind.WantsAudio(); got != tc.wantAudio {
			t.Fatalf("%s WantsAudio = %v, expected %v", tc.kind, got, tc.wantAudio)
		}
		if got := tc.kind.WantsDocument(); got != tc.wantDocument {
			t.Fatalf("%s WantsDocument = %v, expected %v", tc.kind, got, tc.wantDocument)
		}
	}
	if OutputKind("video").Valid() {
		t.Fatalf("expected unknown output kind to be invalid")
	}
}

func TestJobStatusTerminal(t *testing.T) {
	terminal := []JobStatus{JobStatusCompleted, JobStatusWarning, JobStatusError}
	for _, status := range terminal {
		if !status.Terminal() {
			t.Fatalf("expected %s to be terminal", status)
		}
	}
	inFlight := []JobStatus{JobStatusQueued, JobStatusExtracting, JobStatusSynthesizing, JobStatusAssembling, JobStatusRendering}
	for _, status := range inFlight {
		if status.Terminal() {
			t.Fatalf("expected %s to be non-terminal", status)
		}
	}
}

func TestStateUpdateApplyMergesDisjointFields(t *testing.T) {
	state := JobState{Status: JobStatusQueued, Progress: 0}

	status := JobStatusSynthesizing
	progress := 40
	message := "processing chunk 4 of 10"
	StateUpdate{Status: &status}.Apply(&state)
	StateUpdate{Progress: &progress}.Apply(&state)
	StateUpdate{Message: &message}.Apply(&state)

	if state.Status != JobStatusSynthesizing {
		t.Fatalf("expected status merged, got %s", state.Status)
	}
	if state.Progress != 40 {
		t.Fatalf("expected progress merged, got %d", state.Progress)
	}
	if state.Message != message {
		t.Fatalf("expected message merged, got %q", state.Message)
	}
}

func TestStateUpdateApplyKeepsProgressMonotonic(t *testing.T) {
	state := JobState{Status: JobStatusSynthesizing, Progress: 60}

	lower := 30
	StateUpdate{Progress: &lower}.Apply(&state)
	if state.Progress != 60 {
		t.Fatalf("expected stale lower progress ignored, got %d", state.Progress)
	}

	higher := 70
	StateUpdate{Progress: &higher}.Apply(&state)
	if state.Progress != 70 {
		t.Fatalf("expected higher progress applied, got %d", state.Progress)
	}
}

func TestStateUpdateApplyProtectsTerminalStatus(t *testing.T) {
	state := JobState{Status: JobStatusError, Progress: 45}

	stage := JobStatusAssembling
	StateUpdate{Status: &stage}.Apply(&state)
	if state.Status != JobStatusError {
		t.Fatalf("expected terminal status protected from stage update, got %s", state.Status)
	}

	// Terminal-to-terminal transitions remain allowed.
	warning := JobStatusWarning
	StateUpdate{Status: &warning}.Apply(&state)
	if state.Status != JobStatusWarning {
		t.Fatalf("expected terminal-to-terminal transition, got %s", state.Status)
	}
}

func TestStateUpdateApplyMergesArtifactsPerKind(t *testing.T) {
	state := JobState{Status: JobStatusAssembling}

	StateUpdate{Artifacts: map[ArtifactKind]Artifact{
		ArtifactAudio: {Kind: ArtifactAudio, LocalPath: "/out/a.mp3"},
	}}.Apply(&state)
	StateUpdate{Artifacts: map[ArtifactKind]Artifact{
		ArtifactDocument: {Kind: ArtifactDocument, LocalPath: "/out/d.pdf"},
	}}.Apply(&state)

	if len(state.Artifacts) != 2 {
		t.Fatalf("expected both artifact kinds present, got %d", len(state.Artifacts))
	}
	if state.Artifacts[ArtifactAudio].LocalPath != "/out/a.mp3" {
		t.Fatalf("expected audio artifact preserved across merges")
	}
}

func TestArtifactKindContentType(t *testing.T) {
	if got := ArtifactAudio.ContentType(); got != "audio/mpeg" {
		t.Fatalf("expected audio/mpeg, got %s", got)
	}
	if got := ArtifactDocument.ContentType(); got != "application/pdf" {
		t.Fatalf("expected application/pdf, got %s", got)
	}
}
