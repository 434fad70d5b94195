package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/voxdoc/voxdoc-back/internal/domain"
	"github.com/voxdoc/voxdoc-back/internal/storage"
)

// JobState handles both polling (GET /v1/conversions/{id}) and artifact
// fetch (GET /v1/conversions/{id}/artifact).
func (api *API) JobState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/v1/conversions/")
	jobID, tail, _ := strings.Cut(rest, "/")
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "job_id is required")
		return
	}

	if tail == "artifact" {
		api.fetchArtifact(w, r, jobID)
		return
	}
	if tail != "" {
		writeError(w, r, http.StatusNotFound, "not_found", "unknown resource")
		return
	}

	// Polling must stay safe for unknown or expired ids: the store
	// synthesizes a queued/initializing state instead of failing.
	state, err := api.jobsService.State(r.Context(), jobID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to load job state")
		return
	}

	response := map[string]any{
		"job_id":     jobID,
		"status":     state.Status,
		"progress":   state.Progress,
		"updated_at": state.UpdatedAt,
		"expires_at": state.ExpiresAt,
	}
	if state.Message != "" {
		response["message"] = state.Message
	}
	if state.Error != "" {
		response["error"] = map[string]any{
			"code":    "processing_error",
			"message": state.Error,
		}
	}
	if len(state.Artifacts) > 0 {
		response["artifacts"] = state.Artifacts
	}
	writeJSON(w, http.StatusOK, response)
}

func (api *API) fetchArtifact(w http.ResponseWriter, r *http.Request, jobID string) {
	kind := domain.ArtifactKind(r.URL.Query().Get("kind"))
	if kind == "" {
		kind = domain.ArtifactAudio
	}
	if kind != domain.ArtifactAudio && kind != domain.ArtifactDocument {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "kind must be audio or document")
		return
	}

	resolved, err := api.jobsService.ResolveArtifact(r.Context(), jobID, kind)
	if err != nil {
		if errors.Is(err, storage.ErrArtifactNotFound) {
			writeError(w, r, http.StatusNotFound, "not_found", "artifact not available")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to resolve artifact")
		return
	}

	if resolved.RedirectURL != "" {
		http.Redirect(w, r, resolved.RedirectURL, http.StatusFound)
		return
	}
	w.Header().Set("Content-Type", resolved.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+jobID+"_"+string(kind)+extensionHint(kind)+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(resolved.Data)
}

func extensionHint(kind domain.ArtifactKind) string {
	if kind == domain.ArtifactAudio {
		return ".mp3"
	}
	return ".pdf"
}
