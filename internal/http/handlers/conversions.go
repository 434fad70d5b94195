package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/voxdoc/voxdoc-back/internal/domain"
	"github.com/voxdoc/voxdoc-back/internal/http/middleware"
	"github.com/voxdoc/voxdoc-back/internal/service"
)

// Submit accepts a multipart document upload and returns the job id
// immediately; the conversion runs on the background worker.
func (api *API) Submit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, api.maxUploadBytes)
	if err := r.ParseMultipartForm(api.maxUploadBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid multipart upload")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "file is required")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "failed reading upload")
		return
	}

	output := domain.OutputKind(r.FormValue("output"))
	if output == "" {
		output = domain.OutputAudio
	}

	speed := 1.0
	if raw := strings.TrimSpace(r.FormValue("speed")); raw != "" {
		parsed, parseErr := strconv.ParseFloat(raw, 64)
		if parseErr != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_request", "speed must be a number")
			return
		}
		speed = parsed
	}

	job, err := api.jobsService.Submit(r.Context(), service.SubmitInput{
		Filename:   header.Filename,
		Content:    content,
		Output:     output,
		TargetLang: strings.TrimSpace(r.FormValue("target_lang")),
		Speed:      speed,
		UserRef:    middleware.GetIdentityToken(r.Context()),
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidOutputKind):
			writeError(w, r, http.StatusBadRequest, "invalid_request", "output must be audio, document or both")
		case errors.Is(err, service.ErrUnsupportedFile):
			writeError(w, r, http.StatusBadRequest, "invalid_request", "only .pdf and .txt uploads are supported")
		case errors.Is(err, service.ErrEmptyUpload):
			writeError(w, r, http.StatusBadRequest, "invalid_request", "uploaded file is empty")
		default:
			writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to accept conversion")
		}
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id": job.ID,
		"status": domain.JobStatusQueued,
	})
}
