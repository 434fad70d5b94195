package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/voxdoc/voxdoc-back/internal/http/middleware"
	"github.com/voxdoc/voxdoc-back/internal/service"
)

type API struct {
	jobsService    *service.JobsService
	maxUploadBytes int64
}

func NewAPI(jobsService *service.JobsService, maxUploadBytes int64) *API {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 32 << 20
	}
	return &API{
		jobsService:    jobsService,
		maxUploadBytes: maxUploadBytes,
	}
}

type errorPayload struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	RequestID string `json:"request_id"`
}

func writeJSON(w http.ResponseWriter, statusCode int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, r *http.Request, statusCode int, code, message string) {
	payload := errorPayload{RequestID: middleware.GetRequestID(r.Context())}
	payload.Error.Code = code
	payload.Error.Message = message
	writeJSON(w, statusCode, payload)
}
