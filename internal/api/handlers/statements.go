package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/plcoste/syndic/internal/api/middleware"
	"github.com/plcoste/syndic/internal/gcs"
	"github.com/plcoste/syndic/internal/jobs"
)

// StatementsHandler receives bank statement uploads and enqueues their
// import.
type StatementsHandler struct {
	storage   gcs.Service
	publisher jobs.Publisher
	bucket    string
	log       zerolog.Logger
}

// NewStatementsHandler creates a statements handler.
func NewStatementsHandler(storage gcs.Service, publisher jobs.Publisher, bucket string, log zerolog.Logger) *StatementsHandler {
	return &StatementsHandler{storage: storage, publisher: publisher, bucket: bucket, log: log}
}

// UploadStatement handles POST /api/buildings/{id}/statements
// The request body is the raw CSV; the import runs asynchronously.
func (h *StatementsHandler) UploadStatement(w http.ResponseWriter, r *http.Request) {
	buildingID := r.PathValue("id")

	if h.bucket == "" {
		middleware.WriteError(w, http.StatusServiceUnavailable, "Statement uploads are not configured")
		return
	}

	data, err := io.ReadAll(r.Body)
	if err != nil || len(data) == 0 {
		middleware.WriteError(w, http.StatusBadRequest, "Statement body is required")
		return
	}

	ctx := r.Context()
	object := fmt.Sprintf("statements/%s/%s/%s.csv",
		buildingID, time.Now().Format("2006/01/02"), uuid.New().String())

	uri, err := h.storage.Upload(ctx, h.bucket, object, data, "text/csv")
	if err != nil {
		h.log.Error().Err(err).Str("building_id", buildingID).Msg("Failed to store statement")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to store statement")
		return
	}

	job := &jobs.ImportStatementJob{
		BuildingID: buildingID,
		GCSURI:     uri,
	}
	if err := h.publisher.PublishImportStatement(ctx, job); err != nil {
		h.log.Error().Err(err).Msg("Failed to enqueue statement import")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue statement import")
		return
	}

	h.log.Info().
		Str("job_id", job.JobID).
		Str("building_id", buildingID).
		Str("gcs_uri", uri).
		Msg("Statement import enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id":  job.JobID,
		"gcs_uri": uri,
		"status":  string(job.Status),
	})
}

// JobsHandler exposes import job status.
type JobsHandler struct {
	store jobs.Store
	log   zerolog.Logger
}

// NewJobsHandler creates a jobs handler.
func NewJobsHandler(store jobs.Store, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{store: store, log: log}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")

	job, err := h.store.GetJob(r.Context(), jobID)
	if err != nil {
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := jobs.Filter{
		BuildingID: query.Get("building_id"),
		Status:     jobs.JobStatus(query.Get("status")),
	}
	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}
	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}
