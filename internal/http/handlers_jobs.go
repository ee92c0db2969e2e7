// Package httpx provides HTTP handlers and utilities for the audioscribe API.
package httpx

import (
	"net/http"
	"strconv"

	"github.com/audioscribe/audioscribe/internal/domain/model"
	"github.com/audioscribe/audioscribe/internal/service"
)

const (
	defaultJobPageSize = 50
	maxJobPageSize     = 500
)

// JobHandlers holds dependencies for job-related HTTP handlers.
type JobHandlers struct {
	Svc *service.JobService
}

// Submit handles POST /api/jobs.
func (h *JobHandlers) Submit(w http.ResponseWriter, r *http.Request) {
	var req model.SubmitJobRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	job, err := h.Svc.Submit(r.Context(), &req)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, job)
}

// Get handles GET /api/jobs/{id}.
func (h *JobHandlers) Get(w http.ResponseWriter, r *http.Request) {
	job, err := h.Svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

// List handles GET /api/jobs with optional owner/state/tag filters.
func (h *JobHandlers) List(w http.ResponseWriter, r *http.Request) {
	opts, err := parseJobListOptions(r)
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_filter", Err: err})
		return
	}

	jobs, err := h.Svc.List(r.Context(), opts)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"jobs":   jobs,
		"limit":  opts.Limit,
		"offset": opts.Offset,
	})
}

// Cancel handles DELETE /api/jobs/{id}. Queued jobs are cancelled
// immediately; running jobs get a cancel request and wind down async.
func (h *JobHandlers) Cancel(w http.ResponseWriter, r *http.Request) {
	job, err := h.Svc.Cancel(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusAccepted, job)
}

// AddTags handles POST /api/jobs/{id}/tags.
func (h *JobHandlers) AddTags(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tags []string `json:"tags"`
	}
	if !DecodeJSON(w, r, &req) {
		return
	}

	job, err := h.Svc.AddTags(r.Context(), r.PathValue("id"), req.Tags)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

// GetTranscript handles GET /api/jobs/{id}/transcript.
func (h *JobHandlers) GetTranscript(w http.ResponseWriter, r *http.Request) {
	result, err := h.Svc.GetTranscript(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// Stats handles GET /api/jobs/stats.
func (h *JobHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Svc.Stats(r.Context())
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}

func parseJobListOptions(r *http.Request) (*model.JobListOptions, error) {
	opts := &model.JobListOptions{}
	opts.Limit, opts.Offset = ParseLimitOffset(r, defaultJobPageSize, maxJobPageSize)

	q := r.URL.Query()
	if v := q.Get("owner"); v != "" {
		opts.OwnerID = &v
	}
	if v := q.Get("state"); v != "" {
		state := model.JobState(v)
		if !state.Valid() {
			return nil, &badQueryError{param: "state", value: v}
		}
		opts.State = &state
	}
	if v := q.Get("tag"); v != "" {
		opts.Tag = &v
	}
	if v := q.Get("sort"); v != "" {
		if v != "asc" && v != "desc" {
			return nil, &badQueryError{param: "sort", value: v}
		}
		opts.SortOrder = v
	}
	return opts, nil
}

type badQueryError struct {
	param string
	value string
}

func (e *badQueryError) Error() string {
	return "invalid value " + strconv.Quote(e.value) + " for query param " + strconv.Quote(e.param)
}
