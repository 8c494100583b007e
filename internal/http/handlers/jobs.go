package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"server/internal/domain"
)

type jobCreateRequest struct {
	Kind   domain.JobKind `json:"kind"`
	Params map[string]any `json:"params"`
}

type jobResponse struct {
	ID           string     `json:"id"`
	ExternalID   string     `json:"external_id"`
	Kind         string     `json:"kind"`
	Status       string     `json:"status"`
	Outputs      []string   `json:"outputs"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

func toJobResponse(job domain.Job) jobResponse {
	outputs := job.Outputs
	if outputs == nil {
		outputs = []string{}
	}
	return jobResponse{
		ID:           job.ID,
		ExternalID:   job.ExternalID,
		Kind:         string(job.Kind),
		Status:       string(job.Status),
		Outputs:      outputs,
		ErrorMessage: job.ErrorMessage,
		CreatedAt:    job.CreatedAt,
		UpdatedAt:    job.UpdatedAt,
		CompletedAt:  job.CompletedAt,
	}
}

// JobsCreate admits a new job: ledger debit, provider registration, registry
// row, in that order.
func (a *App) JobsCreate(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req jobCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if !domain.ValidKind(req.Kind) {
		a.error(w, http.StatusBadRequest, "bad_request", "unsupported job kind")
		return
	}

	job, err := a.Submitter.Submit(r.Context(), userID, req.Kind, req.Params)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInsufficientResources):
			a.error(w, http.StatusPaymentRequired, "insufficient_resources", "not enough credits or model slots for this job")
		case errors.Is(err, domain.ErrProviderUnavailable):
			a.error(w, http.StatusServiceUnavailable, "provider_unavailable", "compute provider rejected the job, please retry")
		default:
			a.Logger.Error().Err(err).Str("user_id", userID).Msg("job submission failed")
			a.error(w, http.StatusInternalServerError, "internal", "failed to submit job")
		}
		return
	}
	a.json(w, http.StatusCreated, toJobResponse(*job))
}

// JobsPending is the client reconciliation path: a direct registry read of
// the caller's non-terminal jobs, bypassing the provider.
func (a *App) JobsPending(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	jobs, err := a.Poller.Reconcile(r.Context(), userID)
	if err != nil {
		a.Logger.Error().Err(err).Str("user_id", userID).Msg("pending reconcile failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load pending jobs")
		return
	}
	items := make([]jobResponse, 0, len(jobs))
	for _, job := range jobs {
		items = append(items, toJobResponse(job))
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

// JobsGet returns one job, owner-scoped.
func (a *App) JobsGet(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "job_id required")
		return
	}
	job, err := a.Jobs.GetByID(r.Context(), jobID)
	if err != nil || job.UserID != userID {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return
	}
	a.json(w, http.StatusOK, toJobResponse(*job))
}
