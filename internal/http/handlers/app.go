package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/middleware"
	"server/internal/webhook"
)

// JobSubmitter admits and registers new jobs.
type JobSubmitter interface {
	Submit(ctx context.Context, userID string, kind domain.JobKind, params map[string]any) (*domain.Job, error)
}

// EventMerger applies provider deliveries to the registry.
type EventMerger interface {
	Apply(ctx context.Context, ev domain.JobEvent) (*domain.MergeOutcome, error)
}

// PendingReconciler re-derives pending job state from the registry.
type PendingReconciler interface {
	Reconcile(ctx context.Context, userID string) ([]domain.Job, error)
}

// App bundles the dependencies shared by all HTTP handlers.
type App struct {
	Logger    zerolog.Logger
	Submitter JobSubmitter
	Merger    EventMerger
	Poller    PendingReconciler
	Jobs      domain.JobRepository
	Ledger    domain.LedgerRepository

	ProviderVerifier *webhook.Verifier
	BillingVerifier  *webhook.Verifier
	VerifyMode       infra.VerifyMode
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, slug, message string) {
	a.json(w, code, map[string]string{"error": slug, "message": message})
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}
