package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"server/internal/http/handlers"
	"server/internal/middleware"
)

// Options tunes the router beyond the handler wiring.
type Options struct {
	RateLimitPerMin int
	BillingEnabled  bool
}

// NewRouter mounts the job lifecycle surface: submission, reconciliation
// reads, and the webhook ingress.
func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(app.Logger),
	)

	r.Get("/v1/healthz", app.Health)

	// Webhook ingress authenticates by signature, not session.
	r.Post("/webhooks/provider", app.ProviderWebhook)
	if opts.BillingEnabled {
		r.Post("/webhooks/billing", app.BillingWebhook)
	}

	r.Route("/jobs", func(r chi.Router) {
		r.Use(middleware.Identity)
		r.With(middleware.RateLimit(opts.RateLimitPerMin, time.Minute)).Post("/", app.JobsCreate)
		r.Get("/pending", app.JobsPending)
		r.Get("/{job_id}", app.JobsGet)
	})

	return r
}
