package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/webhook"
)

const maxWebhookBody = 1 << 20

// ProviderWebhook ingests one provider delivery. The provider retries on any
// non-2xx, so every path that should not be retried acknowledges with 200:
// unknown jobs, unrecognized payloads, stale and duplicate deliveries. Only
// a failed signature check (strict mode) and storage failures refuse.
func (a *App) ProviderWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "unreadable body")
		return
	}

	if err := a.ProviderVerifier.Verify(body, r.Header, time.Now()); err != nil {
		if a.VerifyMode == infra.VerifyModeStrict {
			a.Logger.Warn().Err(err).Str("delivery_id", r.Header.Get(webhook.HeaderID)).Msg("webhook signature rejected")
			a.error(w, http.StatusUnauthorized, "signature_invalid", "signature verification failed")
			return
		}
		a.Logger.Warn().Err(err).Str("delivery_id", r.Header.Get(webhook.HeaderID)).Msg("webhook signature mismatch, processing anyway")
	}

	ev, err := webhook.Decode(body)
	if err != nil {
		// Malformed payloads are acknowledged so the provider stops retrying.
		a.Logger.Warn().Err(err).Msg("undecodable webhook payload dropped")
		a.json(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	if ev.Class == webhook.ClassUnrecognized {
		// Shape alone was ambiguous: classify against the registry. Stale and
		// test deliveries legitimately reference no row.
		job, err := a.Jobs.GetByExternalID(r.Context(), ev.ID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				a.Logger.Info().Str("external_id", ev.ID).Msg("webhook for unknown job dropped")
				a.json(w, http.StatusOK, map[string]string{"status": "ignored"})
				return
			}
			a.error(w, http.StatusInternalServerError, "internal", "registry lookup failed")
			return
		}
		if job.Kind == domain.JobKindTraining {
			ev.Class = webhook.ClassTraining
		} else {
			ev.Class = webhook.ClassPrediction
		}
	}

	jobEvent, ok := ev.JobEvent()
	if !ok {
		a.Logger.Info().Str("external_id", ev.ID).Str("status", ev.Status).Msg("webhook with unmapped status dropped")
		a.json(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	out, err := a.Merger.Apply(r.Context(), jobEvent)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownJob) {
			a.Logger.Info().Str("external_id", ev.ID).Msg("webhook for unknown job dropped")
			a.json(w, http.StatusOK, map[string]string{"status": "ignored"})
			return
		}
		a.Logger.Error().Err(err).Str("external_id", ev.ID).Msg("event application failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to apply event")
		return
	}

	result := "applied"
	if out.Regression || out.Duplicate {
		result = "noop"
	}
	a.json(w, http.StatusOK, map[string]string{"status": result})
}
