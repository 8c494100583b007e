package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"server/internal/domain"
)

type billingEvent struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
	Amount int    `json:"amount"`
	Plan   string `json:"plan"`
}

// BillingWebhook consumes the payment collaborator's lifecycle events. Only
// the resulting ledger values matter to this service; the billing cycle
// itself lives with the collaborator. Billing deliveries are always verified
// strictly, independent of the provider verify mode.
func (a *App) BillingWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "unreadable body")
		return
	}
	if err := a.BillingVerifier.Verify(body, r.Header, time.Now()); err != nil {
		a.Logger.Warn().Err(err).Msg("billing webhook signature rejected")
		a.error(w, http.StatusUnauthorized, "signature_invalid", "signature verification failed")
		return
	}

	var ev billingEvent
	if err := json.Unmarshal(body, &ev); err != nil || ev.UserID == "" {
		a.Logger.Warn().Err(err).Msg("undecodable billing event dropped")
		a.json(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	switch ev.Type {
	case "checkout.completed":
		if ev.Amount <= 0 {
			a.error(w, http.StatusBadRequest, "bad_request", "amount must be positive")
			return
		}
		if err := a.Ledger.Credit(r.Context(), ev.UserID, ev.Amount); err != nil {
			a.Logger.Error().Err(err).Str("user_id", ev.UserID).Msg("ledger credit failed")
			a.error(w, http.StatusInternalServerError, "internal", "failed to credit ledger")
			return
		}
	case "invoice.paid":
		plan, ok := domain.PlanByName(ev.Plan)
		if !ok {
			a.error(w, http.StatusBadRequest, "bad_request", "unknown plan")
			return
		}
		if err := a.Ledger.ResetForNewPeriod(r.Context(), ev.UserID, plan); err != nil {
			a.Logger.Error().Err(err).Str("user_id", ev.UserID).Msg("ledger reset failed")
			a.error(w, http.StatusInternalServerError, "internal", "failed to reset ledger")
			return
		}
	default:
		a.Logger.Info().Str("type", ev.Type).Msg("unhandled billing event acknowledged")
	}
	a.json(w, http.StatusOK, map[string]string{"status": "ok"})
}
