package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"server/internal/domain"
)

// ComputeProvider is the slice of the external provider the submitter needs:
// a synchronous acknowledgment carrying the correlation id.
type ComputeProvider interface {
	CreateJob(ctx context.Context, kind domain.JobKind, params map[string]any, idempotencyKey string) (string, error)
}

// Submitter admits jobs against the ledger and registers them with the
// external provider.
type Submitter struct {
	jobs     domain.JobRepository
	ledger   domain.LedgerRepository
	provider ComputeProvider
	timeout  time.Duration
	logger   zerolog.Logger
}

// NewSubmitter wires a submitter. timeout bounds the blocking provider call.
func NewSubmitter(jobs domain.JobRepository, ledger domain.LedgerRepository, provider ComputeProvider, timeout time.Duration, logger zerolog.Logger) *Submitter {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Submitter{jobs: jobs, ledger: ledger, provider: provider, timeout: timeout, logger: logger}
}

// Submit runs the admission sequence: debit the ledger, register the work
// with the provider, and persist the Queued registry row before returning,
// so a webhook racing ahead of this response always has a row to attach to.
// A provider failure after a successful debit triggers a best-effort
// compensating refund; the debit and the external call cannot share a
// transaction boundary.
func (s *Submitter) Submit(ctx context.Context, userID string, kind domain.JobKind, params map[string]any) (*domain.Job, error) {
	if !domain.ValidKind(kind) {
		return nil, fmt.Errorf("unsupported job kind %q", kind)
	}

	cost := domain.DebitFor(kind)
	ok, reason, err := s.ledger.TryDebit(ctx, userID, kind)
	if err != nil {
		return nil, fmt.Errorf("ledger debit: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", reason, domain.ErrInsufficientResources)
	}

	jobID := uuid.NewString()
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	externalID, err := s.provider.CreateJob(callCtx, kind, params, jobID)
	cancel()
	if err != nil {
		s.refund(userID, kind, cost)
		return nil, fmt.Errorf("create provider job: %w", err)
	}

	now := time.Now().UTC()
	job := &domain.Job{
		ID:           jobID,
		ExternalID:   externalID,
		UserID:       userID,
		Kind:         kind,
		Status:       domain.JobStatusQueued,
		ResourceCost: cost,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		// The provider already accepted the work; without a registry row its
		// webhooks will be dropped as unknown, so return the allocation.
		s.refund(userID, kind, cost)
		s.logger.Error().Err(err).Str("external_id", externalID).Msg("registry insert failed after provider accept")
		return nil, fmt.Errorf("persist job: %w", err)
	}
	return job, nil
}

// refund compensates an admission debit. Best effort: the ledger may be
// briefly short if this fails, which is logged for operator reconciliation.
func (s *Submitter) refund(userID string, kind domain.JobKind, amount int) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.ledger.Refund(ctx, userID, kind, amount); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Str("kind", string(kind)).Int("amount", amount).
			Msg("compensating refund failed")
	}
}
