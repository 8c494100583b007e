package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"server/internal/domain"
)

// StatusNotifier fans a job's status transition out to push consumers.
type StatusNotifier interface {
	PublishStatus(ctx context.Context, job domain.Job) error
}

// Merger drives event application against the registry and emits the
// resulting transitions. All ordering/idempotency rules live in
// domain.ApplyEvent and the repository's per-job serialization; this layer
// adds logging and fanout.
type Merger struct {
	jobs     domain.JobRepository
	policy   domain.RefundPolicy
	notifier StatusNotifier
	logger   zerolog.Logger
}

// NewMerger wires a merger. notifier may be nil when fanout is disabled.
func NewMerger(jobs domain.JobRepository, policy domain.RefundPolicy, notifier StatusNotifier, logger zerolog.Logger) *Merger {
	return &Merger{jobs: jobs, policy: policy, notifier: notifier, logger: logger}
}

// Apply merges one delivery into the registry. Stale and duplicate
// deliveries resolve to successful no-ops; only ErrUnknownJob and storage
// failures surface to the caller.
func (m *Merger) Apply(ctx context.Context, ev domain.JobEvent) (*domain.MergeOutcome, error) {
	out, err := m.jobs.ApplyEvent(ctx, ev, m.policy)
	if err != nil {
		return nil, fmt.Errorf("apply event for %s: %w", ev.ExternalID, err)
	}

	switch {
	case out.Regression:
		m.logger.Debug().Str("external_id", ev.ExternalID).Str("event_status", string(ev.Status)).
			Str("job_status", string(out.Job.Status)).Msg("stale delivery dropped")
	case out.Duplicate:
		m.logger.Debug().Str("external_id", ev.ExternalID).Msg("terminal redelivery acknowledged")
	case out.Transitioned:
		m.logger.Info().Str("external_id", ev.ExternalID).Str("status", string(out.Job.Status)).
			Int("outputs", len(out.Job.Outputs)).Msg("job transitioned")
	}

	if out.Transitioned && m.notifier != nil {
		if err := m.notifier.PublishStatus(ctx, out.Job); err != nil {
			m.logger.Warn().Err(err).Str("external_id", ev.ExternalID).Msg("status fanout failed")
		}
	}
	return out, nil
}
