package service

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"

	"server/internal/domain"
)

// Poller re-derives pending job state straight from the registry for
// clients that suspect a lost webhook push. It never mutates; the merge
// path owns all writes, which keeps the two trivially consistent.
type Poller struct {
	jobs  domain.JobRepository
	group singleflight.Group
}

// NewPoller wires a poller over the registry.
func NewPoller(jobs domain.JobRepository) *Poller {
	return &Poller{jobs: jobs}
}

// Reconcile lists the user's non-terminal jobs. Concurrent calls for the
// same user (timer plus visibility-regain across tabs) coalesce into one
// registry read.
func (p *Poller) Reconcile(ctx context.Context, userID string) ([]domain.Job, error) {
	v, err, _ := p.group.Do(userID, func() (any, error) {
		return p.jobs.ListPendingByUser(ctx, userID)
	})
	if err != nil {
		return nil, fmt.Errorf("list pending jobs: %w", err)
	}
	jobs, ok := v.([]domain.Job)
	if !ok {
		return nil, fmt.Errorf("unexpected reconcile result type %T", v)
	}
	return jobs, nil
}
