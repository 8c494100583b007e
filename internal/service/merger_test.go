package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"server/internal/domain"
)

// memRegistry mirrors the PG repository's contract: per-job serialized
// application of the pure merge with ledger side effects accounted.
type memRegistry struct {
	mu      sync.Mutex
	jobs    map[string]domain.Job
	refunds int
	commits int
}

func newMemRegistry(jobs ...domain.Job) *memRegistry {
	r := &memRegistry{jobs: make(map[string]domain.Job)}
	for _, j := range jobs {
		r.jobs[j.ExternalID] = j
	}
	return r
}

func (r *memRegistry) Create(ctx context.Context, job *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ExternalID] = *job
	return nil
}

func (r *memRegistry) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		if j.ID == id {
			job := j
			return &job, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memRegistry) GetByExternalID(ctx context.Context, externalID string) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if j, ok := r.jobs[externalID]; ok {
		job := j
		return &job, nil
	}
	return nil, domain.ErrNotFound
}

func (r *memRegistry) ListPendingByUser(ctx context.Context, userID string) ([]domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var pending []domain.Job
	for _, j := range r.jobs {
		if j.UserID == userID && !j.Status.Terminal() {
			pending = append(pending, j)
		}
	}
	return pending, nil
}

func (r *memRegistry) ApplyEvent(ctx context.Context, ev domain.JobEvent, policy domain.RefundPolicy) (*domain.MergeOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[ev.ExternalID]
	if !ok {
		return nil, domain.ErrUnknownJob
	}
	out := domain.ApplyEvent(job, ev, policy, time.Now().UTC())
	if out.Changed {
		r.jobs[ev.ExternalID] = out.Job
	}
	if out.RefundCredits > 0 || out.RefundSlots > 0 {
		r.refunds++
	}
	if out.CommitSlot {
		r.commits++
	}
	return &out, nil
}

type recordingNotifier struct {
	mu        sync.Mutex
	published []domain.Job
	err       error
}

func (n *recordingNotifier) PublishStatus(ctx context.Context, job domain.Job) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.published = append(n.published, job)
	return n.err
}

func pendingJob(externalID string, kind domain.JobKind) domain.Job {
	now := time.Now().UTC()
	return domain.Job{
		ID:           "job-" + externalID,
		ExternalID:   externalID,
		UserID:       "user-1",
		Kind:         kind,
		Status:       domain.JobStatusQueued,
		ResourceCost: 1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestMergerPublishesTransitionsOnce(t *testing.T) {
	registry := newMemRegistry(pendingJob("ext-1", domain.JobKindGeneration))
	notifier := &recordingNotifier{}
	m := NewMerger(registry, domain.RefundPolicyFull, notifier, zerolog.Nop())

	ev := domain.JobEvent{ExternalID: "ext-1", Status: domain.JobStatusSucceeded, Outputs: []string{"u1"}}
	if _, err := m.Apply(context.Background(), ev); err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	// At-least-once redelivery.
	if _, err := m.Apply(context.Background(), ev); err != nil {
		t.Fatalf("redelivery returned error: %v", err)
	}

	if len(notifier.published) != 1 {
		t.Fatalf("published = %d, want 1", len(notifier.published))
	}
	if notifier.published[0].Status != domain.JobStatusSucceeded {
		t.Fatalf("published status = %s", notifier.published[0].Status)
	}
}

func TestMergerStaleEventIsSilentNoOp(t *testing.T) {
	registry := newMemRegistry(pendingJob("ext-1", domain.JobKindGeneration))
	m := NewMerger(registry, domain.RefundPolicyFull, nil, zerolog.Nop())

	if _, err := m.Apply(context.Background(), domain.JobEvent{ExternalID: "ext-1", Status: domain.JobStatusSucceeded}); err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	out, err := m.Apply(context.Background(), domain.JobEvent{ExternalID: "ext-1", Status: domain.JobStatusProcessing})
	if err != nil {
		t.Fatalf("stale apply errored: %v", err)
	}
	if !out.Regression || out.Job.Status != domain.JobStatusSucceeded {
		t.Fatalf("stale apply outcome = %+v", out)
	}
}

func TestMergerUnknownJobSurfaces(t *testing.T) {
	m := NewMerger(newMemRegistry(), domain.RefundPolicyFull, nil, zerolog.Nop())
	_, err := m.Apply(context.Background(), domain.JobEvent{ExternalID: "ghost", Status: domain.JobStatusProcessing})
	if !errors.Is(err, domain.ErrUnknownJob) {
		t.Fatalf("error = %v, want ErrUnknownJob", err)
	}
}

func TestMergerNotifierFailureDoesNotFailApply(t *testing.T) {
	registry := newMemRegistry(pendingJob("ext-1", domain.JobKindTraining))
	notifier := &recordingNotifier{err: errors.New("broker down")}
	m := NewMerger(registry, domain.RefundPolicyFull, notifier, zerolog.Nop())

	out, err := m.Apply(context.Background(), domain.JobEvent{ExternalID: "ext-1", Status: domain.JobStatusFailed})
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if !out.Terminal {
		t.Fatalf("outcome = %+v", out)
	}
	if registry.refunds != 1 {
		t.Fatalf("refunds = %d, want 1", registry.refunds)
	}
}

func TestPollerListsOnlyPendingJobs(t *testing.T) {
	done := pendingJob("ext-done", domain.JobKindGeneration)
	done.Status = domain.JobStatusSucceeded
	registry := newMemRegistry(pendingJob("ext-1", domain.JobKindGeneration), done)

	jobs, err := NewPoller(registry).Reconcile(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Reconcile returned error: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ExternalID != "ext-1" {
		t.Fatalf("pending jobs = %+v", jobs)
	}
}
