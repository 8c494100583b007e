package domain

import "time"

// JobEvent is the validated form of one provider delivery, constructed per
// HTTP callback and discarded after application. It is never a source of
// truth; the Job row is.
type JobEvent struct {
	ExternalID   string
	Status       JobStatus
	Outputs      []string
	ErrorMessage string
}

// RefundPolicy decides what happens to the recorded resource cost when a
// job reaches Failed or Canceled.
type RefundPolicy string

const (
	// RefundPolicyFull returns the full resourceCost recorded at submission.
	RefundPolicyFull RefundPolicy = "full"
	// RefundPolicyNone keeps the debit regardless of outcome.
	RefundPolicyNone RefundPolicy = "none"
)

// MergeOutcome describes the result of applying one event to one job. The
// refund and slot-commit fields are requested at most once per job, on the
// transition into a terminal state, so a retried terminal delivery cannot
// double-apply ledger side effects.
type MergeOutcome struct {
	Job          Job
	Changed      bool // the row needs persisting
	Transitioned bool // status changed
	Terminal     bool // this apply entered a terminal state
	Regression   bool // stale event against a terminal job, dropped
	Duplicate    bool // redelivery of the terminal event already applied

	RefundCredits int
	RefundSlots   int
	CommitSlot    bool
}

// ApplyEvent merges one delivery into a job under the reconciliation
// invariants: idempotent application, output union preserving first-seen
// order, and terminal-state monotonicity. It is pure; callers persist the
// returned job and side effects under per-job serialization (row lock).
func ApplyEvent(job Job, ev JobEvent, policy RefundPolicy, now time.Time) MergeOutcome {
	out := MergeOutcome{Job: job}

	if job.Status.Terminal() {
		// Absorbing: acknowledge and drop. Timestamps are not consulted;
		// redelivery ordering cannot be trusted.
		if ev.Status == job.Status {
			out.Duplicate = true
		} else {
			out.Regression = true
		}
		return out
	}

	merged, grew := unionOutputs(job.Outputs, ev.Outputs)
	if grew {
		out.Job.Outputs = merged
		out.Changed = true
	}

	if ev.Status != job.Status {
		out.Job.Status = ev.Status
		out.Changed = true
		out.Transitioned = true
	}

	if ev.ErrorMessage != "" && ev.ErrorMessage != job.ErrorMessage {
		out.Job.ErrorMessage = ev.ErrorMessage
		out.Changed = true
	}

	if out.Changed {
		out.Job.UpdatedAt = now
	}

	if out.Transitioned && out.Job.Status.Terminal() {
		out.Terminal = true
		completed := now
		out.Job.CompletedAt = &completed

		switch out.Job.Status {
		case JobStatusSucceeded:
			if out.Job.Kind == JobKindTraining {
				out.CommitSlot = true
			}
		case JobStatusFailed, JobStatusCanceled:
			if policy == RefundPolicyFull && out.Job.CompensatedAt == nil && out.Job.ResourceCost > 0 {
				if out.Job.Kind == JobKindTraining {
					out.RefundSlots = out.Job.ResourceCost
				} else {
					out.RefundCredits = out.Job.ResourceCost
				}
				compensated := now
				out.Job.CompensatedAt = &compensated
			}
		}
	}

	return out
}

// unionOutputs appends entries of incoming not already present in existing,
// in delivery order, without reordering stored entries. Providers report
// incrementally or redundantly; prior entries survive payloads that omit them.
func unionOutputs(existing, incoming []string) ([]string, bool) {
	if len(incoming) == 0 {
		return existing, false
	}
	seen := make(map[string]struct{}, len(existing))
	for _, ref := range existing {
		seen[ref] = struct{}{}
	}
	merged := existing
	grew := false
	for _, ref := range incoming {
		if ref == "" {
			continue
		}
		if _, ok := seen[ref]; ok {
			continue
		}
		if !grew {
			// Copy before first append so the input slice is never aliased.
			merged = append(make([]string, 0, len(existing)+len(incoming)), existing...)
			grew = true
		}
		merged = append(merged, ref)
		seen[ref] = struct{}{}
	}
	return merged, grew
}
