package domain

import "context"

// JobRepository defines persistence for the job registry.
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	GetByID(ctx context.Context, id string) (*Job, error)
	GetByExternalID(ctx context.Context, externalID string) (*Job, error)
	ListPendingByUser(ctx context.Context, userID string) ([]Job, error)
	// ApplyEvent merges one delivery into the job row named by the event's
	// external id, serialized per job so concurrent deliveries for the same
	// id cannot interleave. Ledger side effects requested by the merge are
	// applied in the same transaction. Returns ErrUnknownJob when no row
	// carries the external id.
	ApplyEvent(ctx context.Context, ev JobEvent, policy RefundPolicy) (*MergeOutcome, error)
}

// LedgerRepository defines persistence for per-user resource accounting.
type LedgerRepository interface {
	GetByUser(ctx context.Context, userID string) (*Ledger, error)
	// TryDebit atomically decrements the pool for the given kind when the
	// subscription is active, inside its period, and has balance. It fails
	// closed: zero rows affected means not admitted, with a reason.
	TryDebit(ctx context.Context, userID string, kind JobKind) (bool, string, error)
	// Refund returns a previously debited amount to the pool for the kind.
	Refund(ctx context.Context, userID string, kind JobKind, amount int) error
	// Credit adds generation credits; invoked by the billing collaborator only.
	Credit(ctx context.Context, userID string, amount int) error
	// ResetForNewPeriod replaces the balances with the plan allotment and
	// opens a fresh period; invoked by the billing collaborator only.
	ResetForNewPeriod(ctx context.Context, userID string, plan Plan) error
}
