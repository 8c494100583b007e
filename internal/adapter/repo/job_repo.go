package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/domain"
)

// JobRepositoryPG implements domain.JobRepository backed by PostgreSQL.
type JobRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(pool *pgxpool.Pool) *JobRepositoryPG {
	return &JobRepositoryPG{pool: pool}
}

const jobColumns = `id, external_id, user_id, kind, status, outputs, error_message, resource_cost, compensated_at, created_at, updated_at, completed_at`

// Create inserts a new registry row. The external id is written here, once,
// before the caller learns the job exists.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.Job) error {
	outputs, err := json.Marshal(emptyIfNil(job.Outputs))
	if err != nil {
		return fmt.Errorf("encode outputs: %w", err)
	}
	query := `
INSERT INTO jobs (id, external_id, user_id, kind, status, outputs, error_message, resource_cost, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);
`
	_, err = r.pool.Exec(ctx, query,
		job.ID,
		job.ExternalID,
		job.UserID,
		job.Kind,
		job.Status,
		outputs,
		job.ErrorMessage,
		job.ResourceCost,
		job.CreatedAt,
		job.UpdatedAt,
	)
	return err
}

// GetByID fetches a job by its local identifier.
func (r *JobRepositoryPG) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	return scanJob(row)
}

// GetByExternalID fetches a job by the provider-assigned correlation id.
func (r *JobRepositoryPG) GetByExternalID(ctx context.Context, externalID string) (*domain.Job, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE external_id = $1`, externalID)
	return scanJob(row)
}

// ListPendingByUser returns the user's non-terminal jobs, oldest first.
func (r *JobRepositoryPG) ListPendingByUser(ctx context.Context, userID string) ([]domain.Job, error) {
	query := `
SELECT ` + jobColumns + `
FROM jobs
WHERE user_id = $1
  AND status NOT IN ('succeeded', 'failed', 'canceled')
ORDER BY created_at ASC;
`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// ApplyEvent merges one delivery under a row lock on the job named by the
// event's external id. The lock serializes concurrent deliveries for the
// same job, which makes the terminal-state guard race-free; ledger side
// effects requested by the merge commit in the same transaction.
func (r *JobRepositoryPG) ApplyEvent(ctx context.Context, ev domain.JobEvent, policy domain.RefundPolicy) (*domain.MergeOutcome, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin apply: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE external_id = $1 FOR UPDATE`, ev.ExternalID)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrUnknownJob
		}
		return nil, err
	}

	out := domain.ApplyEvent(*job, ev, policy, time.Now().UTC())

	if out.Changed {
		outputs, err := json.Marshal(emptyIfNil(out.Job.Outputs))
		if err != nil {
			return nil, fmt.Errorf("encode outputs: %w", err)
		}
		_, err = tx.Exec(ctx, `
UPDATE jobs
SET status = $2,
    outputs = $3,
    error_message = $4,
    compensated_at = $5,
    completed_at = $6,
    updated_at = $7
WHERE id = $1;
`, out.Job.ID, out.Job.Status, outputs, out.Job.ErrorMessage, out.Job.CompensatedAt, out.Job.CompletedAt, out.Job.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("update job: %w", err)
		}
	}

	if out.RefundCredits > 0 {
		if _, err := tx.Exec(ctx, `
UPDATE ledgers SET credits_remaining = credits_remaining + $2, updated_at = now() WHERE user_id = $1;
`, out.Job.UserID, out.RefundCredits); err != nil {
			return nil, fmt.Errorf("refund credits: %w", err)
		}
	}
	if out.RefundSlots > 0 {
		if _, err := tx.Exec(ctx, `
UPDATE ledgers SET model_slots_remaining = model_slots_remaining + $2, updated_at = now() WHERE user_id = $1;
`, out.Job.UserID, out.RefundSlots); err != nil {
			return nil, fmt.Errorf("refund model slots: %w", err)
		}
	}
	if out.CommitSlot {
		if _, err := tx.Exec(ctx, `
UPDATE ledgers SET model_slots_committed = model_slots_committed + 1, updated_at = now() WHERE user_id = $1;
`, out.Job.UserID); err != nil {
			return nil, fmt.Errorf("commit model slot: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit apply: %w", err)
	}
	return &out, nil
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var job domain.Job
	var outputs []byte
	if err := row.Scan(
		&job.ID,
		&job.ExternalID,
		&job.UserID,
		&job.Kind,
		&job.Status,
		&outputs,
		&job.ErrorMessage,
		&job.ResourceCost,
		&job.CompensatedAt,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.CompletedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if len(outputs) > 0 {
		if err := json.Unmarshal(outputs, &job.Outputs); err != nil {
			return nil, fmt.Errorf("decode outputs: %w", err)
		}
	}
	return &job, nil
}

func emptyIfNil(refs []string) []string {
	if refs == nil {
		return []string{}
	}
	return refs
}
