package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/domain"
)

// LedgerRepositoryPG implements domain.LedgerRepository backed by PostgreSQL.
// Balance mutations are single conditional updates so concurrent debits for
// one user cannot both succeed on the last unit.
type LedgerRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewLedgerRepository creates a new ledger repository backed by PostgreSQL.
func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepositoryPG {
	return &LedgerRepositoryPG{pool: pool}
}

const ledgerColumns = `user_id, plan, credits_remaining, model_slots_remaining, model_slots_committed, period_start, period_end, is_active, created_at, updated_at`

// GetByUser fetches the user's active ledger row.
func (r *LedgerRepositoryPG) GetByUser(ctx context.Context, userID string) (*domain.Ledger, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+ledgerColumns+` FROM ledgers WHERE user_id = $1`, userID)
	return scanLedger(row)
}

// TryDebit decrements the pool for the kind when the subscription is active,
// inside its period, and has balance. Zero rows affected means not admitted.
// An expired-but-still-flagged-active row is deactivated lazily here, since
// admission is the only place staleness matters.
func (r *LedgerRepositoryPG) TryDebit(ctx context.Context, userID string, kind domain.JobKind) (bool, string, error) {
	column := "credits_remaining"
	if kind == domain.JobKindTraining {
		column = "model_slots_remaining"
	}
	amount := domain.DebitFor(kind)

	query := fmt.Sprintf(`
UPDATE ledgers
SET %s = %s - $2,
    updated_at = now()
WHERE user_id = $1
  AND is_active
  AND now() BETWEEN period_start AND period_end
  AND %s >= $2;
`, column, column, column)

	tag, err := r.pool.Exec(ctx, query, userID, amount)
	if err != nil {
		return false, "", err
	}
	if tag.RowsAffected() > 0 {
		return true, "", nil
	}

	reason, err := r.denialReason(ctx, userID, kind)
	if err != nil {
		return false, "", err
	}
	return false, reason, nil
}

func (r *LedgerRepositoryPG) denialReason(ctx context.Context, userID string, kind domain.JobKind) (string, error) {
	ledger, err := r.GetByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "no subscription", nil
		}
		return "", err
	}

	if ledger.IsActive && time.Now().After(ledger.PeriodEnd) {
		// Stale period still flagged active: deactivate on read.
		if _, err := r.pool.Exec(ctx, `
UPDATE ledgers SET is_active = false, updated_at = now() WHERE user_id = $1 AND period_end < now();
`, userID); err != nil {
			return "", err
		}
		return "subscription period ended", nil
	}
	if !ledger.IsActive {
		return "subscription inactive", nil
	}
	if kind == domain.JobKindTraining {
		return "no model slots remaining", nil
	}
	return "no credits remaining", nil
}

// Refund returns a previously debited amount to the pool for the kind.
func (r *LedgerRepositoryPG) Refund(ctx context.Context, userID string, kind domain.JobKind, amount int) error {
	column := "credits_remaining"
	if kind == domain.JobKindTraining {
		column = "model_slots_remaining"
	}
	query := fmt.Sprintf(`
UPDATE ledgers SET %s = %s + $2, updated_at = now() WHERE user_id = $1;
`, column, column)
	tag, err := r.pool.Exec(ctx, query, userID, amount)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Credit adds generation credits; invoked by the billing collaborator only.
func (r *LedgerRepositoryPG) Credit(ctx context.Context, userID string, amount int) error {
	tag, err := r.pool.Exec(ctx, `
UPDATE ledgers SET credits_remaining = credits_remaining + $2, updated_at = now() WHERE user_id = $1;
`, userID, amount)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ResetForNewPeriod replaces the balances with the plan allotment and opens
// a fresh period. The row is upserted so first-time subscribers get a ledger.
func (r *LedgerRepositoryPG) ResetForNewPeriod(ctx context.Context, userID string, plan domain.Plan) error {
	query := `
INSERT INTO ledgers (user_id, plan, credits_remaining, model_slots_remaining, model_slots_committed, period_start, period_end, is_active)
VALUES ($1, $2, $3, $4, 0, now(), now() + make_interval(days => $5), true)
ON CONFLICT (user_id) DO UPDATE
SET plan = EXCLUDED.plan,
    credits_remaining = EXCLUDED.credits_remaining,
    model_slots_remaining = EXCLUDED.model_slots_remaining,
    period_start = EXCLUDED.period_start,
    period_end = EXCLUDED.period_end,
    is_active = true,
    updated_at = now();
`
	_, err := r.pool.Exec(ctx, query, userID, plan.Name, plan.Credits, plan.ModelSlots, plan.PeriodDays)
	return err
}

func scanLedger(row pgx.Row) (*domain.Ledger, error) {
	var l domain.Ledger
	if err := row.Scan(
		&l.UserID,
		&l.Plan,
		&l.CreditsRemaining,
		&l.ModelSlotsRemaining,
		&l.ModelSlotsCommitted,
		&l.PeriodStart,
		&l.PeriodEnd,
		&l.IsActive,
		&l.CreatedAt,
		&l.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &l, nil
}
