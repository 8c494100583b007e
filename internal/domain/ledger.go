package domain

import "time"

// Ledger is the per-user consumable-resource record for one subscription
// period. Balances never go negative; debits are conditional, not clamped.
type Ledger struct {
	UserID              string
	Plan                string
	CreditsRemaining    int
	ModelSlotsRemaining int
	ModelSlotsCommitted int
	PeriodStart         time.Time
	PeriodEnd           time.Time
	IsActive            bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Plan defines the per-period allotment granted on reset.
type Plan struct {
	Name       string
	Credits    int
	ModelSlots int
	PeriodDays int
}

var plans = map[string]Plan{
	"free":   {Name: "free", Credits: 20, ModelSlots: 0, PeriodDays: 30},
	"pro":    {Name: "pro", Credits: 500, ModelSlots: 2, PeriodDays: 30},
	"studio": {Name: "studio", Credits: 2500, ModelSlots: 10, PeriodDays: 30},
}

// PlanByName resolves a named plan.
func PlanByName(name string) (Plan, bool) {
	p, ok := plans[name]
	return p, ok
}
