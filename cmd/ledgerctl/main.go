package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"server/internal/adapter/repo"
	"server/internal/domain"
)

// ledgerctl is the operator escape hatch for the resource ledger: inspect a
// user's balances, grant credits after a support case, or force a period
// reset onto a plan.
func main() {
	var (
		userFlag    string
		showFlag    bool
		creditsFlag int
		resetFlag   string
	)

	flag.StringVar(&userFlag, "user", "", "user ID to operate on (UUID)")
	flag.BoolVar(&showFlag, "show", false, "print the user's current ledger")
	flag.IntVar(&creditsFlag, "grant-credits", 0, "credits to add to the current period")
	flag.StringVar(&resetFlag, "reset-plan", "", "reset the period with this plan's allotment (free, pro, studio)")
	flag.Parse()

	_ = godotenv.Load()

	userID := strings.TrimSpace(userFlag)
	if userID == "" {
		exitWithError(errors.New("-user is required"))
	}
	if !showFlag && creditsFlag <= 0 && resetFlag == "" {
		exitWithError(errors.New("one of -show, -grant-credits or -reset-plan is required"))
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		exitWithError(errors.New("DATABASE_URL is required"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		exitWithError(fmt.Errorf("failed to connect database: %w", err))
	}
	defer pool.Close()

	ledger := repo.NewLedgerRepository(pool)

	if creditsFlag > 0 {
		if err := ledger.Credit(ctx, userID, creditsFlag); err != nil {
			exitWithError(fmt.Errorf("grant credits: %w", err))
		}
		fmt.Printf("granted %d credits to %s\n", creditsFlag, userID)
	}

	if resetFlag != "" {
		plan, ok := domain.PlanByName(strings.ToLower(strings.TrimSpace(resetFlag)))
		if !ok {
			exitWithError(fmt.Errorf("unsupported plan %q", resetFlag))
		}
		if err := ledger.ResetForNewPeriod(ctx, userID, plan); err != nil {
			exitWithError(fmt.Errorf("reset period: %w", err))
		}
		fmt.Printf("reset %s onto plan %s (%d credits, %d model slots)\n", userID, plan.Name, plan.Credits, plan.ModelSlots)
	}

	row, err := ledger.GetByUser(ctx, userID)
	if err != nil {
		exitWithError(fmt.Errorf("load ledger: %w", err))
	}
	fmt.Printf("user=%s plan=%s credits=%d model_slots=%d committed=%d active=%t period=%s..%s\n",
		row.UserID, row.Plan, row.CreditsRemaining, row.ModelSlotsRemaining, row.ModelSlotsCommitted,
		row.IsActive, row.PeriodStart.Format(time.RFC3339), row.PeriodEnd.Format(time.RFC3339))
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
