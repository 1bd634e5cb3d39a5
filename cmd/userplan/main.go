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

	"server/internal/adapter/repo"
	"server/internal/domain"
)

func main() {
	var (
		userFlag string
		planFlag string
	)

	flag.StringVar(&userFlag, "user", "", "user ID to update")
	flag.StringVar(&planFlag, "plan", "pro", "plan to assign (free, pro)")
	flag.Parse()

	userID := strings.TrimSpace(userFlag)
	plan := domain.PlanType(strings.TrimSpace(strings.ToLower(planFlag)))

	if userID == "" {
		exitWithError(errors.New("-user is required"))
	}
	if plan.MonthlyLimit() <= 0 {
		exitWithError(fmt.Errorf("unsupported plan %q", plan))
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

	quotaRepo := repo.NewQuotaRepository(pool)
	if err := quotaRepo.UpsertSubscription(ctx, userID, plan); err != nil {
		exitWithError(fmt.Errorf("failed to update subscription: %w", err))
	}

	fmt.Printf("User %s updated to plan %s (%d iterations/month)\n", userID, plan, plan.MonthlyLimit())
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
