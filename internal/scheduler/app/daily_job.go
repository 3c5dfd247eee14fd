package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/centsible/smsbudget/internal/budget/domain"
	"github.com/centsible/smsbudget/internal/budget/repository"
	"github.com/centsible/smsbudget/internal/budget/target"
	"github.com/centsible/smsbudget/internal/messaging"
	"github.com/centsible/smsbudget/internal/platform/metrics"
)

// JobResult aggregates one job run. Errors holds per-user failures; the run
// itself completes regardless.
type JobResult struct {
	SuccessCount int
	FailureCount int
	SkippedCount int
	Errors       []error
}

// DailyJob sends each addressable user their daily spending target. Users
// without an active goal, or whose goal period has ended, are skipped and
// counted; one user's failure never stops the sweep.
type DailyJob struct {
	users     repository.UserRepository
	goals     repository.GoalRepository
	analytics repository.AnalyticsRepository
	messenger messaging.Messenger
	logger    *slog.Logger
	recorder  metrics.Recorder
}

func NewDailyJob(
	users repository.UserRepository,
	goals repository.GoalRepository,
	analytics repository.AnalyticsRepository,
	messenger messaging.Messenger,
	logger *slog.Logger,
	recorder metrics.Recorder,
) *DailyJob {
	return &DailyJob{
		users:     users,
		goals:     goals,
		analytics: analytics,
		messenger: messenger,
		logger:    logger.With("job", "daily_update"),
		recorder:  recorder,
	}
}

func (j *DailyJob) Name() string { return "daily_update" }

func (j *DailyJob) Run(ctx context.Context, now time.Time) (*JobResult, error) {
	users, err := j.users.ListAddressable(ctx)
	if err != nil {
		return nil, fmt.Errorf("list addressable users: %w", err)
	}
	j.logger.InfoContext(ctx, "Daily update sweep starting", "users", len(users))

	result := &JobResult{}
	for _, user := range users {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		j.processUser(ctx, user, now, result)
	}

	j.logger.InfoContext(ctx, "Daily update sweep finished",
		"success", result.SuccessCount, "failed", result.FailureCount, "skipped", result.SkippedCount)
	return result, nil
}

func (j *DailyJob) processUser(ctx context.Context, user *domain.User, now time.Time, result *JobResult) {
	goal, err := j.goals.GetActiveGoal(ctx, user.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNoActiveGoal) {
			result.SkippedCount++
			return
		}
		result.FailureCount++
		result.Errors = append(result.Errors, fmt.Errorf("user %s: load goal: %w", user.ID, err))
		return
	}
	if now.After(goal.PeriodEnd.AddDate(0, 0, 1)) {
		// The goal's window has lapsed; nothing meaningful to say until the
		// user sets a new budget.
		result.SkippedCount++
		return
	}

	spent := decimal.Zero
	if snapshot, err := j.analytics.GetSnapshot(ctx, user.ID); err != nil {
		j.logger.WarnContext(ctx, "Analytics snapshot unavailable, assuming zero spend",
			"user_id", user.ID, "error", err)
	} else {
		spent = snapshot.CurrentMonthSpending
	}

	dailyTarget := target.PeriodDailyTarget(goal.MonthlyLimit, spent, goal.PeriodStart, goal.PeriodEnd, now)
	res := j.messenger.Send(ctx, messaging.SendRequest{
		To:     user.PhoneNumber,
		Body:   dailyUpdateBody(dailyTarget, goal.MonthlyLimit.IntPart()),
		Type:   messaging.Promotional,
		UserID: uuid.NullUUID{UUID: user.ID, Valid: true},
	})

	switch {
	case res.Success, res.SandboxSkipped:
		result.SuccessCount++
	default:
		result.FailureCount++
		result.Errors = append(result.Errors, fmt.Errorf("user %s: send: %w", user.ID, res.Err))
	}
}

func dailyUpdateBody(dailyTarget, monthlyLimit int64) string {
	if dailyTarget <= 0 {
		return fmt.Sprintf("Heads up: you've used up your $%s monthly budget. "+
			"Reply with a new amount to adjust it.", formatDollars(monthlyLimit))
	}
	return fmt.Sprintf("Today's target: spend up to $%s to stay within your $%s monthly budget.",
		formatDollars(dailyTarget), formatDollars(monthlyLimit))
}
