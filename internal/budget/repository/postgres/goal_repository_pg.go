package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/centsible/smsbudget/internal/budget/domain"
	"github.com/centsible/smsbudget/internal/budget/repository"
)

type PgGoalRepository struct {
	db            PGXPool
	logger        *slog.Logger
	monthStartDay int
}

// NewPgGoalRepository creates the pgx-backed goal store. monthStartDay
// anchors goal periods (1 = calendar month).
func NewPgGoalRepository(db PGXPool, logger *slog.Logger, monthStartDay int) repository.GoalRepository {
	return &PgGoalRepository{
		db:            db,
		logger:        logger.With("component", "goal_repository_pg"),
		monthStartDay: monthStartDay,
	}
}

// SetGoal runs the deactivate-all-then-insert swap in one transaction.
// A partial unique index on (user_id) WHERE is_active backs the invariant
// that at most one goal per user is active.
func (r *PgGoalRepository) SetGoal(ctx context.Context, userID uuid.UUID, amountDollars int64, now time.Time) (*domain.SpendingGoal, error) {
	goal := domain.NewSpendingGoal(userID, amountDollars, now, r.monthStartDay)

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin set-goal transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`UPDATE spending_goals SET is_active = FALSE WHERE user_id = $1 AND is_active = TRUE`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("deactivate prior goals: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO spending_goals (id, user_id, monthly_limit, period_start, period_end, is_active, created_at)
		 VALUES ($1, $2, $3, $4, $5, TRUE, $6)`,
		goal.ID, goal.UserID, goal.MonthlyLimit, goal.PeriodStart, goal.PeriodEnd, goal.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert new goal: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit set-goal transaction: %w", err)
	}

	r.logger.InfoContext(ctx, "Spending goal set",
		"goal_id", goal.ID, "user_id", userID, "monthly_limit", amountDollars,
		"period_start", goal.PeriodStart.Format("2006-01-02"),
		"period_end", goal.PeriodEnd.Format("2006-01-02"),
	)
	return goal, nil
}

func (r *PgGoalRepository) GetActiveGoal(ctx context.Context, userID uuid.UUID) (*domain.SpendingGoal, error) {
	query := `SELECT id, user_id, monthly_limit, period_start, period_end, is_active, created_at
	          FROM spending_goals WHERE user_id = $1 AND is_active = TRUE`

	var g domain.SpendingGoal
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&g.ID, &g.UserID, &g.MonthlyLimit, &g.PeriodStart, &g.PeriodEnd, &g.IsActive, &g.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNoActiveGoal
		}
		return nil, fmt.Errorf("query active goal: %w", err)
	}
	return &g, nil
}
