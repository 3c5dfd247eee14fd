package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/centsible/smsbudget/internal/budget/domain"
	"github.com/centsible/smsbudget/internal/budget/repository"
)

type PgAnalyticsRepository struct {
	db     PGXPool
	logger *slog.Logger
}

func NewPgAnalyticsRepository(db PGXPool, logger *slog.Logger) repository.AnalyticsRepository {
	return &PgAnalyticsRepository{db: db, logger: logger.With("component", "analytics_repository_pg")}
}

// GetSnapshot reads the analytics pipeline's snapshot. A user with no
// snapshot yet gets zero spending, not an error: a fresh user simply has
// nothing spent.
func (r *PgAnalyticsRepository) GetSnapshot(ctx context.Context, userID uuid.UUID) (*domain.SpendingAnalytics, error) {
	var s domain.SpendingAnalytics
	err := r.db.QueryRow(ctx,
		`SELECT user_id, current_month_spending, average_monthly_spending, computed_at
		 FROM spending_analytics WHERE user_id = $1`, userID).
		Scan(&s.UserID, &s.CurrentMonthSpending, &s.AverageMonthlySpending, &s.ComputedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &domain.SpendingAnalytics{
				UserID:                 userID,
				CurrentMonthSpending:   decimal.Zero,
				AverageMonthlySpending: decimal.Zero,
			}, nil
		}
		return nil, fmt.Errorf("query analytics snapshot: %w", err)
	}
	return &s, nil
}

// ListStaleUsers finds users whose bank-link event outran the analytics
// pipeline: a link completed more than the grace window ago with no newer
// snapshot. The fallback job re-triggers computation for these.
func (r *PgAnalyticsRepository) ListStaleUsers(ctx context.Context, grace time.Duration) ([]uuid.UUID, error) {
	cutoff := time.Now().UTC().Add(-grace)
	rows, err := r.db.Query(ctx,
		`SELECT DISTINCT bl.user_id
		 FROM bank_link_events bl
		 LEFT JOIN spending_analytics sa ON sa.user_id = bl.user_id
		 WHERE bl.linked_at < $1
		   AND (sa.computed_at IS NULL OR sa.computed_at < bl.linked_at)`,
		cutoff)
	if err != nil {
		return nil, fmt.Errorf("query stale analytics users: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan stale user id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stale users: %w", err)
	}
	return ids, nil
}
