package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/centsible/smsbudget/internal/budget/repository"
	"github.com/centsible/smsbudget/internal/platform/metrics"
)

// AnalyticsRecomputer requests a fresh spending snapshot for one user. The
// analytics pipeline itself lives outside this service; the production
// implementation publishes a recompute request to the broker.
type AnalyticsRecomputer interface {
	Recompute(ctx context.Context, userID uuid.UUID) error
}

// FallbackJob sweeps for users whose bank activity is newer than their
// spending snapshot and requests a recompute for each. It exists to catch
// the snapshots the event-driven pipeline missed.
type FallbackJob struct {
	analytics  repository.AnalyticsRepository
	recomputer AnalyticsRecomputer
	grace      time.Duration
	logger     *slog.Logger
	recorder   metrics.Recorder
}

func NewFallbackJob(
	analytics repository.AnalyticsRepository,
	recomputer AnalyticsRecomputer,
	grace time.Duration,
	logger *slog.Logger,
	recorder metrics.Recorder,
) *FallbackJob {
	if grace <= 0 {
		grace = 10 * time.Minute
	}
	return &FallbackJob{
		analytics:  analytics,
		recomputer: recomputer,
		grace:      grace,
		logger:     logger.With("job", "analytics_fallback"),
		recorder:   recorder,
	}
}

func (j *FallbackJob) Name() string { return "analytics_fallback" }

func (j *FallbackJob) Run(ctx context.Context, _ time.Time) (*JobResult, error) {
	stale, err := j.analytics.ListStaleUsers(ctx, j.grace)
	if err != nil {
		return nil, fmt.Errorf("list stale users: %w", err)
	}
	if len(stale) == 0 {
		return &JobResult{}, nil
	}
	j.logger.InfoContext(ctx, "Stale spending snapshots found", "count", len(stale))

	result := &JobResult{}
	for _, userID := range stale {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := j.recomputer.Recompute(ctx, userID); err != nil {
			result.FailureCount++
			result.Errors = append(result.Errors, fmt.Errorf("user %s: recompute: %w", userID, err))
			continue
		}
		result.SuccessCount++
	}
	return result, nil
}
