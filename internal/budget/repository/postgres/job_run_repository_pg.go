package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/centsible/smsbudget/internal/budget/repository"
)

type PgJobRunRepository struct {
	db     PGXPool
	logger *slog.Logger
}

func NewPgJobRunRepository(db PGXPool, logger *slog.Logger) repository.JobRunRepository {
	return &PgJobRunRepository{db: db, logger: logger.With("component", "job_run_repository_pg")}
}

func (r *PgJobRunRepository) LastCompletedDate(ctx context.Context, jobName string) (string, error) {
	var runDate string
	err := r.db.QueryRow(ctx,
		`SELECT run_date FROM job_runs WHERE job_name = $1 ORDER BY completed_at DESC LIMIT 1`,
		jobName).Scan(&runDate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("query last job run: %w", err)
	}
	return runDate, nil
}

func (r *PgJobRunRepository) MarkCompleted(ctx context.Context, jobName, runDate string, completedAt time.Time) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO job_runs (job_name, run_date, completed_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (job_name, run_date) DO UPDATE SET completed_at = EXCLUDED.completed_at`,
		jobName, runDate, completedAt)
	if err != nil {
		return fmt.Errorf("record job run: %w", err)
	}
	r.logger.InfoContext(ctx, "Recorded completed job run", "job", jobName, "run_date", runDate)
	return nil
}
