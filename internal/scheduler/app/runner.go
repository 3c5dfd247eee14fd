package app

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/centsible/smsbudget/internal/budget/repository"
	"github.com/centsible/smsbudget/internal/platform/metrics"
)

// Job is one schedulable unit of work.
type Job interface {
	Name() string
	Run(ctx context.Context, now time.Time) (*JobResult, error)
}

// Locker is a distributed single-flight guard so only one scheduler replica
// runs a given job at a time.
type Locker interface {
	// Acquire returns false without error when another holder has the lock.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// RunnerConfig configures the scheduling loop.
type RunnerConfig struct {
	DailyTime        string // "HH:MM" local to Timezone
	Timezone         string // IANA name
	FallbackInterval time.Duration
}

// Runner drives the daily update at a fixed local time and the analytics
// fallback on a short interval. Completed daily runs are recorded so a
// restart later the same day never repeats the send sweep.
type Runner struct {
	daily    Job
	fallback Job
	jobRuns  repository.JobRunRepository
	locker   Locker
	logger   *slog.Logger
	recorder metrics.Recorder

	loc        *time.Location
	dailyHour  int
	dailyMin   int
	fallbackIv time.Duration

	now func() time.Time
}

func NewRunner(
	daily Job,
	fallback Job,
	jobRuns repository.JobRunRepository,
	locker Locker,
	logger *slog.Logger,
	recorder metrics.Recorder,
	cfg RunnerConfig,
) (*Runner, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}
	hour, min, err := parseClock(cfg.DailyTime)
	if err != nil {
		return nil, err
	}
	if cfg.FallbackInterval <= 0 {
		cfg.FallbackInterval = time.Minute
	}

	return &Runner{
		daily:      daily,
		fallback:   fallback,
		jobRuns:    jobRuns,
		locker:     locker,
		logger:     logger.With("component", "scheduler"),
		recorder:   recorder,
		loc:        loc,
		dailyHour:  hour,
		dailyMin:   min,
		fallbackIv: cfg.FallbackInterval,
		now:        time.Now,
	}, nil
}

func parseClock(s string) (hour, min int, err error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("daily time %q is not HH:MM", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("daily time %q has a bad hour", s)
	}
	min, err = strconv.Atoi(parts[1])
	if err != nil || min < 0 || min > 59 {
		return 0, 0, fmt.Errorf("daily time %q has a bad minute", s)
	}
	return hour, min, nil
}

// Run blocks until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	// Catch up immediately when restarting after today's scheduled time.
	// runDaily's completion check makes this a no-op if today already ran.
	if r.now().In(r.loc).After(r.todayAt(r.now())) {
		r.runDaily(ctx)
	}

	fallbackTicker := time.NewTicker(r.fallbackIv)
	defer fallbackTicker.Stop()

	dailyTimer := time.NewTimer(r.untilNextDaily())
	defer dailyTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-dailyTimer.C:
			r.runDaily(ctx)
			dailyTimer.Reset(r.untilNextDaily())
		case <-fallbackTicker.C:
			r.runFallback(ctx)
		}
	}
}

// todayAt returns today's scheduled daily-run instant in the local zone.
func (r *Runner) todayAt(now time.Time) time.Time {
	local := now.In(r.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), r.dailyHour, r.dailyMin, 0, 0, r.loc)
}

func (r *Runner) untilNextDaily() time.Duration {
	now := r.now()
	next := r.todayAt(now)
	if !next.After(now.In(r.loc)) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now.In(r.loc))
}

func (r *Runner) runDaily(ctx context.Context) {
	now := r.now()
	runDate := now.In(r.loc).Format("2006-01-02")
	logger := r.logger.With("job", r.daily.Name(), "run_date", runDate)

	last, err := r.jobRuns.LastCompletedDate(ctx, r.daily.Name())
	if err != nil {
		logger.ErrorContext(ctx, "Cannot read last completed run, skipping to avoid a double send", "error", err)
		r.recorder.IncJobRun(r.daily.Name(), "error")
		return
	}
	if last == runDate {
		logger.InfoContext(ctx, "Daily run already completed today")
		r.recorder.IncJobRun(r.daily.Name(), "already_done")
		return
	}

	lockKey := fmt.Sprintf("jobs:lock:%s:%s", r.daily.Name(), runDate)
	acquired, err := r.locker.Acquire(ctx, lockKey, time.Hour)
	if err != nil {
		logger.ErrorContext(ctx, "Lock acquisition failed", "error", err)
		r.recorder.IncJobRun(r.daily.Name(), "error")
		return
	}
	if !acquired {
		logger.InfoContext(ctx, "Another replica holds the daily lock")
		r.recorder.IncJobRun(r.daily.Name(), "lock_held")
		return
	}
	defer func() {
		if err := r.locker.Release(context.WithoutCancel(ctx), lockKey); err != nil {
			logger.WarnContext(ctx, "Failed to release daily lock", "error", err)
		}
	}()

	start := time.Now()
	result, err := r.daily.Run(ctx, now)
	r.recorder.ObserveJobDuration(r.daily.Name(), time.Since(start))
	if err != nil {
		logger.ErrorContext(ctx, "Daily run failed", "error", err)
		r.recorder.IncJobRun(r.daily.Name(), "failed")
		return
	}

	if err := r.jobRuns.MarkCompleted(ctx, r.daily.Name(), runDate, time.Now().UTC()); err != nil {
		logger.ErrorContext(ctx, "Failed to record run completion", "error", err)
	}
	logger.InfoContext(ctx, "Daily run completed",
		"success", result.SuccessCount, "failed", result.FailureCount, "skipped", result.SkippedCount)
	r.recorder.IncJobRun(r.daily.Name(), "completed")
}

func (r *Runner) runFallback(ctx context.Context) {
	lockKey := "jobs:lock:" + r.fallback.Name()
	acquired, err := r.locker.Acquire(ctx, lockKey, r.fallbackIv)
	if err != nil {
		r.logger.ErrorContext(ctx, "Lock acquisition failed", "job", r.fallback.Name(), "error", err)
		r.recorder.IncJobRun(r.fallback.Name(), "error")
		return
	}
	if !acquired {
		return
	}
	// The fallback lock expires on its own; holding it for the full interval
	// also rate-limits overlapping replicas.

	start := time.Now()
	result, err := r.fallback.Run(ctx, r.now())
	r.recorder.ObserveJobDuration(r.fallback.Name(), time.Since(start))
	if err != nil {
		r.logger.ErrorContext(ctx, "Fallback run failed", "job", r.fallback.Name(), "error", err)
		r.recorder.IncJobRun(r.fallback.Name(), "failed")
		return
	}
	if result.SuccessCount > 0 || result.FailureCount > 0 {
		r.logger.InfoContext(ctx, "Fallback run completed", "job", r.fallback.Name(),
			"recomputed", result.SuccessCount, "failed", result.FailureCount)
	}
	r.recorder.IncJobRun(r.fallback.Name(), "completed")
}
