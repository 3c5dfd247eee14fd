// Package repository declares the persistence contracts the budget core
// consumes. The engine behind them is external; postgres/ holds the pgx
// implementations used in production.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/centsible/smsbudget/internal/budget/domain"
)

// GoalRepository manages the spending-goal lifecycle.
type GoalRepository interface {
	// SetGoal atomically deactivates every active goal for the user and
	// inserts a new active one. Concurrent calls for the same user serialize
	// through the store's transaction; last committed write wins.
	SetGoal(ctx context.Context, userID uuid.UUID, amountDollars int64, now time.Time) (*domain.SpendingGoal, error)

	// GetActiveGoal returns the single active goal, or ErrNoActiveGoal.
	GetActiveGoal(ctx context.Context, userID uuid.UUID) (*domain.SpendingGoal, error)
}

// UserRepository is the slice of the user directory this core touches.
type UserRepository interface {
	// GetByPhone returns ErrUserNotFound for unknown numbers.
	GetByPhone(ctx context.Context, phone string) (*domain.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)

	// ListAddressable returns all opt-in, phone-verified users.
	ListAddressable(ctx context.Context) ([]*domain.User, error)

	UpdateOptOutStatus(ctx context.Context, id uuid.UUID, status domain.OptOutStatus) error
	UpdateLastMessage(ctx context.Context, id uuid.UUID, messageID string, sentAt time.Time) error
}

// InboxRepository persists inbound messages. The unique constraint on
// provider_message_id is the durable idempotency backstop.
type InboxRepository interface {
	// Create returns ErrDuplicateMessage when the provider message id was
	// already recorded.
	Create(ctx context.Context, msg domain.InboundMessage, userID uuid.NullUUID) error
}

// OutboundRepository is the write-through delivery log for sent messages.
type OutboundRepository interface {
	RecordDelivery(ctx context.Context, rec domain.OutboundRecord) error
}

// AnalyticsRepository reads the externally computed spending snapshots.
type AnalyticsRepository interface {
	// GetSnapshot returns a zero-spend snapshot when none exists yet.
	GetSnapshot(ctx context.Context, userID uuid.UUID) (*domain.SpendingAnalytics, error)

	// ListStaleUsers returns users with a bank-link event newer than their
	// snapshot by at least the given grace window. Feeds the fallback job.
	ListStaleUsers(ctx context.Context, grace time.Duration) ([]uuid.UUID, error)
}

// JobRunRepository records completed scheduler runs so a restart inside the
// same day never double-sends.
type JobRunRepository interface {
	// LastCompletedDate returns the local run date ("2006-01-02") of the
	// job's last completed run, or "" when it has never run.
	LastCompletedDate(ctx context.Context, jobName string) (string, error)
	MarkCompleted(ctx context.Context, jobName, runDate string, completedAt time.Time) error
}
