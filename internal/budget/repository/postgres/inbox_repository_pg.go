package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/centsible/smsbudget/internal/budget/domain"
	"github.com/centsible/smsbudget/internal/budget/repository"
)

// uniqueViolation is the PostgreSQL error code for unique_violation.
const uniqueViolation = "23505"

type PgInboxRepository struct {
	db     PGXPool
	logger *slog.Logger
}

func NewPgInboxRepository(db PGXPool, logger *slog.Logger) repository.InboxRepository {
	return &PgInboxRepository{db: db, logger: logger.With("component", "inbox_repository_pg")}
}

// Create records an inbound message. The unique index on
// (provider, provider_message_id) turns a redelivery into
// ErrDuplicateMessage rather than a second row.
func (r *PgInboxRepository) Create(ctx context.Context, msg domain.InboundMessage, userID uuid.NullUUID) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO inbox_messages
		   (id, from_number, to_number, body, provider, provider_message_id, user_id, received_at, processed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		uuid.New(), msg.From, msg.To, msg.Body, msg.Provider, msg.ProviderMessageID,
		userID, msg.ReceivedAt, time.Now().UTC(),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrDuplicateMessage
		}
		return fmt.Errorf("insert inbox message: %w", err)
	}
	return nil
}
