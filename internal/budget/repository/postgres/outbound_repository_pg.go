package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/centsible/smsbudget/internal/budget/domain"
	"github.com/centsible/smsbudget/internal/budget/repository"
)

type PgOutboundRepository struct {
	db     PGXPool
	logger *slog.Logger
}

func NewPgOutboundRepository(db PGXPool, logger *slog.Logger) repository.OutboundRepository {
	return &PgOutboundRepository{db: db, logger: logger.With("component", "outbound_repository_pg")}
}

func (r *PgOutboundRepository) RecordDelivery(ctx context.Context, rec domain.OutboundRecord) error {
	id := rec.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO outbound_messages
		   (id, user_id, to_number, backend, provider_message_id, status, error_code, sent_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, rec.UserID, rec.ToNumber, rec.Backend, rec.ProviderMessageID,
		rec.Status, rec.ErrorCode, rec.SentAt,
	)
	if err != nil {
		return fmt.Errorf("insert outbound record: %w", err)
	}
	return nil
}
