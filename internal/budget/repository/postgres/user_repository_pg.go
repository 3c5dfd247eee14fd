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

type PgUserRepository struct {
	db     PGXPool
	logger *slog.Logger
}

func NewPgUserRepository(db PGXPool, logger *slog.Logger) repository.UserRepository {
	return &PgUserRepository{db: db, logger: logger.With("component", "user_repository_pg")}
}

const userColumns = `id, phone_number, phone_verified, opt_out_status, currency, last_message_id, last_message_sent_at, created_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID, &u.PhoneNumber, &u.PhoneVerified, &u.OptOutStatus,
		&u.Currency, &u.LastMessageID, &u.LastMessageSentAt, &u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *PgUserRepository) GetByPhone(ctx context.Context, phone string) (*domain.User, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE phone_number = $1`, phone)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("query user by phone: %w", err)
	}
	return u, nil
}

func (r *PgUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("query user by id: %w", err)
	}
	return u, nil
}

func (r *PgUserRepository) ListAddressable(ctx context.Context) ([]*domain.User, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE phone_verified = TRUE AND opt_out_status = $1
		 ORDER BY created_at`, domain.OptedIn)
	if err != nil {
		return nil, fmt.Errorf("query addressable users: %w", err)
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan addressable user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate addressable users: %w", err)
	}
	return users, nil
}

func (r *PgUserRepository) UpdateOptOutStatus(ctx context.Context, id uuid.UUID, status domain.OptOutStatus) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET opt_out_status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("update opt-out status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	r.logger.InfoContext(ctx, "Updated user opt-out status", "user_id", id, "status", status)
	return nil
}

func (r *PgUserRepository) UpdateLastMessage(ctx context.Context, id uuid.UUID, messageID string, sentAt time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE users SET last_message_id = $1, last_message_sent_at = $2 WHERE id = $3`,
		messageID, sentAt, id)
	if err != nil {
		return fmt.Errorf("update last message fields: %w", err)
	}
	return nil
}
