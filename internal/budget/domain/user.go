package domain

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// OptOutStatus tracks a user's SMS consent state.
type OptOutStatus string

const (
	OptedIn  OptOutStatus = "opted_in"
	OptedOut OptOutStatus = "opted_out"
)

// User carries the messaging-relevant slice of the account system's user
// record. The account system owns the row; this core only reads identity
// fields and writes opt-out and last-message bookkeeping.
type User struct {
	ID                uuid.UUID    `json:"id"`
	PhoneNumber       string       `json:"phone_number"` // E.164
	PhoneVerified     bool         `json:"phone_verified"`
	OptOutStatus      OptOutStatus `json:"opt_out_status"`
	Currency          string       `json:"currency"`
	LastMessageID     sql.NullString `json:"last_message_id,omitempty"`
	LastMessageSentAt sql.NullTime   `json:"last_message_sent_at,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
}

// Addressable reports whether outbound messages may be sent to this user.
func (u *User) Addressable() bool {
	return u.PhoneVerified && u.OptOutStatus == OptedIn
}
