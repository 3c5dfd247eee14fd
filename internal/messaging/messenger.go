// Package messaging sends outbound SMS through interchangeable provider
// backends. The service layer owns destination policy, retries, pacing,
// and delivery bookkeeping; backends own provider wire formats and error
// classification.
package messaging

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/centsible/smsbudget/internal/budget/domain"
)

// MessageType distinguishes provider routing classes.
type MessageType string

const (
	Transactional MessageType = "TRANSACTIONAL"
	Promotional   MessageType = "PROMOTIONAL"
)

// SendRequest is one outbound message.
type SendRequest struct {
	To     string // E.164
	Body   string
	Type   MessageType
	UserID uuid.NullUUID // when known, enables delivery bookkeeping
}

// Result reports the outcome of one send attempt.
type Result struct {
	Success        bool
	MessageID      string
	Err            error
	Retryable      bool
	SandboxSkipped bool
	ErrorCode      string
}

// Messenger is the provider-agnostic outbound contract.
type Messenger interface {
	Send(ctx context.Context, req SendRequest) Result

	// SendBulk is a bounded-rate sequential loop, not a queue: messages go
	// out one at a time with a fixed inter-message delay to respect
	// provider throughput limits.
	SendBulk(ctx context.Context, reqs []SendRequest) []Result
}

// Backend is one concrete provider integration. Implementations classify
// their own provider error codes.
type Backend interface {
	Send(ctx context.Context, to, body string, msgType MessageType) (*BackendResponse, error)
	Name() string
}

// BackendResponse carries the provider's verdict on a send attempt.
type BackendResponse struct {
	MessageID      string
	Retryable      bool // provider error was transient
	OptOutDetected bool // provider reports the destination has opted out
	ErrorCode      string
}

// DeliveryLog records the terminal outcome of each send. A nil log disables
// delivery bookkeeping.
type DeliveryLog interface {
	RecordDelivery(ctx context.Context, rec domain.OutboundRecord) error
}

// UserBookkeeper is the slice of the user directory the messenger writes:
// last-message bookkeeping on success and opt-out flips on carrier blocks.
type UserBookkeeper interface {
	UpdateLastMessage(ctx context.Context, id uuid.UUID, messageID string, sentAt time.Time) error
	UpdateOptOutStatus(ctx context.Context, id uuid.UUID, status domain.OptOutStatus) error
}
