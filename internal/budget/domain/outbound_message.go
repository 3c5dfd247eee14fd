package domain

import (
	"time"

	"github.com/google/uuid"
)

// DeliveryStatus is the terminal state of one outbound send attempt chain.
type DeliveryStatus string

const (
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
	DeliverySkipped DeliveryStatus = "skipped" // suppressed by destination policy
)

// OutboundRecord is the delivery log entry written after each send outcome.
type OutboundRecord struct {
	ID                uuid.UUID
	UserID            uuid.NullUUID
	ToNumber          string
	Backend           string
	ProviderMessageID string
	Status            DeliveryStatus
	ErrorCode         string
	SentAt            time.Time
}
