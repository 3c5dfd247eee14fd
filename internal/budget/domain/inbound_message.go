package domain

import "time"

// InboundMessage is one SMS received from a provider webhook. It is the
// transient unit of work for a single orchestration pass; ProviderMessageID
// is the idempotency key when the provider redelivers.
type InboundMessage struct {
	From              string    `json:"from"` // sender, E.164
	To                string    `json:"to"`   // our number
	Body              string    `json:"body"`
	ProviderMessageID string    `json:"provider_message_id"`
	Provider          string    `json:"provider"` // "sns" or "twilio"
	ReceivedAt        time.Time `json:"received_at"`
}
