package http

import "time"

// snsInboundSMS is the JSON carried inside an SNS envelope's Message field
// for an inbound SMS notification.
type snsInboundSMS struct {
	OriginationNumber string    `json:"originationNumber" validate:"required,e164"`
	DestinationNumber string    `json:"destinationNumber" validate:"required,e164"`
	MessageBody       string    `json:"messageBody"`
	InboundMessageID  string    `json:"inboundMessageId" validate:"required"`
	MessageTimestamp  time.Time `json:"messageTimestamp"`
}

// emptyTwiML is the acknowledgment body the form-webhook provider expects.
const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

// Subjects for raw inbound publication. The inbound processor subscribes
// with a wildcard over the provider segment.
const (
	SubjectInboundSNS    = "sms.inbound.raw.sns"
	SubjectInboundTwilio = "sms.inbound.raw.twilio"
)
