package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/centsible/smsbudget/internal/budget/domain"
)

// SubjectInboundRaw matches every raw inbound subject regardless of which
// provider's webhook published it.
const SubjectInboundRaw = "sms.inbound.raw.*"

const queueGroup = "inbound_processor"

// processTimeout bounds one message's pipeline run so a stuck downstream
// cannot pin a delivery goroutine forever.
const processTimeout = 30 * time.Second

// Subscriber is the slice of the message broker the consumer needs.
type Subscriber interface {
	SubscribeToSubjectWithQueue(ctx context.Context, subject, queueGroup string, handler nats.MsgHandler) error
}

// Consumer pulls raw inbound messages off the broker and feeds the
// processor. Malformed payloads are logged and dropped; they would fail the
// same way on every redelivery.
type Consumer struct {
	broker    Subscriber
	processor *Processor
	logger    *slog.Logger
}

func NewConsumer(broker Subscriber, processor *Processor, logger *slog.Logger) *Consumer {
	return &Consumer{
		broker:    broker,
		processor: processor,
		logger:    logger.With("component", "inbound_consumer"),
	}
}

// Run blocks until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.InfoContext(ctx, "Subscribing to inbound messages",
		"subject", SubjectInboundRaw, "queue_group", queueGroup)

	return c.broker.SubscribeToSubjectWithQueue(ctx, SubjectInboundRaw, queueGroup, func(m *nats.Msg) {
		var msg domain.InboundMessage
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			c.logger.Error("Dropping undecodable inbound payload",
				"subject", m.Subject, "error", err)
			return
		}

		msgCtx, cancel := context.WithTimeout(ctx, processTimeout)
		defer cancel()

		if err := c.processor.ProcessInboundMessage(msgCtx, msg); err != nil {
			c.logger.ErrorContext(msgCtx, "Inbound message processing failed",
				"subject", m.Subject, "provider_message_id", msg.ProviderMessageID, "error", err)
		}
	})
}
