package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	chi_middleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/centsible/smsbudget/internal/budget/domain"
	"github.com/centsible/smsbudget/internal/messaging"
	"github.com/centsible/smsbudget/internal/platform/metrics"
	"github.com/centsible/smsbudget/internal/webhook/verify"
)

// Publisher is the slice of the message broker the handlers need.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// SNSHandler terminates the push-topic provider's webhook. Signature
// verification is synchronous; everything after it is fire-and-forget so
// the provider always gets its acknowledgment inside its timeout window.
// Only signature failures answer non-200; processing errors must not
// provoke provider retry storms.
type SNSHandler struct {
	verifier  *verify.SNSVerifier
	publisher Publisher
	logger    *slog.Logger
	validate  *validator.Validate
	recorder  metrics.Recorder
}

func NewSNSHandler(verifier *verify.SNSVerifier, publisher Publisher, logger *slog.Logger, validate *validator.Validate, recorder metrics.Recorder) *SNSHandler {
	return &SNSHandler{
		verifier:  verifier,
		publisher: publisher,
		logger:    logger.With("handler", "sns_webhook"),
		validate:  validate,
		recorder:  recorder,
	}
}

func (h *SNSHandler) HandleNotification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	body, err := io.ReadAll(r.Body)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to read webhook body", "error", err)
		h.recorder.IncWebhook("sns", "read_error")
		w.WriteHeader(http.StatusOK)
		return
	}
	defer r.Body.Close()

	var env verify.SNSEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		logger.WarnContext(ctx, "Webhook body is not a valid envelope", "error", err)
		h.recorder.IncWebhook("sns", "malformed")
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := h.verifier.VerifyEnvelope(ctx, &env); err != nil {
		logger.WarnContext(ctx, "Webhook signature rejected", "error", err, "message_id", env.MessageID)
		h.recorder.IncWebhook("sns", "signature_invalid")
		http.Error(w, "signature verification failed", http.StatusForbidden)
		return
	}

	if env.Type == "SubscriptionConfirmation" {
		if err := h.verifier.ConfirmSubscription(ctx, env.SubscribeURL); err != nil {
			logger.ErrorContext(ctx, "Subscription confirmation failed", "error", err)
			h.recorder.IncWebhook("sns", "confirm_failed")
		} else {
			h.recorder.IncWebhook("sns", "subscription_confirmed")
		}
		w.WriteHeader(http.StatusOK)
		return
	}

	h.processNotification(ctx, logger, &env)
	w.WriteHeader(http.StatusOK)
}

func (h *SNSHandler) processNotification(ctx context.Context, logger *slog.Logger, env *verify.SNSEnvelope) {
	var sms snsInboundSMS
	if err := json.Unmarshal([]byte(env.Message), &sms); err != nil {
		logger.WarnContext(ctx, "Notification message is not an inbound SMS", "error", err, "message_id", env.MessageID)
		h.recorder.IncWebhook("sns", "unparseable_message")
		return
	}
	if err := h.validate.StructCtx(ctx, sms); err != nil {
		logger.WarnContext(ctx, "Inbound SMS failed validation", "error", err, "message_id", env.MessageID)
		h.recorder.IncWebhook("sns", "invalid_message")
		return
	}

	msg := domain.InboundMessage{
		From:              sms.OriginationNumber,
		To:                sms.DestinationNumber,
		Body:              sms.MessageBody,
		ProviderMessageID: sms.InboundMessageID,
		Provider:          "sns",
		ReceivedAt:        sms.MessageTimestamp,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to marshal inbound message", "error", err)
		h.recorder.IncWebhook("sns", "marshal_error")
		return
	}
	if err := h.publisher.Publish(ctx, SubjectInboundSNS, data); err != nil {
		logger.ErrorContext(ctx, "Failed to publish inbound message",
			"error", err, "provider_message_id", msg.ProviderMessageID)
		h.recorder.IncWebhook("sns", "publish_error")
		return
	}

	logger.InfoContext(ctx, "Inbound SMS queued for processing",
		"provider_message_id", msg.ProviderMessageID, "from", messaging.MaskPhone(msg.From))
	h.recorder.IncWebhook("sns", "accepted")
}
