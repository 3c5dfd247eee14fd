package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	chi_middleware "github.com/go-chi/chi/v5/middleware"

	"github.com/centsible/smsbudget/internal/budget/domain"
	"github.com/centsible/smsbudget/internal/messaging"
	"github.com/centsible/smsbudget/internal/platform/metrics"
	"github.com/centsible/smsbudget/internal/webhook/verify"
)

// TwilioHandler terminates the form-webhook provider. The provider expects
// an empty TwiML document with a 200 no matter what happened to the message
// internally; only a bad signature earns a 403.
type TwilioHandler struct {
	verifier  *verify.TwilioVerifier
	publisher Publisher
	logger    *slog.Logger
	recorder  metrics.Recorder
}

func NewTwilioHandler(verifier *verify.TwilioVerifier, publisher Publisher, logger *slog.Logger, recorder metrics.Recorder) *TwilioHandler {
	return &TwilioHandler{
		verifier:  verifier,
		publisher: publisher,
		logger:    logger.With("handler", "twilio_webhook"),
		recorder:  recorder,
	}
}

func (h *TwilioHandler) HandleInboundSMS(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	if err := h.verifier.Verify(ctx, r, nil); err != nil {
		logger.WarnContext(ctx, "Webhook signature rejected", "error", err)
		h.recorder.IncWebhook("twilio", "signature_invalid")
		http.Error(w, "signature verification failed", http.StatusForbidden)
		return
	}

	// Verify already parsed the form.
	numMedia, _ := strconv.Atoi(r.PostForm.Get("NumMedia"))
	if numMedia > 0 {
		logger.InfoContext(ctx, "Media message acknowledged and skipped",
			"message_sid", r.PostForm.Get("MessageSid"), "num_media", numMedia)
		h.recorder.IncWebhook("twilio", "media_skipped")
		writeTwiML(w)
		return
	}

	msg := domain.InboundMessage{
		From:              r.PostForm.Get("From"),
		To:                r.PostForm.Get("To"),
		Body:              r.PostForm.Get("Body"),
		ProviderMessageID: r.PostForm.Get("MessageSid"),
		Provider:          "twilio",
		ReceivedAt:        time.Now().UTC(),
	}

	if msg.From == "" || msg.ProviderMessageID == "" {
		logger.WarnContext(ctx, "Inbound form missing required fields")
		h.recorder.IncWebhook("twilio", "invalid_message")
		writeTwiML(w)
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to marshal inbound message", "error", err)
		h.recorder.IncWebhook("twilio", "marshal_error")
		writeTwiML(w)
		return
	}
	if err := h.publisher.Publish(ctx, SubjectInboundTwilio, data); err != nil {
		logger.ErrorContext(ctx, "Failed to publish inbound message",
			"error", err, "provider_message_id", msg.ProviderMessageID)
		h.recorder.IncWebhook("twilio", "publish_error")
		writeTwiML(w)
		return
	}

	logger.InfoContext(ctx, "Inbound SMS queued for processing",
		"provider_message_id", msg.ProviderMessageID, "from", messaging.MaskPhone(msg.From))
	h.recorder.IncWebhook("twilio", "accepted")
	writeTwiML(w)
}

func writeTwiML(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(emptyTwiML))
}
