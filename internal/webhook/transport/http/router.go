package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"
)

// NewRouter wires the webhook endpoints.
func NewRouter(snsHandler *SNSHandler, twilioHandler *TwilioHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(chi_middleware.RequestID)
	r.Use(chi_middleware.RealIP)
	r.Use(chi_middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Post("/webhooks/sns", snsHandler.HandleNotification)
	r.Post("/webhooks/twilio/sms", twilioHandler.HandleInboundSMS)

	return r
}
