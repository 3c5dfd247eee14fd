package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/centsible/smsbudget/internal/budget/domain"
	"github.com/centsible/smsbudget/internal/platform/metrics"
	"github.com/centsible/smsbudget/internal/webhook/verify"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	args := m.Called(ctx, subject, data)
	return args.Error(0)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// bypassSNSVerifier accepts everything, isolating handler behavior from
// signature math (covered in the verify package).
func bypassSNSVerifier() *verify.SNSVerifier {
	return verify.NewSNSVerifier(testLogger(), ".amazonaws.com", true, nil)
}

func strictSNSVerifier() *verify.SNSVerifier {
	return verify.NewSNSVerifier(testLogger(), ".amazonaws.com", false, nil)
}

func snsEnvelopeBody(t *testing.T, msgType, message, subscribeURL string) []byte {
	t.Helper()
	env := verify.SNSEnvelope{
		Type:           msgType,
		MessageID:      "env-1",
		TopicArn:       "arn:aws:sns:us-east-1:1:inbound",
		Message:        message,
		Timestamp:      "2024-09-29T12:00:00.000Z",
		Signature:      "AAAA",
		SigningCertURL: "https://sns.us-east-1.amazonaws.com/cert.pem",
		SubscribeURL:   subscribeURL,
	}
	body, err := json.Marshal(env)
	require.NoError(t, err)
	return body
}

func TestSNSHandler_ValidNotificationPublishes(t *testing.T) {
	publisher := new(MockPublisher)
	handler := NewSNSHandler(bypassSNSVerifier(), publisher, testLogger(), validator.New(), metrics.NewNoop())

	inner := `{"originationNumber":"+12025551234","destinationNumber":"+12025550000","messageBody":"3000","inboundMessageId":"prov-1","messageTimestamp":"2024-09-29T12:00:00Z"}`
	publisher.On("Publish", mock.Anything, SubjectInboundSNS, mock.MatchedBy(func(data []byte) bool {
		var msg domain.InboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return false
		}
		return msg.From == "+12025551234" && msg.Body == "3000" &&
			msg.ProviderMessageID == "prov-1" && msg.Provider == "sns"
	})).Return(nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/webhooks/sns", strings.NewReader(string(snsEnvelopeBody(t, "Notification", inner, ""))))
	rr := httptest.NewRecorder()

	handler.HandleNotification(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	publisher.AssertExpectations(t)
}

func TestSNSHandler_BadSignatureGets403(t *testing.T) {
	publisher := new(MockPublisher)
	handler := NewSNSHandler(strictSNSVerifier(), publisher, testLogger(), validator.New(), metrics.NewNoop())

	// A non-allow-listed cert host fails verification before any fetch.
	env := verify.SNSEnvelope{
		Type:           "Notification",
		MessageID:      "env-1",
		Message:        `{}`,
		Timestamp:      "2024-09-29T12:00:00.000Z",
		Signature:      "AAAA",
		SigningCertURL: "https://evil.example.com/cert.pem",
	}
	body, err := json.Marshal(env)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/sns", strings.NewReader(string(body)))
	rr := httptest.NewRecorder()

	handler.HandleNotification(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
	publisher.AssertNotCalled(t, "Publish")
}

func TestSNSHandler_ProcessingErrorStillAnswers200(t *testing.T) {
	publisher := new(MockPublisher)
	handler := NewSNSHandler(bypassSNSVerifier(), publisher, testLogger(), validator.New(), metrics.NewNoop())

	inner := `{"originationNumber":"+12025551234","destinationNumber":"+12025550000","messageBody":"3000","inboundMessageId":"prov-1","messageTimestamp":"2024-09-29T12:00:00Z"}`
	publisher.On("Publish", mock.Anything, SubjectInboundSNS, mock.Anything).
		Return(errors.New("nats down")).Once()

	req := httptest.NewRequest(http.MethodPost, "/webhooks/sns", strings.NewReader(string(snsEnvelopeBody(t, "Notification", inner, ""))))
	rr := httptest.NewRecorder()

	handler.HandleNotification(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	publisher.AssertExpectations(t)
}

func TestSNSHandler_InvalidInnerMessageAnswers200(t *testing.T) {
	publisher := new(MockPublisher)
	handler := NewSNSHandler(bypassSNSVerifier(), publisher, testLogger(), validator.New(), metrics.NewNoop())

	req := httptest.NewRequest(http.MethodPost, "/webhooks/sns", strings.NewReader(string(snsEnvelopeBody(t, "Notification", `not json`, ""))))
	rr := httptest.NewRecorder()

	handler.HandleNotification(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	publisher.AssertNotCalled(t, "Publish")
}

func TestSNSHandler_SubscriptionConfirmation(t *testing.T) {
	confirmed := false
	confirmServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		confirmed = true
	}))
	defer confirmServer.Close()

	publisher := new(MockPublisher)
	handler := NewSNSHandler(bypassSNSVerifier(), publisher, testLogger(), validator.New(), metrics.NewNoop())

	body := snsEnvelopeBody(t, "SubscriptionConfirmation", "", confirmServer.URL)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/sns", strings.NewReader(string(body)))
	rr := httptest.NewRecorder()

	handler.HandleNotification(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, confirmed)
	publisher.AssertNotCalled(t, "Publish")
}

func signedTwilioRequest(t *testing.T, v *verify.TwilioVerifier, form url.Values) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/twilio/sms", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(verify.SignatureHeader, v.ComputeSignature("https://hooks.example.com/webhooks/twilio/sms", form))
	return req
}

func twilioTestForm() url.Values {
	form := url.Values{}
	form.Set("From", "+12025551234")
	form.Set("To", "+12025550000")
	form.Set("Body", "budget 3000")
	form.Set("MessageSid", "SM123")
	form.Set("AccountSid", "AC123")
	form.Set("NumSegments", "1")
	form.Set("NumMedia", "0")
	return form
}

func TestTwilioHandler_ValidFormPublishesAndAnswersTwiML(t *testing.T) {
	v := verify.NewTwilioVerifier(testLogger(), "token", "https://hooks.example.com", false)
	publisher := new(MockPublisher)
	handler := NewTwilioHandler(v, publisher, testLogger(), metrics.NewNoop())

	publisher.On("Publish", mock.Anything, SubjectInboundTwilio, mock.MatchedBy(func(data []byte) bool {
		var msg domain.InboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return false
		}
		return msg.From == "+12025551234" && msg.ProviderMessageID == "SM123" && msg.Provider == "twilio"
	})).Return(nil).Once()

	rr := httptest.NewRecorder()
	handler.HandleInboundSMS(rr, signedTwilioRequest(t, v, twilioTestForm()))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/xml", rr.Header().Get("Content-Type"))
	assert.Equal(t, emptyTwiML, rr.Body.String())
	publisher.AssertExpectations(t)
}

func TestTwilioHandler_BadSignatureGets403(t *testing.T) {
	v := verify.NewTwilioVerifier(testLogger(), "token", "https://hooks.example.com", false)
	publisher := new(MockPublisher)
	handler := NewTwilioHandler(v, publisher, testLogger(), metrics.NewNoop())

	form := twilioTestForm()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/twilio/sms", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(verify.SignatureHeader, "bogus")

	rr := httptest.NewRecorder()
	handler.HandleInboundSMS(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
	publisher.AssertNotCalled(t, "Publish")
}

func TestTwilioHandler_MediaMessageSkipped(t *testing.T) {
	v := verify.NewTwilioVerifier(testLogger(), "token", "https://hooks.example.com", false)
	publisher := new(MockPublisher)
	handler := NewTwilioHandler(v, publisher, testLogger(), metrics.NewNoop())

	form := twilioTestForm()
	form.Set("NumMedia", "1")

	rr := httptest.NewRecorder()
	handler.HandleInboundSMS(rr, signedTwilioRequest(t, v, form))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, emptyTwiML, rr.Body.String())
	publisher.AssertNotCalled(t, "Publish")
}

func TestTwilioHandler_PublishErrorStillAnswers200(t *testing.T) {
	v := verify.NewTwilioVerifier(testLogger(), "token", "https://hooks.example.com", false)
	publisher := new(MockPublisher)
	handler := NewTwilioHandler(v, publisher, testLogger(), metrics.NewNoop())

	publisher.On("Publish", mock.Anything, SubjectInboundTwilio, mock.Anything).
		Return(errors.New("nats down")).Once()

	rr := httptest.NewRecorder()
	handler.HandleInboundSMS(rr, signedTwilioRequest(t, v, twilioTestForm()))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, emptyTwiML, rr.Body.String())
	publisher.AssertExpectations(t)
}
