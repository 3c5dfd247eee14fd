package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"time"
)

var e164Pattern = regexp.MustCompile(`^\+[1-9]\d{6,14}$`)

// ValidE164 reports whether the number is a plausible E.164 string.
func ValidE164(number string) bool {
	return e164Pattern.MatchString(number)
}

// snsRetryableCodes are the transient error codes of the push-topic
// provider; anything else is terminal.
var snsRetryableCodes = map[string]bool{
	"Throttling":           true,
	"ServiceUnavailable":   true,
	"InternalServiceError": true,
}

// SNSBackend is the transactional push-style provider integration. It
// validates E.164 before spending a provider call and classifies the
// provider's named error codes.
type SNSBackend struct {
	logger     *slog.Logger
	httpClient *http.Client
	apiURL     string
	apiKey     string
}

func NewSNSBackend(logger *slog.Logger, apiURL, apiKey string, httpClient *http.Client) *SNSBackend {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &SNSBackend{
		logger:     logger.With("provider", "sns"),
		httpClient: httpClient,
		apiURL:     apiURL,
		apiKey:     apiKey,
	}
}

type snsPublishRequest struct {
	PhoneNumber string `json:"phone_number"`
	Message     string `json:"message"`
	MessageType string `json:"message_type"`
}

type snsPublishResponse struct {
	MessageID string `json:"message_id"`
}

type snsErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (b *SNSBackend) Send(ctx context.Context, to, body string, msgType MessageType) (*BackendResponse, error) {
	if !ValidE164(to) {
		return &BackendResponse{ErrorCode: "InvalidParameter"},
			fmt.Errorf("destination %s is not E.164", MaskPhone(to))
	}

	reqBody, err := json.Marshal(snsPublishRequest{
		PhoneNumber: to,
		Message:     body,
		MessageType: string(msgType),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal publish request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.apiURL+"/publish", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("build publish request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)

	httpResp, err := b.httpClient.Do(httpReq)
	if err != nil {
		// Network-level failures are worth one more try.
		return &BackendResponse{Retryable: true}, fmt.Errorf("publish request: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return &BackendResponse{Retryable: true},
			fmt.Errorf("read publish response (status %d): %w", httpResp.StatusCode, err)
	}

	if httpResp.StatusCode >= 200 && httpResp.StatusCode < 300 {
		var ok snsPublishResponse
		if err := json.Unmarshal(respBody, &ok); err != nil {
			b.logger.WarnContext(ctx, "Publish succeeded but response body did not parse",
				"status_code", httpResp.StatusCode, "error", err)
			return &BackendResponse{}, nil
		}
		return &BackendResponse{MessageID: ok.MessageID}, nil
	}

	var provErr snsErrorResponse
	_ = json.Unmarshal(respBody, &provErr)

	retryable := snsRetryableCodes[provErr.Code]
	b.logger.WarnContext(ctx, "Provider rejected publish",
		"status_code", httpResp.StatusCode, "error_code", provErr.Code, "retryable", retryable)

	return &BackendResponse{Retryable: retryable, ErrorCode: provErr.Code},
		fmt.Errorf("provider error %q (status %d): %s", provErr.Code, httpResp.StatusCode, provErr.Message)
}

func (b *SNSBackend) Name() string { return "sns" }
