package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Carrier API error codes.
const carrierOptOutCode = 21610 // destination has replied STOP at the carrier

var carrierRetryableCodes = map[int]bool{
	20429: true, // too many requests
	20500: true, // internal error
	20503: true, // service unavailable
	30001: true, // queue overflow
}

// CarrierBackend integrates the carrier REST API. When a sender pool is
// configured it is preferred over the raw origination number; the carrier
// then picks the best identity per destination.
type CarrierBackend struct {
	logger       *slog.Logger
	httpClient   *http.Client
	baseURL      string
	accountSID   string
	authToken    string
	origination  string
	senderPoolID string
}

func NewCarrierBackend(logger *slog.Logger, baseURL, accountSID, authToken, origination, senderPoolID string, httpClient *http.Client) *CarrierBackend {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &CarrierBackend{
		logger:       logger.With("provider", "carrier"),
		httpClient:   httpClient,
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		accountSID:   accountSID,
		authToken:    authToken,
		origination:  origination,
		senderPoolID: senderPoolID,
	}
}

type carrierMessageResponse struct {
	SID       string `json:"sid"`
	Status    string `json:"status"`
	ErrorCode *int   `json:"error_code"`
}

type carrierErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (b *CarrierBackend) Send(ctx context.Context, to, body string, msgType MessageType) (*BackendResponse, error) {
	form := url.Values{}
	form.Set("To", to)
	form.Set("Body", body)
	if b.senderPoolID != "" {
		form.Set("MessagingServiceSid", b.senderPoolID)
	} else {
		form.Set("From", b.origination)
	}

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", b.baseURL, b.accountSID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build carrier request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.SetBasicAuth(b.accountSID, b.authToken)

	httpResp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return &BackendResponse{Retryable: true}, fmt.Errorf("carrier request: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return &BackendResponse{Retryable: true},
			fmt.Errorf("read carrier response (status %d): %w", httpResp.StatusCode, err)
	}

	if httpResp.StatusCode >= 200 && httpResp.StatusCode < 300 {
		var msg carrierMessageResponse
		if err := json.Unmarshal(respBody, &msg); err != nil {
			b.logger.WarnContext(ctx, "Carrier accepted message but response body did not parse",
				"status_code", httpResp.StatusCode, "error", err)
			return &BackendResponse{}, nil
		}
		return &BackendResponse{MessageID: msg.SID}, nil
	}

	var provErr carrierErrorResponse
	_ = json.Unmarshal(respBody, &provErr)

	resp := &BackendResponse{
		Retryable:      carrierRetryableCodes[provErr.Code],
		OptOutDetected: provErr.Code == carrierOptOutCode,
		ErrorCode:      fmt.Sprintf("%d", provErr.Code),
	}

	b.logger.WarnContext(ctx, "Carrier rejected message",
		"status_code", httpResp.StatusCode, "error_code", provErr.Code,
		"retryable", resp.Retryable, "opt_out", resp.OptOutDetected)

	return resp, fmt.Errorf("carrier error %d (status %d): %s", provErr.Code, httpResp.StatusCode, provErr.Message)
}

func (b *CarrierBackend) Name() string { return "carrier" }
