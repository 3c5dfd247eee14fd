package verify

import (
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/centsible/smsbudget/internal/budget/domain"
)

// SNSEnvelope is the push-topic provider's notification wrapper. Message
// holds the actual payload as a JSON string.
type SNSEnvelope struct {
	Type             string `json:"Type" validate:"required"`
	MessageID        string `json:"MessageId" validate:"required"`
	TopicArn         string `json:"TopicArn"`
	Subject          string `json:"Subject"`
	Message          string `json:"Message"`
	Timestamp        string `json:"Timestamp"`
	SignatureVersion string `json:"SignatureVersion"`
	Signature        string `json:"Signature" validate:"required"`
	SigningCertURL   string `json:"SigningCertURL" validate:"required,url"`
	SubscribeURL     string `json:"SubscribeURL"`
}

// signedFields is the fixed canonical ordering the provider signs over.
var signedFields = []string{"Message", "MessageId", "Subject", "Timestamp", "TopicArn", "Type"}

// SNSVerifier checks the RSA-SHA1 signature on push-topic envelopes against
// the certificate the envelope points at. Certificates are cached by URL.
type SNSVerifier struct {
	logger         *slog.Logger
	httpClient     *http.Client
	certHostSuffix string
	devBypass      bool

	mu        sync.Mutex
	certCache map[string]cachedCert
}

type cachedCert struct {
	key       *rsa.PublicKey
	fetchedAt time.Time
}

const certCacheTTL = time.Hour

// NewSNSVerifier builds the verifier. devBypass must already be gated on a
// non-production environment by the caller.
func NewSNSVerifier(logger *slog.Logger, certHostSuffix string, devBypass bool, httpClient *http.Client) *SNSVerifier {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &SNSVerifier{
		logger:         logger.With("verifier", "sns"),
		httpClient:     httpClient,
		certHostSuffix: certHostSuffix,
		devBypass:      devBypass,
		certCache:      make(map[string]cachedCert),
	}
}

func (v *SNSVerifier) Verify(ctx context.Context, r *http.Request, body []byte) error {
	if v.devBypass {
		v.logger.WarnContext(ctx, "Signature verification bypassed (development mode)")
		return nil
	}

	var env SNSEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("%w: malformed envelope: %v", domain.ErrSignatureInvalid, err)
	}
	return v.VerifyEnvelope(ctx, &env)
}

// VerifyEnvelope checks an already-decoded envelope.
func (v *SNSVerifier) VerifyEnvelope(ctx context.Context, env *SNSEnvelope) error {
	if v.devBypass {
		return nil
	}

	sig, err := base64.StdEncoding.DecodeString(env.Signature)
	if err != nil {
		return fmt.Errorf("%w: signature is not base64", domain.ErrSignatureInvalid)
	}

	key, err := v.signingKey(ctx, env.SigningCertURL)
	if err != nil {
		return err
	}

	digest := sha1.Sum(canonicalString(env))
	if err := rsa.VerifyPKCS1v15(key, crypto.SHA1, digest[:], sig); err != nil {
		return fmt.Errorf("%w: rsa verification failed", domain.ErrSignatureInvalid)
	}
	return nil
}

// ConfirmSubscription acknowledges a SubscriptionConfirmation message by
// fetching its confirmation URL.
func (v *SNSVerifier) ConfirmSubscription(ctx context.Context, subscribeURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, subscribeURL, nil)
	if err != nil {
		return fmt.Errorf("build subscription confirmation request: %w", err)
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("confirm subscription: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("subscription confirmation returned status %d", resp.StatusCode)
	}
	v.logger.InfoContext(ctx, "Topic subscription confirmed")
	return nil
}

// canonicalString builds the "field\nvalue\n" concatenation over every
// present signed field, in the provider's fixed order.
func canonicalString(env *SNSEnvelope) []byte {
	values := map[string]string{
		"Message":   env.Message,
		"MessageId": env.MessageID,
		"Subject":   env.Subject,
		"Timestamp": env.Timestamp,
		"TopicArn":  env.TopicArn,
		"Type":      env.Type,
	}

	var b strings.Builder
	for _, field := range signedFields {
		val, ok := values[field]
		if !ok || val == "" {
			continue
		}
		b.WriteString(field)
		b.WriteByte('\n')
		b.WriteString(val)
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

func (v *SNSVerifier) signingKey(ctx context.Context, certURL string) (*rsa.PublicKey, error) {
	if err := v.checkCertURL(certURL); err != nil {
		return nil, err
	}

	v.mu.Lock()
	if cached, ok := v.certCache[certURL]; ok && time.Since(cached.fetchedAt) < certCacheTTL {
		v.mu.Unlock()
		return cached.key, nil
	}
	v.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, certURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build cert fetch request: %w", err)
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch signing cert: %w", err)
	}
	defer resp.Body.Close()

	pemBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read signing cert: %w", err)
	}

	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("%w: signing cert is not PEM", domain.ErrSignatureInvalid)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: signing cert does not parse", domain.ErrSignatureInvalid)
	}
	key, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: signing cert key is not RSA", domain.ErrSignatureInvalid)
	}

	v.mu.Lock()
	v.certCache[certURL] = cachedCert{key: key, fetchedAt: time.Now()}
	v.mu.Unlock()
	return key, nil
}

// checkCertURL enforces the allow-list: https, and a host of the form
// sns.*<suffix>. Anything else is treated as a forged envelope.
func (v *SNSVerifier) checkCertURL(certURL string) error {
	u, err := url.Parse(certURL)
	if err != nil {
		return fmt.Errorf("%w: signing cert URL does not parse", domain.ErrSignatureInvalid)
	}
	if u.Scheme != "https" {
		return fmt.Errorf("%w: signing cert URL is not https", domain.ErrSignatureInvalid)
	}
	host := u.Hostname()
	if !strings.HasPrefix(host, "sns.") || !strings.HasSuffix(host, v.certHostSuffix) {
		return fmt.Errorf("%w: signing cert host %q not allow-listed", domain.ErrSignatureInvalid, host)
	}
	return nil
}
