// Package verify authenticates inbound provider webhooks. Each provider
// has its own protocol; both hide behind one capability interface so the
// transport layer stays provider-agnostic.
package verify

import (
	"context"
	"net/http"
)

// Verifier validates that a webhook request genuinely originates from its
// declared provider. A returned error means the caller must NOT process
// the payload and must answer with a 401/403-class status.
type Verifier interface {
	Verify(ctx context.Context, r *http.Request, body []byte) error
}
