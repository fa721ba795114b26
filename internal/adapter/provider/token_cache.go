package provider

import (
	"context"
	"sync"
	"time"

	"github.com/nairobikonnect/konnect/internal/metrics"
)

// CredentialSource fetches a fresh bearer token from the provider's
// credential endpoint.
type CredentialSource interface {
	FetchCredentials(ctx context.Context) (token string, expiresIn time.Duration, err error)
}

// TokenCache holds the provider bearer token in process memory and refreshes
// it lazily once expired. Concurrent callers observing an expired token may
// each trigger a refresh; the credential endpoint is idempotent and cheap, so
// nobody blocks on an in-flight refresh.
type TokenCache struct {
	source CredentialSource
	now    func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func NewTokenCache(source CredentialSource) *TokenCache {
	return &TokenCache{
		source: source,
		now:    time.Now,
	}
}

func (c *TokenCache) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	token, expiresAt := c.token, c.expiresAt
	c.mu.Unlock()

	if token != "" && c.now().Before(expiresAt) {
		return token, nil
	}

	fresh, expiresIn, err := c.source.FetchCredentials(ctx)
	if err != nil {
		return "", err
	}
	metrics.TokenRefreshTotal.Inc()

	c.mu.Lock()
	c.token = fresh
	c.expiresAt = c.now().Add(expiresIn)
	c.mu.Unlock()

	return fresh, nil
}
