package tokensource

import (
	"context"
	"sync"
)

// Shared serializes access to a Refresher so it can back concurrent callers.
// Concurrent callers that find a stale token wait for a single refresh
// instead of each fetching their own.
type Shared struct {
	mu        sync.Mutex
	refresher *Refresher
}

// Compile-time check that Shared implements Provider.
var _ Provider = (*Shared)(nil)

// NewShared wraps r. The caller must not use r directly afterwards.
func NewShared(r *Refresher) *Shared {
	return &Shared{refresher: r}
}

// Token implements Provider.
func (s *Shared) Token(ctx context.Context) (ServiceToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refresher.Token(ctx)
}

// ForceRefresh implements Provider.
func (s *Shared) ForceRefresh(ctx context.Context) (ServiceToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refresher.ForceRefresh(ctx)
}

// Cached returns the cached token without refreshing it.
func (s *Shared) Cached() (ServiceToken, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refresher.Cached()
}
