package tokensource

import (
	"context"
	"log/slog"
	"time"
)

// Fetcher obtains a new service token from the upstream.
type Fetcher interface {
	Fetch(ctx context.Context) (ServiceToken, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context) (ServiceToken, error)

// Fetch implements Fetcher.
func (f FetcherFunc) Fetch(ctx context.Context) (ServiceToken, error) {
	return f(ctx)
}

// Provider is implemented by Refresher and Shared.
type Provider interface {
	Token(ctx context.Context) (ServiceToken, error)
	ForceRefresh(ctx context.Context) (ServiceToken, error)
}

// Refresher is a read-through cache over a single service token.
// It is not safe for concurrent use; see Shared.
type Refresher struct {
	fetcher Fetcher
	store   Store
	now     func() time.Time
}

// Compile-time check that Refresher implements Provider.
var _ Provider = (*Refresher)(nil)

// RefresherOption configures a Refresher.
type RefresherOption func(*Refresher)

// WithClock overrides the time source used for freshness checks.
func WithClock(now func() time.Time) RefresherOption {
	return func(r *Refresher) {
		r.now = now
	}
}

// WithToken seeds the cache with a previously obtained token.
func WithToken(token ServiceToken) RefresherOption {
	return func(r *Refresher) {
		r.store.Replace(token)
	}
}

// NewRefresher creates a Refresher with an empty cache.
func NewRefresher(fetcher Fetcher, opts ...RefresherOption) *Refresher {
	r := &Refresher{
		fetcher: fetcher,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Token returns the cached token when it is fresh, otherwise fetches and
// caches a new one. On fetch failure the cached token is kept and the error
// is returned.
func (r *Refresher) Token(ctx context.Context) (ServiceToken, error) {
	if token, ok := r.store.Load(); ok && token.Fresh(r.now()) {
		return token, nil
	}
	return r.refresh(ctx)
}

// ForceRefresh fetches and caches a new token regardless of freshness.
func (r *Refresher) ForceRefresh(ctx context.Context) (ServiceToken, error) {
	return r.refresh(ctx)
}

// Cached returns the cached token without refreshing it.
func (r *Refresher) Cached() (ServiceToken, bool) {
	return r.store.Load()
}

func (r *Refresher) refresh(ctx context.Context) (ServiceToken, error) {
	token, err := r.fetcher.Fetch(ctx)
	if err != nil {
		return ServiceToken{}, err
	}
	r.store.Replace(token)

	slog.DebugContext(ctx, "service token refreshed", "token", token)
	return token, nil
}
