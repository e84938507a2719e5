package tokensource

import (
	"log/slog"
	"time"
)

// GracePeriod is how long before its expiry a token is already treated as stale.
const GracePeriod = 300 * time.Second

// ServiceToken is a short-lived Copilot API token.
// Tokens are replaced on refresh, never mutated.
type ServiceToken struct {
	// Value is the bearer credential.
	Value string
	// ExpiresAt is the authoritative expiry.
	ExpiresAt time.Time
	// RefreshIn is the server's suggested refresh interval.
	RefreshIn time.Duration
}

// Compile-time check that ServiceToken never logs its value.
var _ slog.LogValuer = ServiceToken{}

// Fresh reports whether the token is usable at now: now < ExpiresAt - GracePeriod.
func (t ServiceToken) Fresh(now time.Time) bool {
	return now.Before(t.ExpiresAt.Add(-GracePeriod))
}

// ExpiringSoon reports whether the token is within the grace period of its expiry.
func (t ServiceToken) ExpiringSoon(now time.Time) bool {
	return !t.Fresh(now)
}

// Expired reports whether the token is past its expiry.
func (t ServiceToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// TTL returns the time left until expiry, clamped to zero.
func (t ServiceToken) TTL(now time.Time) time.Duration {
	return max(0, t.ExpiresAt.Sub(now))
}

// LogValue implements slog.LogValuer and redacts the token value.
func (t ServiceToken) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("value", "[REDACTED]"),
		slog.Time("expires_at", t.ExpiresAt),
		slog.Duration("refresh_in", t.RefreshIn),
	)
}
