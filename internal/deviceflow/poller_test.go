package deviceflow

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/florianilch/copilot-proxy/internal/transport/transporttest"
)

const tokenURL = "https://github.test/login/oauth/access_token"

// recorder captures poller progress and sleeps without waiting.
type recorder struct {
	attempts    []int
	maxAttempts []int
	sleeps      []time.Duration
}

func (r *recorder) options() []PollerOption {
	return []PollerOption{
		WithObserver(ObserverFunc(func(attempt, max int) {
			r.attempts = append(r.attempts, attempt)
			r.maxAttempts = append(r.maxAttempts, max)
		})),
		WithSleep(func(ctx context.Context, d time.Duration) error {
			r.sleeps = append(r.sleeps, d)
			return nil
		}),
	}
}

func pending() transporttest.Result {
	return transporttest.JSON(http.StatusOK, `{"error":"authorization_pending"}`)
}

func TestPoller_ReturnsTokenAfterPending(t *testing.T) {
	fake := transporttest.New(
		pending(), pending(), pending(),
		transporttest.JSON(http.StatusOK, `{"access_token":"tok123","token_type":"bearer"}`),
	)
	rec := &recorder{}
	p := NewPoller(fake, tokenURL, ClientID, rec.options()...)

	token, err := p.Poll(context.Background(), DeviceAuthorization{DeviceCode: "dev", ExpiresIn: 900, Interval: 5})
	require.NoError(t, err)

	assert.Equal(t, "tok123", token)
	assert.Equal(t, []int{0, 1, 2, 3}, rec.attempts)
	assert.Equal(t, []time.Duration{6 * time.Second, 6 * time.Second, 6 * time.Second}, rec.sleeps)

	calls := fake.Calls()
	require.Len(t, calls, 4)
	assert.Equal(t, tokenURL, calls[0].URL)
	assert.Equal(t, tokenRequest{ClientID: ClientID, DeviceCode: "dev", GrantType: grantTypeDeviceCode}, calls[0].Body)
	assert.Equal(t, "application/json", calls[0].Header.Get("Accept"))
}

func TestPoller_MaxAttemptsFromInitialInterval(t *testing.T) {
	tests := []struct {
		expiresIn, interval, want int
	}{
		{expiresIn: 900, interval: 5, want: 150},
		{expiresIn: 10, interval: 2, want: 4},
		{expiresIn: 9, interval: 2, want: 3},
		{expiresIn: 1, interval: 0, want: 1},
		{expiresIn: 0, interval: 5, want: 0},
	}

	for _, tt := range tests {
		state := newPollState(DeviceAuthorization{ExpiresIn: tt.expiresIn, Interval: tt.interval})
		assert.Equal(t, tt.want, state.MaxAttempts, "expires_in=%d interval=%d", tt.expiresIn, tt.interval)
		assert.Equal(t, tt.interval+1, state.SleepSeconds)
	}
}

func TestPoller_SlowDownIsCumulativeAndKeepsBudget(t *testing.T) {
	slowDown := transporttest.JSON(http.StatusOK, `{"error":"slow_down"}`)
	fake := transporttest.New(slowDown, slowDown, pending(), slowDown,
		transporttest.JSON(http.StatusOK, `{"access_token":"tok"}`))
	rec := &recorder{}
	p := NewPoller(fake, tokenURL, ClientID, rec.options()...)

	_, err := p.Poll(context.Background(), DeviceAuthorization{DeviceCode: "dev", ExpiresIn: 60, Interval: 1})
	require.NoError(t, err)

	assert.Equal(t, []time.Duration{
		7 * time.Second,
		12 * time.Second,
		12 * time.Second,
		17 * time.Second,
	}, rec.sleeps)
	for _, max := range rec.maxAttempts {
		assert.Equal(t, 30, max)
	}
}

func TestPoller_TerminalErrorsStopImmediately(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		assert func(t *testing.T, err error)
	}{
		{
			name: "access denied",
			body: `{"error":"access_denied"}`,
			assert: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrAccessDenied)
			},
		},
		{
			name: "expired token",
			body: `{"error":"expired_token"}`,
			assert: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrExpiredToken)
			},
		},
		{
			name: "unknown oauth error",
			body: `{"error":"unsupported_grant_type","error_description":"bad grant"}`,
			assert: func(t *testing.T, err error) {
				var oauthErr *OAuthError
				require.ErrorAs(t, err, &oauthErr)
				assert.Equal(t, "unsupported_grant_type", oauthErr.Code)
				assert.Equal(t, "bad grant", oauthErr.Description)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := transporttest.New(pending(), transporttest.JSON(http.StatusBadRequest, tt.body))
			rec := &recorder{}
			p := NewPoller(fake, tokenURL, ClientID, rec.options()...)

			_, err := p.Poll(context.Background(), DeviceAuthorization{DeviceCode: "dev", ExpiresIn: 900, Interval: 5})

			require.Error(t, err)
			assert.True(t, IsAuthorizationError(err))
			tt.assert(t, err)
			assert.Len(t, fake.Calls(), 2)
			assert.Len(t, rec.sleeps, 1)
		})
	}
}

func TestPoller_TransientFailuresAreAbsorbed(t *testing.T) {
	fake := transporttest.New(
		transporttest.Failure(errors.New("connection reset by peer")),
		transporttest.JSON(http.StatusBadGateway, `<html>bad gateway</html>`),
		transporttest.JSON(http.StatusOK, `{}`),
		transporttest.JSON(http.StatusOK, `{"access_token":"tok"}`),
	)
	rec := &recorder{}
	p := NewPoller(fake, tokenURL, ClientID, rec.options()...)

	token, err := p.Poll(context.Background(), DeviceAuthorization{DeviceCode: "dev", ExpiresIn: 900, Interval: 5})
	require.NoError(t, err)
	assert.Equal(t, "tok", token)
	assert.Equal(t, []int{0, 1, 2, 3}, rec.attempts)
}

func TestPoller_TimesOut(t *testing.T) {
	fake := transporttest.New(pending())
	rec := &recorder{}
	p := NewPoller(fake, tokenURL, ClientID, rec.options()...)

	_, err := p.Poll(context.Background(), DeviceAuthorization{DeviceCode: "dev", ExpiresIn: 12, Interval: 2})

	require.ErrorIs(t, err, ErrTimedOut)
	assert.False(t, IsAuthorizationError(err))
	assert.Equal(t, []int{0, 1, 2, 3}, rec.attempts)
	assert.Len(t, fake.Calls(), 4)
}

func TestPoller_ContextCancelledDuringSleep(t *testing.T) {
	fake := transporttest.New(pending())
	ctx, cancel := context.WithCancel(context.Background())
	p := NewPoller(fake, tokenURL, ClientID, WithSleep(func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}))

	_, err := p.Poll(ctx, DeviceAuthorization{DeviceCode: "dev", ExpiresIn: 900, Interval: 5})

	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, fake.Calls(), 1)
}

func TestSleepContext(t *testing.T) {
	require.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}
