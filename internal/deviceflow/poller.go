package deviceflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/florianilch/copilot-proxy/internal/headers"
	"github.com/florianilch/copilot-proxy/internal/transport"
)

const (
	grantTypeDeviceCode = "urn:ietf:params:oauth:grant-type:device_code"

	// slowDownIncrement is added to the sleep interval per "slow_down" response.
	slowDownIncrement = 5
)

// Observer is notified before every poll attempt.
type Observer interface {
	OnPollAttempt(attempt, maxAttempts int)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(attempt, maxAttempts int)

// OnPollAttempt implements Observer.
func (f ObserverFunc) OnPollAttempt(attempt, maxAttempts int) {
	f(attempt, maxAttempts)
}

// PollState is the mutable state of one polling session.
type PollState struct {
	Attempt      int
	SleepSeconds int
	MaxAttempts  int
}

// newPollState sizes the session budget from the initial sleep interval.
func newPollState(auth DeviceAuthorization) PollState {
	sleep := auth.Interval + 1
	maxAttempts := 0
	if auth.ExpiresIn > 0 {
		maxAttempts = (auth.ExpiresIn + sleep - 1) / sleep
	}
	return PollState{SleepSeconds: sleep, MaxAttempts: maxAttempts}
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Poller exchanges a device code for an access token once the user approves.
type Poller struct {
	transport transport.Transport
	tokenURL  string
	clientID  string
	observer  Observer
	sleep     SleepFunc
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithObserver registers a progress observer.
func WithObserver(o Observer) PollerOption {
	return func(p *Poller) {
		p.observer = o
	}
}

// WithSleep replaces the sleep between attempts.
func WithSleep(sleep SleepFunc) PollerOption {
	return func(p *Poller) {
		p.sleep = sleep
	}
}

// NewPoller creates a poller for the given token endpoint.
func NewPoller(t transport.Transport, tokenURL, clientID string, opts ...PollerOption) *Poller {
	p := &Poller{
		transport: t,
		tokenURL:  tokenURL,
		clientID:  clientID,
		sleep:     sleepContext,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Poll blocks until the user approves or denies the authorization, the code
// expires, the attempt budget is exhausted, or ctx is done. It returns the
// access token on approval.
//
// A Poller may run several sessions sequentially, but a DeviceAuthorization
// must not be polled by more than one session.
func (p *Poller) Poll(ctx context.Context, auth DeviceAuthorization) (string, error) {
	state := newPollState(auth)

	for ; state.Attempt < state.MaxAttempts; state.Attempt++ {
		if p.observer != nil {
			p.observer.OnPollAttempt(state.Attempt, state.MaxAttempts)
		}

		token, err := p.exchange(ctx, auth.DeviceCode)
		switch {
		case err == nil:
			slog.DebugContext(ctx, "device authorized", "attempt", state.Attempt)
			return token, nil
		case errors.Is(err, errAuthorizationPending):
			// keep polling
		case errors.Is(err, errSlowDown):
			state.SleepSeconds += slowDownIncrement
			slog.DebugContext(ctx, "slowing down device polling", "sleep_seconds", state.SleepSeconds)
		case IsAuthorizationError(err):
			return "", err
		case ctx.Err() != nil:
			return "", ctx.Err()
		default:
			slog.WarnContext(ctx, "device poll failed, retrying", "attempt", state.Attempt, "error", err)
		}

		if err := p.sleep(ctx, time.Duration(state.SleepSeconds)*time.Second); err != nil {
			return "", err
		}
	}

	return "", ErrTimedOut
}

// tokenRequest is the body sent to the token endpoint.
type tokenRequest struct {
	ClientID   string `json:"client_id"`
	DeviceCode string `json:"device_code"`
	GrantType  string `json:"grant_type"`
}

// tokenResponse covers both success and error bodies of the token endpoint.
type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// exchange performs one poll. It returns the token, a terminal authorization
// error, one of the transient sentinels, or a transport failure.
func (p *Poller) exchange(ctx context.Context, deviceCode string) (string, error) {
	req := tokenRequest{
		ClientID:   p.clientID,
		DeviceCode: deviceCode,
		GrantType:  grantTypeDeviceCode,
	}

	resp, err := p.transport.Post(ctx, p.tokenURL, req, headers.Standard())
	if err != nil {
		return "", err
	}

	var body tokenResponse
	if err := resp.DecodeJSON(&body); err != nil {
		return "", fmt.Errorf("status %d: %w", resp.StatusCode, err)
	}

	return classify(body, resp.StatusCode)
}

func classify(body tokenResponse, status int) (string, error) {
	if body.AccessToken != "" {
		return body.AccessToken, nil
	}

	switch body.Error {
	case "":
		return "", fmt.Errorf("token response without token or error (status %d)", status)
	case "authorization_pending":
		return "", errAuthorizationPending
	case "slow_down":
		return "", errSlowDown
	case "expired_token":
		return "", ErrExpiredToken
	case "access_denied":
		return "", ErrAccessDenied
	default:
		return "", &OAuthError{Code: body.Error, Description: body.ErrorDescription}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
