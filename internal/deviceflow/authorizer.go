package deviceflow

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// ClientID is the OAuth client ID of the Copilot editor integration.
const ClientID = "Iv1.b507a08c87ecfe98"

// DefaultGitHubURL is the GitHub web base hosting the OAuth endpoints.
const DefaultGitHubURL = "https://github.com"

var scopes = []string{"read:user"}

// Endpoint is GitHub's device flow endpoint.
var Endpoint = NewEndpoint(DefaultGitHubURL)

// NewEndpoint returns the device flow endpoint for a GitHub instance.
func NewEndpoint(githubURL string) oauth2.Endpoint {
	return oauth2.Endpoint{
		DeviceAuthURL: githubURL + "/login/device/code",
		TokenURL:      githubURL + "/login/oauth/access_token",
	}
}

// Defaults applied when the device authorization response omits them.
const (
	defaultExpiresIn = 900
	defaultInterval  = 5
)

// DeviceAuthorization is the outcome of a device code request. It is
// immutable and consumed by a single polling session.
type DeviceAuthorization struct {
	DeviceCode      string
	UserCode        string
	VerificationURI string
	// ExpiresIn is the lifetime of the device code in seconds.
	ExpiresIn int
	// Interval is the minimum polling interval in seconds.
	Interval int
}

// Authorizer starts the device authorization grant.
type Authorizer struct {
	config *oauth2.Config
	client *http.Client
}

// NewAuthorizer creates a device flow authorizer.
func NewAuthorizer(endpoint oauth2.Endpoint, clientID string) *Authorizer {
	config := &oauth2.Config{
		ClientID: clientID,
		Scopes:   scopes,
		Endpoint: endpoint,
	}

	return &Authorizer{
		config: config,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// RequestCode requests a device code and the user code to present.
// The caller must show UserCode and VerificationURI to the user before polling.
func (a *Authorizer) RequestCode(ctx context.Context) (DeviceAuthorization, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.client)

	requestedAt := time.Now()
	resp, err := a.config.DeviceAuth(ctx)
	if err != nil {
		return DeviceAuthorization{}, fmt.Errorf("requesting device code: %w", err)
	}

	return toDeviceAuthorization(resp, requestedAt), nil
}

// toDeviceAuthorization converts the oauth2 response, which carries an
// absolute expiry, back into the relative lifetime the poller sizes its
// attempt budget from.
func toDeviceAuthorization(resp *oauth2.DeviceAuthResponse, requestedAt time.Time) DeviceAuthorization {
	expiresIn := defaultExpiresIn
	if !resp.Expiry.IsZero() {
		expiresIn = int(math.Round(resp.Expiry.Sub(requestedAt).Seconds()))
	}

	interval := defaultInterval
	if resp.Interval > 0 {
		interval = int(resp.Interval)
	}

	return DeviceAuthorization{
		DeviceCode:      resp.DeviceCode,
		UserCode:        resp.UserCode,
		VerificationURI: resp.VerificationURI,
		ExpiresIn:       expiresIn,
		Interval:        interval,
	}
}
