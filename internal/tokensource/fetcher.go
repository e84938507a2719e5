package tokensource

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/florianilch/copilot-proxy/internal/headers"
	"github.com/florianilch/copilot-proxy/internal/transport"
)

// DefaultGitHubAPIURL is the GitHub REST API base.
const DefaultGitHubAPIURL = "https://api.github.com"

const copilotTokenPath = "/copilot_internal/v2/token"

// CopilotFetcher exchanges a GitHub access token for a Copilot service token.
type CopilotFetcher struct {
	transport     transport.Transport
	githubToken   string
	apiURL        string
	vsCodeVersion string
}

// Compile-time check that CopilotFetcher implements Fetcher.
var _ Fetcher = (*CopilotFetcher)(nil)

// FetcherOption configures a CopilotFetcher.
type FetcherOption func(*CopilotFetcher)

// WithGitHubAPIURL overrides the GitHub API base URL.
func WithGitHubAPIURL(url string) FetcherOption {
	return func(f *CopilotFetcher) {
		f.apiURL = url
	}
}

// WithVSCodeVersion sets the editor version reported to GitHub.
func WithVSCodeVersion(version string) FetcherOption {
	return func(f *CopilotFetcher) {
		f.vsCodeVersion = version
	}
}

// NewCopilotFetcher creates a fetcher authenticated with githubToken.
func NewCopilotFetcher(t transport.Transport, githubToken string, opts ...FetcherOption) *CopilotFetcher {
	f := &CopilotFetcher{
		transport:     t,
		githubToken:   githubToken,
		apiURL:        DefaultGitHubAPIURL,
		vsCodeVersion: headers.DefaultVSCodeVersion,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// tokenResponse is the body of the Copilot token endpoint.
type tokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt *int64 `json:"expires_at"`
	RefreshIn int64  `json:"refresh_in"`
}

// Fetch implements Fetcher.
func (f *CopilotFetcher) Fetch(ctx context.Context) (ServiceToken, error) {
	resp, err := f.transport.Get(ctx, f.apiURL+copilotTokenPath, headers.GitHub(f.githubToken, f.vsCodeVersion))
	if err != nil {
		return ServiceToken{}, &FetchError{Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return ServiceToken{}, &FetchError{StatusCode: resp.StatusCode, Body: resp.Body}
	}

	var body tokenResponse
	if err := resp.DecodeJSON(&body); err != nil {
		return ServiceToken{}, &FetchError{StatusCode: resp.StatusCode, Err: err}
	}
	if body.Token == "" || body.ExpiresAt == nil {
		return ServiceToken{}, &FetchError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("token response missing token or expires_at"),
		}
	}

	return ServiceToken{
		Value:     body.Token,
		ExpiresAt: time.Unix(*body.ExpiresAt, 0),
		RefreshIn: time.Duration(body.RefreshIn) * time.Second,
	}, nil
}
