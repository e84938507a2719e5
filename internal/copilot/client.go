// Package copilot is a client for the GitHub Copilot chat API.
//
// A Client is created from a GitHub access token. It exchanges that token for
// short-lived Copilot service tokens on demand and sends the editor header
// set Copilot expects with every call. A request rejected with 401 triggers
// one forced token refresh and one retry.
package copilot

import (
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/florianilch/copilot-proxy/internal/completions"
	"github.com/florianilch/copilot-proxy/internal/headers"
	"github.com/florianilch/copilot-proxy/internal/tokensource"
	"github.com/florianilch/copilot-proxy/internal/transport"
)

// DefaultModel is used by Ask when no model is given.
const DefaultModel = "gpt-4.1"

// AccountIndividual is the default Copilot account type.
const AccountIndividual = "individual"

// BaseURL returns the Copilot API base URL for an account type such as
// "individual", "business" or "enterprise".
func BaseURL(accountType string) string {
	if accountType == "" || accountType == AccountIndividual {
		return "https://api.githubcopilot.com"
	}
	return "https://api." + accountType + ".githubcopilot.com"
}

// Client talks to the Copilot API. It is safe for concurrent use.
type Client struct {
	transport     transport.Transport
	tokens        tokensource.Provider
	githubToken   string
	baseURL       string
	githubAPIURL  string
	vsCodeVersion string

	modelsMu    sync.RWMutex
	models      []Model
	modelsGroup singleflight.Group
}

// Option configures a Client.
type Option func(*Client)

// WithTransport replaces the HTTP transport.
func WithTransport(t transport.Transport) Option {
	return func(c *Client) {
		c.transport = t
	}
}

// WithTokenProvider replaces the service token provider. By default the
// client fetches service tokens with its own GitHub token.
func WithTokenProvider(p tokensource.Provider) Option {
	return func(c *Client) {
		c.tokens = p
	}
}

// WithAccountType selects the Copilot API host for the account type.
func WithAccountType(accountType string) Option {
	return func(c *Client) {
		c.baseURL = BaseURL(accountType)
	}
}

// WithBaseURL overrides the Copilot API base URL.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// WithGitHubAPIURL overrides the GitHub REST API base URL.
func WithGitHubAPIURL(url string) Option {
	return func(c *Client) {
		c.githubAPIURL = strings.TrimRight(url, "/")
	}
}

// WithVSCodeVersion sets the editor version reported to GitHub and Copilot.
func WithVSCodeVersion(version string) Option {
	return func(c *Client) {
		c.vsCodeVersion = version
	}
}

// New creates a Client for the given GitHub access token.
func New(githubToken string, opts ...Option) (*Client, error) {
	if githubToken == "" {
		return nil, fmt.Errorf("github token is required")
	}

	c := &Client{
		githubToken:   githubToken,
		baseURL:       BaseURL(AccountIndividual),
		githubAPIURL:  tokensource.DefaultGitHubAPIURL,
		vsCodeVersion: headers.DefaultVSCodeVersion,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.transport == nil {
		c.transport = transport.New()
	}
	if c.tokens == nil {
		fetcher := tokensource.NewCopilotFetcher(c.transport, githubToken,
			tokensource.WithGitHubAPIURL(c.githubAPIURL),
			tokensource.WithVSCodeVersion(c.vsCodeVersion),
		)
		c.tokens = tokensource.NewShared(tokensource.NewRefresher(fetcher))
	}

	return c, nil
}

// Chat sends a non-streaming chat completion request.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatCompletion, error) {
	req.Stream = false

	resp, err := c.post(ctx, "/chat/completions", req, detectFlags(req.Messages))
	if err != nil {
		return nil, err
	}

	var completion ChatCompletion
	if err := resp.DecodeJSON(&completion); err != nil {
		return nil, err
	}
	return &completion, nil
}

// ChatStream sends a streaming chat completion request. Request and status
// errors are returned directly; errors while reading the stream are yielded
// by the sequence. The response body is released when the sequence ends, so
// callers must range over it.
func (c *Client) ChatStream(ctx context.Context, req ChatRequest) (iter.Seq2[*completions.Chunk, error], error) {
	req.Stream = true
	flags := detectFlags(req.Messages)
	url := c.baseURL + "/chat/completions"

	body, err := withToken(ctx, c.tokens, func(token string) (io.ReadCloser, int, error) {
		body, err := c.transport.PostStreaming(ctx, url, req, headers.Copilot(token, c.vsCodeVersion, flags))
		status, _ := statusOf(err)
		return body, status, err
	})
	if err != nil {
		if status, raw := statusOf(err); status != 0 {
			return nil, newAPIError(status, raw)
		}
		return nil, fmt.Errorf("opening chat stream: %w", err)
	}

	return func(yield func(*completions.Chunk, error) bool) {
		defer body.Close()
		for chunk, err := range completions.Stream(body) {
			if !yield(chunk, err) {
				return
			}
		}
	}, nil
}

// Models returns the available models. The list is fetched once and cached
// until ClearModelCache is called. Concurrent callers share one fetch; it
// is not cancelled when the caller that started it goes away, and each
// caller stops waiting when its own ctx is done. Callers get their own copy
// of the list.
func (c *Client) Models(ctx context.Context) ([]Model, error) {
	c.modelsMu.RLock()
	cached := c.models
	c.modelsMu.RUnlock()
	if cached != nil {
		return slices.Clone(cached), nil
	}

	fetched := c.modelsGroup.DoChan("models", func() (any, error) {
		models, err := c.fetchModels(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		c.modelsMu.Lock()
		c.models = models
		c.modelsMu.Unlock()
		return models, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-fetched:
		if res.Err != nil {
			return nil, res.Err
		}
		return slices.Clone(res.Val.([]Model)), nil
	}
}

// Model returns the model with the given ID.
func (c *Client) Model(ctx context.Context, id string) (*Model, error) {
	models, err := c.Models(ctx)
	if err != nil {
		return nil, err
	}
	for i := range models {
		if models[i].ID == id {
			return &models[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrModelNotFound, id)
}

// ClearModelCache drops the cached model list.
func (c *Client) ClearModelCache() {
	c.modelsMu.Lock()
	c.models = nil
	c.modelsMu.Unlock()
}

func (c *Client) fetchModels(ctx context.Context) ([]Model, error) {
	resp, err := c.get(ctx, "/models")
	if err != nil {
		return nil, err
	}

	var list struct {
		Data []Model `json:"data"`
	}
	if err := resp.DecodeJSON(&list); err != nil {
		return nil, err
	}
	if list.Data == nil {
		list.Data = []Model{}
	}

	slog.DebugContext(ctx, "models fetched", "count", len(list.Data))
	return list.Data, nil
}

// Embeddings creates embeddings for req.Input.
func (c *Client) Embeddings(ctx context.Context, req EmbeddingRequest) (*EmbeddingResponse, error) {
	resp, err := c.post(ctx, "/embeddings", req, headers.Flags{})
	if err != nil {
		return nil, err
	}

	var out EmbeddingResponse
	if err := resp.DecodeJSON(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Embed returns the embedding vector of a single text.
func (c *Client) Embed(ctx context.Context, text, model string) ([]float64, error) {
	resp, err := c.Embeddings(ctx, EmbeddingRequest{Input: text, Model: model})
	if err != nil {
		return nil, err
	}
	vector := resp.First()
	if vector == nil {
		return nil, fmt.Errorf("embedding response without data")
	}
	return vector, nil
}

// AskOptions tune Ask.
type AskOptions struct {
	Model  string
	System string
}

// Ask sends a single prompt and returns the answer text.
func (c *Client) Ask(ctx context.Context, prompt string, opts AskOptions) (string, error) {
	model := opts.Model
	if model == "" {
		model = DefaultModel
	}

	messages := make([]Message, 0, 2)
	if opts.System != "" {
		messages = append(messages, NewMessage(RoleSystem, opts.System))
	}
	messages = append(messages, NewMessage(RoleUser, prompt))

	completion, err := c.Chat(ctx, ChatRequest{Model: model, Messages: messages})
	if err != nil {
		return "", err
	}
	return completion.Content(), nil
}

// User returns the GitHub user the access token belongs to.
func (c *Client) User(ctx context.Context) (*User, error) {
	resp, err := c.transport.Get(ctx, c.githubAPIURL+"/user", headers.GitHub(c.githubToken, c.vsCodeVersion))
	if err != nil {
		return nil, fmt.Errorf("fetching user: %w", err)
	}
	if !resp.OK() {
		return nil, newAPIError(resp.StatusCode, resp.Body)
	}

	var user User
	if err := resp.DecodeJSON(&user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Token returns the current service token, refreshing it when stale.
func (c *Client) Token(ctx context.Context) (tokensource.ServiceToken, error) {
	return c.tokens.Token(ctx)
}

// RefreshToken fetches a new service token regardless of freshness.
func (c *Client) RefreshToken(ctx context.Context) (tokensource.ServiceToken, error) {
	return c.tokens.ForceRefresh(ctx)
}

func (c *Client) post(ctx context.Context, path string, body any, flags headers.Flags) (*transport.Response, error) {
	url := c.baseURL + path
	return c.call(ctx, func(token string) (*transport.Response, error) {
		return c.transport.Post(ctx, url, body, headers.Copilot(token, c.vsCodeVersion, flags))
	})
}

func (c *Client) get(ctx context.Context, path string) (*transport.Response, error) {
	url := c.baseURL + path
	return c.call(ctx, func(token string) (*transport.Response, error) {
		return c.transport.Get(ctx, url, headers.Copilot(token, c.vsCodeVersion, headers.Flags{}))
	})
}

// call runs send with a service token and maps non-2xx responses to *APIError.
func (c *Client) call(ctx context.Context, send func(token string) (*transport.Response, error)) (*transport.Response, error) {
	resp, err := withToken(ctx, c.tokens, func(token string) (*transport.Response, int, error) {
		resp, err := send(token)
		if err != nil {
			return nil, 0, err
		}
		return resp, resp.StatusCode, nil
	})
	if err != nil {
		return nil, fmt.Errorf("copilot request: %w", err)
	}
	if !resp.OK() {
		return nil, newAPIError(resp.StatusCode, resp.Body)
	}
	return resp, nil
}

// withToken runs send with the current service token. When the upstream
// answers 401 the token is refreshed once and send is retried once.
func withToken[T any](ctx context.Context, tokens tokensource.Provider, send func(token string) (T, int, error)) (T, error) {
	var zero T

	token, err := tokens.Token(ctx)
	if err != nil {
		return zero, fmt.Errorf("obtaining service token: %w", err)
	}

	result, status, err := send(token.Value)
	if status != http.StatusUnauthorized {
		return result, err
	}

	slog.InfoContext(ctx, "service token rejected, refreshing")
	token, err = tokens.ForceRefresh(ctx)
	if err != nil {
		return zero, fmt.Errorf("refreshing rejected service token: %w", err)
	}

	result, _, err = send(token.Value)
	return result, err
}
