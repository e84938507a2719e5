package copilot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/florianilch/copilot-proxy/internal/tokensource"
	"github.com/florianilch/copilot-proxy/internal/transport"
	"github.com/florianilch/copilot-proxy/internal/transport/transporttest"
)

// stubTokens hands out numbered tokens and counts refreshes.
type stubTokens struct {
	mu        sync.Mutex
	current   int
	refreshes int
	err       error
}

func (s *stubTokens) Token(ctx context.Context) (tokensource.ServiceToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return tokensource.ServiceToken{}, s.err
	}
	return s.token(), nil
}

func (s *stubTokens) ForceRefresh(ctx context.Context) (tokensource.ServiceToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshes++
	s.current++
	return s.token(), nil
}

func (s *stubTokens) token() tokensource.ServiceToken {
	return tokensource.ServiceToken{
		Value:     fmt.Sprintf("svc-%d", s.current),
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

func newTestClient(t *testing.T, fake *transporttest.Fake, tokens *stubTokens) *Client {
	t.Helper()
	c, err := New("gho_test",
		WithTransport(fake),
		WithTokenProvider(tokens),
		WithBaseURL("https://copilot.test/"),
		WithGitHubAPIURL("https://github.test"),
	)
	require.NoError(t, err)
	return c
}

const completionBody = `{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4.1",
	"choices":[{"index":0,"message":{"role":"assistant","content":"hello"},"finish_reason":"stop"}]}`

func TestNew_RequiresGitHubToken(t *testing.T) {
	_, err := New("")
	require.Error(t, err)
}

func TestBaseURL(t *testing.T) {
	assert.Equal(t, "https://api.githubcopilot.com", BaseURL(""))
	assert.Equal(t, "https://api.githubcopilot.com", BaseURL("individual"))
	assert.Equal(t, "https://api.business.githubcopilot.com", BaseURL("business"))
	assert.Equal(t, "https://api.enterprise.githubcopilot.com", BaseURL("enterprise"))
}

func TestClient_Chat(t *testing.T) {
	fake := transporttest.New(transporttest.JSON(http.StatusOK, completionBody))
	c := newTestClient(t, fake, &stubTokens{})

	completion, err := c.Chat(context.Background(), ChatRequest{
		Model:    "gpt-4.1",
		Messages: []Message{NewMessage(RoleUser, "hi")},
		Stream:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", completion.Content())

	calls := fake.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "https://copilot.test/chat/completions", calls[0].URL)
	assert.Equal(t, "Bearer svc-0", calls[0].Header.Get("Authorization"))
	assert.Equal(t, "user", calls[0].Header.Get("X-Initiator"))
	assert.False(t, calls[0].Body.(ChatRequest).Stream)
}

func TestClient_ChatRetriesOnceAfterUnauthorized(t *testing.T) {
	fake := transporttest.New(
		transporttest.JSON(http.StatusUnauthorized, `{"message":"token expired"}`),
		transporttest.JSON(http.StatusOK, completionBody),
	)
	tokens := &stubTokens{}
	c := newTestClient(t, fake, tokens)

	_, err := c.Chat(context.Background(), ChatRequest{Model: "gpt-4.1", Messages: []Message{NewMessage(RoleUser, "hi")}})
	require.NoError(t, err)

	assert.Equal(t, 1, tokens.refreshes)
	calls := fake.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "Bearer svc-0", calls[0].Header.Get("Authorization"))
	assert.Equal(t, "Bearer svc-1", calls[1].Header.Get("Authorization"))
}

func TestClient_ChatGivesUpAfterSecondUnauthorized(t *testing.T) {
	fake := transporttest.New(transporttest.JSON(http.StatusUnauthorized, `{"error":{"message":"bad token","type":"auth"}}`))
	tokens := &stubTokens{}
	c := newTestClient(t, fake, tokens)

	_, err := c.Chat(context.Background(), ChatRequest{Model: "gpt-4.1"})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "bad token", apiErr.Message)
	assert.Equal(t, "auth", apiErr.Type)
	assert.Equal(t, 1, tokens.refreshes)
	assert.Len(t, fake.Calls(), 2)
}

func TestClient_TokenFailure(t *testing.T) {
	fake := transporttest.New()
	c := newTestClient(t, fake, &stubTokens{err: errors.New("no subscription")})

	_, err := c.Chat(context.Background(), ChatRequest{Model: "gpt-4.1"})
	require.ErrorContains(t, err, "no subscription")
	assert.Empty(t, fake.Calls())
}

func TestClient_ChatStream(t *testing.T) {
	stream := "data: {\"id\":\"1\",\"model\":\"m\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"Hel\"}}]}\n\n" +
		"data: {\"id\":\"1\",\"model\":\"m\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"lo\"}}]}\n\n" +
		"data: [DONE]\n\n"
	fake := transporttest.New(
		transporttest.JSON(http.StatusUnauthorized, `{}`),
		transporttest.SSE(stream),
	)
	tokens := &stubTokens{}
	c := newTestClient(t, fake, tokens)

	seq, err := c.ChatStream(context.Background(), ChatRequest{
		Model: "m",
		Messages: []Message{
			NewMessage(RoleUser, "hi"),
			NewMessage(RoleAssistant, "hello"),
		},
	})
	require.NoError(t, err)

	var text string
	for chunk, err := range seq {
		require.NoError(t, err)
		text += chunk.DeltaContent()
	}
	assert.Equal(t, "Hello", text)
	assert.Equal(t, 1, tokens.refreshes)

	calls := fake.Calls()
	require.Len(t, calls, 2)
	assert.True(t, calls[1].Body.(ChatRequest).Stream)
	assert.Equal(t, "agent", calls[1].Header.Get("X-Initiator"))
}

func TestClient_ChatStreamStatusError(t *testing.T) {
	fake := transporttest.New(transporttest.JSON(http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`))
	c := newTestClient(t, fake, &stubTokens{})

	_, err := c.ChatStream(context.Background(), ChatRequest{Model: "m"})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Equal(t, "slow down", apiErr.Message)
}

func TestClient_ModelsAreCached(t *testing.T) {
	fake := transporttest.New(transporttest.JSON(http.StatusOK, `{"data":[
		{"id":"gpt-4.1","name":"GPT-4.1","vendor":"Azure OpenAI","version":"gpt-4.1-2025-04-14"},
		{"id":"claude-sonnet-4","name":"Claude Sonnet 4","vendor":"Anthropic","version":"1","model_picker_enabled":false}
	]}`))
	c := newTestClient(t, fake, &stubTokens{})
	ctx := context.Background()

	models, err := c.Models(ctx)
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.True(t, models[0].ModelPickerEnabled)
	assert.False(t, models[1].ModelPickerEnabled)

	model, err := c.Model(ctx, "claude-sonnet-4")
	require.NoError(t, err)
	assert.Equal(t, "Anthropic", model.Vendor)

	_, err = c.Model(ctx, "missing")
	require.ErrorIs(t, err, ErrModelNotFound)
	assert.Len(t, fake.Calls(), 1)

	c.ClearModelCache()
	_, err = c.Models(ctx)
	require.NoError(t, err)
	assert.Len(t, fake.Calls(), 2)
	assert.Equal(t, http.MethodGet, fake.Calls()[0].Method)
	assert.Equal(t, "https://copilot.test/models", fake.Calls()[0].URL)
}

func TestClient_ModelsConcurrentCallersShareFetch(t *testing.T) {
	fake := transporttest.New(transporttest.JSON(http.StatusOK, `{"data":[]}`))
	c := newTestClient(t, fake, &stubTokens{})

	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			models, err := c.Models(context.Background())
			assert.NoError(t, err)
			assert.NotNil(t, models)
		})
	}
	wg.Wait()

	assert.LessOrEqual(t, len(fake.Calls()), 8)
	_, err := c.Models(context.Background())
	require.NoError(t, err)
}

func TestClient_ModelsReturnsCopies(t *testing.T) {
	fake := transporttest.New(transporttest.JSON(http.StatusOK, `{"data":[{"id":"gpt-4.1"}]}`))
	c := newTestClient(t, fake, &stubTokens{})

	models, err := c.Models(context.Background())
	require.NoError(t, err)
	models[0].ID = "changed"

	again, err := c.Models(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "gpt-4.1", again[0].ID)
	assert.Len(t, fake.Calls(), 1)
}

// gatedModels holds model list requests until release is closed.
type gatedModels struct {
	transport.Transport
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
}

func (g *gatedModels) Get(ctx context.Context, url string, header http.Header) (*transport.Response, error) {
	if g.calls.Add(1) == 1 {
		close(g.started)
	}
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &transport.Response{StatusCode: http.StatusOK, Body: []byte(`{"data":[{"id":"gpt-4.1"}]}`)}, nil
}

func TestClient_ModelsSurvivesCancelledFirstCaller(t *testing.T) {
	gate := &gatedModels{started: make(chan struct{}), release: make(chan struct{})}
	c, err := New("gho_test",
		WithTransport(gate),
		WithTokenProvider(&stubTokens{}),
		WithBaseURL("https://copilot.test"),
	)
	require.NoError(t, err)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Models(firstCtx)
		firstErr <- err
	}()

	<-gate.started
	cancelFirst()
	require.ErrorIs(t, <-firstErr, context.Canceled)

	type result struct {
		models []Model
		err    error
	}
	second := make(chan result, 1)
	go func() {
		models, err := c.Models(context.Background())
		second <- result{models, err}
	}()
	close(gate.release)

	res := <-second
	require.NoError(t, res.err)
	require.Len(t, res.models, 1)
	assert.Equal(t, "gpt-4.1", res.models[0].ID)
	assert.Equal(t, int32(1), gate.calls.Load(), "the fetch started by the cancelled caller is reused")
}

func TestClient_Embed(t *testing.T) {
	fake := transporttest.New(
		transporttest.JSON(http.StatusOK, `{"object":"list","data":[{"object":"embedding","embedding":[0.1,0.2],"index":0}],"model":"text-embedding-3-small"}`),
		transporttest.JSON(http.StatusOK, `{"object":"list","data":[]}`),
	)
	c := newTestClient(t, fake, &stubTokens{})

	vector, err := c.Embed(context.Background(), "hello", "text-embedding-3-small")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2}, vector)
	assert.Equal(t, EmbeddingRequest{Input: "hello", Model: "text-embedding-3-small"}, fake.Calls()[0].Body)

	_, err = c.Embed(context.Background(), "hello", "text-embedding-3-small")
	require.Error(t, err)
}

func TestClient_Ask(t *testing.T) {
	fake := transporttest.New(transporttest.JSON(http.StatusOK, completionBody))
	c := newTestClient(t, fake, &stubTokens{})

	answer, err := c.Ask(context.Background(), "hi", AskOptions{System: "be brief"})
	require.NoError(t, err)
	assert.Equal(t, "hello", answer)

	req := fake.Calls()[0].Body.(ChatRequest)
	assert.Equal(t, DefaultModel, req.Model)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, RoleSystem, req.Messages[0].Role)
	assert.Equal(t, "be brief", req.Messages[0].Text())
	assert.Equal(t, "hi", req.Messages[1].Text())
}

func TestClient_User(t *testing.T) {
	fake := transporttest.New(transporttest.JSON(http.StatusOK, `{"login":"octocat","id":1,"name":"The Octocat"}`))
	c := newTestClient(t, fake, &stubTokens{})

	user, err := c.User(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "octocat", user.Login)

	call := fake.Calls()[0]
	assert.Equal(t, "https://github.test/user", call.URL)
	assert.Equal(t, "token gho_test", call.Header.Get("Authorization"))
}

func TestChatRequest_JSONKeepsUnknownFields(t *testing.T) {
	var req ChatRequest
	require.NoError(t, json.Unmarshal([]byte(`{"model":"gpt-4.1","messages":[{"role":"user","content":"hi"}],"temperature":0.2,"tools":[{"type":"function"}]}`), &req))

	assert.Equal(t, "gpt-4.1", req.Model)
	assert.False(t, req.Stream)
	assert.JSONEq(t, `0.2`, string(req.Extra["temperature"]))
	assert.NotContains(t, req.Extra, "model")

	req.Stream = true
	out, err := json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{"model":"gpt-4.1","messages":[{"role":"user","content":"hi"}],"stream":true,"temperature":0.2,"tools":[{"type":"function"}]}`, string(out))
}

func TestDetectFlags(t *testing.T) {
	image := Message{Role: RoleUser, Content: json.RawMessage(`[{"type":"text","text":"what is this"},{"type":"image_url","image_url":{"url":"data:image/png;base64,AAAA"}}]`)}
	tool := Message{Role: RoleTool, Content: json.RawMessage(`"42"`), ToolCallID: "call_1"}

	assert.Zero(t, detectFlags([]Message{NewMessage(RoleSystem, "s"), NewMessage(RoleUser, "u")}))
	assert.True(t, detectFlags([]Message{image}).Vision)
	assert.False(t, detectFlags([]Message{image}).Agent)
	assert.True(t, detectFlags([]Message{NewMessage(RoleUser, "u"), tool}).Agent)
}

func TestNewAPIError(t *testing.T) {
	assert.Equal(t, "plain failure", newAPIError(http.StatusBadGateway, []byte("plain failure\n")).Message)
	assert.Equal(t, "quota", newAPIError(http.StatusForbidden, []byte(`{"message":"quota"}`)).Message)
	assert.Contains(t, newAPIError(http.StatusForbidden, nil).Error(), "403")
}

func TestEmbeddingRequest_JSONKeepsUnknownFields(t *testing.T) {
	var req EmbeddingRequest
	require.NoError(t, json.Unmarshal([]byte(`{"input":"x","model":"text-embedding-3-small","dimensions":256,"encoding_format":"float","user":"u1"}`), &req))

	assert.Equal(t, "x", req.Input)
	assert.JSONEq(t, `256`, string(req.Extra["dimensions"]))

	out, err := json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{"input":"x","model":"text-embedding-3-small","dimensions":256,"encoding_format":"float","user":"u1"}`, string(out))
}

func TestChatCompletion_JSONKeepsUnknownFields(t *testing.T) {
	body := `{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4.1",
		"prompt_filter_results":[{"prompt_index":0}],
		"choices":[{"index":0,"finish_reason":"stop","content_filter_results":{},"message":{"role":"assistant","content":"hi","refusal":null}}],
		"usage":{"prompt_tokens":3,"completion_tokens":1,"total_tokens":4,"prompt_tokens_details":{"cached_tokens":0}}}`

	var completion ChatCompletion
	require.NoError(t, json.Unmarshal([]byte(body), &completion))
	assert.Equal(t, "hi", completion.Content())
	assert.Equal(t, 4, completion.Usage.TotalTokens)

	out, err := json.Marshal(completion)
	require.NoError(t, err)
	assert.JSONEq(t, body, string(out))
}
