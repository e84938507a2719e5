package copilot

import (
	"encoding/json"

	"github.com/florianilch/copilot-proxy/internal/jsonextra"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one chat message. Content is kept raw: it is either a JSON
// string or an array of typed content parts. Fields such as refusal or
// reasoning_content travel in Extra.
type Message struct {
	Role       string                     `json:"role"`
	Content    json.RawMessage            `json:"content,omitempty"`
	Name       string                     `json:"name,omitempty"`
	ToolCalls  json.RawMessage            `json:"tool_calls,omitempty"`
	ToolCallID string                     `json:"tool_call_id,omitempty"`
	Extra      map[string]json.RawMessage `json:"-"`
}

// NewMessage creates a message with plain text content.
func NewMessage(role, text string) Message {
	content, _ := json.Marshal(text)
	return Message{Role: role, Content: content}
}

// Text returns the content when it is a plain string.
func (m Message) Text() string {
	var text string
	if err := json.Unmarshal(m.Content, &text); err != nil {
		return ""
	}
	return text
}

// MarshalJSON implements json.Marshaler.
func (m Message) MarshalJSON() ([]byte, error) {
	type plain Message
	return jsonextra.Marshal(plain(m), m.Extra)
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Message) UnmarshalJSON(data []byte) error {
	type plain Message
	var msg plain
	extra, err := jsonextra.Unmarshal(data, &msg)
	if err != nil {
		return err
	}
	*m = Message(msg)
	m.Extra = extra
	return nil
}

// ChatRequest is a chat completion request. Fields the client does not
// interpret travel in Extra and are sent unchanged.
type ChatRequest struct {
	Model    string                     `json:"model"`
	Messages []Message                  `json:"messages"`
	Stream   bool                       `json:"stream"`
	Extra    map[string]json.RawMessage `json:"-"`
}

// MarshalJSON merges Extra with the known fields; known fields win.
func (r ChatRequest) MarshalJSON() ([]byte, error) {
	type plain ChatRequest
	return jsonextra.Marshal(plain(r), r.Extra)
}

// UnmarshalJSON extracts the known fields and keeps the rest in Extra.
func (r *ChatRequest) UnmarshalJSON(data []byte) error {
	type plain ChatRequest
	var req plain
	extra, err := jsonextra.Unmarshal(data, &req)
	if err != nil {
		return err
	}
	*r = ChatRequest(req)
	r.Extra = extra
	return nil
}

// ChatCompletion is a non-streaming chat completion response. Fields such
// as prompt_filter_results travel in Extra.
type ChatCompletion struct {
	ID                string                     `json:"id"`
	Object            string                     `json:"object"`
	Created           int64                      `json:"created"`
	Model             string                     `json:"model"`
	Choices           []CompletionChoice         `json:"choices"`
	Usage             *Usage                     `json:"usage,omitempty"`
	SystemFingerprint string                     `json:"system_fingerprint,omitempty"`
	Extra             map[string]json.RawMessage `json:"-"`
}

// MarshalJSON implements json.Marshaler.
func (c ChatCompletion) MarshalJSON() ([]byte, error) {
	type plain ChatCompletion
	return jsonextra.Marshal(plain(c), c.Extra)
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *ChatCompletion) UnmarshalJSON(data []byte) error {
	type plain ChatCompletion
	var completion plain
	extra, err := jsonextra.Unmarshal(data, &completion)
	if err != nil {
		return err
	}
	*c = ChatCompletion(completion)
	c.Extra = extra
	return nil
}

// Content returns the text of the first choice.
func (c *ChatCompletion) Content() string {
	if len(c.Choices) == 0 {
		return ""
	}
	return c.Choices[0].Message.Text()
}

// CompletionChoice is one choice of a chat completion.
type CompletionChoice struct {
	Index        int                        `json:"index"`
	Message      Message                    `json:"message"`
	FinishReason *string                    `json:"finish_reason"`
	Logprobs     json.RawMessage            `json:"logprobs,omitempty"`
	Extra        map[string]json.RawMessage `json:"-"`
}

// MarshalJSON implements json.Marshaler.
func (c CompletionChoice) MarshalJSON() ([]byte, error) {
	type plain CompletionChoice
	return jsonextra.Marshal(plain(c), c.Extra)
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *CompletionChoice) UnmarshalJSON(data []byte) error {
	type plain CompletionChoice
	var choice plain
	extra, err := jsonextra.Unmarshal(data, &choice)
	if err != nil {
		return err
	}
	*c = CompletionChoice(choice)
	c.Extra = extra
	return nil
}

// Usage reports token accounting. Detail objects such as
// prompt_tokens_details travel in Extra.
type Usage struct {
	PromptTokens     int                        `json:"prompt_tokens"`
	CompletionTokens int                        `json:"completion_tokens"`
	TotalTokens      int                        `json:"total_tokens"`
	Extra            map[string]json.RawMessage `json:"-"`
}

// MarshalJSON implements json.Marshaler.
func (u Usage) MarshalJSON() ([]byte, error) {
	type plain Usage
	return jsonextra.Marshal(plain(u), u.Extra)
}

// UnmarshalJSON implements json.Unmarshaler.
func (u *Usage) UnmarshalJSON(data []byte) error {
	type plain Usage
	var usage plain
	extra, err := jsonextra.Unmarshal(data, &usage)
	if err != nil {
		return err
	}
	*u = Usage(usage)
	u.Extra = extra
	return nil
}

// Model describes a model offered by the Copilot API.
type Model struct {
	ID                 string            `json:"id"`
	Name               string            `json:"name"`
	Vendor             string            `json:"vendor"`
	Version            string            `json:"version"`
	Preview            bool              `json:"preview"`
	ModelPickerEnabled bool              `json:"model_picker_enabled"`
	Capabilities       ModelCapabilities `json:"capabilities"`
	Policy             json.RawMessage   `json:"policy,omitempty"`
}

// UnmarshalJSON applies the defaults of sparse model entries.
func (m *Model) UnmarshalJSON(data []byte) error {
	type plain Model
	model := plain{ModelPickerEnabled: true}
	if err := json.Unmarshal(data, &model); err != nil {
		return err
	}
	*m = Model(model)
	return nil
}

// ModelCapabilities lists limits and supported features of a model.
type ModelCapabilities struct {
	Family   string        `json:"family,omitempty"`
	Type     string        `json:"type,omitempty"`
	Limits   ModelLimits   `json:"limits"`
	Supports ModelSupports `json:"supports"`
}

// ModelLimits holds token limits; zero means unknown.
type ModelLimits struct {
	MaxContextWindowTokens int `json:"max_context_window_tokens,omitempty"`
	MaxOutputTokens        int `json:"max_output_tokens,omitempty"`
	MaxPromptTokens        int `json:"max_prompt_tokens,omitempty"`
}

// ModelSupports lists optional features.
type ModelSupports struct {
	ToolCalls         bool `json:"tool_calls,omitempty"`
	ParallelToolCalls bool `json:"parallel_tool_calls,omitempty"`
	Streaming         bool `json:"streaming,omitempty"`
	Vision            bool `json:"vision,omitempty"`
}

// EmbeddingRequest asks for embeddings of one text or a list of texts.
// Options such as dimensions, encoding_format or user travel in Extra and
// are sent unchanged.
type EmbeddingRequest struct {
	Input any                        `json:"input"`
	Model string                     `json:"model"`
	Extra map[string]json.RawMessage `json:"-"`
}

// MarshalJSON merges Extra with the known fields; known fields win.
func (r EmbeddingRequest) MarshalJSON() ([]byte, error) {
	type plain EmbeddingRequest
	return jsonextra.Marshal(plain(r), r.Extra)
}

// UnmarshalJSON extracts the known fields and keeps the rest in Extra.
func (r *EmbeddingRequest) UnmarshalJSON(data []byte) error {
	type plain EmbeddingRequest
	var req plain
	extra, err := jsonextra.Unmarshal(data, &req)
	if err != nil {
		return err
	}
	*r = EmbeddingRequest(req)
	r.Extra = extra
	return nil
}

// EmbeddingResponse holds embedding vectors in input order.
type EmbeddingResponse struct {
	Object string         `json:"object"`
	Data   []Embedding    `json:"data"`
	Model  string         `json:"model"`
	Usage  EmbeddingUsage `json:"usage"`
}

// Embedding is one embedding vector.
type Embedding struct {
	Object    string    `json:"object"`
	Embedding []float64 `json:"embedding"`
	Index     int       `json:"index"`
}

// EmbeddingUsage reports token accounting for embeddings.
type EmbeddingUsage struct {
	PromptTokens int `json:"prompt_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// First returns the first embedding vector, or nil.
func (r *EmbeddingResponse) First() []float64 {
	if len(r.Data) == 0 {
		return nil
	}
	return r.Data[0].Embedding
}

// User is the authenticated GitHub user.
type User struct {
	Login string `json:"login"`
	ID    int64  `json:"id"`
	Name  string `json:"name"`
}
