// Package completions interprets the chat completion streaming protocol: SSE
// records carrying JSON chunks, terminated by a [DONE] sentinel.
package completions

import (
	"encoding/json"

	"github.com/florianilch/copilot-proxy/internal/jsonextra"
)

// ObjectChunk is the object type of a streamed chat completion chunk.
const ObjectChunk = "chat.completion.chunk"

// Chunk is one streamed chat completion delta. Unmodelled fields, e.g.
// prompt_filter_results, are kept in Extra at every level so a chunk
// re-encodes to what the upstream sent.
type Chunk struct {
	ID                string                     `json:"id"`
	Object            string                     `json:"object"`
	Created           int64                      `json:"created"`
	Model             string                     `json:"model"`
	Choices           []Choice                   `json:"choices"`
	Usage             json.RawMessage            `json:"usage,omitempty"`
	SystemFingerprint string                     `json:"system_fingerprint,omitempty"`
	Extra             map[string]json.RawMessage `json:"-"`
}

// Choice is one choice within a chunk.
type Choice struct {
	Index        int                        `json:"index"`
	Delta        Delta                      `json:"delta"`
	FinishReason *string                    `json:"finish_reason"`
	Logprobs     json.RawMessage            `json:"logprobs,omitempty"`
	Extra        map[string]json.RawMessage `json:"-"`
}

// Delta is the incremental message content of a choice.
type Delta struct {
	Role      string                     `json:"role,omitempty"`
	Content   string                     `json:"content,omitempty"`
	ToolCalls json.RawMessage            `json:"tool_calls,omitempty"`
	Extra     map[string]json.RawMessage `json:"-"`
}

// MarshalJSON implements json.Marshaler.
func (c Chunk) MarshalJSON() ([]byte, error) {
	type plain Chunk
	return jsonextra.Marshal(plain(c), c.Extra)
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Chunk) UnmarshalJSON(data []byte) error {
	type plain Chunk
	var chunk plain
	extra, err := jsonextra.Unmarshal(data, &chunk)
	if err != nil {
		return err
	}
	*c = Chunk(chunk)
	c.Extra = extra
	return nil
}

// MarshalJSON implements json.Marshaler.
func (c Choice) MarshalJSON() ([]byte, error) {
	type plain Choice
	return jsonextra.Marshal(plain(c), c.Extra)
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Choice) UnmarshalJSON(data []byte) error {
	type plain Choice
	var choice plain
	extra, err := jsonextra.Unmarshal(data, &choice)
	if err != nil {
		return err
	}
	*c = Choice(choice)
	c.Extra = extra
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d Delta) MarshalJSON() ([]byte, error) {
	type plain Delta
	return jsonextra.Marshal(plain(d), d.Extra)
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Delta) UnmarshalJSON(data []byte) error {
	type plain Delta
	var delta plain
	extra, err := jsonextra.Unmarshal(data, &delta)
	if err != nil {
		return err
	}
	*d = Delta(delta)
	d.Extra = extra
	return nil
}

// DeltaContent returns the content delta of the first choice.
func (c *Chunk) DeltaContent() string {
	if len(c.Choices) == 0 {
		return ""
	}
	return c.Choices[0].Delta.Content
}

// DeltaRole returns the role delta of the first choice.
func (c *Chunk) DeltaRole() string {
	if len(c.Choices) == 0 {
		return ""
	}
	return c.Choices[0].Delta.Role
}

// IsFinished reports whether the first choice carries a finish reason.
func (c *Chunk) IsFinished() bool {
	return len(c.Choices) > 0 && c.Choices[0].FinishReason != nil
}
