package copilot

import (
	"encoding/json"

	"github.com/florianilch/copilot-proxy/internal/headers"
)

// contentPart is the minimal view of a typed content part.
type contentPart struct {
	Type string `json:"type"`
}

// detectFlags derives the per-request header flags from the conversation.
func detectFlags(messages []Message) headers.Flags {
	var flags headers.Flags
	for _, m := range messages {
		if m.Role == RoleAssistant || m.Role == RoleTool {
			flags.Agent = true
		}
		if !flags.Vision && hasImage(m.Content) {
			flags.Vision = true
		}
	}
	return flags
}

func hasImage(content json.RawMessage) bool {
	if len(content) == 0 || content[0] != '[' {
		return false
	}

	var parts []contentPart
	if err := json.Unmarshal(content, &parts); err != nil {
		return false
	}
	for _, p := range parts {
		if p.Type == "image_url" {
			return true
		}
	}
	return false
}
