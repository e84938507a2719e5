// Package headers builds the header sets GitHub and Copilot expect from an
// editor integration.
package headers

import (
	"net/http"

	"github.com/google/uuid"
)

// Editor identity presented to GitHub and Copilot.
const (
	CopilotVersion      = "0.26.7"
	EditorPluginVersion = "copilot-chat/" + CopilotVersion
	UserAgent           = "GitHubCopilotChat/" + CopilotVersion
	APIVersion          = "2025-04-01"

	// DefaultVSCodeVersion is reported in editor-version when none is configured.
	DefaultVSCodeVersion = "1.96.0"
)

// Flags carry the per-request context that changes the Copilot header set.
type Flags struct {
	// Vision is set when any message carries image content.
	Vision bool
	// Agent is set when the conversation already contains assistant or tool turns.
	Agent bool
}

// Standard returns the headers for plain JSON requests.
func Standard() http.Header {
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/json")
	return h
}

// GitHub returns the headers for api.github.com requests authenticated with
// a GitHub access token.
func GitHub(githubToken, vsCodeVersion string) http.Header {
	h := Standard()
	h.Set("Authorization", "token "+githubToken)
	setEditorHeaders(h, vsCodeVersion)
	return h
}

// Copilot returns the headers for Copilot API requests authenticated with a
// short-lived service token.
func Copilot(serviceToken, vsCodeVersion string, flags Flags) http.Header {
	h := make(http.Header)
	h.Set("Authorization", "Bearer "+serviceToken)
	h.Set("Content-Type", "application/json")
	h.Set("Copilot-Integration-Id", "vscode-chat")
	h.Set("Openai-Intent", "conversation-panel")
	h.Set("X-Request-Id", uuid.NewString())
	setEditorHeaders(h, vsCodeVersion)

	if flags.Vision {
		h.Set("Copilot-Vision-Request", "true")
	}
	if flags.Agent {
		h.Set("X-Initiator", "agent")
	} else {
		h.Set("X-Initiator", "user")
	}

	return h
}

func setEditorHeaders(h http.Header, vsCodeVersion string) {
	if vsCodeVersion == "" {
		vsCodeVersion = DefaultVSCodeVersion
	}
	h.Set("Editor-Version", "vscode/"+vsCodeVersion)
	h.Set("Editor-Plugin-Version", EditorPluginVersion)
	h.Set("User-Agent", UserAgent)
	h.Set("X-Github-Api-Version", APIVersion)
	h.Set("X-Vscode-User-Agent-Library-Version", "electron-fetch")
}
