package types

import (
	"time"

	"github.com/google/uuid"
)

// MessageRole identifies the author of a chat message.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// ChatMessage is one exchange entry in a session's history.
type ChatMessage struct {
	Role         MessageRole `json:"role"`
	Content      string      `json:"content"`
	InputTokens  int         `json:"inputTokens,omitempty"`
	OutputTokens int         `json:"outputTokens,omitempty"`
	CreatedAt    time.Time   `json:"createdAt"`
}

// TokenUsage accumulates token counts for a session.
type TokenUsage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
	TotalTokens  int `json:"totalTokens"`
}

// Add folds another usage sample into the running totals.
func (u *TokenUsage) Add(input, output int) {
	u.InputTokens += input
	u.OutputTokens += output
	u.TotalTokens += input + output
}

// ChatSession binds a tab to a provider/model and records its exchanges.
//
// A session is provisional until its first real exchange fixes the model:
// while provisional, a platform or model change re-binds the session in
// place instead of creating a new one. At most one session is active per
// tab at any time.
type ChatSession struct {
	ID            string        `json:"id"`
	TabID         int           `json:"tabId"`
	PlatformID    string        `json:"platformId"`
	ModelID       string        `json:"modelId"`
	Messages      []ChatMessage `json:"messages"`
	IsProvisional bool          `json:"isProvisional"`
	CreatedAt     time.Time     `json:"createdAt"`
}

// NewChatSession creates a provisional session for a tab.
func NewChatSession(tabID int, platformID, modelID string) *ChatSession {
	return &ChatSession{
		ID:            uuid.New().String(),
		TabID:         tabID,
		PlatformID:    platformID,
		ModelID:       modelID,
		Messages:      []ChatMessage{},
		IsProvisional: true,
		CreatedAt:     time.Now(),
	}
}

// Append records an exchange entry. The first real exchange finalizes a
// provisional session.
func (s *ChatSession) Append(msg ChatMessage) {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	s.Messages = append(s.Messages, msg)
	s.IsProvisional = false
}

// Rebind points a still-provisional session at a different platform/model.
// Finalized sessions keep their binding; callers must create a new session
// to switch providers after the first exchange.
func (s *ChatSession) Rebind(platformID, modelID string) bool {
	if !s.IsProvisional {
		return false
	}
	s.PlatformID = platformID
	s.ModelID = modelID
	return true
}

// TabUIState is the per-tab state owned by the state manager: the active
// session binding, panel visibility, and the current view. One row per tab,
// removed when the tab closes.
type TabUIState struct {
	TabID               int    `json:"tabId"`
	ActiveChatSessionID string `json:"activeChatSessionId,omitempty"`
	SidePanelVisible    bool   `json:"sidePanelVisible"`
	CurrentView         string `json:"currentView,omitempty"`
}
