package session

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/samsaffron/term-agent/internal/llm"
)

// SessionStatus represents the current state of a session.
type SessionStatus string

const (
	StatusActive      SessionStatus = "active"      // Session is open
	StatusComplete    SessionStatus = "complete"    // Last turn finished normally
	StatusError       SessionStatus = "error"       // Last turn ended with an error
	StatusInterrupted SessionStatus = "interrupted" // Last turn was cancelled by the user
)

// Session represents a chat session stored in the database.
type Session struct {
	ID         string        `json:"id"`
	Summary    string        `json:"summary,omitempty"` // First user message
	Provider   string        `json:"provider"`
	Model      string        `json:"model"`
	WireFormat string        `json:"wire_format"`
	CWD        string        `json:"cwd,omitempty"` // Working directory at session start
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
	UserTurns  int           `json:"user_turns,omitempty"`
	LLMTurns   int           `json:"llm_turns,omitempty"`
	ToolCalls  int           `json:"tool_calls,omitempty"`
	Status     SessionStatus `json:"status,omitempty"`
}

// Message represents a message in a session.
type Message struct {
	ID          int64       `json:"id"`
	SessionID   string      `json:"session_id"`
	Role        llm.Role    `json:"role"`
	Payload     llm.Message `json:"payload"`
	TextContent string      `json:"text_content"` // Extracted text for display/FTS
	CreatedAt   time.Time   `json:"created_at"`
	Sequence    int         `json:"sequence"`
}

// SessionSummary is a lightweight view of a session for listing.
type SessionSummary struct {
	ID           string        `json:"id"`
	Summary      string        `json:"summary,omitempty"`
	Model        string        `json:"model"`
	MessageCount int           `json:"message_count"`
	UserTurns    int           `json:"user_turns,omitempty"`
	ToolCalls    int           `json:"tool_calls,omitempty"`
	Status       SessionStatus `json:"status,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// ListOptions configures session listing.
type ListOptions struct {
	Model  string        // Filter by model
	Status SessionStatus // Filter by status
	Limit  int           // Max results (0 = use default)
	Offset int           // Pagination offset
}

// SearchResult represents a search match.
type SearchResult struct {
	SessionID string    `json:"session_id"`
	MessageID int64     `json:"message_id"`
	Summary   string    `json:"summary"`
	Snippet   string    `json:"snippet"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
}

// NewMessage creates a new Message from an llm.Message. The store assigns
// the sequence on insert.
func NewMessage(sessionID string, msg llm.Message) *Message {
	m := &Message{
		SessionID: sessionID,
		Role:      msg.Role,
		Payload:   msg,
		CreatedAt: time.Now(),
	}
	m.TextContent = m.ExtractTextContent()
	return m
}

// ExtractTextContent returns the searchable text of the message: its content
// plus tool call names and arguments.
func (m *Message) ExtractTextContent() string {
	parts := []string{}
	if m.Payload.Content != "" {
		parts = append(parts, m.Payload.Content)
	}
	for _, call := range m.Payload.ToolCalls {
		parts = append(parts, call.Name+" "+call.Arguments)
	}
	return strings.Join(parts, "\n")
}

// ToLLMMessage converts a Message back to an llm.Message.
func (m *Message) ToLLMMessage() llm.Message {
	return m.Payload
}

// PayloadJSON returns the message serialized to JSON for database storage.
func (m *Message) PayloadJSON() (string, error) {
	data, err := json.Marshal(m.Payload)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// SetPayloadFromJSON deserializes JSON into the Payload field.
func (m *Message) SetPayloadFromJSON(data string) error {
	if data == "" {
		m.Payload = llm.Message{Role: m.Role}
		return nil
	}
	return json.Unmarshal([]byte(data), &m.Payload)
}

// TruncateSummary returns the first line of content, truncated to 80 columns.
func TruncateSummary(content string) string {
	content = strings.TrimSpace(content)
	if idx := strings.Index(content, "\n"); idx != -1 {
		content = content[:idx]
	}
	return runewidth.Truncate(content, 80, "...")
}
