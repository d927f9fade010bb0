package llm

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Role identifies a message role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry of the conversation history.
// Messages are values: once appended to a history they are never modified.
type Message struct {
	Role        Role         `json:"role"`
	Content     string       `json:"content,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	ToolCalls   []ToolCall   `json:"tool_calls,omitempty"`
	ToolCallID  string       `json:"tool_call_id,omitempty"`
}

// Attachment is binary content sent alongside a user message (images).
type Attachment struct {
	Name      string `json:"name,omitempty"`
	MediaType string `json:"media_type"`
	Data      []byte `json:"data"`
}

// DataURL returns the attachment encoded as an inline data URL.
func (a Attachment) DataURL() string {
	return fmt.Sprintf("data:%s;base64,%s", a.MediaType, base64.StdEncoding.EncodeToString(a.Data))
}

// IsImage reports whether the attachment can be sent as an image content part.
func (a Attachment) IsImage() bool {
	switch a.MediaType {
	case "image/png", "image/jpeg", "image/gif", "image/webp":
		return true
	}
	return false
}

// ToolCall is a finalized model-requested tool invocation.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// RawArguments returns the arguments as JSON, "{}" when empty.
func (c ToolCall) RawArguments() json.RawMessage {
	if c.Arguments == "" {
		return json.RawMessage("{}")
	}
	return json.RawMessage(c.Arguments)
}

// ToolDefinition declares a callable tool in the chat-completions shape.
// Adapters flatten it into their own schema representation.
type ToolDefinition struct {
	Type     string             `json:"type"`
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition is the function part of a ToolDefinition.
type FunctionDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// Request represents a single model round.
type Request struct {
	Model    string
	Messages []Message
	Tools    []ToolDefinition
	// Search asks the provider to run its live web search for this request.
	Search          bool
	MaxOutputTokens int
	Temperature     float32
}

// ChunkEvent is one normalized unit of streamed output.
// An empty Content means "no content fragment"; the merge engine treats
// empty fragments as no-ops.
type ChunkEvent struct {
	Content        string
	ToolCallDeltas []ToolCallDelta
}

// IsEmpty reports whether the chunk carries nothing to fold.
func (c ChunkEvent) IsEmpty() bool {
	return c.Content == "" && len(c.ToolCallDeltas) == 0
}

// ToolCallDelta is a fragment of one tool call, addressed by position.
type ToolCallDelta struct {
	Index     int
	ID        string
	Name      string
	Arguments string
}

func SystemText(text string) Message {
	return Message{Role: RoleSystem, Content: text}
}

func UserText(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

func AssistantText(text string) Message {
	return Message{Role: RoleAssistant, Content: text}
}

// AssistantMessage builds a finalized assistant message with optional tool calls.
func AssistantMessage(text string, calls []ToolCall) Message {
	msg := Message{Role: RoleAssistant, Content: text}
	if len(calls) > 0 {
		msg.ToolCalls = append([]ToolCall(nil), calls...)
	}
	return msg
}

// ToolResultMessage builds a tool-role message answering the call with the given id.
func ToolResultMessage(callID, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: callID}
}
