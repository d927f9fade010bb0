package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

const chatFormat = "chat-completions"

// Chat-completions request/response structures.
// Content is a string or a list of content parts.
type chatRequest struct {
	Model            string           `json:"model"`
	Messages         []chatMessage    `json:"messages"`
	Tools            []ToolDefinition `json:"tools,omitempty"`
	Stream           bool             `json:"stream"`
	MaxTokens        *int             `json:"max_tokens,omitempty"`
	Temperature      *float64         `json:"temperature,omitempty"`
	WebSearchOptions *struct{}        `json:"web_search_options,omitempty"`
}

type chatMessage struct {
	Role       string         `json:"role"`
	Content    any            `json:"content,omitempty"`
	ToolCalls  []chatToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type chatContentPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageURL `json:"image_url,omitempty"`
}

type chatImageURL struct {
	URL string `json:"url"`
}

type chatToolCall struct {
	Index    *int             `json:"index,omitempty"`
	ID       string           `json:"id,omitempty"`
	Type     string           `json:"type,omitempty"`
	Function chatFunctionCall `json:"function"`
}

type chatFunctionCall struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

type chatChunk struct {
	Choices []chatChoice  `json:"choices"`
	Error   *chatAPIError `json:"error,omitempty"`
}

type chatChoice struct {
	Index        int          `json:"index"`
	Delta        *chatMessage `json:"delta,omitempty"`
	Message      *chatMessage `json:"message,omitempty"`
	FinishReason *string      `json:"finish_reason,omitempty"`
}

type chatAPIError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// BuildChatRequest converts a Request into the chat-completions body.
func BuildChatRequest(req Request, stream bool) chatRequest {
	body := chatRequest{
		Model:    req.Model,
		Messages: buildChatMessages(req.Messages),
		Tools:    buildChatTools(req.Tools),
		Stream:   stream,
	}
	if req.MaxOutputTokens > 0 {
		v := req.MaxOutputTokens
		body.MaxTokens = &v
	}
	if req.Temperature > 0 {
		v := float64(req.Temperature)
		body.Temperature = &v
	}
	if req.Search {
		body.WebSearchOptions = &struct{}{}
	}
	return body
}

func buildChatMessages(messages []Message) []chatMessage {
	result := make([]chatMessage, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case RoleTool:
			result = append(result, chatMessage{
				Role:       "tool",
				Content:    msg.Content,
				ToolCallID: msg.ToolCallID,
			})
		case RoleAssistant:
			out := chatMessage{Role: "assistant"}
			if msg.Content != "" {
				out.Content = msg.Content
			}
			for _, call := range msg.ToolCalls {
				out.ToolCalls = append(out.ToolCalls, chatToolCall{
					ID:   call.ID,
					Type: "function",
					Function: chatFunctionCall{
						Name:      call.Name,
						Arguments: string(call.RawArguments()),
					},
				})
			}
			result = append(result, out)
		default:
			result = append(result, chatMessage{
				Role:    string(msg.Role),
				Content: chatContent(msg),
			})
		}
	}
	return result
}

// chatContent returns plain text, or a part list when images are attached.
func chatContent(msg Message) any {
	var images []Attachment
	for _, att := range msg.Attachments {
		if att.IsImage() {
			images = append(images, att)
		}
	}
	if len(images) == 0 {
		return msg.Content
	}
	parts := make([]chatContentPart, 0, len(images)+1)
	if msg.Content != "" {
		parts = append(parts, chatContentPart{Type: "text", Text: msg.Content})
	}
	for _, img := range images {
		parts = append(parts, chatContentPart{Type: "image_url", ImageURL: &chatImageURL{URL: img.DataURL()}})
	}
	return parts
}

func buildChatTools(defs []ToolDefinition) []ToolDefinition {
	if len(defs) == 0 {
		return nil
	}
	tools := make([]ToolDefinition, 0, len(defs))
	for _, def := range defs {
		tools = append(tools, ToolDefinition{
			Type: "function",
			Function: FunctionDefinition{
				Name:        def.Function.Name,
				Description: def.Function.Description,
				Parameters:  toolParameters(def),
			},
		})
	}
	return tools
}

// toolParameters returns the declared parameter schema or an empty object schema.
func toolParameters(def ToolDefinition) json.RawMessage {
	if len(def.Function.Parameters) == 0 {
		return json.RawMessage(`{"type":"object","properties":{}}`)
	}
	return def.Function.Parameters
}

// ParseChatCompletionsChunk maps one "data:" payload onto a ChunkEvent.
// Only the first choice is considered.
func ParseChatCompletionsChunk(data []byte) (ChunkEvent, bool, error) {
	var chunk chatChunk
	if err := json.Unmarshal(data, &chunk); err != nil {
		return ChunkEvent{}, false, &ProtocolError{Format: chatFormat, Detail: "invalid chunk", Err: err}
	}
	if chunk.Error != nil {
		return ChunkEvent{}, false, &UpstreamError{Message: chunk.Error.Message}
	}
	if len(chunk.Choices) == 0 {
		return ChunkEvent{}, false, nil
	}
	choice := chunk.Choices[0]
	finished := choice.FinishReason != nil && *choice.FinishReason != ""
	if choice.Delta == nil {
		return ChunkEvent{}, finished, nil
	}
	event := ChunkEvent{}
	if text, ok := choice.Delta.Content.(string); ok {
		event.Content = text
	}
	for pos, call := range choice.Delta.ToolCalls {
		index := pos
		if call.Index != nil {
			index = *call.Index
		}
		if err := checkToolCallIndex(chatFormat, index); err != nil {
			return ChunkEvent{}, false, err
		}
		event.ToolCallDeltas = append(event.ToolCallDeltas, ToolCallDelta{
			Index:     index,
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		})
	}
	return event, finished, nil
}

// decodeChatCompletionsStream reads newline-delimited "data:" records until
// the [DONE] sentinel.
func decodeChatCompletionsStream(r io.Reader, emit func(ChunkEvent) error) error {
	lines := newLineReader(r)
	sawFinish := false
	for {
		line, err := lines.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				if sawFinish {
					return nil
				}
				return &TransportError{Op: "read stream", Err: io.ErrUnexpectedEOF}
			}
			return &TransportError{Op: "read stream", Err: err}
		}
		data, ok := dataPayload(line)
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			return nil
		}
		chunk, finished, err := ParseChatCompletionsChunk([]byte(data))
		if err != nil {
			return err
		}
		sawFinish = sawFinish || finished
		if chunk.IsEmpty() {
			continue
		}
		if err := emit(chunk); err != nil {
			return err
		}
	}
}

// ParseChatCompletionsResponse extracts content and tool calls from a
// non-streaming chat-completions body.
func ParseChatCompletionsResponse(body []byte) (string, []ToolCall, error) {
	var resp chatChunk
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", nil, &ProtocolError{Format: chatFormat, Detail: "invalid response body", Err: err}
	}
	if resp.Error != nil {
		return "", nil, &UpstreamError{Message: resp.Error.Message}
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message == nil {
		return "", nil, &ProtocolError{Format: chatFormat, Detail: "response has no message"}
	}
	msg := resp.Choices[0].Message
	text, _ := msg.Content.(string)
	var calls []ToolCall
	for i, call := range msg.ToolCalls {
		id := call.ID
		if id == "" {
			id = fmt.Sprintf("call_%d", i)
		}
		calls = append(calls, ToolCall{ID: id, Name: call.Function.Name, Arguments: call.Function.Arguments})
	}
	return text, calls, nil
}
