package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

const responsesFormat = "responses"

// ResponsesRequest is the request body for a Responses endpoint.
type ResponsesRequest struct {
	Model           string               `json:"model"`
	Input           []ResponsesInputItem `json:"input"`
	Tools           []any                `json:"tools,omitempty"` // ResponsesTool or ResponsesWebSearchTool
	MaxOutputTokens int                  `json:"max_output_tokens,omitempty"`
	Temperature     *float64             `json:"temperature,omitempty"`
	Stream          bool                 `json:"stream"`
}

// ResponsesWebSearchTool enables provider-side live search.
type ResponsesWebSearchTool struct {
	Type string `json:"type"` // "web_search_preview"
}

// ResponsesInputItem is one entry of the request input list.
type ResponsesInputItem struct {
	Type    string `json:"type"`
	Role    string `json:"role,omitempty"`
	Content any    `json:"content,omitempty"` // string or []ResponsesContentPart
	// function_call
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
	// function_call_output
	Output string `json:"output,omitempty"`
}

// ResponsesContentPart is a text or image content part.
type ResponsesContentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"` // plain URL string, not an object
}

// ResponsesTool is a function declaration in the flattened Responses shape.
type ResponsesTool struct {
	Type        string          `json:"type"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

type responsesAPIResponse struct {
	ID     string                `json:"id"`
	Status string                `json:"status,omitempty"`
	Output []responsesOutputItem `json:"output"`
	Error  *responsesError       `json:"error,omitempty"`
}

type responsesOutputItem struct {
	Type    string          `json:"type"` // "message" or "function_call"
	Role    string          `json:"role,omitempty"`
	Content json.RawMessage `json:"content,omitempty"`
	// function_call
	ID        string `json:"id,omitempty"`
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

type responsesOutputContent struct {
	Type    string `json:"type"` // "output_text", "text", "input_text" or "refusal"
	Text    string `json:"text,omitempty"`
	Refusal string `json:"refusal,omitempty"`
}

type responsesError struct {
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// responsesStreamEvent is the payload of one streamed record. Delta is a
// string for most providers and an object with a text field for a few.
type responsesStreamEvent struct {
	Type        string                  `json:"type"`
	Delta       json.RawMessage         `json:"delta,omitempty"`
	Text        string                  `json:"text,omitempty"`
	Part        *responsesOutputContent `json:"part,omitempty"`
	Item        *responsesOutputItem    `json:"item,omitempty"`
	OutputIndex *int                    `json:"output_index,omitempty"`
	Message     string                  `json:"message,omitempty"`
	Error       *responsesError         `json:"error,omitempty"`
	Response    *responsesAPIResponse   `json:"response,omitempty"`
}

// BuildResponsesRequest converts a Request into a Responses body.
func BuildResponsesRequest(req Request, stream bool) ResponsesRequest {
	body := ResponsesRequest{
		Model:           req.Model,
		Input:           BuildResponsesInput(req.Messages),
		Tools:           BuildResponsesTools(req.Tools, req.Search),
		MaxOutputTokens: req.MaxOutputTokens,
		Stream:          stream,
	}
	if req.Temperature > 0 {
		v := float64(req.Temperature)
		body.Temperature = &v
	}
	return body
}

// BuildResponsesInput converts the conversation to Responses input items.
// Tool round trips become function_call / function_call_output items.
func BuildResponsesInput(messages []Message) []ResponsesInputItem {
	var items []ResponsesInputItem
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			// Responses has no system role; instructions go in as developer.
			items = append(items, responsesMessageItem("developer", "input_text", msg))
		case RoleUser:
			items = append(items, responsesMessageItem("user", "input_text", msg))
		case RoleAssistant:
			if msg.Content != "" {
				items = append(items, responsesMessageItem("assistant", "output_text", msg))
			}
			for _, call := range msg.ToolCalls {
				callID := strings.TrimSpace(call.ID)
				if callID == "" {
					continue
				}
				items = append(items, ResponsesInputItem{
					Type:      "function_call",
					CallID:    callID,
					Name:      call.Name,
					Arguments: string(call.RawArguments()),
				})
			}
		case RoleTool:
			callID := strings.TrimSpace(msg.ToolCallID)
			if callID == "" {
				continue
			}
			items = append(items, ResponsesInputItem{
				Type:   "function_call_output",
				CallID: callID,
				Output: msg.Content,
			})
		}
	}
	return items
}

func responsesMessageItem(role, textType string, msg Message) ResponsesInputItem {
	var images []Attachment
	for _, att := range msg.Attachments {
		if att.IsImage() {
			images = append(images, att)
		}
	}
	if len(images) == 0 {
		return ResponsesInputItem{Type: "message", Role: role, Content: msg.Content}
	}
	parts := make([]ResponsesContentPart, 0, len(images)+1)
	if msg.Content != "" {
		parts = append(parts, ResponsesContentPart{Type: textType, Text: msg.Content})
	}
	for _, img := range images {
		parts = append(parts, ResponsesContentPart{Type: "input_image", ImageURL: img.DataURL()})
	}
	return ResponsesInputItem{Type: "message", Role: role, Content: parts}
}

// BuildResponsesTools flattens tool declarations, adding the web search
// tool when search is requested.
func BuildResponsesTools(defs []ToolDefinition, search bool) []any {
	var tools []any
	for _, def := range defs {
		tools = append(tools, ResponsesTool{
			Type:        "function",
			Name:        def.Function.Name,
			Description: def.Function.Description,
			Parameters:  toolParameters(def),
		})
	}
	if search {
		tools = append(tools, ResponsesWebSearchTool{Type: "web_search_preview"})
	}
	return tools
}

// ParseResponsesBody extracts text and tool calls from a complete
// (non-streaming) Responses body. Message text parts are concatenated in
// order; each function_call item becomes one tool call.
func ParseResponsesBody(body []byte) (string, []ToolCall, error) {
	var resp responsesAPIResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", nil, &ProtocolError{Format: responsesFormat, Detail: "invalid response body", Err: err}
	}
	if resp.Error != nil && resp.Error.Message != "" {
		return "", nil, &UpstreamError{Message: resp.Error.Message}
	}
	var text strings.Builder
	var calls []ToolCall
	for i, item := range resp.Output {
		switch item.Type {
		case "message":
			parts, err := outputContentParts(item.Content)
			if err != nil {
				return "", nil, err
			}
			for _, part := range parts {
				switch part.Type {
				case "output_text", "text", "input_text":
					text.WriteString(part.Text)
				}
			}
		case "function_call":
			id := item.CallID
			if id == "" {
				id = item.ID
			}
			if id == "" {
				id = fmt.Sprintf("call_%d", i)
			}
			calls = append(calls, ToolCall{ID: id, Name: item.Name, Arguments: item.Arguments})
		}
	}
	return text.String(), calls, nil
}

// outputContentParts accepts either a bare string or a list of parts.
func outputContentParts(raw json.RawMessage) ([]responsesOutputContent, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return []responsesOutputContent{{Type: "text", Text: s}}, nil
	}
	var parts []responsesOutputContent
	if err := json.Unmarshal(raw, &parts); err != nil {
		return nil, &ProtocolError{Format: responsesFormat, Detail: "invalid message content", Err: err}
	}
	return parts, nil
}

// responsesAction tells the stream loop what to do after one record.
type responsesAction int

const (
	responsesContinue responsesAction = iota
	responsesStop
)

// decodeResponsesStream reads SSE records until a completion event.
func decodeResponsesStream(r io.Reader, emit func(ChunkEvent) error) error {
	dec := newSSEDecoder(r)
	for {
		rec, err := dec.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return &TransportError{Op: "read stream", Err: io.ErrUnexpectedEOF}
			}
			return &TransportError{Op: "read stream", Err: err}
		}
		chunk, action, err := ParseResponsesEvent(rec.Event, []byte(rec.Data))
		if err != nil {
			return err
		}
		if !chunk.IsEmpty() {
			if err := emit(chunk); err != nil {
				return err
			}
		}
		if action == responsesStop {
			return nil
		}
	}
}

// ParseResponsesEvent maps one SSE record onto a ChunkEvent. The event name
// falls back to the payload's type field when the record has no event line.
func ParseResponsesEvent(event string, data []byte) (ChunkEvent, responsesAction, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "[DONE]" {
		return ChunkEvent{}, responsesStop, nil
	}
	if trimmed == "" {
		return ChunkEvent{}, responsesContinue, nil
	}

	var ev responsesStreamEvent
	parseErr := json.Unmarshal([]byte(trimmed), &ev)
	if event == "" && parseErr == nil {
		event = ev.Type
	}

	switch event {
	case "response.output_text.delta", "response.content_part.delta",
		"response.output_text.done", "response.content_part.done":
		if parseErr != nil {
			return ChunkEvent{}, responsesContinue, &ProtocolError{Format: responsesFormat, Detail: event, Err: parseErr}
		}
		return ChunkEvent{Content: ev.textFragment()}, responsesContinue, nil

	case "response.output_item.done":
		if parseErr != nil {
			return ChunkEvent{}, responsesContinue, &ProtocolError{Format: responsesFormat, Detail: event, Err: parseErr}
		}
		if delta, ok := ev.functionCallDelta(); ok {
			if err := checkToolCallIndex(responsesFormat, delta.Index); err != nil {
				return ChunkEvent{}, responsesStop, err
			}
			return ChunkEvent{ToolCallDeltas: []ToolCallDelta{delta}}, responsesContinue, nil
		}
		return ChunkEvent{}, responsesContinue, nil

	case "response.output_item.added":
		// Only done carries the complete item.
		return ChunkEvent{}, responsesContinue, nil

	case "response.error", "error", "response.failed":
		return ChunkEvent{}, responsesStop, &UpstreamError{Message: ev.errorMessage(trimmed)}

	case "response.done", "response.completed", "response.incomplete":
		return ChunkEvent{}, responsesStop, nil
	}

	if parseErr != nil {
		return ChunkEvent{}, responsesContinue, nil
	}
	if delta, ok := ev.functionCallDelta(); ok {
		if err := checkToolCallIndex(responsesFormat, delta.Index); err != nil {
			return ChunkEvent{}, responsesStop, err
		}
		return ChunkEvent{ToolCallDeltas: []ToolCallDelta{delta}}, responsesContinue, nil
	}
	if chunk, _, err := ParseChatCompletionsChunk([]byte(trimmed)); err == nil {
		return chunk, responsesContinue, nil
	}
	return ChunkEvent{}, responsesContinue, nil
}

func (ev responsesStreamEvent) textFragment() string {
	if len(ev.Delta) > 0 {
		var s string
		if err := json.Unmarshal(ev.Delta, &s); err == nil && s != "" {
			return s
		}
		var obj struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(ev.Delta, &obj); err == nil && obj.Text != "" {
			return obj.Text
		}
	}
	if ev.Text != "" {
		return ev.Text
	}
	if ev.Part != nil {
		return ev.Part.Text
	}
	return ""
}

func (ev responsesStreamEvent) functionCallDelta() (ToolCallDelta, bool) {
	if ev.Item == nil || ev.Item.Type != "function_call" {
		return ToolCallDelta{}, false
	}
	index := 0
	if ev.OutputIndex != nil {
		index = *ev.OutputIndex
	}
	id := ev.Item.CallID
	if id == "" {
		id = ev.Item.ID
	}
	return ToolCallDelta{
		Index:     index,
		ID:        id,
		Name:      ev.Item.Name,
		Arguments: ev.Item.Arguments,
	}, true
}

func (ev responsesStreamEvent) errorMessage(raw string) string {
	switch {
	case ev.Error != nil && ev.Error.Message != "":
		return ev.Error.Message
	case ev.Message != "":
		return ev.Message
	case ev.Response != nil && ev.Response.Error != nil && ev.Response.Error.Message != "":
		return ev.Response.Error.Message
	}
	return truncate(raw, 200)
}
