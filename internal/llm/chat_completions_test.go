package llm

import (
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"
)

func collectChunks(t *testing.T, decode func(io.Reader, func(ChunkEvent) error) error, body string) ([]ChunkEvent, error) {
	t.Helper()
	var chunks []ChunkEvent
	err := decode(iotest.OneByteReader(strings.NewReader(body)), func(c ChunkEvent) error {
		chunks = append(chunks, c)
		return nil
	})
	return chunks, err
}

func foldChunks(chunks []ChunkEvent) (string, []ToolCall) {
	var text string
	var acc ToolCallAccumulator
	for _, c := range chunks {
		MergeText(&text, c.Content)
		acc.AddChunk(c)
	}
	return text, acc.Finalize()
}

func TestDecodeChatCompletionsStream(t *testing.T) {
	body := `data: {"choices":[{"index":0,"delta":{"role":"assistant","content":"Hel"}}]}

data: {"choices":[{"index":0,"delta":{"content":"Hello"}}]}
: keep-alive
data: {"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"shell","arguments":""}}]}}]}
data: {"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"command\":\"ls\"}"}}]}}]}
data: {"choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}
data: [DONE]
`
	chunks, err := collectChunks(t, decodeChatCompletionsStream, body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(chunks) != 4 {
		t.Fatalf("got %d chunks, want 4: %+v", len(chunks), chunks)
	}

	text, calls := foldChunks(chunks)
	if text != "Hello" {
		t.Errorf("text = %q, want %q", text, "Hello")
	}
	want := ToolCall{ID: "call_1", Name: "shell", Arguments: `{"command":"ls"}`}
	if len(calls) != 1 || calls[0] != want {
		t.Errorf("calls = %+v, want [%+v]", calls, want)
	}
}

func TestDecodeChatCompletionsStreamErrors(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		check func(error) bool
	}{
		{
			name:  "upstream error object",
			body:  "data: {\"error\":{\"message\":\"overloaded\"}}\n",
			check: IsUpstream,
		},
		{
			name:  "malformed frame",
			body:  "data: {not json\n",
			check: IsProtocol,
		},
		{
			name:  "tool call index out of range",
			body:  "data: {\"choices\":[{\"delta\":{\"tool_calls\":[{\"index\":1099511627776,\"function\":{\"name\":\"shell\"}}]}}]}\n",
			check: IsProtocol,
		},
		{
			name:  "connection dropped",
			body:  "data: {\"choices\":[{\"delta\":{\"content\":\"partial\"}}]}\n",
			check: IsTransport,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := collectChunks(t, decodeChatCompletionsStream, tc.body)
			if err == nil || !tc.check(err) {
				t.Errorf("unexpected error %v (%T)", err, err)
			}
		})
	}
}

func TestDecodeChatCompletionsStreamFinishWithoutDone(t *testing.T) {
	body := "data: {\"choices\":[{\"delta\":{\"content\":\"ok\"},\"finish_reason\":\"stop\"}]}\n"
	chunks, err := collectChunks(t, decodeChatCompletionsStream, body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(chunks) != 1 || chunks[0].Content != "ok" {
		t.Errorf("chunks = %+v", chunks)
	}
}

func TestDecodeChatCompletionsStreamStopsOnEmitError(t *testing.T) {
	stop := errors.New("consumer gone")
	body := "data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\ndata: [DONE]\n"
	err := decodeChatCompletionsStream(strings.NewReader(body), func(ChunkEvent) error { return stop })
	if !errors.Is(err, stop) {
		t.Errorf("err = %v, want %v", err, stop)
	}
}

func TestBuildChatRequest(t *testing.T) {
	req := Request{
		Model: "gpt-test",
		Messages: []Message{
			SystemText("be brief"),
			{Role: RoleUser, Content: "what is this?", Attachments: []Attachment{{Name: "a.png", MediaType: "image/png", Data: []byte{1, 2, 3}}}},
			AssistantMessage("", []ToolCall{{ID: "call_1", Name: "read_file"}}),
			ToolResultMessage("call_1", "file contents"),
		},
		Tools:  []ToolDefinition{{Type: "function", Function: FunctionDefinition{Name: "read_file", Description: "Read a file"}}},
		Search: true,
	}

	data, err := json.Marshal(BuildChatRequest(req, true))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var body struct {
		Model    string `json:"model"`
		Stream   bool   `json:"stream"`
		Messages []struct {
			Role       string          `json:"role"`
			Content    json.RawMessage `json:"content"`
			ToolCallID string          `json:"tool_call_id"`
			ToolCalls  []chatToolCall  `json:"tool_calls"`
		} `json:"messages"`
		Tools            []ToolDefinition `json:"tools"`
		WebSearchOptions *struct{}        `json:"web_search_options"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if !body.Stream || body.Model != "gpt-test" {
		t.Errorf("model/stream = %q/%v", body.Model, body.Stream)
	}
	if body.WebSearchOptions == nil {
		t.Error("web_search_options missing for search request")
	}
	if len(body.Messages) != 4 {
		t.Fatalf("got %d messages, want 4", len(body.Messages))
	}

	var parts []chatContentPart
	if err := json.Unmarshal(body.Messages[1].Content, &parts); err != nil {
		t.Fatalf("user content is not a part list: %s", body.Messages[1].Content)
	}
	if len(parts) != 2 || parts[0].Text != "what is this?" || parts[1].ImageURL == nil ||
		!strings.HasPrefix(parts[1].ImageURL.URL, "data:image/png;base64,") {
		t.Errorf("user parts = %+v", parts)
	}

	calls := body.Messages[2].ToolCalls
	if len(calls) != 1 || calls[0].Function.Arguments != "{}" || calls[0].Type != "function" {
		t.Errorf("assistant tool calls = %+v", calls)
	}
	if body.Messages[3].Role != "tool" || body.Messages[3].ToolCallID != "call_1" {
		t.Errorf("tool message = %+v", body.Messages[3])
	}
	if len(body.Tools) != 1 || string(body.Tools[0].Function.Parameters) != `{"type":"object","properties":{}}` {
		t.Errorf("tools = %+v", body.Tools)
	}
}

func TestParseChatCompletionsResponse(t *testing.T) {
	body := `{"choices":[{"message":{"role":"assistant","content":"done","tool_calls":[{"function":{"name":"shell","arguments":"{}"}}]}}]}`
	text, calls, err := ParseChatCompletionsResponse([]byte(body))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if text != "done" {
		t.Errorf("text = %q", text)
	}
	if len(calls) != 1 || calls[0].ID != "call_0" || calls[0].Name != "shell" {
		t.Errorf("calls = %+v", calls)
	}
}
