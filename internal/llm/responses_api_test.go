package llm

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestDecodeResponsesStream(t *testing.T) {
	body := `event: response.created
data: {"type":"response.created","response":{"id":"resp_1"}}

event: response.output_item.added
data: {"type":"response.output_item.added","output_index":1,"item":{"type":"function_call","call_id":"call_9","name":"shell","arguments":""}}

event: response.output_text.delta
data: {"type":"response.output_text.delta","output_index":0,"delta":"Hi"}

event: response.output_text.delta
data: {"type":"response.output_text.delta","output_index":0,"delta":" there"}

event: response.output_text.done
data: {"type":"response.output_text.done","output_index":0,"text":"Hi there"}

event: response.output_item.done
data: {"type":"response.output_item.done","output_index":1,"item":{"type":"function_call","id":"fc_1","call_id":"call_9","name":"shell","arguments":"{\"command\":\"pwd\"}"}}

event: response.completed
data: {"type":"response.completed","response":{"id":"resp_1","status":"completed"}}

`
	chunks, err := collectChunks(t, decodeResponsesStream, body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(chunks) != 4 {
		t.Fatalf("got %d chunks, want 4: %+v", len(chunks), chunks)
	}

	text, calls := foldChunks(chunks)
	if text != "Hi there" {
		t.Errorf("text = %q, want %q", text, "Hi there")
	}
	want := ToolCall{ID: "call_9", Name: "shell", Arguments: `{"command":"pwd"}`}
	if len(calls) != 1 || calls[0] != want {
		t.Errorf("calls = %+v, want [%+v]", calls, want)
	}
}

func TestDecodeResponsesStreamWithoutEventLines(t *testing.T) {
	body := "data: {\"type\":\"response.output_text.delta\",\"delta\":\"a\"}\n\n" +
		"data: {\"type\":\"response.content_part.delta\",\"delta\":{\"text\":\"b\"}}\n\n" +
		"data: [DONE]\n\n"
	chunks, err := collectChunks(t, decodeResponsesStream, body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	text, _ := foldChunks(chunks)
	if text != "ab" {
		t.Errorf("text = %q, want %q", text, "ab")
	}
}

func TestDecodeResponsesStreamFallback(t *testing.T) {
	body := "event: vendor.custom\ndata: {\"choices\":[{\"delta\":{\"content\":\"z\"}}]}\n\n" +
		"event: vendor.tool\ndata: {\"output_index\":0,\"item\":{\"type\":\"function_call\",\"name\":\"glob\",\"arguments\":\"{}\"}}\n\n" +
		"event: vendor.noise\ndata: not json\n\n" +
		"event: response.done\ndata: {}\n\n"
	chunks, err := collectChunks(t, decodeResponsesStream, body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	text, calls := foldChunks(chunks)
	if text != "z" {
		t.Errorf("text = %q, want %q", text, "z")
	}
	if len(calls) != 1 || calls[0].Name != "glob" || calls[0].ID != "call_0" {
		t.Errorf("calls = %+v", calls)
	}
}

func TestDecodeResponsesStreamErrors(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		check func(error) bool
		msg   string
	}{
		{
			name:  "error event",
			body:  "event: response.error\ndata: {\"type\":\"response.error\",\"error\":{\"message\":\"quota exceeded\"}}\n\n",
			check: IsUpstream,
			msg:   "quota exceeded",
		},
		{
			name:  "failed response",
			body:  "event: response.failed\ndata: {\"response\":{\"error\":{\"message\":\"server exploded\"}}}\n\n",
			check: IsUpstream,
			msg:   "server exploded",
		},
		{
			name:  "malformed delta",
			body:  "event: response.output_text.delta\ndata: {oops\n\n",
			check: IsProtocol,
		},
		{
			name:  "tool call index out of range",
			body:  "event: response.output_item.done\ndata: {\"output_index\":1099511627776,\"item\":{\"type\":\"function_call\",\"call_id\":\"c1\",\"name\":\"shell\",\"arguments\":\"{}\"}}\n\n",
			check: IsProtocol,
		},
		{
			name:  "no completion",
			body:  "event: response.output_text.delta\ndata: {\"delta\":\"x\"}\n\n",
			check: IsTransport,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := collectChunks(t, decodeResponsesStream, tc.body)
			if err == nil || !tc.check(err) {
				t.Fatalf("unexpected error %v (%T)", err, err)
			}
			if tc.msg != "" && !strings.Contains(err.Error(), tc.msg) {
				t.Errorf("error %q does not mention %q", err, tc.msg)
			}
		})
	}
}

func TestBuildResponsesInput(t *testing.T) {
	items := BuildResponsesInput([]Message{
		SystemText("sys"),
		{Role: RoleUser, Content: "look", Attachments: []Attachment{{MediaType: "image/jpeg", Data: []byte("img")}}},
		AssistantMessage("checking", []ToolCall{{ID: "call_1", Name: "shell", Arguments: `{"command":"ls"}`}}),
		ToolResultMessage("call_1", "a.go"),
	})

	if len(items) != 5 {
		t.Fatalf("got %d items, want 5: %+v", len(items), items)
	}
	if items[0].Role != "developer" || items[0].Content != "sys" {
		t.Errorf("system item = %+v", items[0])
	}
	parts, ok := items[1].Content.([]ResponsesContentPart)
	if !ok || len(parts) != 2 || parts[0].Type != "input_text" || parts[1].Type != "input_image" ||
		!strings.HasPrefix(parts[1].ImageURL, "data:image/jpeg;base64,") {
		t.Errorf("user item = %+v", items[1])
	}
	if items[2].Type != "message" || items[2].Role != "assistant" {
		t.Errorf("assistant item = %+v", items[2])
	}
	if items[3].Type != "function_call" || items[3].CallID != "call_1" || items[3].Arguments != `{"command":"ls"}` {
		t.Errorf("function_call item = %+v", items[3])
	}
	if items[4].Type != "function_call_output" || items[4].CallID != "call_1" || items[4].Output != "a.go" {
		t.Errorf("function_call_output item = %+v", items[4])
	}
}

func TestBuildResponsesTools(t *testing.T) {
	tools := BuildResponsesTools([]ToolDefinition{{
		Type: "function",
		Function: FunctionDefinition{
			Name:       "shell",
			Parameters: json.RawMessage(`{"type":"object","properties":{"command":{"type":"string"}}}`),
		},
	}}, true)

	data, err := json.Marshal(tools)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `[{"type":"function","name":"shell","parameters":{"type":"object","properties":{"command":{"type":"string"}}}},{"type":"web_search_preview"}]`
	if string(data) != want {
		t.Errorf("tools = %s\nwant  %s", data, want)
	}
}

func TestResponsesRoundTrip(t *testing.T) {
	conversation := []Message{
		UserText("List the files"),
		AssistantMessage("Let me check.", []ToolCall{{ID: "call_1", Name: "shell", Arguments: `{"command":"ls"}`}}),
		ToolResultMessage("call_1", "main.go"),
	}

	items := BuildResponsesInput(conversation)
	body, err := json.Marshal(map[string]any{"output": items})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	text, calls, err := ParseResponsesBody(body)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !strings.Contains(text, "List the files") || !strings.Contains(text, "Let me check.") {
		t.Errorf("text = %q, lost conversation text", text)
	}
	want := ToolCall{ID: "call_1", Name: "shell", Arguments: `{"command":"ls"}`}
	if len(calls) != 1 || calls[0] != want {
		t.Errorf("calls = %+v, want [%+v]", calls, want)
	}
}

func TestParseResponsesBody(t *testing.T) {
	body := `{
		"id": "resp_1",
		"output": [
			{"type":"reasoning","summary":[]},
			{"type":"message","role":"assistant","content":[{"type":"output_text","text":"Hello "},{"type":"refusal","refusal":"no"},{"type":"text","text":"world"}]},
			{"type":"function_call","name":"glob","arguments":"{\"pattern\":\"*.go\"}"},
			{"type":"function_call","id":"fc_7","name":"read_file","arguments":"{}"}
		]
	}`
	text, calls, err := ParseResponsesBody([]byte(body))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if text != "Hello world" {
		t.Errorf("text = %q", text)
	}
	if len(calls) != 2 || calls[0].ID != "call_2" || calls[1].ID != "fc_7" {
		t.Errorf("calls = %+v", calls)
	}

	if _, _, err := ParseResponsesBody([]byte(`{"error":{"message":"bad key"}}`)); !IsUpstream(err) {
		t.Errorf("error body: got %v, want UpstreamError", err)
	}
}
