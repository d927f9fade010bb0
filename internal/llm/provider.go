package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// WireFormat selects the upstream streaming protocol.
type WireFormat string

const (
	WireChat      WireFormat = "chat"
	WireResponses WireFormat = "responses"
)

// ParseWireFormat accepts the configured wire format name.
func ParseWireFormat(s string) (WireFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "chat", "chat-completions", "chat_completions":
		return WireChat, nil
	case "responses":
		return WireResponses, nil
	}
	return "", fmt.Errorf("unknown wire format %q (want chat or responses)", s)
}

// Provider streams one model round.
type Provider interface {
	Name() string
	Stream(ctx context.Context, req Request) (Stream, error)
}

// ProviderConfig configures an HTTPProvider.
type ProviderConfig struct {
	Name       string
	BaseURL    string
	APIKey     string
	WireFormat WireFormat
	Headers    map[string]string
	// Timeout bounds a whole request including the streamed body.
	Timeout    time.Duration
	HTTPClient *http.Client
}

// HTTPProvider talks to an OpenAI-style endpoint over either wire format.
type HTTPProvider struct {
	name       string
	baseURL    string
	apiKey     string
	format     WireFormat
	headers    map[string]string
	httpClient *http.Client
}

// NewHTTPProvider builds a provider from cfg.
func NewHTTPProvider(cfg ProviderConfig) (*HTTPProvider, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("provider base URL not configured")
	}
	format := cfg.WireFormat
	if format == "" {
		format = WireChat
	}
	if format != WireChat && format != WireResponses {
		return nil, fmt.Errorf("unknown wire format %q", format)
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	name := cfg.Name
	if name == "" {
		name = "openai"
	}
	return &HTTPProvider{
		name:       name,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		format:     format,
		headers:    cfg.Headers,
		httpClient: client,
	}, nil
}

func (p *HTTPProvider) Name() string {
	return p.name
}

// WireFormat returns the configured wire format.
func (p *HTTPProvider) WireFormat() WireFormat {
	return p.format
}

func (p *HTTPProvider) endpoint() string {
	if p.format == WireResponses {
		return p.baseURL + "/responses"
	}
	return p.baseURL + "/chat/completions"
}

func (p *HTTPProvider) body(req Request, stream bool) any {
	if p.format == WireResponses {
		return BuildResponsesRequest(req, stream)
	}
	return BuildChatRequest(req, stream)
}

// Stream issues a streaming request. Non-success statuses are reported
// here, before any chunk is produced, so callers can retry them.
func (p *HTTPProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	resp, err := p.post(ctx, req, true)
	if err != nil {
		return nil, err
	}
	decode := decodeChatCompletionsStream
	if p.format == WireResponses {
		decode = decodeResponsesStream
	}
	return newChunkStream(ctx, func(ctx context.Context, emit func(ChunkEvent) error) error {
		defer resp.Body.Close()
		// Closing the body unblocks a pending read when the stream is abandoned.
		stop := context.AfterFunc(ctx, func() { resp.Body.Close() })
		defer stop()
		err := decode(resp.Body, emit)
		if err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}), nil
}

// Complete issues a non-streaming request and returns the finalized
// assistant message.
func (p *HTTPProvider) Complete(ctx context.Context, req Request) (Message, error) {
	resp, err := p.post(ctx, req, false)
	if err != nil {
		return Message{}, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Message{}, &TransportError{Op: "read response", Err: err}
	}
	var text string
	var calls []ToolCall
	if p.format == WireResponses {
		text, calls, err = ParseResponsesBody(data)
	} else {
		text, calls, err = ParseChatCompletionsResponse(data)
	}
	if err != nil {
		return Message{}, err
	}
	return AssistantMessage(text, calls), nil
}

func (p *HTTPProvider) post(ctx context.Context, req Request, stream bool) (*http.Response, error) {
	body, err := json.Marshal(p.body(req, stream))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	for key, value := range p.headers {
		httpReq.Header.Set(key, value)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TransportError{Op: "send request", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		resp.Body.Close()
		return nil, &UpstreamError{
			StatusCode: resp.StatusCode,
			Message:    upstreamMessage(respBody),
			RetryAfter: retryAfter(resp.Header.Get("Retry-After")),
		}
	}
	return resp, nil
}

// retryAfter parses a Retry-After header given in seconds.
func retryAfter(value string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// upstreamMessage pulls error.message out of an error body, falling back to
// a truncated copy of the raw body.
func upstreamMessage(body []byte) string {
	var payload struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil {
		if payload.Error != nil && payload.Error.Message != "" {
			return payload.Error.Message
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	return truncate(strings.TrimSpace(string(body)), 500)
}
