package testutil

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/samsaffron/term-agent/internal/llm"
)

// ScriptedProvider replays a fixed sequence of responses, one per Stream
// call, and records every request it receives.
type ScriptedProvider struct {
	mu        sync.Mutex
	name      string
	responses []ScriptedResponse
	Requests  []llm.Request
}

// ScriptedResponse is one round's worth of chunks, optionally ending in an
// error. OpenErr fails Stream itself.
type ScriptedResponse struct {
	Chunks  []llm.ChunkEvent
	Err     error
	OpenErr error
	// Block makes Recv wait for ctx cancellation after the chunks.
	Block bool
}

// NewScriptedProvider creates an empty script.
func NewScriptedProvider(name string) *ScriptedProvider {
	return &ScriptedProvider{name: name}
}

// AddResponse appends a raw response.
func (p *ScriptedProvider) AddResponse(r ScriptedResponse) *ScriptedProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responses = append(p.responses, r)
	return p
}

// AddTextResponse appends a response streaming the given fragments.
func (p *ScriptedProvider) AddTextResponse(fragments ...string) *ScriptedProvider {
	chunks := make([]llm.ChunkEvent, 0, len(fragments))
	for _, f := range fragments {
		chunks = append(chunks, llm.ChunkEvent{Content: f})
	}
	return p.AddResponse(ScriptedResponse{Chunks: chunks})
}

// AddToolCall appends a response requesting one complete tool call.
func (p *ScriptedProvider) AddToolCall(id, name, arguments string) *ScriptedProvider {
	return p.AddResponse(ScriptedResponse{Chunks: []llm.ChunkEvent{{
		ToolCallDeltas: []llm.ToolCallDelta{{Index: 0, ID: id, Name: name, Arguments: arguments}},
	}}})
}

// AddError appends a response whose stream fails after the given fragments.
func (p *ScriptedProvider) AddError(err error, fragments ...string) *ScriptedProvider {
	chunks := make([]llm.ChunkEvent, 0, len(fragments))
	for _, f := range fragments {
		chunks = append(chunks, llm.ChunkEvent{Content: f})
	}
	return p.AddResponse(ScriptedResponse{Chunks: chunks, Err: err})
}

// Name implements llm.Provider.
func (p *ScriptedProvider) Name() string {
	return p.name
}

// RequestCount returns how many Stream calls were made.
func (p *ScriptedProvider) RequestCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Requests)
}

// Stream implements llm.Provider.
func (p *ScriptedProvider) Stream(ctx context.Context, req llm.Request) (llm.Stream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Requests = append(p.Requests, req)
	if len(p.responses) == 0 {
		return nil, fmt.Errorf("scripted provider %s: no response left for request %d", p.name, len(p.Requests))
	}
	r := p.responses[0]
	p.responses = p.responses[1:]
	if r.OpenErr != nil {
		return nil, r.OpenErr
	}
	return &scriptedStream{ctx: ctx, resp: r}, nil
}

type scriptedStream struct {
	ctx  context.Context
	resp ScriptedResponse
	pos  int
}

func (s *scriptedStream) Recv() (llm.ChunkEvent, error) {
	if err := s.ctx.Err(); err != nil {
		return llm.ChunkEvent{}, err
	}
	if s.pos < len(s.resp.Chunks) {
		chunk := s.resp.Chunks[s.pos]
		s.pos++
		return chunk, nil
	}
	if s.resp.Block {
		<-s.ctx.Done()
		return llm.ChunkEvent{}, s.ctx.Err()
	}
	if s.resp.Err != nil {
		return llm.ChunkEvent{}, s.resp.Err
	}
	return llm.ChunkEvent{}, io.EOF
}

func (s *scriptedStream) Close() error {
	return nil
}
