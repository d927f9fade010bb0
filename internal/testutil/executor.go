package testutil

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/samsaffron/term-agent/internal/llm"
	"github.com/samsaffron/term-agent/internal/tools"
)

// RecordingExecutor is a tool executor that records invocations and returns
// canned results.
type RecordingExecutor struct {
	mu sync.Mutex

	// Categories maps tool names to confirmation categories; missing names
	// are CategoryNone.
	Categories map[string]tools.Category
	// ExecuteFn computes a result; nil returns a success echoing the args.
	ExecuteFn func(ctx context.Context, name string, args json.RawMessage) tools.Result

	Invocations []Invocation
}

// Invocation records one Execute call.
type Invocation struct {
	Name   string
	Args   json.RawMessage
	Result tools.Result
}

// Definitions implements the executor interface with one declaration per
// known category entry.
func (e *RecordingExecutor) Definitions() []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(e.Categories))
	for name := range e.Categories {
		defs = append(defs, llm.ToolDefinition{
			Type:     "function",
			Function: llm.FunctionDefinition{Name: name, Parameters: json.RawMessage(`{"type":"object"}`)},
		})
	}
	return defs
}

// Category returns the configured category.
func (e *RecordingExecutor) Category(name string) tools.Category {
	if c, ok := e.Categories[name]; ok {
		return c
	}
	return tools.CategoryNone
}

// Execute records the call and returns ExecuteFn's result.
func (e *RecordingExecutor) Execute(ctx context.Context, name string, args json.RawMessage) tools.Result {
	res := tools.Success("ran " + name + " with " + string(args))
	if e.ExecuteFn != nil {
		res = e.ExecuteFn(ctx, name, args)
	}
	e.mu.Lock()
	e.Invocations = append(e.Invocations, Invocation{Name: name, Args: append(json.RawMessage(nil), args...), Result: res})
	e.mu.Unlock()
	return res
}

// Calls returns the names of executed tools in order.
func (e *RecordingExecutor) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := make([]string, len(e.Invocations))
	for i, inv := range e.Invocations {
		names[i] = inv.Name
	}
	return names
}
