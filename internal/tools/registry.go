package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/sahilm/fuzzy"

	"github.com/samsaffron/term-agent/internal/llm"
)

// Registry holds the enabled tools and executes them against one session
// State.
type Registry struct {
	state    *State
	tools    map[string]Tool
	resolved map[string]*jsonschema.Resolved
	order    []string
}

// Options configures the built-in tools.
type Options struct {
	Limits       OutputLimits
	ShellTimeout time.Duration
	Shell        string
}

// NewRegistry registers the built-in tools.
func NewRegistry(state *State, opts Options) (*Registry, error) {
	if opts.Limits.MaxBytes == 0 {
		opts.Limits = DefaultOutputLimits()
	}
	if opts.ShellTimeout <= 0 {
		opts.ShellTimeout = 2 * time.Minute
	}
	r := &Registry{
		state:    state,
		tools:    make(map[string]Tool),
		resolved: make(map[string]*jsonschema.Resolved),
	}
	builtins := []Tool{
		&ReadFileTool{limits: opts.Limits},
		&WriteFileTool{},
		&EditFileTool{},
		&ListDirTool{limits: opts.Limits},
		&GlobTool{limits: opts.Limits},
		&GrepTool{limits: opts.Limits},
		&ShellTool{limits: opts.Limits, timeout: opts.ShellTimeout, shell: opts.Shell},
		&ChangeDirectoryTool{},
		&TodoWriteTool{},
		&TodoReadTool{},
	}
	for _, tool := range builtins {
		if err := r.Register(tool); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a tool, resolving its schema once.
func (r *Registry) Register(tool Tool) error {
	name := tool.Name()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s registered twice", name)
	}
	resolved, err := tool.Schema().Resolve(nil)
	if err != nil {
		return fmt.Errorf("tool %s: invalid schema: %w", name, err)
	}
	r.tools[name] = tool
	r.resolved[name] = resolved
	r.order = append(r.order, name)
	return nil
}

// State returns the session state the tools run against.
func (r *Registry) State() *State {
	return r.state
}

// Names returns registered tool names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Definitions returns the tool declarations sent to the model.
func (r *Registry) Definitions() []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		tool := r.tools[name]
		params, err := json.Marshal(tool.Schema())
		if err != nil {
			slog.Warn("skipping tool with unmarshalable schema", "tool", name, "error", err)
			continue
		}
		defs = append(defs, llm.ToolDefinition{
			Type: "function",
			Function: llm.FunctionDefinition{
				Name:        name,
				Description: tool.Description(),
				Parameters:  params,
			},
		})
	}
	return defs
}

// Category returns the confirmation category for a tool name. Unknown tools
// are treated as shell operations so they are never run unconfirmed.
func (r *Registry) Category(name string) Category {
	if tool, ok := r.tools[name]; ok {
		return tool.Category()
	}
	return CategoryShellOp
}

// Execute validates args and runs the named tool. Failures are reported in
// the Result; Execute itself never fails.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage) Result {
	tool, ok := r.tools[name]
	if !ok {
		return Failure("%s", formatToolError(r.unknownTool(name)))
	}

	if len(strings.TrimSpace(string(args))) == 0 {
		args = json.RawMessage("{}")
	}
	var instance map[string]any
	if err := json.Unmarshal(args, &instance); err != nil {
		return Failure("%s", formatToolError(NewToolErrorf(ErrInvalidParams, "arguments are not a JSON object: %v", err)))
	}
	if err := r.resolved[name].Validate(instance); err != nil {
		return Failure("%s", formatToolError(NewToolError(ErrInvalidParams, err.Error())))
	}

	start := time.Now()
	output, err := tool.Run(ctx, r.state, args)
	slog.Debug("tool executed", "tool", name, "duration", time.Since(start), "error", err)
	if err != nil {
		if te, ok := err.(*ToolError); ok {
			return Result{Success: false, Error: formatToolError(te), Output: output}
		}
		return Result{Success: false, Error: err.Error(), Output: output}
	}
	if warn := WarnUnknownParams(args, schemaKeys(tool.Schema())); warn != "" {
		output = warn + output
	}
	return Success(output)
}

// unknownTool builds an error suggesting the closest registered names.
func (r *Registry) unknownTool(name string) *ToolError {
	matches := fuzzy.Find(name, r.order)
	if len(matches) == 0 {
		return NewToolErrorf(ErrUnknownTool, "unknown tool %q; available: %s", name, strings.Join(r.order, ", "))
	}
	var suggestions []string
	for i, m := range matches {
		if i == 3 {
			break
		}
		suggestions = append(suggestions, m.Str)
	}
	return NewToolErrorf(ErrUnknownTool, "unknown tool %q; did you mean %s?", name, strings.Join(suggestions, " or "))
}

func schemaKeys(s *jsonschema.Schema) []string {
	keys := make([]string, 0, len(s.Properties))
	for k := range s.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
