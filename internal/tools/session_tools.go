package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
)

// ChangeDirectoryTool moves the session working directory.
type ChangeDirectoryTool struct{}

// ChangeDirectoryArgs are the arguments for change_directory.
type ChangeDirectoryArgs struct {
	Path string `json:"path"`
}

func (t *ChangeDirectoryTool) Name() string       { return ChangeDirectoryToolName }
func (t *ChangeDirectoryTool) Category() Category { return CategoryNone }

func (t *ChangeDirectoryTool) Description() string {
	return "Change the working directory used by later tool calls in this session."
}

func (t *ChangeDirectoryTool) Schema() *jsonschema.Schema {
	return objectSchema([]string{"path"}, map[string]*jsonschema.Schema{
		"path": stringProp("Directory, relative to the current working directory or absolute"),
	})
}

func (t *ChangeDirectoryTool) Run(ctx context.Context, st *State, args json.RawMessage) (string, error) {
	var a ChangeDirectoryArgs
	if err := decodeArgs(args, &a); err != nil {
		return "", err
	}
	if a.Path == "" {
		return "", NewToolError(ErrInvalidParams, "path is required")
	}
	dir, err := st.SetCwd(a.Path)
	if err != nil {
		return "", err
	}
	return "Working directory is now " + dir, nil
}

var todoStatuses = []any{"pending", "in_progress", "completed"}

// TodoWriteTool replaces the session todo list.
type TodoWriteTool struct{}

// TodoWriteArgs are the arguments for todo_write.
type TodoWriteArgs struct {
	Todos []TodoItem `json:"todos"`
}

func (t *TodoWriteTool) Name() string       { return TodoWriteToolName }
func (t *TodoWriteTool) Category() Category { return CategoryNone }

func (t *TodoWriteTool) Description() string {
	return "Replace the session todo list. Use it to plan multi-step work and mark progress."
}

func (t *TodoWriteTool) Schema() *jsonschema.Schema {
	item := objectSchema([]string{"content", "status"}, map[string]*jsonschema.Schema{
		"content": stringProp("What needs to be done"),
		"status":  {Type: "string", Enum: todoStatuses},
	})
	return objectSchema([]string{"todos"}, map[string]*jsonschema.Schema{
		"todos": {Type: "array", Items: item, Description: "The complete todo list"},
	})
}

func (t *TodoWriteTool) Run(ctx context.Context, st *State, args json.RawMessage) (string, error) {
	var a TodoWriteArgs
	if err := decodeArgs(args, &a); err != nil {
		return "", err
	}
	st.SetTodos(a.Todos)
	return formatTodos(st.Todos()), nil
}

// TodoReadTool returns the session todo list.
type TodoReadTool struct{}

func (t *TodoReadTool) Name() string       { return TodoReadToolName }
func (t *TodoReadTool) Category() Category { return CategoryNone }

func (t *TodoReadTool) Description() string {
	return "Show the session todo list."
}

func (t *TodoReadTool) Schema() *jsonschema.Schema {
	return objectSchema(nil, map[string]*jsonschema.Schema{})
}

func (t *TodoReadTool) Run(ctx context.Context, st *State, args json.RawMessage) (string, error) {
	return formatTodos(st.Todos()), nil
}

func formatTodos(items []TodoItem) string {
	if len(items) == 0 {
		return "Todo list is empty."
	}
	var sb strings.Builder
	for i, item := range items {
		mark := " "
		switch item.Status {
		case "completed":
			mark = "x"
		case "in_progress":
			mark = ">"
		}
		fmt.Fprintf(&sb, "%d. [%s] %s\n", i+1, mark, item.Content)
	}
	return strings.TrimSuffix(sb.String(), "\n")
}
