// Package tools provides the local tools the agent can call and the
// confirmation categories that gate them.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// Category classifies a tool for confirmation purposes.
type Category string

const (
	CategoryNone    Category = "none"
	CategoryFileOp  Category = "file_op"
	CategoryShellOp Category = "shell_op"
)

// RequiresConfirmation reports whether calls in this category need an
// operator decision unless pre-approved.
func (c Category) RequiresConfirmation() bool {
	return c == CategoryFileOp || c == CategoryShellOp
}

// Result is the outcome of one tool execution.
type Result struct {
	Success bool   `json:"success"`
	Output  string `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Text returns the result as it is reported back to the model.
func (r Result) Text() string {
	if r.Success {
		return r.Output
	}
	if r.Output != "" {
		return "Error: " + r.Error + "\n" + r.Output
	}
	return "Error: " + r.Error
}

// Success builds a successful result.
func Success(output string) Result {
	return Result{Success: true, Output: output}
}

// Failure builds a failed result.
func Failure(format string, args ...any) Result {
	return Result{Success: false, Error: fmt.Sprintf(format, args...)}
}

// Tool is one callable local tool. Run receives arguments already validated
// against Schema.
type Tool interface {
	Name() string
	Description() string
	Schema() *jsonschema.Schema
	Category() Category
	Run(ctx context.Context, st *State, args json.RawMessage) (string, error)
}

// ToolErrorType provides structured error kinds the model can act on.
type ToolErrorType string

const (
	ErrFileNotFound     ToolErrorType = "FILE_NOT_FOUND"
	ErrInvalidParams    ToolErrorType = "INVALID_PARAMS"
	ErrExecutionFailed  ToolErrorType = "EXECUTION_FAILED"
	ErrPermissionDenied ToolErrorType = "PERMISSION_DENIED"
	ErrBinaryFile       ToolErrorType = "BINARY_FILE"
	ErrFileTooLarge     ToolErrorType = "FILE_TOO_LARGE"
	ErrTimeout          ToolErrorType = "TIMEOUT"
	ErrUnknownTool      ToolErrorType = "UNKNOWN_TOOL"
)

// ToolError is a failure reported back to the model rather than aborting.
type ToolError struct {
	Type    ToolErrorType `json:"type"`
	Message string        `json:"message"`
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// NewToolError creates a new ToolError.
func NewToolError(errType ToolErrorType, message string) *ToolError {
	return &ToolError{Type: errType, Message: message}
}

// NewToolErrorf creates a new ToolError with formatted message.
func NewToolErrorf(errType ToolErrorType, format string, args ...any) *ToolError {
	return &ToolError{Type: errType, Message: fmt.Sprintf(format, args...)}
}

// Tool names.
const (
	ReadFileToolName        = "read_file"
	WriteFileToolName       = "write_file"
	EditFileToolName        = "edit_file"
	ListDirToolName         = "list_dir"
	GlobToolName            = "glob"
	GrepToolName            = "grep"
	ShellToolName           = "shell"
	ChangeDirectoryToolName = "change_directory"
	TodoWriteToolName       = "todo_write"
	TodoReadToolName        = "todo_read"
)

// OutputLimits bounds what a single tool returns to the model.
type OutputLimits struct {
	MaxLines   int   // read_file lines
	MaxBytes   int64 // bytes per tool output
	MaxResults int   // grep/glob/list_dir entries
}

// DefaultOutputLimits returns the default output limits.
func DefaultOutputLimits() OutputLimits {
	return OutputLimits{
		MaxLines:   2000,
		MaxBytes:   50 * 1024,
		MaxResults: 200,
	}
}

func decodeArgs(args json.RawMessage, v any) error {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	if err := json.Unmarshal(args, v); err != nil {
		return NewToolError(ErrInvalidParams, err.Error())
	}
	return nil
}

func formatToolError(err *ToolError) string {
	return fmt.Sprintf("[%s] %s", err.Type, err.Message)
}
