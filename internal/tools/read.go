package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
)

// ReadFileTool returns file contents with line numbers.
type ReadFileTool struct {
	limits OutputLimits
}

// ReadFileArgs are the arguments for read_file.
type ReadFileArgs struct {
	Path      string `json:"path"`
	StartLine int    `json:"start_line,omitempty"`
	EndLine   int    `json:"end_line,omitempty"`
}

func (t *ReadFileTool) Name() string       { return ReadFileToolName }
func (t *ReadFileTool) Category() Category { return CategoryNone }

func (t *ReadFileTool) Description() string {
	return "Read a text file. Lines are prefixed with their 1-based number. Use start_line/end_line to page through large files."
}

func (t *ReadFileTool) Schema() *jsonschema.Schema {
	return objectSchema([]string{"path"}, map[string]*jsonschema.Schema{
		"path":       stringProp("File path, relative to the working directory or absolute"),
		"start_line": integerProp("First line to read (1-based)"),
		"end_line":   integerProp("Last line to read (inclusive)"),
	})
}

func (t *ReadFileTool) Run(ctx context.Context, st *State, args json.RawMessage) (string, error) {
	var a ReadFileArgs
	if err := decodeArgs(args, &a); err != nil {
		return "", err
	}
	if a.Path == "" {
		return "", NewToolError(ErrInvalidParams, "path is required")
	}

	path := st.Resolve(a.Path)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", NewToolError(ErrFileNotFound, a.Path)
		}
		return "", NewToolErrorf(ErrExecutionFailed, "read error: %v", err)
	}
	if isBinaryContent(data) {
		return "", NewToolErrorf(ErrBinaryFile, "%s appears to be a binary file", a.Path)
	}

	lines := strings.Split(string(data), "\n")
	totalLines := len(lines)

	start := 0
	if a.StartLine > 0 {
		start = a.StartLine - 1
	}
	if start >= totalLines {
		return "", NewToolErrorf(ErrInvalidParams, "start_line %d exceeds file length %d", a.StartLine, totalLines)
	}
	end := totalLines
	if a.EndLine > 0 && a.EndLine < totalLines {
		end = a.EndLine
	}
	if start >= end {
		return "No content in requested range.", nil
	}

	selected := lines[start:end]
	truncated := false
	if len(selected) > t.limits.MaxLines {
		selected = selected[:t.limits.MaxLines]
		truncated = true
	}

	var sb strings.Builder
	for i, line := range selected {
		fmt.Fprintf(&sb, "%d: %s\n", start+i+1, line)
	}
	output := strings.TrimSuffix(sb.String(), "\n")

	if int64(len(output)) > t.limits.MaxBytes {
		output = output[:t.limits.MaxBytes]
		truncated = true
	}
	if truncated {
		output += fmt.Sprintf("\n\n[Output truncated. Total lines: %d. Use start_line/end_line for pagination.]", totalLines)
	}
	return output, nil
}

// isBinaryContent sniffs the first 512 bytes for binary content.
func isBinaryContent(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	sample := data
	if len(sample) > 512 {
		sample = sample[:512]
	}

	contentType := http.DetectContentType(sample)
	if strings.HasPrefix(contentType, "text/") {
		return false
	}
	if strings.Contains(contentType, "json") || strings.Contains(contentType, "xml") {
		return false
	}
	for _, b := range sample {
		if b == 0 {
			return true
		}
	}
	return false
}
