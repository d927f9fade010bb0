package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	diff "github.com/shogoki/gotextdiff"
)

// maxDiffSize skips diff generation for very large files.
const maxDiffSize = 256 * 1024

// WriteFileTool creates or overwrites a file.
type WriteFileTool struct{}

// WriteFileArgs are the arguments for write_file.
type WriteFileArgs struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

func (t *WriteFileTool) Name() string       { return WriteFileToolName }
func (t *WriteFileTool) Category() Category { return CategoryFileOp }

func (t *WriteFileTool) Description() string {
	return "Create a file or replace its entire content. Parent directories are created. Returns a diff of the change."
}

func (t *WriteFileTool) Schema() *jsonschema.Schema {
	return objectSchema([]string{"path", "content"}, map[string]*jsonschema.Schema{
		"path":    stringProp("File path, relative to the working directory or absolute"),
		"content": stringProp("Complete new file content"),
	})
}

func (t *WriteFileTool) Run(ctx context.Context, st *State, args json.RawMessage) (string, error) {
	var a WriteFileArgs
	if err := decodeArgs(args, &a); err != nil {
		return "", err
	}
	if a.Path == "" {
		return "", NewToolError(ErrInvalidParams, "path is required")
	}

	path := st.Resolve(a.Path)
	existing := ""
	isNew := true
	mode := os.FileMode(0644)
	if info, err := os.Stat(path); err == nil {
		if info.IsDir() {
			return "", NewToolErrorf(ErrInvalidParams, "%s is a directory", a.Path)
		}
		mode = info.Mode()
		if data, err := os.ReadFile(path); err == nil {
			existing = string(data)
			isNew = false
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", NewToolErrorf(ErrExecutionFailed, "failed to create directory: %v", err)
	}
	if err := atomicWrite(path, a.Content, mode); err != nil {
		return "", err
	}

	rel := st.Rel(path)
	if isNew {
		return fmt.Sprintf("Created new file: %s (%d lines).", rel, countLines(a.Content)), nil
	}
	summary := fmt.Sprintf("Updated %s: %d lines -> %d lines.", rel, countLines(existing), countLines(a.Content))
	if d := unifiedDiff(rel, existing, a.Content); d != "" {
		summary += "\n\n" + d
	}
	return summary, nil
}

// atomicWrite writes content to a temp file next to path and renames it
// into place.
func atomicWrite(path, content string, mode os.FileMode) error {
	dir := filepath.Dir(path)
	tf, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return NewToolErrorf(ErrExecutionFailed, "failed to create temp file: %v", err)
	}
	tempPath := tf.Name()

	if _, err := tf.WriteString(content); err != nil {
		tf.Close()
		os.Remove(tempPath)
		return NewToolErrorf(ErrExecutionFailed, "failed to write temp file: %v", err)
	}
	if err := tf.Close(); err != nil {
		os.Remove(tempPath)
		return NewToolErrorf(ErrExecutionFailed, "failed to close temp file: %v", err)
	}
	// CreateTemp uses 0600, too restrictive for source files.
	if err := os.Chmod(tempPath, mode.Perm()); err != nil {
		os.Remove(tempPath)
		return NewToolErrorf(ErrExecutionFailed, "failed to set file permissions: %v", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return NewToolErrorf(ErrExecutionFailed, "failed to rename temp file: %v", err)
	}
	return nil
}

// unifiedDiff returns a unified diff between old and new content, or "" when
// they are equal or too large to diff.
func unifiedDiff(name, oldContent, newContent string) string {
	if oldContent == newContent || len(oldContent) > maxDiffSize || len(newContent) > maxDiffSize {
		return ""
	}
	return strings.TrimRight(string(diff.Diff("a/"+name, []byte(oldContent), "b/"+name, []byte(newContent))), "\n")
}

// countLines counts the number of lines in a string.
func countLines(s string) int {
	if s == "" {
		return 0
	}
	count := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		count++
	}
	return count
}
