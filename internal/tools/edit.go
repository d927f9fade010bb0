package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
)

// EditFileTool replaces an exact snippet of a file.
type EditFileTool struct{}

// EditFileArgs are the arguments for edit_file.
type EditFileArgs struct {
	Path       string `json:"path"`
	OldText    string `json:"old_text"`
	NewText    string `json:"new_text"`
	ReplaceAll bool   `json:"replace_all,omitempty"`
}

func (t *EditFileTool) Name() string       { return EditFileToolName }
func (t *EditFileTool) Category() Category { return CategoryFileOp }

func (t *EditFileTool) Description() string {
	return "Replace old_text with new_text in a file. old_text must match exactly and, unless replace_all is set, appear exactly once. Returns a diff."
}

func (t *EditFileTool) Schema() *jsonschema.Schema {
	return objectSchema([]string{"path", "old_text", "new_text"}, map[string]*jsonschema.Schema{
		"path":        stringProp("File to edit"),
		"old_text":    stringProp("Exact text to replace, including indentation"),
		"new_text":    stringProp("Replacement text"),
		"replace_all": boolProp("Replace every occurrence instead of requiring a unique match"),
	})
}

func (t *EditFileTool) Run(ctx context.Context, st *State, args json.RawMessage) (string, error) {
	var a EditFileArgs
	if err := decodeArgs(args, &a); err != nil {
		return "", err
	}
	if a.Path == "" {
		return "", NewToolError(ErrInvalidParams, "path is required")
	}
	if a.OldText == "" {
		return "", NewToolError(ErrInvalidParams, "old_text must not be empty")
	}
	if a.OldText == a.NewText {
		return "", NewToolError(ErrInvalidParams, "old_text and new_text are identical")
	}

	path := st.Resolve(a.Path)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", NewToolError(ErrFileNotFound, a.Path)
		}
		return "", NewToolErrorf(ErrExecutionFailed, "stat error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", NewToolErrorf(ErrExecutionFailed, "read error: %v", err)
	}
	content := string(data)

	count := strings.Count(content, a.OldText)
	switch {
	case count == 0:
		return "", NewToolErrorf(ErrExecutionFailed, "old_text not found in %s", a.Path)
	case count > 1 && !a.ReplaceAll:
		return "", NewToolErrorf(ErrExecutionFailed, "old_text appears %d times in %s; add context or set replace_all", count, a.Path)
	}

	replaced := 1
	if a.ReplaceAll {
		replaced = count
	}
	updated := strings.Replace(content, a.OldText, a.NewText, replaced)
	if err := atomicWrite(path, updated, info.Mode()); err != nil {
		return "", err
	}

	rel := st.Rel(path)
	summary := fmt.Sprintf("Edited %s: replaced %d occurrence(s).", rel, replaced)
	if d := unifiedDiff(rel, content, updated); d != "" {
		summary += "\n\n" + d
	}
	return summary, nil
}
