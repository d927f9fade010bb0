package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/jsonschema-go/jsonschema"
)

// GlobTool finds files by doublestar pattern.
type GlobTool struct {
	limits OutputLimits
}

// GlobArgs are the arguments for glob.
type GlobArgs struct {
	Pattern string `json:"pattern"`
	Path    string `json:"path,omitempty"`
}

// FileEntry is one matched path.
type FileEntry struct {
	Path    string
	IsDir   bool
	Size    int64
	ModTime time.Time
}

func (t *GlobTool) Name() string       { return GlobToolName }
func (t *GlobTool) Category() Category { return CategoryNone }

func (t *GlobTool) Description() string {
	return "Find files matching a glob pattern such as **/*.go. Hidden files and directories are skipped. Results are sorted newest first."
}

func (t *GlobTool) Schema() *jsonschema.Schema {
	return objectSchema([]string{"pattern"}, map[string]*jsonschema.Schema{
		"pattern": stringProp("Glob pattern relative to path, ** matches any number of directories"),
		"path":    stringProp("Directory to search (defaults to the working directory)"),
	})
}

func (t *GlobTool) Run(ctx context.Context, st *State, args json.RawMessage) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	var a GlobArgs
	if err := decodeArgs(args, &a); err != nil {
		return "", err
	}
	if a.Pattern == "" {
		return "", NewToolError(ErrInvalidParams, "pattern is required")
	}
	if !doublestar.ValidatePattern(a.Pattern) {
		return "", NewToolErrorf(ErrInvalidParams, "invalid pattern %q", a.Pattern)
	}

	base := st.Cwd()
	if a.Path != "" {
		base = st.Resolve(a.Path)
	}

	var entries []FileEntry
	truncated := false
	err := walkVisible(ctx, base, func(path, rel string, d fs.DirEntry) error {
		matched, err := doublestar.Match(a.Pattern, filepath.ToSlash(rel))
		if err != nil || !matched {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		entries = append(entries, FileEntry{Path: path, IsDir: d.IsDir(), Size: info.Size(), ModTime: info.ModTime()})
		if len(entries) >= t.limits.MaxResults {
			truncated = true
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", NewToolErrorf(ErrExecutionFailed, "walk error: %v", err)
	}

	if len(entries) == 0 {
		return "No files matched the pattern.", nil
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ModTime.After(entries[j].ModTime)
	})
	return formatGlobResults(st, entries, truncated), nil
}

// walkVisible walks root skipping hidden entries, calling fn with absolute
// and root-relative paths.
func walkVisible(ctx context.Context, root string, fn func(path, rel string, d fs.DirEntry) error) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if path == root {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		return fn(path, rel, d)
	})
}

func formatGlobResults(st *State, entries []FileEntry, truncated bool) string {
	var sb strings.Builder
	for _, e := range entries {
		if e.IsDir {
			fmt.Fprintf(&sb, "%s/\n", st.Rel(e.Path))
			continue
		}
		fmt.Fprintf(&sb, "%s (%s)\n", st.Rel(e.Path), formatSize(e.Size))
	}
	if truncated {
		sb.WriteString("\n[Results truncated. Use a more specific pattern.]")
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

// formatSize formats bytes in human-readable form.
func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// ListDirTool lists one directory.
type ListDirTool struct {
	limits OutputLimits
}

// ListDirArgs are the arguments for list_dir.
type ListDirArgs struct {
	Path string `json:"path,omitempty"`
}

func (t *ListDirTool) Name() string       { return ListDirToolName }
func (t *ListDirTool) Category() Category { return CategoryNone }

func (t *ListDirTool) Description() string {
	return "List the entries of a directory (defaults to the working directory). Directories end with /."
}

func (t *ListDirTool) Schema() *jsonschema.Schema {
	return objectSchema(nil, map[string]*jsonschema.Schema{
		"path": stringProp("Directory to list"),
	})
}

func (t *ListDirTool) Run(ctx context.Context, st *State, args json.RawMessage) (string, error) {
	var a ListDirArgs
	if err := decodeArgs(args, &a); err != nil {
		return "", err
	}
	dir := st.Cwd()
	if a.Path != "" {
		dir = st.Resolve(a.Path)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", NewToolErrorf(ErrFileNotFound, "directory not found: %s", a.Path)
		}
		return "", NewToolErrorf(ErrExecutionFailed, "read dir: %v", err)
	}
	if len(entries) == 0 {
		return "(empty directory)", nil
	}

	var sb strings.Builder
	for i, e := range entries {
		if i == t.limits.MaxResults {
			fmt.Fprintf(&sb, "[%d more entries not shown]\n", len(entries)-i)
			break
		}
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		sb.WriteString(name)
		sb.WriteString("\n")
	}
	return strings.TrimSuffix(sb.String(), "\n"), nil
}
