package tools

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/jsonschema-go/jsonschema"
)

// GrepTool searches file contents with a regular expression.
type GrepTool struct {
	limits OutputLimits
}

// GrepArgs are the arguments for grep.
type GrepArgs struct {
	Pattern      string `json:"pattern"`
	Path         string `json:"path,omitempty"`
	Include      string `json:"include,omitempty"`
	ContextLines int    `json:"context_lines,omitempty"`
}

// GrepMatch is one matching line.
type GrepMatch struct {
	Path       string
	LineNumber int
	Context    string
}

func (t *GrepTool) Name() string       { return GrepToolName }
func (t *GrepTool) Category() Category { return CategoryNone }

func (t *GrepTool) Description() string {
	return "Search file contents with a Go regular expression. Restrict files with include (a glob such as **/*.go or *.md). Binary and hidden files are skipped."
}

func (t *GrepTool) Schema() *jsonschema.Schema {
	return objectSchema([]string{"pattern"}, map[string]*jsonschema.Schema{
		"pattern":       stringProp("Regular expression (RE2 syntax)"),
		"path":          stringProp("File or directory to search (defaults to the working directory)"),
		"include":       stringProp("Glob filter on file paths; patterns without / match the file name"),
		"context_lines": integerProp("Lines of context around each match (default 2)"),
	})
}

func (t *GrepTool) Run(ctx context.Context, st *State, args json.RawMessage) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	var a GrepArgs
	if err := decodeArgs(args, &a); err != nil {
		return "", err
	}
	if a.Pattern == "" {
		return "", NewToolError(ErrInvalidParams, "pattern is required")
	}
	re, err := regexp.Compile(a.Pattern)
	if err != nil {
		return "", NewToolErrorf(ErrInvalidParams, "invalid regex pattern: %v", err)
	}
	if a.Include != "" && !doublestar.ValidatePattern(a.Include) {
		return "", NewToolErrorf(ErrInvalidParams, "invalid include pattern %q", a.Include)
	}
	contextLines := 2
	if a.ContextLines > 0 {
		contextLines = min(a.ContextLines, 10)
	}

	searchPath := st.Cwd()
	if a.Path != "" {
		searchPath = st.Resolve(a.Path)
	}
	files, err := collectFiles(ctx, searchPath, a.Include)
	if err != nil {
		if os.IsNotExist(err) {
			return "", NewToolErrorf(ErrFileNotFound, "path not found: %s", a.Path)
		}
		return "", NewToolErrorf(ErrExecutionFailed, "failed to collect files: %v", err)
	}
	sortFilesByMtime(files)

	maxResults := t.limits.MaxResults
	var matches []GrepMatch
	for _, file := range files {
		if ctx.Err() != nil {
			return "", NewToolError(ErrTimeout, "grep timed out; try a more specific pattern or path")
		}
		if len(matches) >= maxResults {
			break
		}
		fileMatches, err := searchFile(file, re, contextLines, maxResults-len(matches))
		if err != nil {
			continue
		}
		for i := range fileMatches {
			fileMatches[i].Path = st.Rel(fileMatches[i].Path)
		}
		matches = append(matches, fileMatches...)
	}

	if len(matches) == 0 {
		return "No matches found.", nil
	}
	return formatGrepResults(matches, len(matches) >= maxResults), nil
}

// collectFiles returns the regular files under searchPath matching include.
func collectFiles(ctx context.Context, searchPath, include string) ([]string, error) {
	info, err := os.Stat(searchPath)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{searchPath}, nil
	}

	matchName := include != "" && !strings.Contains(include, "/")
	var files []string
	err = walkVisible(ctx, searchPath, func(path, rel string, d fs.DirEntry) error {
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if include != "" {
			target := filepath.ToSlash(rel)
			if matchName {
				target = d.Name()
			}
			if ok, err := doublestar.Match(include, target); err != nil || !ok {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	return files, err
}

// sortFilesByMtime sorts files newest first.
func sortFilesByMtime(files []string) {
	mtimes := make(map[string]int64, len(files))
	for _, f := range files {
		if info, err := os.Stat(f); err == nil {
			mtimes[f] = info.ModTime().UnixNano()
		}
	}
	sort.SliceStable(files, func(i, j int) bool {
		return mtimes[files[i]] > mtimes[files[j]]
	})
}

func searchFile(path string, re *regexp.Regexp, contextLines, maxMatches int) ([]GrepMatch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if isBinaryContent(data) {
		return nil, fmt.Errorf("binary file")
	}

	var lines []string
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	var matches []GrepMatch
	for i, line := range lines {
		if !re.MatchString(line) {
			continue
		}
		matches = append(matches, GrepMatch{
			Path:       path,
			LineNumber: i + 1,
			Context:    buildContext(lines, i, contextLines),
		})
		if len(matches) >= maxMatches {
			break
		}
	}
	return matches, nil
}

// buildContext renders the lines around a match, marking the match with >.
func buildContext(lines []string, matchIdx, contextLines int) string {
	start := max(matchIdx-contextLines, 0)
	end := min(matchIdx+contextLines+1, len(lines))

	var sb strings.Builder
	for i := start; i < end; i++ {
		prefix := "  "
		if i == matchIdx {
			prefix = "> "
		}
		fmt.Fprintf(&sb, "%s%d: %s\n", prefix, i+1, lines[i])
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

func formatGrepResults(matches []GrepMatch, truncated bool) string {
	var sb strings.Builder
	for i, m := range matches {
		if i > 0 {
			sb.WriteString("\n---\n")
		}
		fmt.Fprintf(&sb, "%s:%d\n", m.Path, m.LineNumber)
		sb.WriteString(m.Context)
		sb.WriteString("\n")
	}
	if truncated {
		sb.WriteString("\n[Results truncated at limit]")
	}
	return sb.String()
}
