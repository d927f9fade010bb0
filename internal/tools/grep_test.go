package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
}

func runGrep(t *testing.T, st *State, args GrepArgs) (string, error) {
	t.Helper()
	data, err := json.Marshal(args)
	if err != nil {
		t.Fatalf("failed to marshal args: %v", err)
	}
	return (&GrepTool{limits: DefaultOutputLimits()}).Run(context.Background(), st, data)
}

func TestGrepTool_FindsMatchWithContext(t *testing.T) {
	dir := t.TempDir()
	token := "unique_grep_token_1234567890"
	writeTestFile(t, filepath.Join(dir, "sample.txt"), "one\nbefore "+token+" after\nthree\n")

	st, _ := NewState(dir)
	output, err := runGrep(t, st, GrepArgs{Pattern: token})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !strings.HasPrefix(output, "sample.txt:2\n") {
		t.Fatalf("expected relative path and line number, got: %s", output)
	}
	if !strings.Contains(output, "> 2: before "+token) || !strings.Contains(output, "  1: one") {
		t.Errorf("expected marked match with context, got: %s", output)
	}
}

func TestGrepTool_IncludeFilter(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, filepath.Join(dir, "pkg", "a.go"), "needle\n")
	writeTestFile(t, filepath.Join(dir, "pkg", "b.md"), "needle\n")
	writeTestFile(t, filepath.Join(dir, ".git", "c.go"), "needle\n")

	st, _ := NewState(dir)
	tests := []struct {
		include string
		want    []string
		notWant []string
	}{
		{include: "*.go", want: []string{"a.go"}, notWant: []string{"b.md", "c.go"}},
		{include: "pkg/**/*.md", want: []string{"b.md"}, notWant: []string{"a.go"}},
		{include: "", want: []string{"a.go", "b.md"}, notWant: []string{"c.go"}},
	}
	for _, tt := range tests {
		t.Run(tt.include, func(t *testing.T) {
			output, err := runGrep(t, st, GrepArgs{Pattern: "needle", Include: tt.include})
			if err != nil {
				t.Fatalf("Run returned error: %v", err)
			}
			for _, w := range tt.want {
				if !strings.Contains(output, w) {
					t.Errorf("expected %s in output: %s", w, output)
				}
			}
			for _, w := range tt.notWant {
				if strings.Contains(output, w) {
					t.Errorf("did not expect %s in output: %s", w, output)
				}
			}
		})
	}
}

func TestGrepTool_Errors(t *testing.T) {
	st, _ := NewState(t.TempDir())

	if _, err := runGrep(t, st, GrepArgs{Pattern: "("}); err == nil || !strings.Contains(err.Error(), "invalid regex") {
		t.Errorf("expected invalid regex error, got %v", err)
	}
	if _, err := runGrep(t, st, GrepArgs{Pattern: "x", Path: "missing"}); err == nil || err.(*ToolError).Type != ErrFileNotFound {
		t.Errorf("expected not found error, got %v", err)
	}
	output, err := runGrep(t, st, GrepArgs{Pattern: "absent"})
	if err != nil || output != "No matches found." {
		t.Errorf("expected no matches, got %q, %v", output, err)
	}
}

func TestBuildContext(t *testing.T) {
	lines := []string{"a", "b", "c", "d", "e"}
	got := buildContext(lines, 0, 1)
	want := "> 1: a\n  2: b"
	if got != want {
		t.Errorf("buildContext = %q, want %q", got, want)
	}
}
