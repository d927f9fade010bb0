package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// State is the mutable per-session tool state. It is owned by one
// orchestrator and touched only by sequential tool execution, so it carries
// no lock.
type State struct {
	cwd   string
	todos []TodoItem
}

// TodoItem is one entry of the session todo list.
type TodoItem struct {
	Content string `json:"content"`
	Status  string `json:"status"` // pending, in_progress or completed
}

// NewState creates session state rooted at dir, or the process working
// directory when dir is empty.
func NewState(dir string) (*State, error) {
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("get working directory: %w", err)
		}
		dir = wd
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	return &State{cwd: abs}, nil
}

// Cwd returns the session working directory.
func (s *State) Cwd() string {
	return s.cwd
}

// SetCwd changes the working directory after checking it exists.
func (s *State) SetCwd(dir string) (string, error) {
	target := s.Resolve(dir)
	info, err := os.Stat(target)
	if err != nil {
		if os.IsNotExist(err) {
			return "", NewToolErrorf(ErrFileNotFound, "directory not found: %s", dir)
		}
		return "", NewToolErrorf(ErrExecutionFailed, "stat %s: %v", dir, err)
	}
	if !info.IsDir() {
		return "", NewToolErrorf(ErrInvalidParams, "not a directory: %s", dir)
	}
	s.cwd = target
	return target, nil
}

// Resolve returns path made absolute against the session working
// directory. A leading ~ expands to the home directory.
func (s *State) Resolve(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(s.cwd, path)
}

// Rel returns path relative to the working directory when it lies inside it.
func (s *State) Rel(path string) string {
	rel, err := filepath.Rel(s.cwd, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return rel
}

// Todos returns a copy of the todo list.
func (s *State) Todos() []TodoItem {
	return append([]TodoItem(nil), s.todos...)
}

// SetTodos replaces the todo list.
func (s *State) SetTodos(items []TodoItem) {
	s.todos = append([]TodoItem(nil), items...)
}
