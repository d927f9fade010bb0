package tools

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/gobwas/glob"
)

// SessionApprovals is the set of confirmation categories the user approved
// for the rest of the process session.
type SessionApprovals struct {
	mu       sync.RWMutex
	approved map[Category]bool
}

// NewSessionApprovals creates an empty approval set.
func NewSessionApprovals() *SessionApprovals {
	return &SessionApprovals{approved: make(map[Category]bool)}
}

// Approve remembers cat for the session.
func (s *SessionApprovals) Approve(cat Category) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.approved[cat] = true
}

// IsApproved reports whether cat was approved for the session.
func (s *SessionApprovals) IsApproved(cat Category) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.approved[cat]
}

// Clear forgets all session approvals.
func (s *SessionApprovals) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.approved = make(map[Category]bool)
}

// ShellPolicy auto-approves shell commands matching configured glob patterns
// such as "git status" or "go test *".
type ShellPolicy struct {
	patterns []string
	globs    []glob.Glob
}

// NewShellPolicy compiles the allow patterns. An invalid pattern is an error.
func NewShellPolicy(patterns []string) (*ShellPolicy, error) {
	p := &ShellPolicy{}
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid shell pattern %q: %w", pattern, err)
		}
		p.patterns = append(p.patterns, pattern)
		p.globs = append(p.globs, g)
	}
	return p, nil
}

// Patterns returns the compiled patterns' source text.
func (p *ShellPolicy) Patterns() []string {
	if p == nil {
		return nil
	}
	return append([]string(nil), p.patterns...)
}

// Matches reports whether command matches any allow pattern. Commands
// chaining several statements never match.
func (p *ShellPolicy) Matches(command string) bool {
	if p == nil {
		return false
	}
	command = strings.TrimSpace(command)
	if command == "" || containsShellChaining(command) {
		return false
	}
	for _, g := range p.globs {
		if g.Match(command) {
			return true
		}
	}
	return false
}

func containsShellChaining(command string) bool {
	for _, op := range []string{"&&", "||", ";", "|", "`", "$(", "\n", ">", "<"} {
		if strings.Contains(command, op) {
			return true
		}
	}
	return false
}

// Approver decides whether a tool call may run without asking the user.
type Approver struct {
	session *SessionApprovals
	shell   *ShellPolicy
	yolo    bool
}

// NewApprover combines session approvals, the shell allow list and the
// approve-everything switch.
func NewApprover(session *SessionApprovals, shell *ShellPolicy, yolo bool) *Approver {
	if session == nil {
		session = NewSessionApprovals()
	}
	return &Approver{session: session, shell: shell, yolo: yolo}
}

// Session returns the session approval set.
func (a *Approver) Session() *SessionApprovals {
	return a.session
}

// Remember approves cat for the rest of the session.
func (a *Approver) Remember(cat Category) {
	a.session.Approve(cat)
}

// PreApproved reports whether a call in category may skip confirmation.
func (a *Approver) PreApproved(name string, category Category, args json.RawMessage) bool {
	if !category.RequiresConfirmation() {
		return true
	}
	if a.yolo || a.session.IsApproved(category) {
		return true
	}
	if name == ShellToolName && a.shell.Matches(CommandPreview(args)) {
		slog.Debug("shell command allowed by pattern", "command", CommandPreview(args))
		return true
	}
	return false
}
