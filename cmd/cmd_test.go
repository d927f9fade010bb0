package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/samsaffron/term-agent/internal/agent"
	"github.com/samsaffron/term-agent/internal/config"
	"github.com/samsaffron/term-agent/internal/session"
	"github.com/samsaffron/term-agent/internal/tools"
	"github.com/samsaffron/term-agent/internal/ui"
	"github.com/spf13/cobra"
)

func TestApplyAgentFlags(t *testing.T) {
	cfg := &config.Config{
		Provider: config.ProviderConfig{Model: "gpt-4.1", WireFormat: "chat"},
		Agent:    config.AgentConfig{MaxToolRounds: 20, SystemPrompt: "default"},
		Tools:    config.ToolsConfig{ShellAllow: []string{"git status"}},
		Retry:    config.RetryConfig{MaxAttempts: 3},
	}
	f := &AgentFlags{
		Model:         "gpt-5",
		WireFormat:    "responses",
		SystemMessage: "be brief",
		MaxRounds:     4,
		ShellAllow:    []string{"go test *"},
		Yolo:          true,
		Search:        true,
	}
	if err := applyAgentFlags(cfg, f); err != nil {
		t.Fatal(err)
	}
	if cfg.Provider.Model != "gpt-5" || cfg.Provider.WireFormat != "responses" || !cfg.Provider.LiveSearch {
		t.Errorf("provider = %+v", cfg.Provider)
	}
	if cfg.Agent.MaxToolRounds != 4 || cfg.Agent.SystemPrompt != "be brief" {
		t.Errorf("agent = %+v", cfg.Agent)
	}
	if !cfg.Tools.Yolo || len(cfg.Tools.ShellAllow) != 2 {
		t.Errorf("tools = %+v", cfg.Tools)
	}

	if err := applyAgentFlags(cfg, &AgentFlags{WireFormat: "grpc"}); err == nil {
		t.Error("expected invalid wire format to fail validation")
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want session.SessionStatus
	}{
		{nil, session.StatusComplete},
		{agent.ErrCancelled, session.StatusInterrupted},
		{fmt.Errorf("turn: %w", agent.ErrCancelled), session.StatusInterrupted},
		{agent.ErrRoundLimitExceeded, session.StatusError},
		{errors.New("boom"), session.StatusError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}

func writeStdin(t *testing.T, content string) *os.File {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "stdin")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatal(err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func TestBuildQuestion(t *testing.T) {
	q, err := buildQuestion([]string{"explain", "this"}, nil)
	if err != nil || q != "explain this" {
		t.Fatalf("args only: %q, %v", q, err)
	}

	q, err = buildQuestion([]string{"summarize"}, writeStdin(t, "line one\nline two\n"))
	if err != nil || q != "summarize\n\nline one\nline two" {
		t.Fatalf("args + stdin: %q, %v", q, err)
	}

	q, err = buildQuestion(nil, writeStdin(t, "just stdin"))
	if err != nil || q != "just stdin" {
		t.Fatalf("stdin only: %q, %v", q, err)
	}

	if _, err := buildQuestion(nil, writeStdin(t, "  \n")); err == nil {
		t.Fatal("expected error without a question")
	}
}

func TestLoadAttachments(t *testing.T) {
	dir := t.TempDir()
	png := filepath.Join(dir, "shot.png")
	data := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 16)...)
	if err := os.WriteFile(png, data, 0644); err != nil {
		t.Fatal(err)
	}
	txt := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(txt, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}

	atts, err := loadAttachments([]string{png})
	if err != nil {
		t.Fatal(err)
	}
	if len(atts) != 1 || atts[0].MediaType != "image/png" || atts[0].Name != "shot.png" {
		t.Errorf("attachments = %+v", atts)
	}

	if _, err := loadAttachments([]string{txt}); err == nil || !strings.Contains(err.Error(), "images only") {
		t.Errorf("expected unsupported type error, got %v", err)
	}
	if _, err := loadAttachments([]string{filepath.Join(dir, "missing.png")}); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestPrintSessionList(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	printSessionList(&buf, nil, now)
	if buf.String() != "No sessions found.\n" {
		t.Errorf("empty list = %q", buf.String())
	}

	buf.Reset()
	printSessionList(&buf, []session.SessionSummary{{
		ID:           "0b6a3c2e-1111-2222-3333-444455556666",
		Summary:      "fix the flaky websocket reconnect test in ci",
		MessageCount: 6,
		ToolCalls:    2,
		Status:       session.StatusComplete,
		UpdatedAt:    now.Add(-90 * time.Minute),
	}}, now)
	out := buf.String()
	for _, want := range []string{"0b6a3c2e-1111-2222-3333-444455556666", "fix the flaky websocket rec...", "complete", "1h ago"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestFormatRelativeTime(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		ago  time.Duration
		want string
	}{
		{10 * time.Second, "just now"},
		{5 * time.Minute, "5m ago"},
		{3 * time.Hour, "3h ago"},
		{50 * time.Hour, "2d ago"},
		{30 * 24 * time.Hour, "Feb 8"},
	}
	for _, tt := range tests {
		if got := formatRelativeTime(now.Add(-tt.ago), now); got != tt.want {
			t.Errorf("formatRelativeTime(-%v) = %q, want %q", tt.ago, got, tt.want)
		}
	}
}

// chatServer answers the first request with a list_dir tool call and the
// second with text.
func chatServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		if requests.Add(1) == 1 {
			fmt.Fprint(w, `data: {"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"list_dir","arguments":"{}"}}]}}]}

data: {"choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}

data: [DONE]

`)
			return
		}
		fmt.Fprint(w, `data: {"choices":[{"index":0,"delta":{"role":"assistant","content":"All "}}]}

data: {"choices":[{"index":0,"delta":{"content":"done."},"finish_reason":"stop"}]}

data: [DONE]

`)
	}))
	t.Cleanup(srv.Close)
	return srv, &requests
}

func TestRuntimeRunTurnPersistsSession(t *testing.T) {
	srv, requests := chatServer(t)
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("XDG_DATA_HOME", dir)

	cfgPath := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf(`provider:
  base_url: %s
  api_key: test-key
retry:
  max_attempts: 1
session:
  path: %s
`, srv.URL, filepath.Join(dir, "sessions.db"))
	if err := os.WriteFile(cfgPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	configFile = cfgPath
	t.Cleanup(func() { configFile = "" })

	cmd := &cobra.Command{Use: "test"}
	cmd.SetContext(context.Background())
	rt, err := newRuntime(cmd, &AgentFlags{}, "")
	if err != nil {
		t.Fatalf("newRuntime: %v", err)
	}
	defer rt.Close()

	var buf bytes.Buffer
	decisions := make(chan agent.Decision, 1)
	printer := ui.NewPrinter(&buf, ui.NewStyles(&buf), ui.NewLinePrompter(strings.NewReader(""), io.Discard), decisions)

	reply, err := rt.runTurn(context.Background(), "what is here?", nil, printer, decisions)
	if err != nil {
		t.Fatalf("runTurn: %v", err)
	}
	if reply != "All done." {
		t.Errorf("reply = %q", reply)
	}
	if requests.Load() != 2 {
		t.Errorf("requests = %d", requests.Load())
	}
	if out := buf.String(); !strings.Contains(out, "list_dir") || !strings.Contains(out, "All done.") {
		t.Errorf("output:\n%s", out)
	}

	ctx := context.Background()
	history, err := session.LoadHistory(ctx, rt.store, rt.session.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 4 {
		t.Fatalf("stored %d messages, want 4: %+v", len(history), history)
	}
	stored, err := rt.store.Get(ctx, rt.session.ID)
	if err != nil || stored == nil {
		t.Fatalf("get session: %+v, %v", stored, err)
	}
	if stored.Summary != "what is here?" || stored.Status != session.StatusComplete {
		t.Errorf("session = %+v", stored)
	}
	if stored.UserTurns != 1 || stored.LLMTurns != 2 || stored.ToolCalls != 1 {
		t.Errorf("counters = %+v", stored)
	}

	// Resuming loads the stored conversation back into a fresh orchestrator.
	resumed, err := newRuntime(cmd, &AgentFlags{}, "last")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	defer resumed.Close()
	if resumed.session.ID != rt.session.ID {
		t.Errorf("resumed %s, want %s", resumed.session.ID, rt.session.ID)
	}
	if got := len(resumed.orchestrator.History()); got != 5 {
		t.Errorf("resumed history has %d messages, want system + 4", got)
	}

	// /clear empties the conversation, forgets approvals and starts a new session.
	rt.approver.Remember(tools.CategoryShellOp)
	firstID := rt.session.ID
	if quit, err := handleSlashCommand(cmd, rt, "/clear", ui.NewStyles(&buf)); quit || err != nil {
		t.Fatalf("/clear: quit=%v err=%v", quit, err)
	}
	if rt.approver.Session().IsApproved(tools.CategoryShellOp) {
		t.Error("/clear kept session approvals")
	}
	if rt.session.ID == firstID {
		t.Error("/clear kept the old session")
	}
	if got := len(rt.orchestrator.History()); got != 1 {
		t.Errorf("history after /clear has %d messages, want system only", got)
	}
}
