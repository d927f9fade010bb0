package session

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/samsaffron/term-agent/internal/llm"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(Config{
		Enabled: true,
		Path:    filepath.Join(t.TempDir(), "nested", "sessions.db"),
	})
	if err != nil {
		t.Fatalf("failed to create sqlite store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStoreCreateGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess := &Session{Provider: "openai", Model: "gpt-4.1", WireFormat: "chat", CWD: "/work"}
	if err := store.Create(ctx, sess); err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	if sess.ID == "" {
		t.Fatal("expected id to be assigned")
	}

	loaded, err := store.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("failed to load session: %v", err)
	}
	if loaded == nil {
		t.Fatal("expected session to exist")
	}
	if loaded.Model != "gpt-4.1" || loaded.WireFormat != "chat" || loaded.CWD != "/work" {
		t.Errorf("unexpected session: %+v", loaded)
	}
	if loaded.Status != StatusActive {
		t.Errorf("expected status active, got %q", loaded.Status)
	}

	missing, err := store.Get(ctx, "does-not-exist")
	if err != nil || missing != nil {
		t.Errorf("missing session: got %+v, %v", missing, err)
	}
}

func TestSQLiteStoreMessagesRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess := &Session{Provider: "openai", Model: "gpt-4.1", WireFormat: "responses"}
	if err := store.Create(ctx, sess); err != nil {
		t.Fatal(err)
	}

	first := []llm.Message{
		llm.UserText("list files"),
		llm.AssistantMessage("", []llm.ToolCall{{ID: "call_1", Name: "list_dir", Arguments: `{"path":"."}`}}),
		llm.ToolResultMessage("call_1", "a.go\nb.go"),
		llm.AssistantText("Two files."),
	}
	if err := store.AppendMessages(ctx, sess.ID, first); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.AppendMessages(ctx, sess.ID, []llm.Message{llm.UserText("thanks")}); err != nil {
		t.Fatalf("append: %v", err)
	}

	history, err := LoadHistory(ctx, store, sess.ID)
	if err != nil {
		t.Fatalf("load history: %v", err)
	}
	if len(history) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(history))
	}
	if history[1].ToolCalls[0].Arguments != `{"path":"."}` || history[1].ToolCalls[0].ID != "call_1" {
		t.Errorf("tool call did not round-trip: %+v", history[1])
	}
	if history[2].Role != llm.RoleTool || history[2].ToolCallID != "call_1" {
		t.Errorf("tool result did not round-trip: %+v", history[2])
	}
	if history[4].Content != "thanks" {
		t.Errorf("order not preserved: %+v", history[4])
	}

	page, err := store.GetMessages(ctx, sess.ID, 2, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 || page[0].Sequence != 1 || page[1].Sequence != 2 {
		t.Errorf("unexpected page: %+v", page)
	}
}

func TestSQLiteStoreListAndMetrics(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := &Session{Provider: "openai", Model: "gpt-4.1", WireFormat: "chat", Summary: "first"}
	b := &Session{Provider: "openai", Model: "gpt-5", WireFormat: "chat", Summary: "second"}
	for _, s := range []*Session{a, b} {
		if err := store.Create(ctx, s); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.AppendMessages(ctx, a.ID, []llm.Message{llm.UserText("hi"), llm.AssistantText("hello")}); err != nil {
		t.Fatal(err)
	}
	if err := store.IncrementUserTurns(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateMetrics(ctx, a.ID, 2, 3); err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateStatus(ctx, a.ID, StatusInterrupted); err != nil {
		t.Fatal(err)
	}

	summaries, err := store.List(ctx, ListOptions{Limit: 10})
	if err != nil {
		t.Fatalf("failed to list sessions: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(summaries))
	}
	if summaries[0].ID != a.ID {
		t.Errorf("expected most recently updated session first, got %s", summaries[0].Summary)
	}
	if summaries[0].MessageCount != 2 || summaries[0].UserTurns != 1 || summaries[0].ToolCalls != 3 {
		t.Errorf("unexpected summary: %+v", summaries[0])
	}
	if summaries[0].Status != StatusInterrupted {
		t.Errorf("expected interrupted, got %q", summaries[0].Status)
	}

	filtered, err := store.List(ctx, ListOptions{Model: "gpt-5"})
	if err != nil {
		t.Fatal(err)
	}
	if len(filtered) != 1 || filtered[0].ID != b.ID {
		t.Errorf("model filter: %+v", filtered)
	}

	loaded, err := store.Get(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.LLMTurns != 2 {
		t.Errorf("expected llm_turns=2, got %d", loaded.LLMTurns)
	}
}

func TestSQLiteStoreSearch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess := &Session{Provider: "openai", Model: "gpt-4.1", WireFormat: "chat"}
	if err := store.Create(ctx, sess); err != nil {
		t.Fatal(err)
	}
	msgs := []llm.Message{
		llm.UserText("why does the websocket reconnect loop spin"),
		llm.AssistantText("The backoff is never reset."),
	}
	if err := store.AppendMessages(ctx, sess.ID, msgs); err != nil {
		t.Fatal(err)
	}

	results, err := store.Search(ctx, "websocket", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 || results[0].SessionID != sess.ID {
		t.Fatalf("unexpected results: %+v", results)
	}
	if !strings.Contains(results[0].Snippet, "**websocket**") {
		t.Errorf("snippet not highlighted: %q", results[0].Snippet)
	}
}

func TestSQLiteStoreDeleteCascades(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess := &Session{Provider: "openai", Model: "gpt-4.1", WireFormat: "chat"}
	if err := store.Create(ctx, sess); err != nil {
		t.Fatal(err)
	}
	if err := store.AppendMessages(ctx, sess.ID, []llm.Message{llm.UserText("hi")}); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(ctx, sess.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	msgs, err := store.GetMessages(ctx, sess.ID, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected messages to be deleted, got %d", len(msgs))
	}
	if err := store.Delete(ctx, sess.ID); err == nil {
		t.Error("expected error deleting missing session")
	}
}

func TestSQLiteStoreCurrent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	current, err := store.GetCurrent(ctx)
	if err != nil || current != nil {
		t.Fatalf("expected no current session, got %+v, %v", current, err)
	}

	sess := &Session{Provider: "openai", Model: "gpt-4.1", WireFormat: "chat"}
	if err := store.Create(ctx, sess); err != nil {
		t.Fatal(err)
	}
	if err := store.SetCurrent(ctx, sess.ID); err != nil {
		t.Fatal(err)
	}
	current, err = store.GetCurrent(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if current == nil || current.ID != sess.ID {
		t.Errorf("current = %+v", current)
	}
}

func TestSQLiteStoreMaxCountCleanup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(Config{Enabled: true, Path: path})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := store.Create(ctx, &Session{Provider: "openai", Model: "m", WireFormat: "chat"}); err != nil {
			t.Fatal(err)
		}
	}
	store.Close()

	store, err = NewSQLiteStore(Config{Enabled: true, Path: path, MaxCount: 1})
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	summaries, err := store.List(ctx, ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(summaries) != 1 {
		t.Errorf("expected 1 session after cleanup, got %d", len(summaries))
	}
}

func TestNewStoreDisabled(t *testing.T) {
	store, err := NewStore(Config{Enabled: false})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := store.(*NoopStore); !ok {
		t.Fatalf("expected NoopStore, got %T", store)
	}
	sess := &Session{}
	if err := store.Create(context.Background(), sess); err != nil || sess.ID == "" {
		t.Errorf("noop create should assign an id: %+v, %v", sess, err)
	}
}

func TestNewSQLiteStoreRequiresPath(t *testing.T) {
	if _, err := NewSQLiteStore(Config{Enabled: true}); err == nil {
		t.Fatal("expected error for empty path")
	}
}

type failingStore struct {
	NoopStore
}

func (failingStore) AppendMessages(context.Context, string, []llm.Message) error {
	return errors.New("disk full")
}

func TestLoggingStoreWarnsOnce(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	store := NewLoggingStore(&failingStore{}, logger)

	for i := 0; i < 3; i++ {
		if err := store.AppendMessages(context.Background(), "s", nil); err == nil {
			t.Fatal("expected error to pass through")
		}
	}
	if got := strings.Count(buf.String(), "session write failed"); got != 1 {
		t.Errorf("expected one warning, got %d:\n%s", got, buf.String())
	}
	if !strings.Contains(buf.String(), "op=AppendMessages") {
		t.Errorf("missing op attribute: %s", buf.String())
	}
}

func TestTruncateSummary(t *testing.T) {
	if got := TruncateSummary("  fix the bug\nmore detail"); got != "fix the bug" {
		t.Errorf("got %q", got)
	}
	long := strings.Repeat("x", 200)
	if got := TruncateSummary(long); len(got) != 80 || !strings.HasSuffix(got, "...") {
		t.Errorf("got %q (%d)", got, len(got))
	}
}
