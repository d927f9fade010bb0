package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/samsaffron/term-agent/internal/session"
	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage chat sessions",
	Long: `List, search, show and delete stored chat sessions.

Examples:
  term-agent sessions                       # List recent sessions
  term-agent sessions list --status error
  term-agent sessions search "websocket"
  term-agent sessions show <id>
  term-agent sessions delete <id>`,
	Args: cobra.NoArgs,
	RunE: runSessionsList, // Default to list
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions",
	Args:  cobra.NoArgs,
	RunE:  runSessionsList,
}

var sessionsSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search sessions",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSessionsSearch,
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show session details",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsShow,
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsDelete,
}

// Flags
var (
	sessionsLimit  int
	sessionsJSON   bool
	sessionsStatus string
	sessionsModel  string
)

func init() {
	for _, c := range []*cobra.Command{sessionsCmd, sessionsListCmd} {
		c.Flags().IntVar(&sessionsLimit, "limit", 20, "Maximum number of sessions to list")
		c.Flags().StringVar(&sessionsStatus, "status", "", "Filter by status (active, complete, error, interrupted)")
		c.Flags().StringVar(&sessionsModel, "model", "", "Filter by model")
	}
	sessionsShowCmd.Flags().BoolVar(&sessionsJSON, "json", false, "Output as JSON")

	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsSearchCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)

	rootCmd.AddCommand(sessionsCmd)
}

func getSessionStore() (session.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if !cfg.Session.Enabled {
		return nil, fmt.Errorf("session storage is disabled in config")
	}
	return session.NewStore(session.Config{
		Enabled: true,
		Path:    cfg.SessionDBPath(),
	})
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	if sessionsStatus != "" {
		validStatuses := []string{"active", "complete", "error", "interrupted"}
		if !slices.Contains(validStatuses, sessionsStatus) {
			return fmt.Errorf("invalid status %q: must be one of %v", sessionsStatus, validStatuses)
		}
	}

	store, err := getSessionStore()
	if err != nil {
		return err
	}
	defer store.Close()

	summaries, err := store.List(cmd.Context(), session.ListOptions{
		Model:  sessionsModel,
		Status: session.SessionStatus(sessionsStatus),
		Limit:  sessionsLimit,
	})
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}
	printSessionList(cmd.OutOrStdout(), summaries, time.Now())
	return nil
}

func printSessionList(w io.Writer, summaries []session.SessionSummary, now time.Time) {
	if len(summaries) == 0 {
		fmt.Fprintln(w, "No sessions found.")
		return
	}

	fmt.Fprintf(w, "%-36s  %-30s  %4s  %5s  %-11s  %s\n", "ID", "SUMMARY", "MSGS", "TOOLS", "STATUS", "AGE")
	fmt.Fprintln(w, strings.Repeat("-", 104))
	for _, s := range summaries {
		summary := runewidth.FillRight(runewidth.Truncate(s.Summary, 30, "..."), 30)
		status := string(s.Status)
		if status == "" {
			status = "active"
		}
		fmt.Fprintf(w, "%-36s  %s  %4d  %5d  %-11s  %s\n",
			s.ID, summary, s.MessageCount, s.ToolCalls, status, formatRelativeTime(s.UpdatedAt, now))
	}
}

func formatRelativeTime(t, now time.Time) string {
	dur := now.Sub(t)
	switch {
	case dur < time.Minute:
		return "just now"
	case dur < time.Hour:
		return fmt.Sprintf("%dm ago", int(dur.Minutes()))
	case dur < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(dur.Hours()))
	case dur < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(dur.Hours()/24))
	default:
		return t.Format("Jan 2")
	}
}

func runSessionsSearch(cmd *cobra.Command, args []string) error {
	store, err := getSessionStore()
	if err != nil {
		return err
	}
	defer store.Close()

	query := strings.Join(args, " ")
	results, err := store.Search(cmd.Context(), query, 20)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(results) == 0 {
		fmt.Fprintf(out, "No results found for '%s'\n", query)
		return nil
	}

	fmt.Fprintf(out, "Found %d matches for '%s':\n\n", len(results), query)
	for _, r := range results {
		name := r.Summary
		if name == "" {
			name = r.SessionID
		}
		fmt.Fprintf(out, "%s (%s, %s)\n", name, r.SessionID, r.Model)
		fmt.Fprintf(out, "  %s\n\n", r.Snippet)
	}
	return nil
}

func runSessionsShow(cmd *cobra.Command, args []string) error {
	store, err := getSessionStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	sess, err := store.Get(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to get session: %w", err)
	}
	if sess == nil {
		return fmt.Errorf("session '%s' not found", args[0])
	}

	messages, err := store.GetMessages(ctx, sess.ID, 0, 0)
	if err != nil {
		return fmt.Errorf("failed to get messages: %w", err)
	}

	out := cmd.OutOrStdout()
	if sessionsJSON {
		data := struct {
			Session  *session.Session  `json:"session"`
			Messages []session.Message `json:"messages"`
		}{
			Session:  sess,
			Messages: messages,
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	}

	fmt.Fprintf(out, "Session: %s\n", sess.ID)
	fmt.Fprintf(out, "Provider: %s (%s)\n", sess.Provider, sess.WireFormat)
	fmt.Fprintf(out, "Model: %s\n", sess.Model)
	fmt.Fprintf(out, "Created: %s\n", sess.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(out, "Updated: %s\n", sess.UpdatedAt.Format(time.RFC3339))
	if sess.CWD != "" {
		fmt.Fprintf(out, "CWD: %s\n", sess.CWD)
	}
	fmt.Fprintf(out, "Status: %s\n", sess.Status)
	fmt.Fprintf(out, "Messages: %d\n", len(messages))
	fmt.Fprintf(out, "User Turns: %d\n", sess.UserTurns)
	fmt.Fprintf(out, "LLM Turns: %d\n", sess.LLMTurns)
	fmt.Fprintf(out, "Tool Calls: %d\n", sess.ToolCalls)
	fmt.Fprintln(out)

	for _, msg := range messages {
		role := string(msg.Role)
		switch msg.Role {
		case "user":
			role = "❯"
		case "assistant":
			role = "●"
		}
		content := runewidth.Truncate(strings.Join(strings.Fields(msg.TextContent), " "), 200, "...")
		fmt.Fprintf(out, "%s %s\n\n", role, content)
	}
	return nil
}

func runSessionsDelete(cmd *cobra.Command, args []string) error {
	store, err := getSessionStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Delete(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted session: %s\n", args[0])
	return nil
}
