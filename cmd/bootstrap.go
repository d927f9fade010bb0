package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/samsaffron/term-agent/internal/agent"
	"github.com/samsaffron/term-agent/internal/config"
	"github.com/samsaffron/term-agent/internal/llm"
	"github.com/samsaffron/term-agent/internal/metrics"
	"github.com/samsaffron/term-agent/internal/session"
	"github.com/samsaffron/term-agent/internal/signal"
	"github.com/samsaffron/term-agent/internal/tools"
	"github.com/samsaffron/term-agent/internal/ui"
	"github.com/spf13/cobra"
)

func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if configFile != "" {
		cfg, err = config.LoadFile(configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// applyAgentFlags layers command line overrides over the config file.
func applyAgentFlags(cfg *config.Config, f *AgentFlags) error {
	cfg.ApplyOverrides(f.Model, f.WireFormat)
	if f.SystemMessage != "" {
		cfg.Agent.SystemPrompt = f.SystemMessage
	}
	if f.MaxRounds > 0 {
		cfg.Agent.MaxToolRounds = f.MaxRounds
	}
	if f.Yolo {
		cfg.Tools.Yolo = true
	}
	if f.Search {
		cfg.Provider.LiveSearch = true
	}
	cfg.Tools.ShellAllow = append(cfg.Tools.ShellAllow, f.ShellAllow...)
	return cfg.Validate()
}

// runtime is everything one command invocation needs to run turns.
type runtime struct {
	cfg          *config.Config
	orchestrator *agent.Orchestrator
	registry     *tools.Registry
	approver     *tools.Approver
	metrics      *metrics.Metrics
	store        session.Store
	session      *session.Session
	debugLogger  *llm.DebugLogger

	closers []func()
}

// newRuntime wires provider, tools, orchestrator, metrics and session
// storage. resumeID selects a stored session ("last" for the current one);
// empty starts a new session.
func newRuntime(cmd *cobra.Command, f *AgentFlags, resumeID string) (*runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := applyAgentFlags(cfg, f); err != nil {
		return nil, err
	}

	rt := &runtime{cfg: cfg}
	logCloser, err := setupLogging(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, func() { logCloser.Close() })

	if err := rt.init(cmd, resumeID); err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

func (rt *runtime) init(cmd *cobra.Command, resumeID string) error {
	cfg := rt.cfg
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	wire, err := llm.ParseWireFormat(cfg.Provider.WireFormat)
	if err != nil {
		return err
	}
	httpProvider, err := llm.NewHTTPProvider(llm.ProviderConfig{
		Name:       cfg.Provider.Name,
		BaseURL:    cfg.Provider.BaseURL,
		APIKey:     cfg.Provider.APIKey,
		WireFormat: wire,
		Headers:    cfg.Provider.Headers,
		Timeout:    cfg.Provider.Timeout,
	})
	if err != nil {
		return err
	}
	provider := llm.WrapWithRetry(httpProvider, llm.RetryConfig{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseBackoff: cfg.Retry.BaseBackoff,
		MaxBackoff:  cfg.Retry.MaxBackoff,
	})

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}
	state, err := tools.NewState(cwd)
	if err != nil {
		return err
	}
	rt.registry, err = tools.NewRegistry(state, tools.Options{
		ShellTimeout: cfg.Tools.ShellTimeout,
		Shell:        cfg.Tools.Shell,
	})
	if err != nil {
		return err
	}
	policy, err := tools.NewShellPolicy(cfg.Tools.ShellAllow)
	if err != nil {
		return fmt.Errorf("tools.shell_allow: %w", err)
	}
	if patterns := policy.Patterns(); len(patterns) > 0 {
		slog.Debug("shell allow list", "patterns", patterns)
	}
	rt.approver = tools.NewApprover(tools.NewSessionApprovals(), policy, cfg.Tools.Yolo)

	rt.orchestrator = agent.New(provider, rt.registry, rt.approver, agent.Config{
		Model:         cfg.Provider.Model,
		SystemPrompt:  cfg.Agent.SystemPrompt,
		MaxToolRounds: cfg.Agent.MaxToolRounds,
		LiveSearch:    cfg.Provider.LiveSearch,
	})

	rt.metrics = metrics.New()
	rt.orchestrator.SetRecorder(rt.metrics)
	if metricsAddr != "" {
		rt.serveMetrics(metricsAddr)
	}

	if err := rt.openSession(ctx, cwd, resumeID); err != nil {
		return err
	}
	rt.orchestrator.SetTurnCompletedCallback(rt.persistTurn)

	if debugLogDir != "" {
		logger, err := llm.NewDebugLogger(debugLogDir, rt.session.ID)
		if err != nil {
			return fmt.Errorf("open debug log: %w", err)
		}
		logger.LogSessionStart(cmd.CommandPath(), os.Args[1:], cwd)
		rt.debugLogger = logger
		rt.orchestrator.SetDebugLogger(logger)
		rt.closers = append(rt.closers, func() { logger.Close() })
	}
	return nil
}

func (rt *runtime) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", rt.metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Warn("metrics server stopped", "addr", addr, "error", err)
		}
	}()
	slog.Debug("serving metrics", "addr", addr)
	rt.closers = append(rt.closers, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})
}

// openSession opens the store and either resumes a session into the
// orchestrator or creates a new one. Storage failures degrade to a no-op
// store.
func (rt *runtime) openSession(ctx context.Context, cwd, resumeID string) error {
	store, err := session.NewStore(session.Config{
		Enabled: rt.cfg.Session.Enabled,
		Path:    rt.cfg.SessionDBPath(),
	})
	if err != nil {
		if resumeID != "" {
			return fmt.Errorf("open session store: %w", err)
		}
		slog.Warn("session storage unavailable", "error", err)
		store = &session.NoopStore{}
	}
	rt.store = session.NewLoggingStore(store, nil)
	rt.closers = append(rt.closers, func() { store.Close() })

	if resumeID != "" {
		return rt.resume(ctx, resumeID)
	}

	rt.startSession(ctx, cwd)
	return nil
}

// startSession records a new, empty session and makes it current.
func (rt *runtime) startSession(ctx context.Context, cwd string) {
	rt.session = &session.Session{
		Provider:   rt.cfg.Provider.Name,
		Model:      rt.cfg.Provider.Model,
		WireFormat: rt.cfg.Provider.WireFormat,
		CWD:        cwd,
	}
	if err := rt.store.Create(ctx, rt.session); err != nil {
		// Keep going without persistence; LoggingStore already warned.
		rt.store = session.NewLoggingStore(&session.NoopStore{}, nil)
		return
	}
	rt.store.SetCurrent(ctx, rt.session.ID)
}

func (rt *runtime) resume(ctx context.Context, id string) error {
	var sess *session.Session
	var err error
	if id == "last" {
		sess, err = rt.store.GetCurrent(ctx)
	} else {
		sess, err = rt.store.Get(ctx, id)
	}
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if sess == nil {
		return fmt.Errorf("session not found: %s", id)
	}

	history, err := session.LoadHistory(ctx, rt.store, sess.ID)
	if err != nil {
		return fmt.Errorf("load session messages: %w", err)
	}
	if err := rt.orchestrator.LoadHistory(history); err != nil {
		return err
	}
	rt.session = sess
	rt.store.SetCurrent(ctx, sess.ID)
	slog.Debug("resumed session", "id", sess.ID, "messages", len(history))
	return nil
}

// persistTurn stores the messages a turn appended and updates the session
// counters.
func (rt *runtime) persistTurn(ctx context.Context, msgs []llm.Message) error {
	if err := rt.store.AppendMessages(ctx, rt.session.ID, msgs); err != nil {
		return err
	}
	var rounds, toolCalls int
	for _, m := range msgs {
		switch m.Role {
		case llm.RoleAssistant:
			rounds++
		case llm.RoleTool:
			toolCalls++
		case llm.RoleUser:
			if rt.session.Summary == "" {
				rt.session.Summary = session.TruncateSummary(m.Content)
				if err := rt.store.Update(ctx, rt.session); err != nil {
					return err
				}
			}
		}
	}
	return rt.store.UpdateMetrics(ctx, rt.session.ID, rounds, toolCalls)
}

// runTurn runs one turn, rendering its events with printer until Done.
// SIGINT cancels the turn instead of killing the process.
func (rt *runtime) runTurn(ctx context.Context, text string, attachments []llm.Attachment, printer *ui.Printer, decisions chan agent.Decision) (string, error) {
	rt.store.IncrementUserTurns(ctx, rt.session.ID)

	cancel := agent.NewCancelFlag()
	stop := signal.CancelOnInterrupt(cancel)
	defer stop()

	events := agent.NewEventChannel()
	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		reply, err := rt.orchestrator.ProcessTurn(ctx, text, attachments, cancel, decisions, events)
		events.Close()
		done <- result{reply, err}
	}()

	printer.Run(events.Events())
	events.Detach()
	res := <-done
	drainDecisions(decisions)

	rt.store.UpdateStatus(ctx, rt.session.ID, statusFor(res.err))
	return res.text, res.err
}

func statusFor(err error) session.SessionStatus {
	switch {
	case err == nil:
		return session.StatusComplete
	case errors.Is(err, agent.ErrCancelled):
		return session.StatusInterrupted
	default:
		return session.StatusError
	}
}

// drainDecisions drops answers the turn never consumed.
func drainDecisions(decisions chan agent.Decision) {
	for {
		select {
		case <-decisions:
		default:
			return
		}
	}
}

// newPrinter builds a printer on stdout with a prompter suited to stdin.
func newPrinter(decisions chan agent.Decision) *ui.Printer {
	p := ui.NewPrinter(os.Stdout, ui.NewStyles(os.Stdout), ui.NewPrompter(os.Stdin, os.Stderr), decisions)
	p.Width = ui.TerminalWidth()
	return p
}

// Close releases resources in reverse order and prints stats if asked.
func (rt *runtime) Close() {
	if showStats && rt.metrics != nil {
		if summary, err := rt.metrics.Summary(); err == nil && summary != "" {
			fmt.Fprintln(os.Stderr, ui.DefaultStyles().Muted.Render(summary))
		}
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}
