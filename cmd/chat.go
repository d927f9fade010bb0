package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/samsaffron/term-agent/internal/agent"
	"github.com/samsaffron/term-agent/internal/ui"
	"github.com/spf13/cobra"
)

var (
	chatFlags  AgentFlags
	chatResume string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Long: `Start an interactive chat session with the model.

Examples:
  term-agent chat
  term-agent chat -s                        # with live search enabled
  term-agent chat --resume last             # continue the last session
  term-agent chat --shell-allow "go test *" # run go test without asking

Ctrl+C cancels the current turn. Ctrl+D exits.

Slash commands:
  /help        - Show help
  /clear       - Start over with an empty conversation and no approvals
  /model       - Show current model
  /cwd         - Show the tools' working directory
  /quit        - Exit chat`,
	Args: cobra.NoArgs,
}

func init() {
	// Assigned here rather than in the literal to break the
	// chatCmd -> runChat -> handleSlashCommand -> chatCmd initialization cycle.
	chatCmd.RunE = runChat
	addAgentFlags(chatCmd, &chatFlags)
	chatCmd.Flags().StringVar(&chatResume, "resume", "", "Resume a stored session by ID, or 'last'")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(cmd, &chatFlags, chatResume)
	if err != nil {
		return err
	}
	defer rt.Close()

	styles := ui.NewStyles(os.Stdout)
	decisions := make(chan agent.Decision, 8)
	printer := newPrinter(decisions)

	fmt.Fprintln(os.Stderr, styles.Muted.Render(fmt.Sprintf("%s via %s (%s). /help for commands.",
		rt.cfg.Provider.Model, rt.cfg.Provider.Name, rt.cfg.Provider.WireFormat)))
	if chatResume != "" {
		fmt.Fprintln(os.Stderr, styles.Muted.Render(fmt.Sprintf("Resumed session %s (%d messages)",
			rt.session.ID, len(rt.orchestrator.History())-1)))
	}

	return chatLoop(cmd, rt, bufio.NewReader(os.Stdin), printer, decisions, styles)
}

func chatLoop(cmd *cobra.Command, rt *runtime, in *bufio.Reader, printer *ui.Printer, decisions chan agent.Decision, styles *ui.Styles) error {
	ctx := cmd.Context()
	for {
		fmt.Fprint(os.Stdout, styles.Command.Render("> "))
		line, err := in.ReadString('\n')
		if err != nil && line == "" {
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(os.Stdout)
				return nil
			}
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			quit, err := handleSlashCommand(cmd, rt, line, styles)
			if err != nil {
				fmt.Fprintln(os.Stderr, styles.Error.Render(err.Error()))
			}
			if quit {
				return nil
			}
			continue
		}

		if _, err := rt.runTurn(ctx, line, nil, printer, decisions); err != nil && !isReportedTurnError(err) {
			fmt.Fprintln(os.Stderr, styles.Error.Render(err.Error()))
		}
	}
}

// isReportedTurnError reports whether the printer already showed err as a
// turn event.
func isReportedTurnError(err error) bool {
	return !errors.Is(err, agent.ErrTurnInProgress)
}

func handleSlashCommand(cmd *cobra.Command, rt *runtime, line string, styles *ui.Styles) (quit bool, err error) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit", "/q":
		return true, nil
	case "/help":
		fmt.Println(chatCmd.Long)
	case "/clear":
		if err := rt.orchestrator.LoadHistory(nil); err != nil {
			return false, err
		}
		rt.registry.State().SetTodos(nil)
		rt.approver.Session().Clear()
		rt.startSession(cmd.Context(), rt.registry.State().Cwd())
		fmt.Println(styles.Muted.Render("Conversation cleared."))
	case "/model":
		fmt.Printf("%s (%s, %s)\n", rt.cfg.Provider.Model, rt.cfg.Provider.Name, rt.cfg.Provider.WireFormat)
	case "/cwd":
		fmt.Println(rt.registry.State().Cwd())
	default:
		return false, fmt.Errorf("unknown command %s (try /help)", fields[0])
	}
	return false, nil
}
