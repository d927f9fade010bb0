package cmd

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/samsaffron/term-agent/internal/agent"
	"github.com/samsaffron/term-agent/internal/llm"
	"github.com/samsaffron/term-agent/internal/ui"
	"github.com/spf13/cobra"
)

var (
	askFlags    AgentFlags
	askMarkdown bool
	askResume   string
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a single question",
	Long: `Ask the model one question and exit once the answer is complete.
Tools that change files or run commands still ask for confirmation.

Examples:
  term-agent ask "what does internal/llm/merge.go do?"
  term-agent ask --markdown "summarize the README"
  git diff | term-agent ask "write a commit message for this"
  term-agent ask -f screenshot.png "what is wrong in this UI?"
  term-agent ask --resume last "and the tests?"`,
	Args: cobra.ArbitraryArgs,
	RunE: runAsk,
}

func init() {
	addAgentFlags(askCmd, &askFlags)
	AddFileFlag(askCmd, &askFlags)
	askCmd.Flags().BoolVar(&askMarkdown, "markdown", false, "Render the answer as markdown once complete")
	askCmd.Flags().StringVarP(&askResume, "resume", "r", "", "Continue a stored session by ID, or 'last'")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	question, err := buildQuestion(args, os.Stdin)
	if err != nil {
		return err
	}
	attachments, err := loadAttachments(askFlags.Files)
	if err != nil {
		return err
	}

	rt, err := newRuntime(cmd, &askFlags, askResume)
	if err != nil {
		return err
	}
	defer rt.Close()

	decisions := make(chan agent.Decision, 8)
	printer := newPrinter(decisions)
	printer.Markdown = askMarkdown
	printer.ShowTokens = showStats

	if _, err := rt.runTurn(cmd.Context(), question, attachments, printer, decisions); err != nil {
		// Already rendered as an event; only the exit status is left.
		cmd.SilenceErrors = true
		return err
	}
	return nil
}

// buildQuestion joins the arguments and appends piped stdin, if any.
func buildQuestion(args []string, stdin *os.File) (string, error) {
	question := strings.TrimSpace(strings.Join(args, " "))

	var piped string
	if stdin != nil && !ui.IsTerminal(stdin) {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		piped = strings.TrimSpace(string(data))
	}

	switch {
	case question == "" && piped == "":
		return "", errors.New("no question given")
	case piped == "":
		return question, nil
	case question == "":
		return piped, nil
	default:
		return question + "\n\n" + piped, nil
	}
}

// loadAttachments reads image files for the first user message.
func loadAttachments(paths []string) ([]llm.Attachment, error) {
	var attachments []llm.Attachment
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read attachment: %w", err)
		}
		att := llm.Attachment{
			Name:      filepath.Base(path),
			MediaType: http.DetectContentType(data),
			Data:      data,
		}
		if !att.IsImage() {
			return nil, fmt.Errorf("%s: unsupported attachment type %s (images only)", path, att.MediaType)
		}
		attachments = append(attachments, att)
	}
	return attachments, nil
}
