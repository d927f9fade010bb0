package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "dev"

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default $XDG_CONFIG_HOME/term-agent/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Log debug information to stderr")
	rootCmd.PersistentFlags().BoolVar(&showStats, "stats", false, "Show turn statistics (rounds, tool calls, outcomes) on exit")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9464)")
	rootCmd.PersistentFlags().StringVar(&debugLogDir, "debug-log", "", "Write JSONL wire logs to this directory")
}

var rootCmd = &cobra.Command{
	Use:   "term-agent",
	Short: "A coding agent for your terminal",
	Long: `term-agent streams answers from an OpenAI-compatible model and lets it
read, edit and run things in your working directory, asking before it
changes files or runs commands.

Examples:
  term-agent chat                       # interactive session
  term-agent chat --resume last         # continue the last session
  term-agent ask "why does make fail?"  # one-shot question
  term-agent ask --markdown "explain main.go"

  term-agent config                     # view configuration
  term-agent sessions                   # list recent sessions`,
	Version:           Version,
	SilenceUsage:      true,
	CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
}

var (
	configFile  string
	debug       bool
	showStats   bool
	metricsAddr string
	debugLogDir string
)

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setupLogging installs the default slog logger. --debug wins over log.level.
// The returned closer releases the log file, if any.
func setupLogging(level, file string) (io.Closer, error) {
	var lvl slog.Level
	if debug {
		lvl = slog.LevelDebug
	} else if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return nil, fmt.Errorf("invalid log.level %q: %w", level, err)
	}

	var out io.Writer = os.Stderr
	var closer io.Closer = nopCloser{}
	if file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		out = f
		closer = f
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: lvl})))
	return closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
