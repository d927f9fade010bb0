package cmd

import (
	"github.com/spf13/cobra"
)

// AgentFlags holds per-command overrides of the config file.
// Each command creates its own instance.
type AgentFlags struct {
	Model         string
	WireFormat    string
	SystemMessage string
	MaxRounds     int
	ShellAllow    []string
	Yolo          bool
	Search        bool
	Files         []string
}

// AddModelFlags adds --model/-m and --wire-format.
func AddModelFlags(cmd *cobra.Command, f *AgentFlags) {
	cmd.Flags().StringVarP(&f.Model, "model", "m", "", "Override the model")
	cmd.Flags().StringVar(&f.WireFormat, "wire-format", "", "Override the wire format (chat or responses)")
	if err := cmd.RegisterFlagCompletionFunc("wire-format", cobra.FixedCompletions([]string{"chat", "responses"}, cobra.ShellCompDirectiveNoFileComp)); err != nil {
		panic("failed to register wire-format completion: " + err.Error())
	}
}

// AddSystemMessageFlag adds the --system-message flag
func AddSystemMessageFlag(cmd *cobra.Command, f *AgentFlags) {
	cmd.Flags().StringVar(&f.SystemMessage, "system-message", "", "System message for the model (overrides config)")
}

// AddMaxRoundsFlag adds the --max-rounds flag. Zero keeps the config value.
func AddMaxRoundsFlag(cmd *cobra.Command, f *AgentFlags) {
	cmd.Flags().IntVar(&f.MaxRounds, "max-rounds", 0, "Max tool rounds per turn")
}

// AddToolFlags adds --shell-allow and --yolo.
func AddToolFlags(cmd *cobra.Command, f *AgentFlags) {
	cmd.Flags().StringArrayVar(&f.ShellAllow, "shell-allow", nil, "Shell command patterns to allow without asking (repeatable, glob syntax)")
	cmd.Flags().BoolVar(&f.Yolo, "yolo", false, "Auto-approve all tool operations (for CI/container use, bypasses all prompts)")
}

// AddSearchFlag adds the --search/-s flag
func AddSearchFlag(cmd *cobra.Command, f *AgentFlags) {
	cmd.Flags().BoolVarP(&f.Search, "search", "s", false, "Enable live search for questions about current information")
}

// AddFileFlag adds the --file/-f flag
func AddFileFlag(cmd *cobra.Command, f *AgentFlags) {
	cmd.Flags().StringArrayVarP(&f.Files, "file", "f", nil, "Attach an image file (repeatable)")
}

func addAgentFlags(cmd *cobra.Command, f *AgentFlags) {
	AddModelFlags(cmd, f)
	AddSystemMessageFlag(cmd, f)
	AddMaxRoundsFlag(cmd, f)
	AddToolFlags(cmd, f)
	AddSearchFlag(cmd, f)
}
