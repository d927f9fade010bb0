package cmd

import (
	"fmt"

	"github.com/samsaffron/term-agent/internal/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage term-agent configuration",
	Long: `View or create your term-agent configuration.

Examples:
  term-agent config                     # show effective config (secrets redacted)
  term-agent config path                # print config file path
  term-agent config init                # write a starter config`,
	Args: cobra.NoArgs,
	RunE: configShow, // Default to show
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print configuration file path",
	Args:  cobra.NoArgs,
	RunE:  configPath,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter configuration file",
	Args:  cobra.NoArgs,
	RunE:  configInit,
}

func init() {
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}

func configShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out, err := cfg.Dump()
	if err != nil {
		return err
	}
	if configFile == "" && !config.Exists() {
		fmt.Fprintln(cmd.ErrOrStderr(), "# no config file found, showing defaults (run 'term-agent config init')")
	}
	fmt.Fprint(cmd.OutOrStdout(), out)
	return nil
}

func configPath(cmd *cobra.Command, args []string) error {
	if configFile != "" {
		fmt.Fprintln(cmd.OutOrStdout(), configFile)
		return nil
	}
	path, err := config.GetConfigPath()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}

func configInit(cmd *cobra.Command, args []string) error {
	path, err := config.WriteDefault()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}
