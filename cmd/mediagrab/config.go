package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"mediagrab/pkg/config"
	"mediagrab/pkg/ui"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage mediagrab configuration files.

Configuration is resolved from, highest priority first:
  - Command line flags
  - Environment variables (MEDIAGRAB_*, also read from .env)
  - Configuration file
  - Default values`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with the default values",
	Long: `Write a configuration file with every option at its default value.

The file goes to --config when given, otherwise to ~/.config/mediagrab/config.yaml.`,
	RunE: runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the resolved configuration",
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration from every source",
	RunE:  runConfigValidate,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print where config init writes",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), initPath())
	},
}

var forceInit bool

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd, configShowCmd, configValidateCmd, configPathCmd)
	configInitCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "overwrite an existing file")
}

func initPath() string {
	if configFile != "" {
		return configFile
	}
	return config.DefaultPath()
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := initPath()
	if _, err := os.Stat(path); err == nil && !forceInit {
		return fmt.Errorf("configuration file already exists: %s (use --force to replace it)", path)
	}
	if err := config.DefaultConfig().Save(path); err != nil {
		return err
	}

	ui.PrintSuccess("Configuration file created: " + path)
	fmt.Fprintln(cmd.OutOrStdout(), "\nNext steps:")
	fmt.Fprintln(cmd.OutOrStdout(), "1. Edit the output directory, delays and filter thresholds")
	fmt.Fprintln(cmd.OutOrStdout(), "2. Run 'mediagrab config validate' to check it")
	fmt.Fprintln(cmd.OutOrStdout(), "3. Start downloading with 'mediagrab scrape <url>'")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}

	ui.PrintHighlight("Current Configuration")
	out := cmd.OutOrStdout()
	fmt.Fprintln(out)
	fmt.Fprint(out, string(data))
	if cfg.HTTP.APIKey != "" {
		fmt.Fprintln(out, "\n# API key: set from the environment")
	}
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	var warnings []string
	if cfg.HTTP.CookiesFile != "" {
		if _, err := os.Stat(cfg.HTTP.CookiesFile); err != nil {
			warnings = append(warnings, fmt.Sprintf("cookies file is not readable: %v", err))
		}
	}
	if cfg.Browser.ExecPath != "" {
		if _, err := os.Stat(cfg.Browser.ExecPath); err != nil {
			warnings = append(warnings, fmt.Sprintf("browser binary not found: %v", err))
		}
	}
	if cfg.RateLimit.RequestDelay == 0 {
		warnings = append(warnings, "request delay is 0; sites may throttle or ban you")
	}
	for _, w := range warnings {
		ui.PrintWarning("Warning", w)
	}

	ui.PrintSuccess("Configuration is valid")
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "\nConfiguration summary:")
	fmt.Fprintf(out, "  Output directory: %s\n", cfg.Output.BaseDirectory)
	fmt.Fprintf(out, "  Overwrite policy: %s\n", cfg.Output.Overwrite)
	fmt.Fprintf(out, "  Concurrent downloads: %d\n", cfg.Acquire.Concurrent)
	fmt.Fprintf(out, "  Request delay: %s\n", cfg.RateLimit.RequestDelay)
	fmt.Fprintf(out, "  Max attempts: %d\n", cfg.Retry.MaxAttempts)
	fmt.Fprintf(out, "  Log level: %s\n", cfg.Logging.Level)
	return nil
}
