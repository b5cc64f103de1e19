package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"mediagrab/pkg/auth"
	"mediagrab/pkg/ui"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage file-host API keys",
	Long: `Manage the API keys mediagrab sends to file hosts.

Keys are stored in, first available:
  - System keychain
  - Encrypted file with PBKDF2 key derivation
  - Environment variables (MEDIAGRAB_<PLATFORM>_API_KEY, read-only)

Forum logins use a cookies.txt file instead; see 'mediagrab auth guide cookies'.`,
}

var authSetCmd = &cobra.Command{
	Use:   "set <platform>",
	Short: "Store the API key of a platform",
	Example: `  # Prompt for the key without echo
  mediagrab auth set pixeldrain

  # From a pipe
  echo "$KEY" | mediagrab auth set pixeldrain`,
	Args: cobra.ExactArgs(1),
	RunE: runAuthSet,
}

var authShowCmd = &cobra.Command{
	Use:     "show",
	Aliases: []string{"list"},
	Short:   "List stored API keys, masked",
	Args:    cobra.NoArgs,
	RunE:    runAuthShow,
}

var authDeleteCmd = &cobra.Command{
	Use:   "delete <platform>",
	Short: "Remove the stored API key of a platform",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuthDelete,
}

var authGuideCmd = &cobra.Command{
	Use:   "guide [platform|cookies]",
	Short: "Explain how to get an API key or a cookies.txt",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 0 || args[0] == "cookies" {
			auth.ShowCookieExportGuide(cmd.OutOrStdout())
			if len(args) == 0 {
				for _, p := range auth.KnownPlatforms {
					auth.ShowAPIKeyGuide(cmd.OutOrStdout(), p)
				}
			}
			return
		}
		auth.ShowAPIKeyGuide(cmd.OutOrStdout(), args[0])
	},
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authSetCmd, authShowCmd, authDeleteCmd, authGuideCmd)
}

func runAuthSet(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}
	platform := auth.NormalizePlatform(args[0])

	key, err := readSecret(cmd.OutOrStdout(), fmt.Sprintf("API key for %s: ", platform))
	if err != nil {
		return err
	}
	if err := manager.Store(&auth.Credential{Platform: platform, APIKey: key}); err != nil {
		return err
	}
	ui.PrintSuccess(fmt.Sprintf("API key stored for %s", platform))
	return nil
}

func runAuthShow(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}
	creds, err := manager.List()
	if err != nil {
		return err
	}
	if len(creds) == 0 {
		ui.PrintWarning("No API keys stored")
		fmt.Fprintln(cmd.OutOrStdout(), "\nStore one with: mediagrab auth set pixeldrain")
		return nil
	}

	ui.PrintHighlight("Stored API keys")
	for _, c := range creds {
		c = auth.SanitizeCredential(c)
		fmt.Fprintf(cmd.OutOrStdout(), "  %-12s %s  (updated %s)\n",
			c.Platform, c.APIKey, c.LastModified.Format("2006-01-02 15:04"))
	}
	return nil
}

func runAuthDelete(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}
	platform := auth.NormalizePlatform(args[0])
	if err := manager.Delete(platform); err != nil {
		return err
	}
	ui.PrintSuccess(fmt.Sprintf("API key removed for %s", platform))
	return nil
}

// readSecret reads one line from stdin without echo when it is a terminal
func readSecret(out io.Writer, prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(out, prompt)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("failed to read key: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read key: %w", err)
	}
	return strings.TrimSpace(line), nil
}
