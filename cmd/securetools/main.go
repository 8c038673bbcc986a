// SecureTools: a local chat assistant whose tools run behind a secrets broker.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "securetools",
	Short: "SecureTools: chat with a local model whose tools never see your credentials.",
	Long: `SecureTools runs a local Ollama model with access to tools. Tool credentials
are resolved by a trusted broker from environment variables or 1Password and
scrubbed from every result before the model sees it. The model never receives,
requests or handles a secret.`,
	RunE:          runChat, // Default to chat mode.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: $SECURETOOLS_CONFIG or ~/.securetools/config.yml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides logging.level)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text or json (overrides logging.format)")
	addChatFlags(rootCmd)

	rootCmd.AddCommand(
		chatCmd,
		testConnectionCmd,
		testOnePasswordCmd,
		listToolsCmd,
		testWeatherCmd,
		serveMCPCmd,
		auditCmd,
		versionCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
