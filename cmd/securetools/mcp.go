package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jkaninda/securetools/internal/agent"
	"github.com/jkaninda/securetools/internal/mcpserver"
)

var (
	mcpVault string
	mcpLive  bool
	mcpTools string
)

var serveMCPCmd = &cobra.Command{
	Use:   "serve-mcp",
	Short: "Serve the tools over MCP on stdin/stdout",
	Long: `Expose the registered tools to an MCP client over stdio. Calls go through
the same policy, secrets broker and audit trail as chat. Logs are written to
stderr so stdout carries protocol messages only.`,
	RunE: runServeMCP,
}

func init() {
	serveMCPCmd.Flags().StringVarP(&mcpVault, "vault", "v", "", "1Password vault containing tool secrets (default: onepassword.vault)")
	serveMCPCmd.Flags().BoolVarP(&mcpLive, "live", "l", false, "require real secrets (no mock fallback)")
	serveMCPCmd.Flags().StringVar(&mcpTools, "tools", "", "tools definition file (default: tools.config_path, then built-in)")
}

func runServeMCP(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sc, err := initShared(ctx, cfg, logger, sharedOptions{
		Live:      mcpLive,
		Vault:     mcpVault,
		ToolsPath: mcpTools,
		Caller:    agent.CallerMCP,
	})
	defer sc.Cleanup()
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}

	srv, err := mcpserver.New(sc.Dispatcher, version, logger)
	if err != nil {
		return err
	}
	logger.Info("mcp server starting",
		slog.Any("tools", srv.ToolNames()),
		slog.Bool("live", mcpLive),
	)
	return srv.Serve(ctx, os.Stdin, os.Stdout)
}
