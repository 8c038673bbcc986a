package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jkaninda/securetools/internal/agent"
	"github.com/jkaninda/securetools/internal/config"
	"github.com/jkaninda/securetools/internal/console"
)

var (
	chatVault  string
	chatModel  string
	chatSingle string
	chatLive   bool
	chatSeed   int
	chatTools  string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session with tool support",
	Long: `Start a chat session with the local model. The model can request tools
that need credentials; the broker resolves them from environment variables or
1Password and scrubs them from every result. The model never sees a secret.

Without --live, tools whose secrets are unavailable fall back to mock data.
With --live, a missing secret fails the tool call.

REPL commands:
  exit, quit, q   end the session
  reset           clear the conversation and the tool call counter
  clear-cache     drop cached secrets so the next call re-reads them`,
	RunE: runChat,
}

func init() {
	addChatFlags(chatCmd)
}

func addChatFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&chatVault, "vault", "v", "", "1Password vault containing tool secrets (default: onepassword.vault)")
	cmd.Flags().StringVarP(&chatModel, "model", "m", "", "Ollama model to use (default: ollama.model)")
	cmd.Flags().StringVarP(&chatSingle, "single", "s", "", "send one message, print the answer and exit")
	cmd.Flags().BoolVarP(&chatLive, "live", "l", false, "require real secrets (no mock fallback)")
	cmd.Flags().IntVar(&chatSeed, "seed", 0, "sampling seed for reproducible answers")
	cmd.Flags().StringVar(&chatTools, "tools", "", "tools definition file (default: tools.config_path, then built-in)")
}

func runChat(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	out := console.Stdio()

	seed := cfg.Ollama.Seed
	if cmd.Flags().Changed("seed") {
		seed = &chatSeed
	}

	ctx := context.Background()
	sc, err := initShared(ctx, cfg, logger, sharedOptions{
		Live:      chatLive,
		Vault:     chatVault,
		ToolsPath: chatTools,
		Caller:    agent.CallerChat,
	})
	defer sc.Cleanup()
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}

	provider := newProvider(cfg, chatModel, sc.Obs, logger)
	if sc.Obs != nil && sc.Obs.Health != nil {
		sc.Obs.Health.AddOptionalCheck("ollama", func(ctx context.Context) error {
			_, err := provider.Client.ListModels(ctx)
			return err
		})
	}
	orch := agent.NewOrchestrator(provider.Provider, sc.Dispatcher, logger).
		WithMaxToolCalls(cfg.Security.ToolCallLimit()).
		WithSeed(seed).
		WithObservability(sc.Obs)

	printChatBanner(out, provider.Client.Model(), sc.Vault, chatLive, seed, len(orch.ToolDefinitions()))

	if chatSingle != "" {
		answer, err := chatTurn(ctx, orch, chatSingle)
		if err != nil {
			return err
		}
		out.Answer("Assistant", answer)
		return nil
	}

	return chatREPL(ctx, cfg, orch, sc, out)
}

func printChatBanner(out *console.Console, model, vault string, live bool, seed *int, tools int) {
	mode := "MOCK"
	if live {
		mode = "LIVE"
	}
	seedLabel := "random"
	if seed != nil {
		seedLabel = strconv.Itoa(*seed)
	}
	out.Banner("Secure Tool Runner", []console.Field{
		{Label: "Model", Value: model},
		{Label: "Vault", Value: vault},
		{Label: "Mode", Value: mode},
		{Label: "Seed", Value: seedLabel},
		{Label: "Tools", Value: strconv.Itoa(tools)},
	})
	if live {
		out.Success("Live mode: tool secrets come from the environment or 1Password")
	} else {
		out.Info("The model never sees credentials. Auth is handled by the secrets broker.")
	}
	out.Info("Type 'exit' or 'quit' to end the session.")
	out.Println()
}

// chatTurn runs one turn with a fresh correlation id. Ctrl+C cancels the
// turn without ending the session.
func chatTurn(ctx context.Context, orch *agent.Orchestrator, message string) (string, error) {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	ctx = agent.WithCorrelationID(ctx, uuid.NewString())
	return orch.Chat(ctx, message)
}

// replCommand is a built-in REPL command.
type replCommand int

const (
	replMessage replCommand = iota
	replExit
	replReset
	replClearCache
	replEmpty
)

func parseREPLInput(input string) replCommand {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "":
		return replEmpty
	case "exit", "quit", "q":
		return replExit
	case "reset":
		return replReset
	case "clear-cache":
		return replClearCache
	default:
		return replMessage
	}
}

func chatREPL(ctx context.Context, cfg *config.Config, orch *agent.Orchestrator, sc *SharedComponents, out *console.Console) error {
	reader := console.NewLineReader(filepath.Join(cfg.ResolvedDataDir(), "chat_history"))
	defer reader.Close()

	for {
		input, err := reader.ReadLine(out.Prompt("You: "))
		if err != nil {
			if errors.Is(err, console.ErrInterrupted) {
				out.Println()
				out.Info("Interrupted. Goodbye!")
				return nil
			}
			if errors.Is(err, io.EOF) {
				out.Println()
				out.Info("Goodbye!")
				return nil
			}
			return err
		}

		switch parseREPLInput(input) {
		case replEmpty:
			continue
		case replExit:
			out.Info("Goodbye!")
			return nil
		case replReset:
			orch.Reset()
			out.Info("Conversation reset.")
			continue
		case replClearCache:
			n := sc.Broker.ClearCache()
			sc.Obs.MetricsOrNil().RecordCacheFlush()
			out.Info("Cleared %d cached secrets.", n)
			continue
		}

		answer, err := chatTurn(ctx, orch, strings.TrimSpace(input))
		if err != nil {
			if errors.Is(err, context.Canceled) {
				out.Warn("Cancelled.")
				continue
			}
			sc.Logger.Debug("chat turn failed", slog.String("error", err.Error()))
			out.Error("%v", err)
			out.Info("Use 'reset' to start a new conversation.")
			continue
		}
		out.Println()
		out.Answer("Assistant", answer)
	}
}
