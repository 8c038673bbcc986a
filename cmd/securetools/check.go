package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jkaninda/securetools/internal/console"
	"github.com/jkaninda/securetools/internal/llm"
	"github.com/jkaninda/securetools/internal/llm/ollama"
	"github.com/jkaninda/securetools/internal/secrets"
)

var checkModel string

var testConnectionCmd = &cobra.Command{
	Use:   "test-connection",
	Short: "Check that Ollama is reachable and the model is pulled",
	RunE:  runTestConnection,
}

var checkVault string

var testOnePasswordCmd = &cobra.Command{
	Use:   "test-onepassword",
	Short: "Check the 1Password CLI, its sign-in state and the tool vault",
	RunE:  runTestOnePassword,
}

func init() {
	testConnectionCmd.Flags().StringVarP(&checkModel, "model", "m", "", "model to look for (default: ollama.model)")
	testOnePasswordCmd.Flags().StringVarP(&checkVault, "vault", "v", "", "vault to look for (default: onepassword.vault)")
}

func runTestConnection(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	out := console.Stdio()

	provider := newProvider(cfg, checkModel, nil, logger)
	client := provider.Client
	out.Info("Connecting to Ollama at %s ...", client.BaseURL())

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Ollama.Timeout())
	defer cancel()
	models, err := client.ListModels(ctx)
	if err != nil {
		var connErr *llm.ConnectionError
		if errors.As(err, &connErr) {
			out.Error("Ollama is not reachable: %s", connErr.Message)
			out.Info("Start it with 'ollama serve'.")
			return fmt.Errorf("connection test failed")
		}
		return fmt.Errorf("listing models: %w", err)
	}

	out.Success("Connected. %d model(s) available:", len(models))
	for _, m := range models {
		out.Println("  - " + m)
	}
	if ollama.HasModel(models, client.Model()) {
		out.Success("Model %s is available", client.Model())
	} else {
		out.Warn("Model %s is not pulled. Run: ollama pull %s", client.Model(), client.Model())
	}
	return nil
}

func runTestOnePassword(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	out := console.Stdio()

	vault := checkVault
	if vault == "" {
		vault = cfg.OnePassword.VaultName()
	}
	op := secrets.NewOnePasswordCLI(secrets.OnePasswordConfig{
		CLIPath:             cfg.OnePassword.CLI(),
		Timeout:             cfg.OnePassword.Timeout(),
		ServiceAccountToken: cfg.OnePassword.ServiceAccountToken,
	}, logger)

	ctx := context.Background()
	cliVersion, err := op.Version(ctx)
	if err != nil {
		if errors.Is(err, secrets.ErrStoreNotInstalled) {
			out.Error("1Password CLI is not installed")
			out.Info("Install it from https://developer.1password.com/docs/cli/get-started/")
			return fmt.Errorf("1password check failed")
		}
		return fmt.Errorf("checking 1Password CLI: %w", err)
	}
	out.Success("1Password CLI %s", cliVersion)

	vaults, err := op.ListVaults(ctx)
	if err != nil {
		out.Error("Not signed in to 1Password")
		out.Info("Run 'op signin' or set %s.", secrets.ServiceAccountTokenEnv)
		return fmt.Errorf("1password check failed: %w", err)
	}
	out.Success("Signed in. %d vault(s) visible", len(vaults))

	if hasVault(vaults, vault) {
		out.Success("Vault %q found", vault)
		return nil
	}
	names := make([]string, len(vaults))
	for i, v := range vaults {
		names[i] = v.Name
	}
	out.Warn("Vault %q not found. Available: %s", vault, strings.Join(names, ", "))
	out.Info("Create it with: op vault create %s", vault)
	return nil
}

func hasVault(vaults []secrets.Vault, name string) bool {
	for _, v := range vaults {
		if v.Name == name {
			return true
		}
	}
	return false
}
