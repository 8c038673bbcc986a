package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jkaninda/securetools/internal/process"
)

const (
	defaultCLIPath    = "op"
	defaultCLITimeout = 30 * time.Second

	// ServiceAccountTokenEnv is the variable the op CLI reads for
	// non-interactive authentication.
	ServiceAccountTokenEnv = "OP_SERVICE_ACCOUNT_TOKEN"
)

// OnePasswordConfig configures the 1Password CLI reader.
type OnePasswordConfig struct {
	CLIPath             string        // Default: "op"
	Timeout             time.Duration // Default: 30s
	ServiceAccountToken string        // Optional; overrides the inherited OP_SERVICE_ACCOUNT_TOKEN.
}

// OnePasswordCLI reads secrets by invoking `op read <uri>`.
// Safe for concurrent use.
type OnePasswordCLI struct {
	path    string
	timeout time.Duration
	token   string
	runner  *process.Runner
	logger  *slog.Logger
}

// NewOnePasswordCLI creates a reader backed by the op executable.
func NewOnePasswordCLI(cfg OnePasswordConfig, logger *slog.Logger) *OnePasswordCLI {
	path := cfg.CLIPath
	if path == "" {
		path = defaultCLIPath
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultCLITimeout
	}
	return &OnePasswordCLI{
		path:    path,
		timeout: timeout,
		token:   cfg.ServiceAccountToken,
		runner:  process.NewRunner(timeout, logger),
		logger:  logger,
	}
}

func (o *OnePasswordCLI) Name() string { return "onepassword" }

// Read runs `op read <uri>` and returns the trimmed stdout.
// On failure neither stdout nor stderr is propagated.
func (o *OnePasswordCLI) Read(ctx context.Context, uri string) (*Secret, error) {
	ref, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	res, err := o.run(ctx, "read", uri)
	if err != nil {
		return nil, err
	}
	value := strings.TrimSpace(res.Stdout)
	if value == "" {
		return nil, fmt.Errorf("%w: %s/%s has an empty value", ErrSecretNotFound, ref.Item, ref.Field)
	}
	return &Secret{
		Value: value,
		Metadata: map[string]string{
			"source": "onepassword",
			"item":   ref.Item,
			"field":  ref.Field,
		},
	}, nil
}

// Version returns the installed CLI version.
func (o *OnePasswordCLI) Version(ctx context.Context) (string, error) {
	res, err := o.run(ctx, "--version")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Stdout), nil
}

// Vault is an entry of `op vault list`.
type Vault struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ListVaults returns the vaults visible to the signed-in account.
// An ErrStoreExit here usually means the CLI is not signed in.
func (o *OnePasswordCLI) ListVaults(ctx context.Context) ([]Vault, error) {
	res, err := o.run(ctx, "vault", "list", "--format=json")
	if err != nil {
		return nil, err
	}
	var vaults []Vault
	if err := json.Unmarshal([]byte(res.Stdout), &vaults); err != nil {
		return nil, fmt.Errorf("parsing vault list: %w", err)
	}
	return vaults, nil
}

// run invokes the CLI and maps failures onto the store sentinels.
func (o *OnePasswordCLI) run(ctx context.Context, args ...string) (*process.Result, error) {
	cmd := process.Command{Path: o.path, Args: args, Timeout: o.timeout}
	if o.token != "" {
		cmd.Env = map[string]string{ServiceAccountTokenEnv: o.token}
	}

	res, err := o.runner.Run(ctx, cmd)
	switch {
	case errors.Is(err, process.ErrNotFound):
		return nil, fmt.Errorf("%w: install the 1Password CLI (%s)", ErrStoreNotInstalled, o.path)
	case errors.Is(err, process.ErrTimeout):
		return nil, fmt.Errorf("%w after %s", ErrStoreTimeout, o.timeout)
	case err != nil:
		return nil, fmt.Errorf("invoking %s: %w", o.path, err)
	}
	if res.ExitCode != 0 {
		o.logger.Warn("1password cli failed",
			slog.String("subcommand", args[0]),
			slog.Int("exit_code", res.ExitCode),
			slog.Int("stderr_bytes", len(res.Stderr)),
		)
		return nil, fmt.Errorf("%w (exit code %d)", ErrStoreExit, res.ExitCode)
	}
	return res, nil
}

// Ping checks that the CLI is installed and signed in.
func (o *OnePasswordCLI) Ping(ctx context.Context) error {
	_, err := o.ListVaults(ctx)
	return err
}
