package secrets

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestReference_URI(t *testing.T) {
	tests := []struct {
		name   string
		ref    Reference
		want   string
		wantOK bool
	}{
		{"full", Reference{Store: "V", Item: "I", Field: "api_key"}, "op://V/I/api_key", true},
		{"default field", Reference{Store: "V", Item: "I"}, "op://V/I/password", true},
		{"missing store", Reference{Item: "I"}, "", false},
		{"missing item", Reference{Store: "V"}, "", false},
		{"env only", Reference{EnvVar: "KEY"}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.ref.URI()
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("URI() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestReference_Source(t *testing.T) {
	if got := (Reference{EnvVar: "WEATHER_KEY", Item: "I"}).Source(); got != "WEATHER_KEY" {
		t.Errorf("got %q, want env var name", got)
	}
	if got := (Reference{Store: "V", Item: "WeatherAPI", Field: "api_key"}).Source(); got != "WeatherAPI/api_key" {
		t.Errorf("got %q, want item/field", got)
	}
}

func TestParseURI(t *testing.T) {
	ref, err := ParseURI("op://SecureTools/InternalAPI/auth_token")
	if err != nil {
		t.Fatalf("ParseURI: %v", err)
	}
	if ref.Store != "SecureTools" || ref.Item != "InternalAPI" || ref.Field != "auth_token" {
		t.Errorf("unexpected reference: %+v", ref)
	}
	for _, bad := range []string{"", "env://X", "op://a/b", "op://a//c", "op://a/b/c/d"} {
		if _, err := ParseURI(bad); !errors.Is(err, ErrSecretNotFound) {
			t.Errorf("ParseURI(%q): expected ErrSecretNotFound, got %v", bad, err)
		}
	}
}

func TestEnvProvider(t *testing.T) {
	t.Setenv("SECURETOOLS_TEST_KEY", "env-value")
	t.Setenv("SECURETOOLS_EMPTY_KEY", "")
	p := NewEnvProvider()

	secret, err := p.Resolve(context.Background(), "SECURETOOLS_TEST_KEY")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if secret.Value != "env-value" {
		t.Errorf("got Value=%q, want env-value", secret.Value)
	}
	if secret.Metadata["variable"] != "SECURETOOLS_TEST_KEY" {
		t.Errorf("got variable=%q", secret.Metadata["variable"])
	}

	for _, name := range []string{"SECURETOOLS_EMPTY_KEY", "SECURETOOLS_UNSET_KEY", ""} {
		if _, err := p.Resolve(context.Background(), name); !errors.Is(err, ErrSecretNotFound) {
			t.Errorf("Resolve(%q): expected ErrSecretNotFound, got %v", name, err)
		}
	}
}

// fakeOP writes a stub op executable into a temp dir.
func fakeOP(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "op")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("writing fake op: %v", err)
	}
	return path
}

func TestOnePasswordCLI_Read(t *testing.T) {
	op := fakeOP(t, `
if [ "$1" = "read" ] && [ "$2" = "op://SecureTools/WeatherAPI/api_key" ]; then
  echo "weather-key-123"
  exit 0
fi
echo "unexpected args: $*" >&2
exit 1`)
	cli := NewOnePasswordCLI(OnePasswordConfig{CLIPath: op}, discardLogger())

	secret, err := cli.Read(context.Background(), "op://SecureTools/WeatherAPI/api_key")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if secret.Value != "weather-key-123" {
		t.Errorf("got Value=%q, want trimmed stdout", secret.Value)
	}
	if secret.Metadata["item"] != "WeatherAPI" || secret.Metadata["field"] != "api_key" {
		t.Errorf("unexpected metadata: %v", secret.Metadata)
	}
}

func TestOnePasswordCLI_ServiceAccountTokenOverride(t *testing.T) {
	t.Setenv(ServiceAccountTokenEnv, "inherited")
	op := fakeOP(t, `echo "$OP_SERVICE_ACCOUNT_TOKEN"`)

	cli := NewOnePasswordCLI(OnePasswordConfig{CLIPath: op, ServiceAccountToken: "configured"}, discardLogger())
	secret, err := cli.Read(context.Background(), "op://V/I/f")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if secret.Value != "configured" {
		t.Errorf("got %q, want configured token to override", secret.Value)
	}

	cli = NewOnePasswordCLI(OnePasswordConfig{CLIPath: op}, discardLogger())
	secret, err = cli.Read(context.Background(), "op://V/I/f")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if secret.Value != "inherited" {
		t.Errorf("got %q, want inherited token", secret.Value)
	}
}

func TestOnePasswordCLI_NonZeroExitDoesNotEchoOutput(t *testing.T) {
	op := fakeOP(t, `echo "partial-secret-material"; echo "[ERROR] item hint-from-stderr" >&2; exit 1`)
	cli := NewOnePasswordCLI(OnePasswordConfig{CLIPath: op}, discardLogger())

	_, err := cli.Read(context.Background(), "op://V/I/f")
	if !errors.Is(err, ErrStoreExit) {
		t.Fatalf("expected ErrStoreExit, got %v", err)
	}
	msg := err.Error()
	if strings.Contains(msg, "partial-secret-material") || strings.Contains(msg, "hint-from-stderr") {
		t.Errorf("error echoes CLI output: %q", msg)
	}
}

func TestOnePasswordCLI_Timeout(t *testing.T) {
	op := fakeOP(t, "exec sleep 5")
	cli := NewOnePasswordCLI(OnePasswordConfig{CLIPath: op, Timeout: 100 * time.Millisecond}, discardLogger())

	_, err := cli.Read(context.Background(), "op://V/I/f")
	if !errors.Is(err, ErrStoreTimeout) {
		t.Fatalf("expected ErrStoreTimeout, got %v", err)
	}
}

func TestOnePasswordCLI_NotInstalled(t *testing.T) {
	cli := NewOnePasswordCLI(OnePasswordConfig{CLIPath: filepath.Join(t.TempDir(), "op")}, discardLogger())

	_, err := cli.Read(context.Background(), "op://V/I/f")
	if !errors.Is(err, ErrStoreNotInstalled) {
		t.Fatalf("expected ErrStoreNotInstalled, got %v", err)
	}
}

func TestOnePasswordCLI_EmptyValue(t *testing.T) {
	op := fakeOP(t, `echo ""`)
	cli := NewOnePasswordCLI(OnePasswordConfig{CLIPath: op}, discardLogger())

	_, err := cli.Read(context.Background(), "op://V/I/f")
	if !errors.Is(err, ErrSecretNotFound) {
		t.Fatalf("expected ErrSecretNotFound, got %v", err)
	}
}

func TestOnePasswordCLI_VersionAndVaults(t *testing.T) {
	op := fakeOP(t, `
case "$1" in
  --version) echo "2.30.0" ;;
  vault) echo '[{"id":"abc","name":"SecureTools"},{"id":"def","name":"Personal"}]' ;;
  *) exit 1 ;;
esac`)
	cli := NewOnePasswordCLI(OnePasswordConfig{CLIPath: op}, discardLogger())

	version, err := cli.Version(context.Background())
	if err != nil {
		t.Fatalf("Version: %v", err)
	}
	if version != "2.30.0" {
		t.Errorf("got version=%q", version)
	}

	vaults, err := cli.ListVaults(context.Background())
	if err != nil {
		t.Fatalf("ListVaults: %v", err)
	}
	if len(vaults) != 2 || vaults[0].Name != "SecureTools" {
		t.Errorf("unexpected vaults: %+v", vaults)
	}
	if err := cli.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestOnePasswordCLI_PingNotSignedIn(t *testing.T) {
	op := fakeOP(t, `echo "[ERROR] not signed in" >&2; exit 1`)
	cli := NewOnePasswordCLI(OnePasswordConfig{CLIPath: op}, discardLogger())
	if err := cli.Ping(context.Background()); !errors.Is(err, ErrStoreExit) {
		t.Fatalf("expected ErrStoreExit, got %v", err)
	}
}

type staticStore struct {
	name  string
	value string
	err   error
	calls int
}

func (s *staticStore) Name() string { return s.name }

func (s *staticStore) Read(_ context.Context, _ string) (*Secret, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &Secret{Value: s.value}, nil
}

func TestCompositeStore(t *testing.T) {
	failing := &staticStore{name: "onepassword", err: ErrStoreNotInstalled}
	working := &staticStore{name: "vault", value: "from-vault"}
	cs := NewCompositeStore(failing, working)

	if cs.Name() != "composite(onepassword,vault)" {
		t.Errorf("got name=%q", cs.Name())
	}
	secret, err := cs.Read(context.Background(), "op://V/I/f")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if secret.Value != "from-vault" {
		t.Errorf("got %q, want from-vault", secret.Value)
	}

	allFail := NewCompositeStore(&staticStore{name: "a", err: ErrStoreExit}, &staticStore{name: "b", err: ErrStoreTimeout})
	if _, err := allFail.Read(context.Background(), "op://V/I/f"); !errors.Is(err, ErrStoreTimeout) || !errors.Is(err, ErrStoreExit) {
		t.Errorf("expected both failures, got %v", err)
	}

	if _, err := NewCompositeStore().Read(context.Background(), "op://V/I/f"); !errors.Is(err, ErrNoSource) {
		t.Errorf("expected ErrNoSource, got %v", err)
	}
}

type pingStore struct {
	staticStore
	pingErr error
}

func (p *pingStore) Ping(context.Context) error { return p.pingErr }

func TestCompositeStore_Ping(t *testing.T) {
	down := &pingStore{staticStore: staticStore{name: "vault"}, pingErr: errors.New("sealed")}
	up := &pingStore{staticStore: staticStore{name: "onepassword"}}

	if err := NewCompositeStore(down, up).Ping(context.Background()); err != nil {
		t.Errorf("one reachable store: %v", err)
	}
	err := NewCompositeStore(down).Ping(context.Background())
	if err == nil || !strings.Contains(err.Error(), "vault: sealed") {
		t.Errorf("all down: got %v", err)
	}
}
