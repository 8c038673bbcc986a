package secrets

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// VaultConfig configures the HashiCorp Vault KV v2 reader.
// Address, Token and Namespace are overridden by VAULT_ADDR, VAULT_TOKEN
// and VAULT_NAMESPACE when those are set.
type VaultConfig struct {
	Address       string
	Token         string
	Namespace     string
	Mount         string        // KV v2 mount. Default: "secret"
	Timeout       time.Duration // Default: 5s
	TLSSkipVerify bool
}

// VaultStore reads store URIs from HashiCorp Vault KV v2.
// op://<store>/<item>/<field> maps to <mount>/data/<store>/<item> and the
// named field of its data map. Uses token-based authentication.
// Safe for concurrent use.
type VaultStore struct {
	address   string
	token     string
	namespace string
	mount     string
	client    *http.Client
}

// NewVaultStore creates a Vault KV v2 reader.
func NewVaultStore(cfg VaultConfig) (*VaultStore, error) {
	address := cfg.Address
	if env := os.Getenv("VAULT_ADDR"); env != "" {
		address = env
	}
	if address == "" {
		return nil, fmt.Errorf("vault address is required (set secrets.vault.address or VAULT_ADDR)")
	}
	address = strings.TrimRight(address, "/")

	token := cfg.Token
	if env := os.Getenv("VAULT_TOKEN"); env != "" {
		token = env
	}
	if token == "" {
		return nil, fmt.Errorf("vault token is required (set secrets.vault.token or VAULT_TOKEN)")
	}

	namespace := cfg.Namespace
	if env := os.Getenv("VAULT_NAMESPACE"); env != "" {
		namespace = env
	}

	mount := strings.Trim(cfg.Mount, "/")
	if mount == "" {
		mount = "secret"
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.TLSSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &VaultStore{
		address:   address,
		token:     token,
		namespace: namespace,
		mount:     mount,
		client:    &http.Client{Timeout: timeout, Transport: transport},
	}, nil
}

func (v *VaultStore) Name() string { return "vault" }

func (v *VaultStore) Read(ctx context.Context, uri string) (*Secret, error) {
	ref, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	path := fmt.Sprintf("%s/data/%s/%s", v.mount, url.PathEscape(ref.Store), url.PathEscape(ref.Item))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/v1/%s", v.address, path), nil)
	if err != nil {
		return nil, fmt.Errorf("building vault request: %w", err)
	}
	req.Header.Set("X-Vault-Token", v.token)
	if v.namespace != "" {
		req.Header.Set("X-Vault-Namespace", v.namespace)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vault request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // 1 MB limit
	if err != nil {
		return nil, fmt.Errorf("reading vault response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: vault path %q not found", ErrSecretNotFound, path)
	case resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("vault access denied for path %q (check token permissions)", path)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("vault server error %d for path %q", resp.StatusCode, path)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("vault returned status %d for path %q", resp.StatusCode, path)
	}

	// KV v2 envelope: { "data": { "data": { ... }, "metadata": { ... } } }
	var envelope struct {
		Data struct {
			Data map[string]any `json:"data"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("parsing vault response: %w", err)
	}
	data := envelope.Data.Data
	if data == nil {
		return nil, fmt.Errorf("%w: vault path %q returned no data", ErrSecretNotFound, path)
	}

	val, ok := data[ref.Field]
	if !ok {
		return nil, fmt.Errorf("%w: field %q not found in vault path %q", ErrSecretNotFound, ref.Field, path)
	}
	str, ok := val.(string)
	if !ok {
		return nil, fmt.Errorf("vault field %q in path %q is not a string", ref.Field, path)
	}
	return &Secret{
		Value: str,
		Metadata: map[string]string{
			"source": "vault",
			"path":   path,
			"field":  ref.Field,
		},
	}, nil
}

// Ping queries sys/health. Sealed or uninitialized servers count as down.
func (v *VaultStore) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.address+"/v1/sys/health", nil)
	if err != nil {
		return fmt.Errorf("building vault request: %w", err)
	}
	if v.namespace != "" {
		req.Header.Set("X-Vault-Namespace", v.namespace)
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("vault health request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	// 429 is a healthy standby node.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusTooManyRequests {
		return fmt.Errorf("vault health returned status %d", resp.StatusCode)
	}
	return nil
}
