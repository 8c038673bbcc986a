// Package loader reads tools.yml and registers its tools with the registry
// (model-facing definitions) and the broker (executors and secrets).
package loader

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jkaninda/securetools/internal/secrets"
	"github.com/jkaninda/securetools/internal/tools"
	"github.com/jkaninda/securetools/internal/tools/executors"
)

//go:embed tools.yml
var defaultConfig []byte

// DefaultVault is the store name used when none is configured.
const DefaultVault = "SecureTools"

// Tool is one validated entry of tools.yml.
type Tool struct {
	Definition tools.Definition
	Executor   string
	Secrets    []secrets.Reference // Store is filled in by Setup.
}

// Config is the parsed tools.yml, tools in file order.
type Config struct {
	Source string
	Tools  []Tool
}

// Names returns the tool names in file order.
func (c *Config) Names() []string {
	names := make([]string, len(c.Tools))
	for i, t := range c.Tools {
		names[i] = t.Definition.Name
	}
	return names
}

type fileConfig struct {
	Tools yaml.Node `yaml:"tools"`
}

type toolConfig struct {
	Description string           `yaml:"description"`
	Executor    string           `yaml:"executor"`
	Parameters  parametersConfig `yaml:"parameters"`
	Secrets     []secretConfig   `yaml:"secrets"`
}

type parametersConfig struct {
	Type       string    `yaml:"type"`       // Default: object
	Properties yaml.Node `yaml:"properties"` // Node keeps declaration order.
	Required   []string  `yaml:"required"`
}

type propertyConfig struct {
	Type        string   `yaml:"type"`
	Description string   `yaml:"description"`
	Enum        []string `yaml:"enum"`
}

type secretConfig struct {
	Item   string `yaml:"item"`
	Field  string `yaml:"field"` // Default: password
	EnvVar string `yaml:"env_var"`
}

// Load reads tools from path, or the embedded defaults when path is empty.
func Load(path string) (*Config, error) {
	if path == "" {
		return Parse(defaultConfig, "embedded tools.yml")
	}
	path = expandHome(path)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("tools config not found: %s: %w", path, err)
		}
		return nil, fmt.Errorf("reading tools config %s: %w", path, err)
	}
	return Parse(data, path)
}

// Parse decodes and validates a tools.yml document.
func Parse(data []byte, source string) (*Config, error) {
	var raw fileConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing tools config %s: %w", source, err)
	}
	if raw.Tools.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("tools config %s: top-level 'tools' mapping is required", source)
	}

	cfg := &Config{Source: source}
	seen := make(map[string]bool)
	for i := 0; i+1 < len(raw.Tools.Content); i += 2 {
		name := raw.Tools.Content[i].Value
		if seen[name] {
			return nil, fmt.Errorf("tools config %s: duplicate tool '%s'", source, name)
		}
		seen[name] = true

		var tc toolConfig
		if err := raw.Tools.Content[i+1].Decode(&tc); err != nil {
			return nil, fmt.Errorf("tools config %s: tool '%s': %w", source, name, err)
		}
		tool, err := buildTool(name, tc)
		if err != nil {
			return nil, fmt.Errorf("tools config %s: %w", source, err)
		}
		cfg.Tools = append(cfg.Tools, tool)
	}
	return cfg, nil
}

func buildTool(name string, tc toolConfig) (Tool, error) {
	if tc.Executor == "" {
		return Tool{}, fmt.Errorf("tool '%s': executor is required", name)
	}
	if tc.Parameters.Type != "" && tc.Parameters.Type != string(tools.TypeObject) {
		return Tool{}, fmt.Errorf("tool '%s': parameters.type must be 'object', got '%s'", name, tc.Parameters.Type)
	}

	props, err := decodeProperties(&tc.Parameters.Properties)
	if err != nil {
		return Tool{}, fmt.Errorf("tool '%s': %w", name, err)
	}
	schema := tools.ParameterSchema{Properties: props, Required: tc.Parameters.Required}
	if err := schema.Validate(); err != nil {
		return Tool{}, fmt.Errorf("tool '%s': %w", name, err)
	}

	refs := make([]secrets.Reference, 0, len(tc.Secrets))
	for i, s := range tc.Secrets {
		if s.Item == "" && s.EnvVar == "" {
			return Tool{}, fmt.Errorf("tool '%s': secret %d needs an item or an env_var", name, i)
		}
		refs = append(refs, secrets.Reference{EnvVar: s.EnvVar, Item: s.Item, Field: s.Field})
	}

	return Tool{
		Definition: tools.Definition{
			Name:        name,
			Description: strings.TrimSpace(tc.Description),
			Parameters:  schema,
		},
		Executor: tc.Executor,
		Secrets:  refs,
	}, nil
}

func decodeProperties(node *yaml.Node) ([]tools.Property, error) {
	if node.Kind == 0 {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, errors.New("parameters.properties must be a mapping")
	}
	props := make([]tools.Property, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		var pc propertyConfig
		if err := node.Content[i+1].Decode(&pc); err != nil {
			return nil, fmt.Errorf("property '%s': %w", node.Content[i].Value, err)
		}
		props = append(props, tools.Property{
			Name:        node.Content[i].Value,
			Type:        tools.ParamType(pc.Type),
			Description: pc.Description,
			Enum:        pc.Enum,
		})
	}
	return props, nil
}

// Broker is the part of the secrets broker the loader needs.
type Broker interface {
	RegisterTool(name string, exec executors.Executor, refs ...secrets.Reference)
}

// Setup registers every tool of cfg. Executors are checked before anything
// is registered, so an unknown executor leaves registry and broker
// untouched. Store references are bound to vault.
func Setup(cfg *Config, registry *tools.Registry, b Broker, catalog *executors.Catalog, vault string) ([]string, error) {
	if vault == "" {
		vault = DefaultVault
	}
	for _, t := range cfg.Tools {
		if _, ok := catalog.Get(t.Executor); !ok {
			return nil, fmt.Errorf("Unknown executor '%s' for tool '%s'. Available: [%s]",
				t.Executor, t.Definition.Name, strings.Join(catalog.Keys(), ", "))
		}
	}

	names := make([]string, 0, len(cfg.Tools))
	for _, t := range cfg.Tools {
		exec, _ := catalog.Get(t.Executor)
		refs := make([]secrets.Reference, len(t.Secrets))
		for i, ref := range t.Secrets {
			if ref.Item != "" {
				ref.Store = vault
			}
			refs[i] = ref
		}
		registry.Register(t.Definition)
		b.RegisterTool(t.Definition.Name, exec, refs...)
		names = append(names, t.Definition.Name)
	}
	return names, nil
}

func expandHome(path string) string {
	if rest, ok := strings.CutPrefix(path, "~/"); ok {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, rest)
		}
	}
	return path
}
