package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jkaninda/securetools/internal/console"
	"github.com/jkaninda/securetools/internal/tools"
	"github.com/jkaninda/securetools/internal/tools/loader"
)

var listToolsPath string

var listToolsCmd = &cobra.Command{
	Use:   "list-tools",
	Short: "List the tools the model can request",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		path := listToolsPath
		if path == "" {
			path = cfg.ToolsPath()
		}
		toolsCfg, err := loader.Load(path)
		if err != nil {
			return err
		}

		out := console.Stdio()
		out.Info("Tools from %s:", toolsCfg.Source)
		out.Println()
		for _, t := range toolsCfg.Tools {
			out.Printf("%s\n", formatTool(t.Definition))
		}
		return nil
	},
}

func init() {
	listToolsCmd.Flags().StringVar(&listToolsPath, "tools", "", "tools definition file (default: tools.config_path, then built-in)")
}

// formatTool renders one definition as a name line, the description and
// an indented parameter list.
func formatTool(def tools.Definition) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", def.Name)
	if def.Description != "" {
		fmt.Fprintf(&b, "  %s\n", def.Description)
	}
	if len(def.Parameters.Properties) > 0 {
		b.WriteString("  Parameters:\n")
	}
	for _, p := range def.Parameters.Properties {
		req := "optional"
		if def.Parameters.IsRequired(p.Name) {
			req = "required"
		}
		fmt.Fprintf(&b, "    - %s (%s) [%s]", p.Name, p.Type, req)
		if p.Description != "" {
			fmt.Fprintf(&b, ": %s", p.Description)
		}
		if len(p.Enum) > 0 {
			fmt.Fprintf(&b, " {%s}", strings.Join(p.Enum, ", "))
		}
		b.WriteString("\n")
	}
	return b.String()
}
