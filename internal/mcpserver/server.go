// Package mcpserver exposes the broker-backed tools over the Model Context
// Protocol. MCP clients are untrusted callers like the chat model: every
// call goes through the same dispatcher checks and broker scrubbing.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jkaninda/securetools/internal/agent"
	"github.com/jkaninda/securetools/internal/tools"
)

// ServerName is reported to MCP clients during initialization.
const ServerName = "securetools"

// Server serves the allowed tools of a dispatcher.
type Server struct {
	dispatcher *agent.Dispatcher
	mcp        *server.MCPServer
	names      []string
	logger     *slog.Logger
}

// New registers every tool the dispatcher allows.
func New(d *agent.Dispatcher, version string, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		dispatcher: d,
		mcp:        server.NewMCPServer(ServerName, version, server.WithToolCapabilities(false)),
		logger:     logger,
	}
	for _, def := range d.Definitions() {
		schema, err := json.Marshal(def.Parameters.JSONSchema())
		if err != nil {
			return nil, fmt.Errorf("encoding schema for %s: %w", def.Name, err)
		}
		s.mcp.AddTool(mcp.NewToolWithRawSchema(def.Name, def.Description, schema), s.handleCall)
		s.names = append(s.names, def.Name)
	}
	return s, nil
}

// ToolNames returns the served tool names in registry order.
func (s *Server) ToolNames() []string {
	return append([]string(nil), s.names...)
}

// Serve speaks MCP over the given streams until ctx is cancelled or in closes.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	s.logger.InfoContext(ctx, "mcp server listening on stdio", slog.Int("tools", len(s.names)))
	return server.NewStdioServer(s.mcp).Listen(ctx, in, out)
}

func (s *Server) handleCall(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx = agent.WithCorrelationID(ctx, uuid.NewString())
	call := tools.Call{
		ID:        uuid.NewString(),
		Name:      req.Params.Name,
		Arguments: req.GetArguments(),
	}
	if call.Arguments == nil {
		call.Arguments = map[string]any{}
	}

	result, err := s.dispatcher.Dispatch(ctx, call)
	if err != nil {
		return mcp.NewToolResultError("Error executing tool: " + err.Error()), nil
	}
	if !result.Success {
		return mcp.NewToolResultError(result.Content), nil
	}
	return mcp.NewToolResultText(result.Content), nil
}
