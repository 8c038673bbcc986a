// Package ollama implements the llm.Provider interface for the Ollama chat API.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/jkaninda/securetools/internal/llm"
)

const (
	// DefaultBaseURL is where a local Ollama daemon listens.
	DefaultBaseURL = "http://localhost:11434"

	chatPath       = "/api/chat"
	tagsPath       = "/api/tags"
	defaultTimeout = 120 * time.Second
	maxBodyBytes   = 8 << 20
	maxErrorText   = 200
	unknownCallID  = "unknown"
	providerName   = "ollama"
)

// Client implements llm.Provider against a single Ollama model.
type Client struct {
	model      string
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures the Ollama client.
type Option func(*Client)

// WithBaseURL overrides the API base URL.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(url, "/") }
}

// WithTimeout bounds every request made by the client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates an Ollama provider for the given model.
func NewClient(model string, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		model:   model,
		baseURL: DefaultBaseURL,
		timeout: defaultTimeout,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.timeout}
	}
	return c
}

func (c *Client) Name() string { return providerName }

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// BaseURL returns the configured endpoint.
func (c *Client) BaseURL() string { return c.baseURL }

// SendMessage sends the conversation to /api/chat with streaming disabled.
func (c *Client) SendMessage(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	body, err := json.Marshal(c.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+chatPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	respBody, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}

	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(respBody, &fields); err != nil {
		return nil, &llm.ResponseError{
			Provider: providerName,
			Message:  "invalid JSON: " + truncate(string(respBody)),
			Err:      err,
		}
	}
	rawMsg, ok := fields["message"]
	if !ok {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		c.logger.WarnContext(ctx, "unexpected ollama response", slog.Any("keys", keys))
		return nil, &llm.ResponseError{
			Provider: providerName,
			Message:  fmt.Sprintf("response missing 'message' field, got keys: %v", keys),
		}
	}

	var apiResp apiChatResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, &llm.ResponseError{Provider: providerName, Message: "decoding response", Err: err}
	}
	var msg apiMessage
	if err := json.Unmarshal(rawMsg, &msg); err != nil {
		return nil, &llm.ResponseError{Provider: providerName, Message: "decoding message", Err: err}
	}

	resp, err := toResponse(&apiResp, &msg)
	if err != nil {
		return nil, err
	}

	c.logger.DebugContext(ctx, "llm request completed",
		slog.String("provider", providerName),
		slog.String("model", c.model),
		slog.Int("input_tokens", resp.Usage.InputTokens),
		slog.Int("output_tokens", resp.Usage.OutputTokens),
		slog.Int("tool_calls", len(resp.Message.ToolCalls)),
	)

	return resp, nil
}

// ListModels returns the names of the models installed on the daemon.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+tagsPath, nil)
	if err != nil {
		return nil, fmt.Errorf("creating HTTP request: %w", err)
	}
	body, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}
	var tags apiTagsResponse
	if err := json.Unmarshal(body, &tags); err != nil {
		return nil, &llm.ResponseError{Provider: providerName, Message: "invalid JSON: " + truncate(string(body)), Err: err}
	}
	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// HasModel reports whether model (or model:latest) is among names.
func HasModel(names []string, model string) bool {
	for _, n := range names {
		if n == model || n == model+":latest" {
			return true
		}
	}
	return false
}

// do executes the request and maps transport failures onto the typed errors.
func (c *Client) do(req *http.Request) ([]byte, error) {
	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, &llm.ConnectionError{
				Provider: providerName,
				Message: fmt.Sprintf("request timed out after %s; the model may be loading or the request is too complex",
					c.timeout),
				Err: err,
			}
		}
		return nil, &llm.ConnectionError{
			Provider: providerName,
			Message:  fmt.Sprintf("failed to connect to %s (is Ollama running? try: ollama serve)", c.baseURL),
			Err:      err,
		}
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodyBytes))
	if err != nil {
		return nil, &llm.ConnectionError{Provider: providerName, Message: "reading response body", Err: err}
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, &llm.ResponseError{
			Provider:   providerName,
			StatusCode: httpResp.StatusCode,
			Message:    truncate(string(body)),
		}
	}
	return body, nil
}

func (c *Client) buildRequest(req *llm.Request) apiChatRequest {
	messages := make([]apiMessage, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, apiMessage{Role: string(llm.RoleSystem), Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		am := apiMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			args := json.RawMessage("{}")
			if len(tc.Arguments) > 0 {
				args, _ = json.Marshal(tc.Arguments)
			}
			am.ToolCalls = append(am.ToolCalls, apiToolCall{
				ID: tc.ID,
				Function: apiToolCallFunction{
					Name:      tc.Name,
					Arguments: args,
				},
			})
		}
		messages = append(messages, am)
	}

	apiReq := apiChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   false,
	}
	if req.Seed != nil {
		apiReq.Options = &apiOptions{Seed: req.Seed}
	}
	for _, t := range req.Tools {
		apiReq.Tools = append(apiReq.Tools, apiTool{
			Type: "function",
			Function: apiFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return apiReq
}

func toResponse(apiResp *apiChatResponse, msg *apiMessage) (*llm.Response, error) {
	out := llm.Message{
		Role:    llm.Role(msg.Role),
		Content: msg.Content,
	}
	if out.Role == "" {
		out.Role = llm.RoleAssistant
	}
	for _, tc := range msg.ToolCalls {
		id := tc.ID
		if id == "" {
			id = unknownCallID
		}
		args, err := decodeArguments(tc.Function.Arguments)
		out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
			ID:        id,
			Name:      tc.Function.Name,
			Arguments: args,
			ParseErr:  err,
		})
	}
	return &llm.Response{
		Message:    out,
		Model:      apiResp.Model,
		DoneReason: apiResp.DoneReason,
		Usage: llm.Usage{
			InputTokens:  apiResp.PromptEvalCount,
			OutputTokens: apiResp.EvalCount,
		},
	}, nil
}

// decodeArguments accepts either a JSON object or a JSON string holding one.
// Anything else yields an empty map and an error.
func decodeArguments(raw json.RawMessage) (map[string]any, error) {
	args := map[string]any{}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return args, nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return args, err
		}
		if strings.TrimSpace(s) == "" {
			return args, nil
		}
		trimmed = []byte(s)
	}
	if err := json.Unmarshal(trimmed, &args); err != nil {
		return map[string]any{}, err
	}
	return args, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func truncate(s string) string {
	if len(s) <= maxErrorText {
		return s
	}
	return s[:maxErrorText]
}

// --- Ollama API wire types (unexported) ---

type apiChatRequest struct {
	Model    string       `json:"model"`
	Messages []apiMessage `json:"messages"`
	Stream   bool         `json:"stream"`
	Tools    []apiTool    `json:"tools,omitempty"`
	Options  *apiOptions  `json:"options,omitempty"`
}

type apiOptions struct {
	Seed *int `json:"seed,omitempty"`
}

type apiMessage struct {
	Role       string        `json:"role"`
	Content    string        `json:"content"`
	ToolCalls  []apiToolCall `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
}

type apiTool struct {
	Type     string      `json:"type"`
	Function apiFunction `json:"function"`
}

type apiFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type apiToolCall struct {
	ID       string              `json:"id,omitempty"`
	Function apiToolCallFunction `json:"function"`
}

type apiToolCallFunction struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type apiChatResponse struct {
	Model           string `json:"model"`
	Done            bool   `json:"done"`
	DoneReason      string `json:"done_reason"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

type apiTagsResponse struct {
	Models []apiModel `json:"models"`
}

type apiModel struct {
	Name string `json:"name"`
}
