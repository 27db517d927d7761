// ABOUTME: MCP-compatible HTTP server for coding agents in the workspace.
// ABOUTME: Serves the JSON-RPC protocol surface and mints per-caller session tokens.

package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/Kochava-Studios/skwad/internal/coordinator"
	"github.com/Kochava-Studios/skwad/internal/hooks"
)

// protocolVersion is advertised in initialize responses.
const protocolVersion = "2025-03-26"

// notificationPrefix marks methods that never receive a correlated reply.
const notificationPrefix = "notifications/"

// MaxRequestBodySize is the maximum allowed size for request bodies (1MB).
const MaxRequestBodySize = 1 << 20

// JSON-RPC 2.0 types

// JSONRPCRequest represents a JSON-RPC 2.0 request. ID is a string or an
// integer; its absence marks a notification.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// JSONRPCResponse represents a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
}

// JSONRPCError represents a JSON-RPC 2.0 error object.
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Standard JSON-RPC error codes
const (
	JSONRPCParseError     = -32700
	JSONRPCInvalidRequest = -32600
	JSONRPCMethodNotFound = -32601
	JSONRPCInvalidParams  = -32602
	JSONRPCInternalError  = -32603
)

// CallToolParams are the params for tools/call.
type CallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// CallToolResult is the envelope returned from invoking a tool.
type CallToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// Content is one content block in a tool result.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ListToolsResult is the result for tools/list.
type ListToolsResult struct {
	Tools []ToolInfo `json:"tools"`
}

// ToolInfo is one catalog entry as rendered on the wire.
type ToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// Config holds configuration for the server.
type Config struct {
	Coordinator *coordinator.Coordinator
	Dispatcher  *hooks.Dispatcher
	Logger      *slog.Logger
	Worktrees   WorktreeService // optional; list_repos and friends error without it
	Display     DisplayService  // optional; display tools error without it
}

// Server terminates HTTP for the JSON-RPC protocol and the lifecycle-hook
// REST endpoints, routing everything into the coordinator and the hook
// dispatch layer.
type Server struct {
	coord     *coordinator.Coordinator
	dispatch  *hooks.Dispatcher
	logger    *slog.Logger
	tools     []*Tool
	toolIndex map[string]*Tool
}

// NewServer creates a server with the given configuration.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Coordinator == nil {
		return nil, errors.New("coordinator is required")
	}
	if cfg.Dispatcher == nil {
		return nil, errors.New("hook dispatcher is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		coord:    cfg.Coordinator,
		dispatch: cfg.Dispatcher,
		logger:   logger,
	}
	s.tools = s.buildCatalog(cfg.Worktrees, cfg.Display)
	s.toolIndex = make(map[string]*Tool, len(s.tools))
	for _, t := range s.tools {
		s.toolIndex[t.Name] = t
	}
	return s, nil
}

// RegisterRoutes registers all endpoints on the given ServeMux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/mcp", s.handleMCP)
	mux.HandleFunc("/api/v1/agent/register", s.handleRegisterHook)
	mux.HandleFunc("/api/v1/agent/status", s.handleStatusHook)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
}

// handleMCP is the single MCP endpoint.
func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handlePost(w, r)
	case http.MethodGet:
		s.handleGet(w, r)
	default:
		w.Header().Set("Allow", "POST, GET")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}

// handleGet returns a single connected event frame. No persistent push
// channel is implemented.
func (s *Server) handleGet(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	fmt.Fprint(w, "event: connected\ndata: {}\n\n")
}

// handlePost processes one JSON-RPC message.
func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBodySize+1))
	if err != nil || int64(len(body)) > MaxRequestBodySize {
		s.writeError(w, r, nil, JSONRPCParseError, "failed to read request body")
		return
	}

	var req JSONRPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, r, nil, JSONRPCParseError, "invalid JSON")
		return
	}

	isNotification := len(req.ID) == 0 || string(req.ID) == "null"

	s.logger.Debug("rpc request",
		"method", req.Method,
		"is_notification", isNotification,
	)

	// Notifications never receive a correlated reply body.
	if strings.HasPrefix(req.Method, notificationPrefix) || isNotification {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	// Session correlation: reuse the caller's token, or mint a fresh one
	// when it is absent or the caller is (re)initializing.
	sessionToken := r.Header.Get("Mcp-Session-Id")
	if sessionToken == "" || req.Method == "initialize" {
		sessionToken = uuid.New().String()
	}

	switch req.Method {
	case "initialize":
		s.writeResult(w, r, sessionToken, req.ID, map[string]any{
			"protocolVersion": protocolVersion,
			"capabilities": map[string]any{
				"tools": map[string]any{},
			},
			"serverInfo": map[string]any{
				"name":    "skwad",
				"version": "1.0.0",
			},
		})
	case "tools/list":
		s.handleToolsList(w, r, sessionToken, req)
	case "tools/call":
		s.handleToolsCall(w, r, sessionToken, req)
	case "shutdown":
		s.writeResult(w, r, sessionToken, req.ID, map[string]any{})
	default:
		s.writeError(w, r, req.ID, JSONRPCMethodNotFound, "method not found")
	}
}

// handleToolsList renders the static tool catalog.
func (s *Server) handleToolsList(w http.ResponseWriter, r *http.Request, sessionToken string, req JSONRPCRequest) {
	result := ListToolsResult{Tools: make([]ToolInfo, len(s.tools))}
	for i, t := range s.tools {
		result.Tools[i] = ToolInfo{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: json.RawMessage(t.InputSchema),
		}
	}
	s.writeResult(w, r, sessionToken, req.ID, result)
}

// handleToolsCall validates params and invokes the named tool. Domain
// failures come back as textual isError results, not JSON-RPC errors.
func (s *Server) handleToolsCall(w http.ResponseWriter, r *http.Request, sessionToken string, req JSONRPCRequest) {
	var params CallToolParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			s.writeError(w, r, req.ID, JSONRPCInvalidParams, "invalid params")
			return
		}
	}
	if params.Name == "" {
		s.writeError(w, r, req.ID, JSONRPCInvalidParams, "tool name is required")
		return
	}

	tool, ok := s.toolIndex[params.Name]
	if !ok {
		s.writeError(w, r, req.ID, JSONRPCInvalidParams, "tool not found")
		return
	}

	args := params.Arguments
	if len(args) == 0 || string(args) == "null" {
		args = json.RawMessage("{}")
	}

	if missing := missingRequired(tool.Required, args); missing != "" {
		s.writeResult(w, r, sessionToken, req.ID, errorResult(fmt.Sprintf("missing required parameter: %s", missing)))
		return
	}

	text, err := tool.Handler(r.Context(), args)
	if err != nil {
		s.logger.Debug("tool call failed", "tool", params.Name, "error", err)
		s.writeResult(w, r, sessionToken, req.ID, errorResult(err.Error()))
		return
	}
	s.writeResult(w, r, sessionToken, req.ID, textResult(text))
}

// missingRequired returns the first required parameter absent from args.
func missingRequired(required []string, args json.RawMessage) string {
	if len(required) == 0 {
		return ""
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(args, &m); err != nil {
		return required[0]
	}
	for _, key := range required {
		if raw, ok := m[key]; !ok || string(raw) == "null" || string(raw) == `""` {
			return key
		}
	}
	return ""
}

func textResult(text string) CallToolResult {
	return CallToolResult{Content: []Content{{Type: "text", Text: text}}}
}

func errorResult(text string) CallToolResult {
	return CallToolResult{Content: []Content{{Type: "text", Text: text}}, IsError: true}
}

// wantsEventStream reports whether the caller negotiated an SSE reply.
func wantsEventStream(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

// writeResult sends a successful JSON-RPC response, tagged with the session
// token. When the caller accepts an event stream the one reply is wrapped as
// a single SSE frame with identical payload.
func (s *Server) writeResult(w http.ResponseWriter, r *http.Request, sessionToken string, id json.RawMessage, result any) {
	resp := JSONRPCResponse{JSONRPC: "2.0", ID: id, Result: result}
	w.Header().Set("Mcp-Session-Id", sessionToken)
	s.writeResponse(w, r, resp)
}

// writeError sends a JSON-RPC error response. Parse errors additionally get
// HTTP 400 so curl-level callers see the failure without decoding the body.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, id json.RawMessage, code int, message string) {
	resp := JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &JSONRPCError{Code: code, Message: message},
	}
	if code == JSONRPCParseError {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			s.logger.Warn("failed to encode JSON-RPC error response", "error", err)
		}
		return
	}
	s.writeResponse(w, r, resp)
}

func (s *Server) writeResponse(w http.ResponseWriter, r *http.Request, resp JSONRPCResponse) {
	if wantsEventStream(r) {
		payload, err := json.Marshal(resp)
		if err != nil {
			s.logger.Warn("failed to encode JSON-RPC response", "error", err)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintf(w, "event: message\ndata: %s\n\n", payload)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("failed to encode JSON-RPC response", "error", err)
	}
}
