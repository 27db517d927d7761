// ABOUTME: Tests for the JSON-RPC protocol surface of the MCP server.
// ABOUTME: Validates framing, session tokens, SSE negotiation, and tool calls.

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Kochava-Studios/skwad/internal/coordinator"
	"github.com/Kochava-Studios/skwad/internal/directory"
	"github.com/Kochava-Studios/skwad/internal/hooks"
)

// fakeWorktrees implements WorktreeService for testing.
type fakeWorktrees struct {
	repos []string
	err   error
}

func (f *fakeWorktrees) ListRepos(context.Context) ([]string, error) {
	return f.repos, f.err
}

func (f *fakeWorktrees) ListWorktrees(_ context.Context, repo string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []string{repo + "/main"}, nil
}

func (f *fakeWorktrees) CreateWorktree(_ context.Context, repo, branch string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return repo + "/" + branch, nil
}

// fakeDisplay implements DisplayService for testing.
type fakeDisplay struct {
	markdownHTML string
}

func (f *fakeDisplay) ShowMarkdown(_ context.Context, _, html string) error {
	f.markdownHTML = html
	return nil
}

func (f *fakeDisplay) ShowMermaid(context.Context, string) error { return nil }

// setupTestServer wires a server over an in-memory directory with one
// workspace of two agents.
func setupTestServer(t *testing.T) (*http.ServeMux, *directory.MemoryDirectory, *coordinator.Coordinator) {
	t.Helper()

	dir := directory.NewMemoryDirectory()
	coord := coordinator.New(coordinator.Config{Directory: dir, Logger: slog.Default()})
	for _, a := range []*directory.Agent{
		{ID: "a1", Name: "Alice", Workspace: "ws", Status: directory.StatusRunning},
		{ID: "a2", Name: "Bob", Workspace: "ws", Status: directory.StatusRunning},
	} {
		if _, err := dir.AddAgent(context.Background(), a); err != nil {
			t.Fatalf("failed to add agent: %v", err)
		}
	}

	dispatcher := hooks.NewDispatcher(hooks.Deps{
		Coordinator: coord,
		Directory:   dir,
		Logger:      slog.Default(),
	})

	server, err := NewServer(Config{
		Coordinator: coord,
		Dispatcher:  dispatcher,
		Logger:      slog.Default(),
		Worktrees:   &fakeWorktrees{repos: []string{"skwad"}},
		Display:     &fakeDisplay{},
	})
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	mux := http.NewServeMux()
	server.RegisterRoutes(mux)
	return mux, dir, coord
}

// postRPC sends one JSON-RPC message and returns the recorder.
func postRPC(t *testing.T, mux *http.ServeMux, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	return rr
}

func decodeRPC(t *testing.T, rr *httptest.ResponseRecorder) JSONRPCResponse {
	t.Helper()
	var resp JSONRPCResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp
}

func TestHandlePost_ParseError(t *testing.T) {
	mux, _, _ := setupTestServer(t)

	rr := postRPC(t, mux, `{not json`, nil)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, rr.Code)
	}
	resp := decodeRPC(t, rr)
	if resp.Error == nil || resp.Error.Code != JSONRPCParseError {
		t.Errorf("expected parse error %d, got %+v", JSONRPCParseError, resp.Error)
	}
}

func TestHandlePost_Notifications(t *testing.T) {
	mux, _, _ := setupTestServer(t)

	cases := map[string]string{
		"notifications method": `{"jsonrpc":"2.0","id":1,"method":"notifications/initialized"}`,
		"absent id":            `{"jsonrpc":"2.0","method":"tools/list"}`,
		"null id":              `{"jsonrpc":"2.0","id":null,"method":"tools/list"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rr := postRPC(t, mux, body, nil)
			if rr.Code != http.StatusAccepted {
				t.Errorf("expected status %d, got %d", http.StatusAccepted, rr.Code)
			}
			if rr.Body.Len() != 0 {
				t.Errorf("expected empty body, got %q", rr.Body.String())
			}
		})
	}
}

func TestHandlePost_MethodNotFound(t *testing.T) {
	mux, _, _ := setupTestServer(t)

	rr := postRPC(t, mux, `{"jsonrpc":"2.0","id":7,"method":"resources/list"}`, nil)

	if rr.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	resp := decodeRPC(t, rr)
	if resp.Error == nil || resp.Error.Code != JSONRPCMethodNotFound {
		t.Errorf("expected error %d, got %+v", JSONRPCMethodNotFound, resp.Error)
	}
	if string(resp.ID) != "7" {
		t.Errorf("expected id 7 echoed back, got %s", resp.ID)
	}
}

func TestHandlePost_Initialize(t *testing.T) {
	mux, _, _ := setupTestServer(t)

	rr := postRPC(t, mux, `{"jsonrpc":"2.0","id":1,"method":"initialize"}`, nil)

	resp := decodeRPC(t, rr)
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	result, ok := resp.Result.(map[string]any)
	if !ok {
		t.Fatalf("expected object result, got %T", resp.Result)
	}
	if result["protocolVersion"] != protocolVersion {
		t.Errorf("expected protocol version %q, got %v", protocolVersion, result["protocolVersion"])
	}
	if rr.Header().Get("Mcp-Session-Id") == "" {
		t.Error("expected a minted session token")
	}
}

func TestSessionToken_ReusedWhenPresent(t *testing.T) {
	mux, _, _ := setupTestServer(t)

	rr := postRPC(t, mux, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`,
		map[string]string{"Mcp-Session-Id": "token-123"})

	if got := rr.Header().Get("Mcp-Session-Id"); got != "token-123" {
		t.Errorf("expected caller's token echoed, got %q", got)
	}
}

func TestSessionToken_InitializeMintsFresh(t *testing.T) {
	mux, _, _ := setupTestServer(t)

	rr := postRPC(t, mux, `{"jsonrpc":"2.0","id":1,"method":"initialize"}`,
		map[string]string{"Mcp-Session-Id": "stale-token"})

	if got := rr.Header().Get("Mcp-Session-Id"); got == "" || got == "stale-token" {
		t.Errorf("expected a fresh token on initialize, got %q", got)
	}
}

func TestHandleToolsList(t *testing.T) {
	mux, _, _ := setupTestServer(t)

	rr := postRPC(t, mux, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`, nil)

	resp := decodeRPC(t, rr)
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	raw, _ := json.Marshal(resp.Result)
	var result ListToolsResult
	if err := json.Unmarshal(raw, &result); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	if len(result.Tools) == 0 {
		t.Fatal("expected a non-empty tool catalog")
	}
	names := make(map[string]bool)
	for _, ti := range result.Tools {
		names[ti.Name] = true
		if len(ti.InputSchema) == 0 {
			t.Errorf("tool %s has no input schema", ti.Name)
		}
	}
	for _, want := range []string{"register_agent", "send_message", "check_messages", "broadcast_message", "display_markdown"} {
		if !names[want] {
			t.Errorf("catalog missing tool %s", want)
		}
	}
}

func TestHandleToolsCall_Validation(t *testing.T) {
	mux, _, _ := setupTestServer(t)

	t.Run("missing tool name", func(t *testing.T) {
		rr := postRPC(t, mux, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{}}`, nil)
		resp := decodeRPC(t, rr)
		if resp.Error == nil || resp.Error.Code != JSONRPCInvalidParams {
			t.Errorf("expected error %d, got %+v", JSONRPCInvalidParams, resp.Error)
		}
	})

	t.Run("unknown tool", func(t *testing.T) {
		rr := postRPC(t, mux, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"no_such_tool"}}`, nil)
		resp := decodeRPC(t, rr)
		if resp.Error == nil || resp.Error.Code != JSONRPCInvalidParams {
			t.Errorf("expected error %d, got %+v", JSONRPCInvalidParams, resp.Error)
		}
	})

	t.Run("missing required argument is a tool error", func(t *testing.T) {
		rr := postRPC(t, mux, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"send_message","arguments":{"agent_id":"a1"}}}`, nil)
		resp := decodeRPC(t, rr)
		if resp.Error != nil {
			t.Fatalf("expected a result envelope, got RPC error %+v", resp.Error)
		}
		result := decodeToolResult(t, resp)
		if !result.IsError {
			t.Error("expected isError result")
		}
		if !strings.Contains(result.Content[0].Text, "to") {
			t.Errorf("expected the missing parameter named, got %q", result.Content[0].Text)
		}
	})
}

func decodeToolResult(t *testing.T, resp JSONRPCResponse) CallToolResult {
	t.Helper()
	raw, _ := json.Marshal(resp.Result)
	var result CallToolResult
	if err := json.Unmarshal(raw, &result); err != nil {
		t.Fatalf("failed to decode tool result: %v", err)
	}
	return result
}

func callTool(t *testing.T, mux *http.ServeMux, name, args string) CallToolResult {
	t.Helper()
	body := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"` + name + `","arguments":` + args + `}}`
	rr := postRPC(t, mux, body, nil)
	resp := decodeRPC(t, rr)
	if resp.Error != nil {
		t.Fatalf("unexpected RPC error: %+v", resp.Error)
	}
	return decodeToolResult(t, resp)
}

func TestToolFlow_RegisterSendCheck(t *testing.T) {
	mux, _, _ := setupTestServer(t)

	for _, id := range []string{"a1", "a2"} {
		result := callTool(t, mux, "register_agent", `{"agent_id":"`+id+`"}`)
		if result.IsError {
			t.Fatalf("register %s failed: %s", id, result.Content[0].Text)
		}
	}

	result := callTool(t, mux, "send_message", `{"agent_id":"a1","to":"Bob","message":"ping"}`)
	if result.IsError {
		t.Fatalf("send failed: %s", result.Content[0].Text)
	}

	result = callTool(t, mux, "check_messages", `{"agent_id":"a2"}`)
	if result.IsError {
		t.Fatalf("check failed: %s", result.Content[0].Text)
	}
	var payload struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal([]byte(result.Content[0].Text), &payload); err != nil {
		t.Fatalf("failed to decode check payload: %v", err)
	}
	if payload.Count != 1 {
		t.Errorf("expected 1 unread message, got %d", payload.Count)
	}

	// Second check comes back empty.
	result = callTool(t, mux, "check_messages", `{"agent_id":"a2"}`)
	if err := json.Unmarshal([]byte(result.Content[0].Text), &payload); err != nil {
		t.Fatalf("failed to decode check payload: %v", err)
	}
	if payload.Count != 0 {
		t.Errorf("expected 0 unread messages after read, got %d", payload.Count)
	}
}

func TestToolFlow_SendToStrangerIsError(t *testing.T) {
	mux, _, _ := setupTestServer(t)

	callTool(t, mux, "register_agent", `{"agent_id":"a1"}`)
	result := callTool(t, mux, "send_message", `{"agent_id":"a1","to":"Mallory","message":"hi"}`)
	if !result.IsError {
		t.Error("expected isError for unknown recipient")
	}
}

func TestToolFlow_ListAgents(t *testing.T) {
	mux, _, _ := setupTestServer(t)

	callTool(t, mux, "register_agent", `{"agent_id":"a1"}`)
	result := callTool(t, mux, "list_agents", `{"agent_id":"a1"}`)
	if result.IsError {
		t.Fatalf("list failed: %s", result.Content[0].Text)
	}
	var payload struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal([]byte(result.Content[0].Text), &payload); err != nil {
		t.Fatalf("failed to decode list payload: %v", err)
	}
	if payload.Count != 2 {
		t.Errorf("expected both workspace agents listed, got %d", payload.Count)
	}
}

func TestToolFlow_WorktreesAndDisplay(t *testing.T) {
	mux, _, _ := setupTestServer(t)

	result := callTool(t, mux, "list_repos", `{}`)
	if result.IsError {
		t.Fatalf("list_repos failed: %s", result.Content[0].Text)
	}
	if !strings.Contains(result.Content[0].Text, "skwad") {
		t.Errorf("expected repo listed, got %q", result.Content[0].Text)
	}

	result = callTool(t, mux, "create_worktree", `{"repo":"skwad","branch":"feat"}`)
	if result.IsError {
		t.Fatalf("create_worktree failed: %s", result.Content[0].Text)
	}

	result = callTool(t, mux, "display_markdown", `{"title":"T","markdown":"# hello"}`)
	if result.IsError {
		t.Fatalf("display_markdown failed: %s", result.Content[0].Text)
	}
}

func TestToolError_ServiceFailure(t *testing.T) {
	dir := directory.NewMemoryDirectory()
	coord := coordinator.New(coordinator.Config{Directory: dir, Logger: slog.Default()})
	dispatcher := hooks.NewDispatcher(hooks.Deps{Coordinator: coord, Directory: dir, Logger: slog.Default()})
	server, err := NewServer(Config{
		Coordinator: coord,
		Dispatcher:  dispatcher,
		Logger:      slog.Default(),
		Worktrees:   &fakeWorktrees{err: errors.New("git unavailable")},
	})
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	mux := http.NewServeMux()
	server.RegisterRoutes(mux)

	result := callTool(t, mux, "list_repos", `{}`)
	if !result.IsError {
		t.Fatal("expected isError result")
	}
	if !strings.Contains(result.Content[0].Text, "git unavailable") {
		t.Errorf("expected the service error surfaced, got %q", result.Content[0].Text)
	}
}

func TestSSENegotiation(t *testing.T) {
	mux, _, _ := setupTestServer(t)

	rr := postRPC(t, mux, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`,
		map[string]string{"Accept": "text/event-stream"})

	if ct := rr.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("expected event-stream content type, got %q", ct)
	}
	body := rr.Body.String()
	if !strings.HasPrefix(body, "event: message\ndata: ") {
		t.Errorf("expected a single SSE frame, got %q", body)
	}
	payload := strings.TrimSuffix(strings.TrimPrefix(body, "event: message\ndata: "), "\n\n")
	var resp JSONRPCResponse
	if err := json.Unmarshal([]byte(payload), &resp); err != nil {
		t.Fatalf("SSE data is not a JSON-RPC response: %v", err)
	}
	if resp.Error != nil {
		t.Errorf("unexpected error in SSE payload: %+v", resp.Error)
	}
}

func TestHandleGet_ConnectedFrame(t *testing.T) {
	mux, _, _ := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if ct := rr.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("expected event-stream content type, got %q", ct)
	}
	if got := rr.Body.String(); got != "event: connected\ndata: {}\n\n" {
		t.Errorf("unexpected frame: %q", got)
	}
}

func TestHandleMCP_MethodNotAllowed(t *testing.T) {
	mux, _, _ := setupTestServer(t)

	req := httptest.NewRequest(http.MethodDelete, "/mcp", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status %d, got %d", http.StatusMethodNotAllowed, rr.Code)
	}
}
