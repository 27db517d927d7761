// ABOUTME: Static tool catalog backed by the coordinator and host collaborators.
// ABOUTME: Core messaging tools plus delegating worktree and display tools.

package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/yuin/goldmark"

	"github.com/Kochava-Studios/skwad/internal/msgstore"
)

// Tool is one catalog entry: wire-visible descriptor plus its handler.
// Handlers return the text content of the result; an error becomes a
// textual isError result, never a JSON-RPC error.
type Tool struct {
	Name        string
	Description string
	InputSchema string
	Required    []string
	Handler     func(ctx context.Context, args json.RawMessage) (string, error)
}

// WorktreeService is the out-of-scope git collaborator behind the repo and
// worktree tools.
type WorktreeService interface {
	ListRepos(ctx context.Context) ([]string, error)
	ListWorktrees(ctx context.Context, repo string) ([]string, error)
	CreateWorktree(ctx context.Context, repo, branch string) (string, error)
}

// DisplayService is the out-of-scope UI collaborator behind the display
// tools. Markdown arrives already rendered to HTML.
type DisplayService interface {
	ShowMarkdown(ctx context.Context, title, html string) error
	ShowMermaid(ctx context.Context, source string) error
}

// buildCatalog constructs the static tool catalog once at server startup.
func (s *Server) buildCatalog(worktrees WorktreeService, display DisplayService) []*Tool {
	md := goldmark.New()

	return []*Tool{
		{
			Name:        "register_agent",
			Description: "Register this agent with the workspace coordinator",
			InputSchema: `{"type":"object","properties":{"agent_id":{"type":"string"},"session_id":{"type":"string"}},"required":["agent_id"]}`,
			Required:    []string{"agent_id"},
			Handler: func(ctx context.Context, args json.RawMessage) (string, error) {
				var in struct {
					AgentID   string `json:"agent_id"`
					SessionID string `json:"session_id"`
				}
				if err := json.Unmarshal(args, &in); err != nil {
					return "", fmt.Errorf("invalid input: %w", err)
				}
				if !s.coord.Register(ctx, in.AgentID, in.SessionID) {
					return "", fmt.Errorf("unknown agent %q", in.AgentID)
				}
				return "registered", nil
			},
		},
		{
			Name:        "list_agents",
			Description: "List the agents in your workspace",
			InputSchema: `{"type":"object","properties":{"agent_id":{"type":"string"}},"required":["agent_id"]}`,
			Required:    []string{"agent_id"},
			Handler: func(ctx context.Context, args json.RawMessage) (string, error) {
				var in struct {
					AgentID string `json:"agent_id"`
				}
				if err := json.Unmarshal(args, &in); err != nil {
					return "", fmt.Errorf("invalid input: %w", err)
				}
				type row struct {
					ID         string `json:"id"`
					Name       string `json:"name"`
					Status     string `json:"status"`
					Registered bool   `json:"registered"`
				}
				var rows []row
				for _, a := range s.coord.ListAgents(ctx, in.AgentID) {
					rows = append(rows, row{ID: a.ID, Name: a.Name, Status: string(a.Status), Registered: a.Registered})
				}
				return marshalText(map[string]any{"agents": rows, "count": len(rows)})
			},
		},
		{
			Name:        "send_message",
			Description: "Send a message to another agent in your workspace",
			InputSchema: `{"type":"object","properties":{"agent_id":{"type":"string"},"to":{"type":"string"},"message":{"type":"string"}},"required":["agent_id","to","message"]}`,
			Required:    []string{"agent_id", "to", "message"},
			Handler: func(ctx context.Context, args json.RawMessage) (string, error) {
				var in struct {
					AgentID string `json:"agent_id"`
					To      string `json:"to"`
					Message string `json:"message"`
				}
				if err := json.Unmarshal(args, &in); err != nil {
					return "", fmt.Errorf("invalid input: %w", err)
				}
				if !s.coord.Send(ctx, in.AgentID, in.To, in.Message) {
					return "", fmt.Errorf("could not deliver message to %q", in.To)
				}
				return "sent", nil
			},
		},
		{
			Name:        "check_messages",
			Description: "Read your unread messages, marking them read",
			InputSchema: `{"type":"object","properties":{"agent_id":{"type":"string"},"mark_read":{"type":"boolean"}},"required":["agent_id"]}`,
			Required:    []string{"agent_id"},
			Handler: func(ctx context.Context, args json.RawMessage) (string, error) {
				in := struct {
					AgentID  string `json:"agent_id"`
					MarkRead *bool  `json:"mark_read"`
				}{}
				if err := json.Unmarshal(args, &in); err != nil {
					return "", fmt.Errorf("invalid input: %w", err)
				}
				markRead := in.MarkRead == nil || *in.MarkRead
				msgs := s.coord.CheckMessages(ctx, in.AgentID, markRead)
				if msgs == nil {
					msgs = []*msgstore.Message{}
				}
				return marshalText(map[string]any{"messages": msgs, "count": len(msgs)})
			},
		},
		{
			Name:        "broadcast_message",
			Description: "Send a message to every registered agent in your workspace",
			InputSchema: `{"type":"object","properties":{"agent_id":{"type":"string"},"message":{"type":"string"}},"required":["agent_id","message"]}`,
			Required:    []string{"agent_id", "message"},
			Handler: func(ctx context.Context, args json.RawMessage) (string, error) {
				var in struct {
					AgentID string `json:"agent_id"`
					Message string `json:"message"`
				}
				if err := json.Unmarshal(args, &in); err != nil {
					return "", fmt.Errorf("invalid input: %w", err)
				}
				count := s.coord.Broadcast(ctx, in.AgentID, in.Message)
				if count == 0 {
					return "", fmt.Errorf("broadcast reached no one")
				}
				return marshalText(map[string]any{"recipients": count})
			},
		},
		{
			Name:        "create_agent",
			Description: "Launch a new agent in a workspace",
			InputSchema: `{"type":"object","properties":{"name":{"type":"string"},"workspace":{"type":"string"}},"required":["name"]}`,
			Required:    []string{"name"},
			Handler: func(ctx context.Context, args json.RawMessage) (string, error) {
				var in struct {
					Name      string `json:"name"`
					Workspace string `json:"workspace"`
				}
				if err := json.Unmarshal(args, &in); err != nil {
					return "", fmt.Errorf("invalid input: %w", err)
				}
				agent, err := s.coord.CreateAgent(ctx, in.Name, in.Workspace)
				if err != nil {
					return "", err
				}
				return marshalText(map[string]string{"id": agent.ID, "name": agent.Name})
			},
		},
		{
			Name:        "close_agent",
			Description: "Close an agent and remove it from the workspace",
			InputSchema: `{"type":"object","properties":{"agent_id":{"type":"string"}},"required":["agent_id"]}`,
			Required:    []string{"agent_id"},
			Handler: func(ctx context.Context, args json.RawMessage) (string, error) {
				var in struct {
					AgentID string `json:"agent_id"`
				}
				if err := json.Unmarshal(args, &in); err != nil {
					return "", fmt.Errorf("invalid input: %w", err)
				}
				if !s.coord.CloseAgent(ctx, in.AgentID) {
					return "", fmt.Errorf("unknown agent %q", in.AgentID)
				}
				return "closed", nil
			},
		},
		{
			Name:        "list_repos",
			Description: "List the git repositories known to the workspace",
			InputSchema: `{"type":"object","properties":{}}`,
			Handler: func(ctx context.Context, _ json.RawMessage) (string, error) {
				if worktrees == nil {
					return "", fmt.Errorf("no worktree service attached")
				}
				repos, err := worktrees.ListRepos(ctx)
				if err != nil {
					return "", err
				}
				return marshalText(map[string]any{"repos": repos})
			},
		},
		{
			Name:        "list_worktrees",
			Description: "List the worktrees of a repository",
			InputSchema: `{"type":"object","properties":{"repo":{"type":"string"}},"required":["repo"]}`,
			Required:    []string{"repo"},
			Handler: func(ctx context.Context, args json.RawMessage) (string, error) {
				if worktrees == nil {
					return "", fmt.Errorf("no worktree service attached")
				}
				var in struct {
					Repo string `json:"repo"`
				}
				if err := json.Unmarshal(args, &in); err != nil {
					return "", fmt.Errorf("invalid input: %w", err)
				}
				trees, err := worktrees.ListWorktrees(ctx, in.Repo)
				if err != nil {
					return "", err
				}
				return marshalText(map[string]any{"worktrees": trees})
			},
		},
		{
			Name:        "create_worktree",
			Description: "Create a new worktree on a branch of a repository",
			InputSchema: `{"type":"object","properties":{"repo":{"type":"string"},"branch":{"type":"string"}},"required":["repo","branch"]}`,
			Required:    []string{"repo", "branch"},
			Handler: func(ctx context.Context, args json.RawMessage) (string, error) {
				if worktrees == nil {
					return "", fmt.Errorf("no worktree service attached")
				}
				var in struct {
					Repo   string `json:"repo"`
					Branch string `json:"branch"`
				}
				if err := json.Unmarshal(args, &in); err != nil {
					return "", fmt.Errorf("invalid input: %w", err)
				}
				path, err := worktrees.CreateWorktree(ctx, in.Repo, in.Branch)
				if err != nil {
					return "", err
				}
				return marshalText(map[string]string{"path": path})
			},
		},
		{
			Name:        "display_markdown",
			Description: "Render markdown and show it in the operator's window",
			InputSchema: `{"type":"object","properties":{"title":{"type":"string"},"markdown":{"type":"string"}},"required":["markdown"]}`,
			Required:    []string{"markdown"},
			Handler: func(ctx context.Context, args json.RawMessage) (string, error) {
				if display == nil {
					return "", fmt.Errorf("no display service attached")
				}
				var in struct {
					Title    string `json:"title"`
					Markdown string `json:"markdown"`
				}
				if err := json.Unmarshal(args, &in); err != nil {
					return "", fmt.Errorf("invalid input: %w", err)
				}
				var buf bytes.Buffer
				if err := md.Convert([]byte(in.Markdown), &buf); err != nil {
					return "", fmt.Errorf("rendering markdown: %w", err)
				}
				if err := display.ShowMarkdown(ctx, in.Title, buf.String()); err != nil {
					return "", err
				}
				return "displayed", nil
			},
		},
		{
			Name:        "view_mermaid",
			Description: "Show a mermaid diagram in the operator's window",
			InputSchema: `{"type":"object","properties":{"source":{"type":"string"}},"required":["source"]}`,
			Required:    []string{"source"},
			Handler: func(ctx context.Context, args json.RawMessage) (string, error) {
				if display == nil {
					return "", fmt.Errorf("no display service attached")
				}
				var in struct {
					Source string `json:"source"`
				}
				if err := json.Unmarshal(args, &in); err != nil {
					return "", fmt.Errorf("invalid input: %w", err)
				}
				if err := display.ShowMermaid(ctx, in.Source); err != nil {
					return "", err
				}
				return "displayed", nil
			},
		},
	}
}

func marshalText(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encoding result: %w", err)
	}
	return string(data), nil
}
