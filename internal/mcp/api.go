// ABOUTME: Lifecycle-hook REST endpoints plus the health and debug surfaces.
// ABOUTME: Routes hook payloads to the flavor handler named by the discriminator.

package mcp

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// hookRequest is the shared shape of both hook endpoint bodies. The full raw
// body is what gets handed to the flavor handler; these fields are only what
// the transport itself needs for routing.
type hookRequest struct {
	AgentID string `json:"agent_id"`
	Agent   string `json:"agent"`
}

// RegisterResponse is the JSON response for POST /api/v1/agent/register.
// Workspace members ride along so a newly registered agent can populate its
// context without a second round trip.
type RegisterResponse struct {
	Success            bool              `json:"success"`
	Message            string            `json:"message"`
	UnreadMessageCount int               `json:"unread_message_count"`
	WorkspaceMembers   []WorkspaceMember `json:"workspace_members"`
}

// WorkspaceMember is one live workspace-mate in a register response.
type WorkspaceMember struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// handleRegisterHook handles POST /api/v1/agent/register.
func (s *Server) handleRegisterHook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body, req, ok := s.readHookBody(w, r)
	if !ok {
		return
	}

	agent, ok := s.coord.FindAgent(r.Context(), req.AgentID)
	if !ok {
		s.sendJSONError(w, http.StatusBadRequest, "missing or invalid agent id")
		return
	}

	handler, ok := s.dispatch.Handler(req.Agent)
	if !ok {
		s.sendJSONError(w, http.StatusBadRequest, fmt.Sprintf("unknown agent flavor %q", req.Agent))
		return
	}

	// Hooks are also our chance to shed stale state.
	defer s.coord.SweepSessions(r.Context())

	if !handler.HandleRegistration(r.Context(), agent.ID, body) {
		s.sendJSONError(w, http.StatusNotFound, "unknown agent")
		return
	}

	var members []WorkspaceMember
	for _, peer := range s.coord.ListAgents(r.Context(), agent.ID) {
		if peer.ID == agent.ID || !peer.Registered {
			continue
		}
		members = append(members, WorkspaceMember{
			ID:     peer.ID,
			Name:   peer.Name,
			Status: string(peer.Status),
		})
	}

	resp := RegisterResponse{
		Success:            true,
		Message:            fmt.Sprintf("agent %s registered", agent.Name),
		UnreadMessageCount: len(s.coord.CheckMessages(r.Context(), agent.ID, false)),
		WorkspaceMembers:   members,
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("failed to encode register response", "error", err)
	}
}

// handleStatusHook handles POST /api/v1/agent/status.
func (s *Server) handleStatusHook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body, req, ok := s.readHookBody(w, r)
	if !ok {
		return
	}

	agent, ok := s.coord.FindAgent(r.Context(), req.AgentID)
	if !ok {
		s.sendJSONError(w, http.StatusBadRequest, "missing or invalid agent id")
		return
	}

	handler, ok := s.dispatch.Handler(req.Agent)
	if !ok {
		s.sendJSONError(w, http.StatusBadRequest, fmt.Sprintf("unknown agent flavor %q", req.Agent))
		return
	}

	defer s.coord.SweepSessions(r.Context())

	status, ok := handler.HandleActivity(r.Context(), agent.ID, body)
	if !ok {
		s.sendJSONError(w, http.StatusBadRequest, "unrecognized status")
		return
	}
	s.coord.UpdateStatus(r.Context(), agent.ID, status)

	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintln(w, "OK")
}

// readHookBody reads and decodes a hook body, writing the 400 responses for
// malformed input itself. The raw bytes are returned for the flavor handler.
func (s *Server) readHookBody(w http.ResponseWriter, r *http.Request) ([]byte, hookRequest, bool) {
	var req hookRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBodySize))
	if err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "failed to read body")
		return nil, req, false
	}
	if err := json.Unmarshal(body, &req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "failed to read body")
		return nil, req, false
	}
	if req.AgentID == "" {
		s.sendJSONError(w, http.StatusBadRequest, "missing or invalid agent id")
		return nil, req, false
	}
	return body, req, true
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintln(w, "OK")
}

// handleStatus handles GET /status: a debug snapshot of every agent and its
// coordinator-visible state, for operator inspection only.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	snap := s.coord.Snapshot(r.Context())
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		s.logger.Warn("failed to encode status snapshot", "error", err)
	}
}

// sendJSONError writes a JSON error body with the given HTTP status.
func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"success": false, "error": message})
}
