// ABOUTME: Codex-flavored hook handler.
// ABOUTME: Only agent-turn-complete notify events are recognized; status is always idle.

package hooks

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/Kochava-Studios/skwad/internal/autopilot"
	"github.com/Kochava-Studios/skwad/internal/coordinator"
	"github.com/Kochava-Studios/skwad/internal/directory"
	"github.com/Kochava-Studios/skwad/internal/notify"
)

type codexMeta struct {
	Cwd      string `json:"cwd"`
	ThreadID string `json:"thread_id"`
	TurnID   string `json:"turn_id"`
}

type codexBody struct {
	codexMeta
	Hook                 string     `json:"hook"`
	Type                 string     `json:"type"`
	LastAssistantMessage string     `json:"last-assistant-message"`
	Payload              *codexBody `json:"payload"`
}

// CodexHandler reconciles Codex lifecycle hooks. Codex has no startup/resume
// split; the interesting event is the end-of-turn notify, which carries the
// last assistant message directly in the payload.
type CodexHandler struct {
	coord      *coordinator.Coordinator
	dir        directory.Directory
	notifier   notify.Notifier
	classifier autopilot.Classifier
	settings   autopilot.Settings
	logger     *slog.Logger
}

// NewCodexHandler builds the codex-flavored handler.
func NewCodexHandler(deps Deps) *CodexHandler {
	return &CodexHandler{
		coord:      deps.Coordinator,
		dir:        deps.Directory,
		notifier:   deps.Notifier,
		classifier: deps.Classifier,
		settings:   deps.Autopilot,
		logger:     deps.Logger,
	}
}

// HandleRegistration merges metadata and registers with the thread ID as the
// session identifier.
func (h *CodexHandler) HandleRegistration(ctx context.Context, agentID string, payload []byte) bool {
	var body codexBody
	if err := json.Unmarshal(payload, &body); err != nil {
		h.logger.Debug("unparseable codex registration hook", "agent_id", agentID, "error", err)
		return false
	}
	body = flattenCodex(body)
	h.mergeMetadata(ctx, agentID, body.codexMeta)
	return h.coord.Register(ctx, agentID, body.ThreadID)
}

// HandleActivity recognizes only notify hooks whose embedded type is
// agent-turn-complete; everything else is no status change. The resolved
// status is unconditionally idle and no transcript file is consulted.
func (h *CodexHandler) HandleActivity(ctx context.Context, agentID string, payload []byte) (directory.Status, bool) {
	var body codexBody
	if err := json.Unmarshal(payload, &body); err != nil {
		h.logger.Debug("unparseable codex activity hook", "agent_id", agentID, "error", err)
		return "", false
	}
	body = flattenCodex(body)

	if body.Hook != "" && body.Hook != "notify" {
		return "", false
	}
	if body.Type != "agent-turn-complete" {
		return "", false
	}

	h.mergeMetadata(ctx, agentID, body.codexMeta)

	if h.settings.Active() && body.LastAssistantMessage != "" {
		name := agentID
		if agent, ok := h.dir.Get(ctx, agentID); ok && agent.Name != "" {
			name = agent.Name
		}
		go h.classifier.Classify(context.WithoutCancel(ctx), name, body.LastAssistantMessage)
	}

	return directory.StatusIdle, true
}

func (h *CodexHandler) mergeMetadata(ctx context.Context, agentID string, meta codexMeta) {
	m := make(map[string]string)
	if meta.Cwd != "" {
		m[directory.MetaWorkingDir] = meta.Cwd
	}
	if meta.ThreadID != "" {
		m[directory.MetaThreadID] = meta.ThreadID
	}
	if meta.TurnID != "" {
		m[directory.MetaTurnID] = meta.TurnID
	}
	if len(m) > 0 {
		h.dir.MergeMetadata(ctx, agentID, m)
	}
}

// flattenCodex folds a nested payload object into the top level; Codex
// deliveries wrap the event either way depending on the hook plumbing.
func flattenCodex(body codexBody) codexBody {
	if body.Payload == nil {
		return body
	}
	inner := *body.Payload
	if body.Type == "" {
		body.Type = inner.Type
	}
	if body.LastAssistantMessage == "" {
		body.LastAssistantMessage = inner.LastAssistantMessage
	}
	if body.Cwd == "" {
		body.Cwd = inner.Cwd
	}
	if body.ThreadID == "" {
		body.ThreadID = inner.ThreadID
	}
	if body.TurnID == "" {
		body.TurnID = inner.TurnID
	}
	body.Payload = nil
	return body
}
