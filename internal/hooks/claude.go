// ABOUTME: Claude-flavored hook handler with the startup/resume/fork state machine.
// ABOUTME: Parses JSONL transcripts backwards for the autopilot hand-off.

package hooks

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"strings"

	"github.com/Kochava-Studios/skwad/internal/autopilot"
	"github.com/Kochava-Studios/skwad/internal/coordinator"
	"github.com/Kochava-Studios/skwad/internal/directory"
	"github.com/Kochava-Studios/skwad/internal/notify"
)

// claudeMeta carries the known metadata fields a claude hook may include.
// They also appear nested under "payload" on some hook deliveries.
type claudeMeta struct {
	SessionID      string `json:"session_id"`
	TranscriptPath string `json:"transcript_path"`
	Cwd            string `json:"cwd"`
	Model          string `json:"model"`
}

type claudeRegisterBody struct {
	claudeMeta
	Source  string      `json:"source"`
	Payload *claudeMeta `json:"payload"`
}

type claudeActivityBody struct {
	claudeMeta
	Status  string      `json:"status"`
	Hook    string      `json:"hook"`
	Message string      `json:"message"`
	Payload *claudeMeta `json:"payload"`
}

// ClaudeHandler reconciles Claude Code lifecycle hooks into the
// coordinator's registration state machine.
type ClaudeHandler struct {
	coord      *coordinator.Coordinator
	dir        directory.Directory
	notifier   notify.Notifier
	classifier autopilot.Classifier
	settings   autopilot.Settings
	logger     *slog.Logger
}

// NewClaudeHandler builds the claude-flavored handler.
func NewClaudeHandler(deps Deps) *ClaudeHandler {
	return &ClaudeHandler{
		coord:      deps.Coordinator,
		dir:        deps.Directory,
		notifier:   deps.Notifier,
		classifier: deps.Classifier,
		settings:   deps.Autopilot,
		logger:     deps.Logger,
	}
}

// HandleRegistration reconciles startup and resume events.
//
// Startup and resume race in real deployments: a fast resume must not be
// clobbered by a slow startup, and a stale resume must never promote its
// dying session ID into a fork's fresh one. The rules:
//
//   - resume: always reflects the session actually in use; set it on the
//     agent unless the agent is flagged as a fork. Never registers.
//   - startup of a resuming agent (resume_session_id set, not a fork):
//     register without a session ID and let the resume event supply it.
//   - any other startup: scratch start or fork, register with the payload's
//     session ID.
func (h *ClaudeHandler) HandleRegistration(ctx context.Context, agentID string, payload []byte) bool {
	var body claudeRegisterBody
	if err := json.Unmarshal(payload, &body); err != nil {
		h.logger.Debug("unparseable claude registration hook", "agent_id", agentID, "error", err)
		return false
	}
	meta := body.claudeMeta
	if body.Payload != nil {
		meta = mergeClaudeMeta(meta, *body.Payload)
	}
	h.mergeMetadata(ctx, agentID, meta)

	agent, ok := h.dir.Get(ctx, agentID)
	if !ok {
		return false
	}

	source := body.Source
	if source == "" {
		source = "startup"
	}

	if source == "resume" {
		if agent.Fork {
			h.logger.Debug("resume hook ignored for forked agent", "agent_id", agentID)
		} else if meta.SessionID != "" {
			h.dir.SetSessionID(ctx, agentID, meta.SessionID)
		}
		return true
	}

	isResuming := agent.ResumeSessionID != "" && !agent.Fork
	sessionID := meta.SessionID
	if isResuming {
		// The follow-up resume event supplies the real session ID.
		sessionID = ""
	}
	return h.coord.Register(ctx, agentID, sessionID)
}

// HandleActivity maps the hook's status string and drives the notification
// and autopilot side effects. ok=false means the hook was not recognized.
func (h *ClaudeHandler) HandleActivity(ctx context.Context, agentID string, payload []byte) (directory.Status, bool) {
	var body claudeActivityBody
	if err := json.Unmarshal(payload, &body); err != nil {
		h.logger.Debug("unparseable claude activity hook", "agent_id", agentID, "error", err)
		return "", false
	}
	meta := body.claudeMeta
	if body.Payload != nil {
		meta = mergeClaudeMeta(meta, *body.Payload)
	}
	h.mergeMetadata(ctx, agentID, meta)

	var status directory.Status
	switch body.Status {
	case "running":
		status = directory.StatusRunning
	case "idle":
		status = directory.StatusIdle
	case "input":
		status = directory.StatusInput
	default:
		return "", false
	}

	agent, _ := h.dir.Get(ctx, agentID)
	name := agentID
	if agent != nil && agent.Name != "" {
		name = agent.Name
	}

	if status == directory.StatusInput {
		msg := body.Message
		if msg == "" {
			msg = "waiting for your input"
		}
		go h.notifier.Notify(context.WithoutCancel(ctx), name, msg)
	}

	if body.Hook == "Stop" && h.settings.Active() {
		path := meta.TranscriptPath
		if path == "" && agent != nil {
			path = agent.Metadata[directory.MetaTranscriptPath]
		}
		text := h.lastAssistantMessage(path)
		if text != "" {
			go h.classifier.Classify(context.WithoutCancel(ctx), name, text)
		}
	}

	return status, true
}

// mergeMetadata writes the non-empty known fields into the agent's metadata
// map. This happens unconditionally, before any state-machine branch.
func (h *ClaudeHandler) mergeMetadata(ctx context.Context, agentID string, meta claudeMeta) {
	m := make(map[string]string)
	if meta.TranscriptPath != "" {
		m[directory.MetaTranscriptPath] = meta.TranscriptPath
	}
	if meta.Cwd != "" {
		m[directory.MetaWorkingDir] = meta.Cwd
	}
	if meta.Model != "" {
		m[directory.MetaModel] = meta.Model
	}
	if meta.SessionID != "" {
		m[directory.MetaSessionID] = meta.SessionID
	}
	if len(m) > 0 {
		h.dir.MergeMetadata(ctx, agentID, m)
	}
}

func mergeClaudeMeta(base, over claudeMeta) claudeMeta {
	if over.SessionID != "" {
		base.SessionID = over.SessionID
	}
	if over.TranscriptPath != "" {
		base.TranscriptPath = over.TranscriptPath
	}
	if over.Cwd != "" {
		base.Cwd = over.Cwd
	}
	if over.Model != "" {
		base.Model = over.Model
	}
	return base
}

// transcriptEntry is one line of a Claude Code JSONL transcript.
type transcriptEntry struct {
	Type    string `json:"type"`
	Message struct {
		Content json.RawMessage `json:"content"`
	} `json:"message"`
}

// lastAssistantMessage scans the transcript backwards for the most recent
// assistant message. When the message immediately preceding it is the
// coordinator's own registration briefing, the assistant text is a non-answer
// and the empty string is returned to suppress the autopilot call. Read
// failures degrade to "" as well; hooks are best-effort telemetry.
func (h *ClaudeHandler) lastAssistantMessage(path string) string {
	if path == "" {
		return ""
	}
	f, err := os.Open(path)
	if err != nil {
		h.logger.Debug("transcript unreadable", "path", path, "error", err)
		return ""
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		h.logger.Debug("transcript scan failed", "path", path, "error", err)
		return ""
	}

	for i := len(lines) - 1; i >= 0; i-- {
		var entry transcriptEntry
		if err := json.Unmarshal([]byte(lines[i]), &entry); err != nil {
			continue
		}
		if entry.Type != "assistant" {
			continue
		}
		text := contentText(entry.Message.Content)

		// Scan further backwards for the message this one answered.
		for j := i - 1; j >= 0; j-- {
			var prev transcriptEntry
			if err := json.Unmarshal([]byte(lines[j]), &prev); err != nil {
				continue
			}
			if prev.Type != "user" && prev.Type != "assistant" {
				continue
			}
			if strings.Contains(contentText(prev.Message.Content), coordinator.RegistrationPrompt) {
				return ""
			}
			break
		}
		return text
	}
	return ""
}

// contentText extracts plain text from a transcript content field, which is
// either a bare string or an array of typed blocks.
func contentText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return ""
	}
	var parts []string
	for _, b := range blocks {
		if b.Type == "text" && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}
