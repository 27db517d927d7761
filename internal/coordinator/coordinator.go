// ABOUTME: Central coordinator owning registration, sessions, and inter-agent mail.
// ABOUTME: All cross-agent mutation funnels through one mutex-serialized service.

package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Kochava-Studios/skwad/internal/directory"
	"github.com/Kochava-Studios/skwad/internal/msgstore"
	"github.com/Kochava-Studios/skwad/internal/session"
)

// mailNudge is injected into an idle recipient so it checks its inbox.
const mailNudge = "You have a new message. Use the check_messages tool to read it."

// RegistrationPrompt is the briefing injected into an agent when it
// registers. The claude transcript scan recognizes this text as the
// registration sentinel.
const RegistrationPrompt = "You are registered with the skwad workspace coordinator. " +
	"Use list_agents to see your workspace-mates and send_message or " +
	"broadcast_message to talk to them. Check your inbox with check_messages."

// Coordinator composes the session manager and message store with the host
// application's agent directory. Every public method runs to completion
// under one mutex, so it is safe to call from many concurrent HTTP handlers.
type Coordinator struct {
	mu       sync.Mutex
	dir      directory.Directory
	sessions *session.Manager
	store    *msgstore.Store
	logger   *slog.Logger

	staleAfter time.Duration
	lastSweep  time.Time
}

// Config holds coordinator construction parameters.
type Config struct {
	Directory  directory.Directory
	Logger     *slog.Logger
	StaleAfter time.Duration // session staleness threshold; default 1h
}

// New creates a coordinator around the given directory.
func New(cfg Config) *Coordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	staleAfter := cfg.StaleAfter
	if staleAfter <= 0 {
		staleAfter = session.DefaultStaleAfter
	}
	return &Coordinator{
		dir:        cfg.Directory,
		sessions:   session.NewManager(),
		store:      msgstore.NewStore(),
		logger:     logger,
		staleAfter: staleAfter,
	}
}

// ListAgents returns the caller's workspace-mates, caller included. An
// unresolvable caller yields an empty list, never an error: callers may race
// their own registration.
func (c *Coordinator) ListAgents(ctx context.Context, caller string) []*directory.Agent {
	c.mu.Lock()
	defer c.mu.Unlock()

	me := c.resolveLocked(ctx, caller)
	if me == nil {
		return nil
	}

	var peers []*directory.Agent
	for _, a := range c.dir.All(ctx) {
		if a.Workspace == me.Workspace {
			peers = append(peers, a)
		}
	}
	return peers
}

// Register marks the agent registered and creates (or replaces) its session.
// Returns false when the agent ID resolves to no record. Re-registering an
// already-registered agent is a no-op success, except that a missing session
// (reaped by a sweep) is recreated.
func (c *Coordinator) Register(ctx context.Context, agentID, sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	agent, ok := c.dir.Get(ctx, agentID)
	if !ok {
		return false
	}

	if agent.Registered {
		// A sweep may have reaped the session while the agent stayed
		// registered; recreate it so the next hook self-heals.
		if _, ok := c.sessions.GetForAgent(agentID); !ok {
			sess := c.sessions.Create(agentID, sessionID)
			if sessionID != "" {
				c.dir.SetSessionID(ctx, agentID, sessionID)
			}
			c.logger.Info("session recreated", "agent_id", agentID, "session_id", sess.ID)
		} else {
			c.logger.Debug("agent re-registered", "agent_id", agentID)
		}
		return true
	}

	c.dir.SetRegistered(ctx, agentID, true)
	sess := c.sessions.Create(agentID, sessionID)
	if sessionID != "" {
		c.dir.SetSessionID(ctx, agentID, sessionID)
	}
	go c.dir.InjectText(context.WithoutCancel(ctx), agentID, RegistrationPrompt)

	c.logger.Info("agent registered",
		"agent_id", agentID,
		"name", agent.Name,
		"workspace", agent.Workspace,
		"session_id", sess.ID,
	)
	return true
}

// Unregister marks the agent unregistered and destroys its session.
// Idempotent; unknown agents are a no-op.
func (c *Coordinator) Unregister(ctx context.Context, agentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.dir.Get(ctx, agentID); ok {
		c.dir.SetRegistered(ctx, agentID, false)
	}
	c.sessions.RemoveForAgent(agentID)
	c.logger.Info("agent unregistered", "agent_id", agentID)
}

// FindAgent resolves an identifier to an agent: exact ID match first, then
// case-insensitive display-name match, across all workspaces.
func (c *Coordinator) FindAgent(ctx context.Context, identifier string) (*directory.Agent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a := c.resolveLocked(ctx, identifier)
	return a, a != nil
}

// FindAgentInWorkspace resolves like FindAgent but only among the caller's
// workspace-mates. Every message-sending path uses this so agents cannot
// address recipients outside their workspace.
func (c *Coordinator) FindAgentInWorkspace(ctx context.Context, caller, identifier string) (*directory.Agent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	me := c.resolveLocked(ctx, caller)
	if me == nil {
		return nil, false
	}
	a := c.resolveScopedLocked(ctx, identifier, me.Workspace)
	return a, a != nil
}

// Send appends a point-to-point message. The sender must resolve and be
// registered; the recipient must resolve within the sender's workspace.
// Idle recipients get a mail nudge injected.
func (c *Coordinator) Send(ctx context.Context, from, to, content string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	sender := c.resolveLocked(ctx, from)
	if sender == nil || !sender.Registered {
		return false
	}
	recipient := c.resolveScopedLocked(ctx, to, sender.Workspace)
	if recipient == nil {
		return false
	}

	msg := c.store.Append(sender.ID, recipient.ID, content)
	c.logger.Debug("message sent",
		"message_id", msg.ID,
		"from", sender.ID,
		"to", recipient.ID,
	)

	if recipient.Status == directory.StatusIdle {
		go c.dir.InjectText(context.WithoutCancel(ctx), recipient.ID, mailNudge)
	}
	return true
}

// Broadcast appends one message per registered workspace-mate of the sender,
// excluding the sender itself, and nudges all of them. Returns the recipient
// count; 0 signals failure to the caller.
func (c *Coordinator) Broadcast(ctx context.Context, from, content string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	sender := c.resolveLocked(ctx, from)
	if sender == nil || !sender.Registered {
		return 0
	}

	count := 0
	for _, a := range c.dir.All(ctx) {
		if a.ID == sender.ID || a.Workspace != sender.Workspace || !a.Registered {
			continue
		}
		c.store.Append(sender.ID, a.ID, content)
		go c.dir.InjectText(context.WithoutCancel(ctx), a.ID, mailNudge)
		count++
	}

	c.logger.Debug("broadcast", "from", sender.ID, "recipients", count)
	return count
}

// CheckMessages returns the agent's unread mail. With markRead the messages
// are flipped read in the same serialized operation, so a concurrent second
// caller does not also see them as unread.
func (c *Coordinator) CheckMessages(ctx context.Context, agentID string, markRead bool) []*msgstore.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	agent := c.resolveLocked(ctx, agentID)
	if agent == nil {
		return nil
	}
	if sess, ok := c.sessions.GetForAgent(agent.ID); ok {
		c.sessions.Touch(sess.ID)
	}
	return c.store.Unread(agent.ID, markRead)
}

// HasUnread reports whether the agent has unread mail without materializing
// message bodies. Used by polling collaborators.
func (c *Coordinator) HasUnread(ctx context.Context, agentID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	agent := c.resolveLocked(ctx, agentID)
	if agent == nil {
		return false
	}
	return c.store.HasUnread(agent.ID)
}

// LatestUnreadID returns the agent's most recent unread message ID, or "".
func (c *Coordinator) LatestUnreadID(ctx context.Context, agentID string) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	agent := c.resolveLocked(ctx, agentID)
	if agent == nil {
		return ""
	}
	return c.store.LatestUnreadID(agent.ID)
}

// UpdateStatus forwards a hook-resolved activity status into the directory
// and touches the agent's session.
func (c *Coordinator) UpdateStatus(ctx context.Context, agentID string, status directory.Status) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.dir.Get(ctx, agentID); !ok {
		return
	}
	c.dir.SetStatus(ctx, agentID, status)
	if sess, ok := c.sessions.GetForAgent(agentID); ok {
		c.sessions.Touch(sess.ID)
	}
}

// SessionFor exposes the agent's live session for the debug snapshot.
func (c *Coordinator) SessionFor(agentID string) (*session.Session, bool) {
	return c.sessions.GetForAgent(agentID)
}

// SweepSessions opportunistically removes stale sessions and dead-recipient
// mail. Rate-limited to once a minute so hook traffic can call it freely.
func (c *Coordinator) SweepSessions(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if now.Sub(c.lastSweep) < time.Minute {
		return
	}
	c.lastSweep = now

	removed := c.sessions.Sweep(c.staleAfter)
	known := make(map[string]bool)
	for _, a := range c.dir.All(ctx) {
		known[a.ID] = true
	}
	purged := c.store.Cleanup(known)
	if removed > 0 || purged > 0 {
		c.logger.Info("sweep", "stale_sessions", removed, "purged_messages", purged)
	}
}

// AgentSnapshot is one row of the GET /status debug view.
type AgentSnapshot struct {
	Agent        *directory.Agent `json:"agent"`
	Session      *session.Session `json:"session,omitempty"`
	UnreadCount  int              `json:"unread_count"`
	LatestUnread string           `json:"latest_unread_id,omitempty"`
}

// Snapshot returns every agent with its coordinator-visible state, for
// operator debugging only.
func (c *Coordinator) Snapshot(ctx context.Context) []*AgentSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []*AgentSnapshot
	for _, a := range c.dir.All(ctx) {
		snap := &AgentSnapshot{Agent: a}
		if sess, ok := c.sessions.GetForAgent(a.ID); ok {
			snap.Session = sess
		}
		snap.UnreadCount = len(c.store.Unread(a.ID, false))
		snap.LatestUnread = c.store.LatestUnreadID(a.ID)
		out = append(out, snap)
	}
	return out
}

// CreateAgent adds a new agent record through the directory. Delegation
// target for the create_agent tool.
func (c *Coordinator) CreateAgent(ctx context.Context, name, workspace string) (*directory.Agent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if name == "" {
		return nil, fmt.Errorf("agent name is required")
	}
	agent := &directory.Agent{
		ID:        newAgentID(name),
		Name:      name,
		Workspace: workspace,
		Status:    directory.StatusIdle,
	}
	return c.dir.AddAgent(ctx, agent)
}

// CloseAgent unregisters the agent and removes its record. Delegation
// target for the close_agent tool.
func (c *Coordinator) CloseAgent(ctx context.Context, identifier string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	agent := c.resolveLocked(ctx, identifier)
	if agent == nil {
		return false
	}
	c.sessions.RemoveForAgent(agent.ID)
	c.dir.RemoveAgent(ctx, agent.ID)
	c.logger.Info("agent closed", "agent_id", agent.ID)
	return true
}

// resolveLocked resolves an identifier globally: exact ID first, then
// case-insensitive name. Caller holds c.mu.
func (c *Coordinator) resolveLocked(ctx context.Context, identifier string) *directory.Agent {
	if identifier == "" {
		return nil
	}
	if a, ok := c.dir.Get(ctx, identifier); ok {
		return a
	}
	for _, a := range c.dir.All(ctx) {
		if strings.EqualFold(a.Name, identifier) {
			return a
		}
	}
	return nil
}

// resolveScopedLocked resolves like resolveLocked but only within one
// workspace. Caller holds c.mu.
func (c *Coordinator) resolveScopedLocked(ctx context.Context, identifier, workspace string) *directory.Agent {
	a := c.resolveLocked(ctx, identifier)
	if a == nil || a.Workspace != workspace {
		return nil
	}
	return a
}

func newAgentID(name string) string {
	slug := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", "-"))
	return slug + "-" + uuid.New().String()[:8]
}
