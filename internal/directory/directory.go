// ABOUTME: Agent records and the Directory capability interface owned by the host app.
// ABOUTME: The coordinator reads and mutates agents only through this boundary.

package directory

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Status is an agent's current activity state as reported by its hooks.
type Status string

const (
	StatusRunning Status = "running"
	StatusIdle    Status = "idle"
	StatusInput   Status = "input"
)

// Known metadata keys. The metadata map is free-form string-to-string but
// producers only write these keys.
const (
	MetaTranscriptPath = "transcript_path"
	MetaWorkingDir     = "working_dir"
	MetaModel          = "model"
	MetaSessionID      = "session_id"
	MetaThreadID       = "thread_id"
	MetaTurnID         = "turn_id"
)

// ErrAgentExists indicates an agent with the same ID is already present.
var ErrAgentExists = errors.New("agent already exists")

// Agent is one tracked coding-assistant process. The record is owned by the
// host application's directory; the coordinator never holds a long-lived
// pointer across operations.
type Agent struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	Workspace       string            `json:"workspace"`
	Status          Status            `json:"status"`
	Registered      bool              `json:"registered"`
	SessionID       string            `json:"session_id,omitempty"`
	ResumeSessionID string            `json:"resume_session_id,omitempty"`
	Fork            bool              `json:"fork,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// Clone returns a deep copy so callers cannot mutate directory state
// outside the capability interface.
func (a *Agent) Clone() *Agent {
	cp := *a
	if a.Metadata != nil {
		cp.Metadata = make(map[string]string, len(a.Metadata))
		for k, v := range a.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

// Directory is the capability the host application provides for live agent
// records. Lookups must be awaited; InjectText is a pure notification and may
// be called fire-and-forget.
type Directory interface {
	// Get returns the agent with the given ID, or false.
	Get(ctx context.Context, id string) (*Agent, bool)

	// All returns every known agent.
	All(ctx context.Context) []*Agent

	// SetRegistered flips the agent's registration flag.
	SetRegistered(ctx context.Context, id string, registered bool)

	// SetStatus updates the agent's activity status.
	SetStatus(ctx context.Context, id string, status Status)

	// SetSessionID records the conversation session the agent is using.
	SetSessionID(ctx context.Context, id, sessionID string)

	// MergeMetadata merges the given keys into the agent's metadata map.
	MergeMetadata(ctx context.Context, id string, meta map[string]string)

	// InjectText delivers text into the agent's input, e.g. a mail nudge.
	InjectText(ctx context.Context, id, text string)

	// AddAgent creates a new agent record.
	AddAgent(ctx context.Context, agent *Agent) (*Agent, error)

	// RemoveAgent deletes the agent record if present.
	RemoveAgent(ctx context.Context, id string)
}

// MemoryDirectory is an in-process Directory used by tests and by the server
// when run without a host application.
type MemoryDirectory struct {
	mu     sync.Mutex
	agents map[string]*Agent

	// Injected holds every InjectText call keyed by agent ID, for tests.
	injectMu sync.Mutex
	injected map[string][]string
}

// NewMemoryDirectory creates an empty in-memory directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		agents:   make(map[string]*Agent),
		injected: make(map[string][]string),
	}
}

func (d *MemoryDirectory) Get(_ context.Context, id string) (*Agent, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.agents[id]
	if !ok {
		return nil, false
	}
	return a.Clone(), true
}

func (d *MemoryDirectory) All(_ context.Context) []*Agent {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Agent, 0, len(d.agents))
	for _, a := range d.agents {
		out = append(out, a.Clone())
	}
	return out
}

func (d *MemoryDirectory) SetRegistered(_ context.Context, id string, registered bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if a, ok := d.agents[id]; ok {
		a.Registered = registered
	}
}

func (d *MemoryDirectory) SetStatus(_ context.Context, id string, status Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if a, ok := d.agents[id]; ok {
		a.Status = status
	}
}

func (d *MemoryDirectory) SetSessionID(_ context.Context, id, sessionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if a, ok := d.agents[id]; ok {
		a.SessionID = sessionID
	}
}

func (d *MemoryDirectory) MergeMetadata(_ context.Context, id string, meta map[string]string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.agents[id]
	if !ok {
		return
	}
	if a.Metadata == nil {
		a.Metadata = make(map[string]string, len(meta))
	}
	for k, v := range meta {
		a.Metadata[k] = v
	}
}

func (d *MemoryDirectory) InjectText(_ context.Context, id, text string) {
	d.injectMu.Lock()
	d.injected[id] = append(d.injected[id], text)
	d.injectMu.Unlock()
}

// InjectedText returns the texts injected into the given agent so far.
func (d *MemoryDirectory) InjectedText(id string) []string {
	d.injectMu.Lock()
	defer d.injectMu.Unlock()
	out := make([]string, len(d.injected[id]))
	copy(out, d.injected[id])
	return out
}

func (d *MemoryDirectory) AddAgent(_ context.Context, agent *Agent) (*Agent, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if agent.ID == "" {
		return nil, fmt.Errorf("agent id is required")
	}
	if _, exists := d.agents[agent.ID]; exists {
		return nil, ErrAgentExists
	}
	cp := agent.Clone()
	if cp.Status == "" {
		cp.Status = StatusIdle
	}
	d.agents[cp.ID] = cp
	return cp.Clone(), nil
}

func (d *MemoryDirectory) RemoveAgent(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.agents, id)
}

// SetFork flags the agent's current launch as a conversation fork.
// Test and host-app helper; not part of the Directory capability.
func (d *MemoryDirectory) SetFork(id string, fork bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if a, ok := d.agents[id]; ok {
		a.Fork = fork
	}
}

// SetResumeSessionID records the session the agent was launched to resume.
// Test and host-app helper; not part of the Directory capability.
func (d *MemoryDirectory) SetResumeSessionID(id, sessionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if a, ok := d.agents[id]; ok {
		a.ResumeSessionID = sessionID
	}
}
