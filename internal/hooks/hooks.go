// ABOUTME: Hook dispatch layer routing lifecycle events to per-flavor handlers.
// ABOUTME: One handler per agent flavor, selected by the payload discriminator.

package hooks

import (
	"context"
	"log/slog"

	"github.com/Kochava-Studios/skwad/internal/autopilot"
	"github.com/Kochava-Studios/skwad/internal/coordinator"
	"github.com/Kochava-Studios/skwad/internal/directory"
	"github.com/Kochava-Studios/skwad/internal/notify"
)

// DefaultFlavor is assumed when a hook body carries no agent discriminator.
const DefaultFlavor = "claude"

// Handler reconciles one agent flavor's lifecycle events.
//
// HandleRegistration reports whether the agent ended up registered.
// HandleActivity returns the resolved status; ok=false means the hook was not
// recognized and the caller must make no status change.
type Handler interface {
	HandleRegistration(ctx context.Context, agentID string, payload []byte) bool
	HandleActivity(ctx context.Context, agentID string, payload []byte) (directory.Status, bool)
}

// Deps are the collaborators shared by all flavor handlers.
type Deps struct {
	Coordinator *coordinator.Coordinator
	Directory   directory.Directory
	Notifier    notify.Notifier
	Classifier  autopilot.Classifier
	Autopilot   autopilot.Settings
	Logger      *slog.Logger
}

// Dispatcher selects the handler for a flavor discriminator. Adding a new
// agent flavor means one handler type and one table entry here.
type Dispatcher struct {
	handlers map[string]Handler
}

// NewDispatcher wires the supported flavors.
func NewDispatcher(deps Deps) *Dispatcher {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Notifier == nil {
		deps.Notifier = &notify.LogNotifier{Logger: deps.Logger}
	}
	if deps.Classifier == nil {
		deps.Classifier = &autopilot.LogClassifier{Logger: deps.Logger}
	}
	return &Dispatcher{
		handlers: map[string]Handler{
			"claude": NewClaudeHandler(deps),
			"codex":  NewCodexHandler(deps),
		},
	}
}

// Handler returns the handler for the given flavor, defaulting to claude
// when the discriminator is empty.
func (d *Dispatcher) Handler(flavor string) (Handler, bool) {
	if flavor == "" {
		flavor = DefaultFlavor
	}
	h, ok := d.handlers[flavor]
	return h, ok
}
