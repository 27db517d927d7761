// ABOUTME: Autopilot classifier capability boundary.
// ABOUTME: The core hands off an idle agent's last message and forgets it.

package autopilot

import (
	"context"
	"log/slog"
)

// Classifier decides whether an idle agent's last message needs the
// operator's attention. The implementation (an LLM call in the host
// application) is out of scope; the core only forwards the text.
type Classifier interface {
	Classify(ctx context.Context, agentName, lastMessage string)
}

// Settings gates whether hook handlers invoke the classifier at all.
// Both the switch and an API key must be set.
type Settings struct {
	Enabled bool
	APIKey  string
}

// Active reports whether autopilot calls should be made.
func (s Settings) Active() bool {
	return s.Enabled && s.APIKey != ""
}

// LogClassifier is the default Classifier when no host application is
// attached; it logs the hand-off and drops it.
type LogClassifier struct {
	Logger *slog.Logger
}

func (c *LogClassifier) Classify(_ context.Context, agentName, lastMessage string) {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("autopilot hand-off", "agent", agentName, "chars", len(lastMessage))
}
