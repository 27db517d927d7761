// ABOUTME: Desktop-notification capability boundary.
// ABOUTME: The real notifier lives in the host application; the default just logs.

package notify

import (
	"context"
	"log/slog"
)

// Notifier delivers operator-facing desktop notifications. Calls are
// fire-and-forget; the caller never needs the outcome.
type Notifier interface {
	Notify(ctx context.Context, title, body string)
}

// Disabled is the Notifier installed when notifications are turned off in
// config. It drops every notification.
type Disabled struct{}

func (Disabled) Notify(context.Context, string, string) {}

// LogNotifier is the default Notifier used when no host application is
// attached. It records the notification at info level and does nothing else.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n *LogNotifier) Notify(_ context.Context, title, body string) {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("desktop notification", "title", title, "body", body)
}
