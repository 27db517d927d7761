// Package coordinator is the central service coordinating agents in shared
// workspaces.
//
// # Overview
//
// The coordinator composes the session manager and the message store with
// the host application's agent directory. It owns registration, inter-agent
// mail, status updates, and stale-state sweeps. All cross-agent mutation
// funnels through one mutex-serialized service, so it is safe to call from
// many concurrent HTTP handlers.
//
// # Construction
//
// The directory is injected; the coordinator owns everything else:
//
//	coord := coordinator.New(coordinator.Config{
//	    Directory:  dir,
//	    Logger:     logger,
//	    StaleAfter: time.Hour,
//	})
//
// Key operations:
//
//   - Register(ctx, agentID, sessionID): Mark registered, create a session
//   - Send(ctx, from, to, content): Point-to-point mail within a workspace
//   - Broadcast(ctx, from, content): Mail every registered workspace-mate
//   - CheckMessages(ctx, agentID, markRead): Read unread mail atomically
//   - UpdateStatus(ctx, agentID, status): Forward a hook-resolved status
//   - SweepSessions(ctx): Opportunistic stale-state cleanup
//
// # Identifier Resolution
//
// Agents address each other by ID or display name. Resolution tries an
// exact ID match first, then a case-insensitive name match. Message-sending
// paths additionally scope resolution to the sender's workspace, so agents
// can never address recipients outside their own workspace.
//
// # Registration
//
// Registering an agent creates (or replaces) its session, flips the
// directory flag, and injects a briefing prompt into the agent's input.
// Re-registering an already-registered agent is a no-op success; hooks fire
// repeatedly and must stay idempotent.
//
// # Mail Nudges
//
// When mail lands for an idle recipient, the coordinator injects a short
// nudge telling the agent to check its inbox. Busy agents are not
// interrupted; they discover mail on their next check.
//
// # Sweeping
//
// SweepSessions removes sessions idle past the staleness threshold and
// purges mail addressed to agents that no longer exist. There is no
// background timer: hook handlers call it on every delivery and the
// coordinator rate-limits the actual work to once a minute.
package coordinator
