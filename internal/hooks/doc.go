// Package hooks routes agent lifecycle events to per-flavor handlers.
//
// # Overview
//
// Different coding agents deliver differently shaped lifecycle events. The
// Dispatcher selects a Handler by the payload's discriminator field and the
// handler reconciles the event into coordinator state. Adding a new agent
// flavor means one handler type and one dispatch-table entry.
//
// # Claude
//
// Claude Code fires startup and resume hooks that race in real
// deployments. The claude handler's reconciliation rules ensure a fast
// resume is never clobbered by a slow startup and a stale resume never
// overwrites a fork's fresh session. On Stop hooks with autopilot active,
// the handler scans the JSONL transcript backwards for the last assistant
// message and hands it to the classifier, suppressing answers to the
// coordinator's own registration briefing.
//
// # Codex
//
// Codex has no startup/resume split. The only recognized activity event is
// the end-of-turn notify, which carries the last assistant message inline;
// the resolved status is unconditionally idle and no transcript file is
// ever read.
//
// Hooks are best-effort telemetry: unparseable payloads and unreadable
// transcripts degrade to "no change" rather than errors.
package hooks
