// Package mcp implements the MCP-compatible HTTP server for coding agents.
//
// # Overview
//
// MCP (Model Context Protocol) is a standard for AI tool integration. This
// package terminates HTTP for two surfaces: the JSON-RPC protocol endpoint
// that agents use to call workspace tools, and the REST endpoints that
// agent lifecycle hooks post to.
//
// # Protocol
//
// The protocol surface is JSON-RPC 2.0 over HTTP on a single endpoint:
//
//   - POST /mcp - JSON-RPC requests (initialize, tools/list, tools/call)
//   - GET /mcp - A single connected event frame
//
// Methods prefixed notifications/ and requests without an id are
// notifications: they are accepted with HTTP 202 and never receive a
// correlated reply body. Malformed JSON gets a -32700 error with HTTP 400
// so curl-level callers see the failure without decoding the body.
//
// # Session Tokens
//
// Every non-notification reply carries an Mcp-Session-Id header. The server
// echoes the caller's token when one is presented, and mints a fresh UUID
// when it is absent or the caller is (re)initializing.
//
// # Streaming
//
// Callers that send Accept: text/event-stream receive their one reply as a
// single SSE message frame with an identical JSON-RPC payload. No
// persistent push channel is implemented.
//
// # Tools
//
// The tool catalog is static, built once at server startup. Core messaging
// tools delegate to the coordinator; repo, worktree, and display tools
// delegate to optional host-application services and error cleanly when no
// service is attached. Domain failures come back as textual isError
// results, never JSON-RPC errors.
//
// # Lifecycle Hooks
//
// Agent processes post lifecycle events to REST endpoints:
//
//   - POST /api/v1/agent/register - registration events
//   - POST /api/v1/agent/status - activity events
//
// The "agent" field in the body selects the flavor handler (claude when
// absent). Hook deliveries also piggyback the coordinator's stale-session
// sweep.
package mcp
