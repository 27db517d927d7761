// Package session tracks each agent's live conversation session, enforcing
// one session per agent and sweeping sessions idle past a staleness
// threshold.
package session
