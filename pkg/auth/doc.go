// Package auth holds the wire-facing authentication-status types surfaced
// to an inbound MCP session: per-server connection state and, when a
// server requires OAuth, the pending authorization challenge.
package auth
