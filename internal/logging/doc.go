// Package logging configures slog for foldrank. CLI commands log text to
// stderr; the MCP server logs JSON to a rotating file under ~/.foldrank/logs
// so stdout stays reserved for the protocol.
package logging
