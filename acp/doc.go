// Package acp implements the client side of the Agent Client Protocol:
// newline-delimited JSON-RPC 2.0 spoken over the stdio pipes of a child
// coding-agent process.
//
// The package is layered. The wire layer (wire.go) frames messages, one
// JSON object per line. Conn multiplexes concurrent outgoing calls,
// incoming agent-initiated calls and notifications over one stream pair.
// Client wraps Conn with the typed protocol surface: Initialize,
// NewSession, Prompt and Cancel going out; session updates and
// permission requests coming in.
package acp
