// Package gateway wires the pricewise server components together.
//
// # Overview
//
// The gateway package owns the checkpoint store, the tool registry, the
// agent runtime, the session registry and the HTTP server. New builds them
// all from a config.Config; Run serves until its context is cancelled.
//
// # HTTP API
//
//   - POST /chat/sessions - Create a session, returns {"session_id": "..."}
//   - GET /chat/sessions/{id}/messages - Conversation history and latest receipt
//   - POST /chat/sessions/{id}/messages - Send {"content": "..."} (SSE response)
//   - POST /chat/sessions/{id}/approve - Send {"approved": true|false} (SSE response)
//   - GET /chat/sessions/{id}/events - Watch later turns of a session (SSE)
//   - GET /health - Liveness check
//   - GET /metrics - Prometheus metrics (when enabled)
//
// Unknown sessions get 404, malformed bodies 400 and a second turn on a busy
// session 409. Error bodies are {"error": "..."}.
//
// # SSE Streaming
//
// Turns are streamed as Server-Sent Events:
//
//	event: token
//	data: {"content": "Let me search"}
//
//	event: approval_required
//	data: {"tool_calls": [...], "interrupt_ids": [...]}
//
//	event: done
//	data: {}
//
// Event types: token, tool_call, tool_result, approval_required, receipt,
// error, done. Every stream ends with exactly one done event.
//
// # Lifecycle
//
//	gw, err := gateway.New(cfg, logger)
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer cancel()
//	err = gw.Run(ctx)
//
// Tests replace the OpenAI and Tavily clients with WithProvider and
// WithSearcher.
package gateway
