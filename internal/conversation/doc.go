// Package conversation runs chat turns for sessions and turns runtime events
// into client stream events.
//
// # Overview
//
// The conversation package sits between the HTTP handlers and the agent
// runtime. It resolves sessions, serializes turns per session and converts
// what the runtime reports into the protocol events the client renders.
//
// # Service
//
//	svc := conversation.New(runtime, sessions, broadcaster, metrics, logger)
//
// Key operations:
//
//   - CreateSession(): Register a new session
//   - Send(ctx, sessionID, content): Start a turn with a user message
//   - Approve(ctx, sessionID, approved): Resume a paused turn with a decision
//   - History(ctx, sessionID): Read the persisted conversation and receipt
//
// Send and Approve return a channel of protocol events. The channel always
// ends with exactly one done event, preceded by an error event when the
// turn failed.
//
// # Transcoder
//
// The Transcoder forwards assistant text as token events, requested tool
// calls as tool_call events and finished tool steps as tool_result events.
// Output of the receipt extraction step is never forwarded. Once the runtime
// stream ends it inspects the saved state and emits approval_required when
// the turn paused or receipt when it finished with one.
//
// # Broadcasting
//
// Every event written to the turn's caller is also published to the
// EventBroadcaster under the session ID, so other clients watching the same
// session see the turn live.
package conversation
