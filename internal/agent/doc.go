// Package agent runs the checkpointed reasoning loop behind each chat session.
//
// # Overview
//
// A Runtime drives one thread through three steps:
//
//   - agent: compacts the history, then streams a model call offered every
//     registered tool
//   - tools: executes the tool calls of the last assistant entry
//   - generate_structured_response: extracts a Receipt from the finished
//     conversation with a JSON schema constrained model call
//
// After every step the thread's Checkpoint is saved, so a process restart
// resumes exactly where the last step ended.
//
// # Pausing
//
// A tool that returns a suspension (see package approval) pauses the thread.
// The suspension is persisted as a Task holding one Interrupt whose value is
// {"tool": name, "args": {...}}. Results of calls that already completed in
// the same step are held in Checkpoint.PendingResults until every call is
// resolved, then appended in call order.
//
// With InterruptBeforeTools set, the runtime instead pauses before every
// tools step without any interrupt payloads. The resume decision then
// applies to all calls of the step.
//
// # Streaming
//
// Stream returns a channel of Events. ModeMessages events carry text
// fragments as the model produces them. ModeUpdates events carry the result
// of a finished step. A failure ends the channel with an Event whose Err is
// set.
package agent
