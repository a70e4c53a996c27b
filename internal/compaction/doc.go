// Package compaction bounds the history sent to the model.
//
// Before each model call the runtime passes a copy of the conversation log
// through MaybeCompact. Once the log is longer than the keep-recent threshold,
// everything before a safe cut point is replaced by a single summary entry.
// The cut point never leaves a tool result without the assistant entry that
// requested it. The persisted log is not changed.
package compaction
