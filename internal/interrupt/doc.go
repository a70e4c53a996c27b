// Package interrupt coordinates human approval of tool calls.
//
// When the runtime pauses on an approval-gated tool, Inspect reads the saved
// checkpoint and ExtractPending lists what is waiting. BuildResume turns a
// single approve/deny decision into the ResumePayload the runtime expects:
// a bare boolean for one interrupt, or a map of interrupt ID to boolean when
// several are pending. The same decision applies to every pending interrupt.
package interrupt
