// ABOUTME: Package approval gates sensitive tools behind a human decision
// ABOUTME: A gated tool suspends on first execution and resumes with approve or deny

// Package approval wraps tools so they pause for a human decision.
//
// A gated tool called without a decision returns a suspension carrying the
// tool name and arguments. The runtime records it as an interrupt. When the
// turn resumes, the same call is replayed with the decision: true runs the
// wrapped tool, false returns a denial message the model can read.
package approval
