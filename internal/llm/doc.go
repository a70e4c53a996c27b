// ABOUTME: Package llm defines the streaming model provider contract
// ABOUTME: and its OpenAI chat completions implementation

// Package llm talks to chat models.
//
// A Provider streams Chunks for a Request built from conversation entries and
// tool specs. Text arrives incrementally; tool calls arrive whole once their
// argument fragments have been assembled. When a Request carries a Schema the
// model is asked for JSON matching it instead of free text.
package llm
