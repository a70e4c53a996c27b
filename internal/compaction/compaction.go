// ABOUTME: History compaction that summarizes older entries before a model call
// ABOUTME: Never separates an assistant tool-call entry from its tool results

package compaction

import (
	"context"
	"fmt"

	"github.com/kimyungju/pricewise/internal/store"
)

// DefaultKeepRecent is the history length at or below which no compaction happens.
const DefaultKeepRecent = 5

// SummaryPrefix starts the synthetic system entry that replaces summarized history.
const SummaryPrefix = "Summary of earlier conversation:\n"

// SummaryInstruction is the system instruction given to the summarizer.
const SummaryInstruction = "Summarize the following conversation concisely. Preserve key facts, decisions, and product details mentioned."

// Summarizer condenses a prefix of the conversation into text.
type Summarizer interface {
	Summarize(ctx context.Context, instruction string, entries []store.Entry) (string, error)
}

// SplitIndex returns the index at which entries may be cut so that entries[:i]
// can be summarized and entries[i:] kept verbatim. Zero means no safe cut exists.
func SplitIndex(entries []store.Entry) int {
	split := len(entries) - 2
	for split > 0 {
		switch {
		case entries[split].IsToolResult():
			split--
		case entries[split-1].HasToolCalls():
			split--
		default:
			return split
		}
	}
	return 0
}

// MaybeCompact returns entries unchanged when len(entries) <= keepRecent or no
// safe cut exists. Otherwise it returns a new slice holding one summary system
// entry followed by the kept tail. The input slice is never modified.
func MaybeCompact(ctx context.Context, s Summarizer, entries []store.Entry, keepRecent int) ([]store.Entry, bool, error) {
	if keepRecent <= 0 {
		keepRecent = DefaultKeepRecent
	}
	if len(entries) <= keepRecent {
		return entries, false, nil
	}

	split := SplitIndex(entries)
	if split <= 0 {
		return entries, false, nil
	}

	summary, err := s.Summarize(ctx, SummaryInstruction, entries[:split])
	if err != nil {
		return nil, false, fmt.Errorf("summarizing %d entries: %w", split, err)
	}

	out := make([]store.Entry, 0, len(entries)-split+1)
	out = append(out, store.NewSystemEntry(SummaryPrefix+summary))
	out = append(out, entries[split:]...)
	return out, true, nil
}
