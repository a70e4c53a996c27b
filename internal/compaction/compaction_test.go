// ABOUTME: Tests for history compaction split selection and summary insertion
// ABOUTME: Includes a randomized check that tool results never lose their invocation

package compaction

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kimyungju/pricewise/internal/store"
)

type fakeSummarizer struct {
	calls       int
	instruction string
	got         []store.Entry
	err         error
}

func (f *fakeSummarizer) Summarize(ctx context.Context, instruction string, entries []store.Entry) (string, error) {
	f.calls++
	f.instruction = instruction
	f.got = entries
	if f.err != nil {
		return "", f.err
	}
	return "user wants headphones under $300", nil
}

func user(s string) store.Entry      { return store.NewUserEntry(s) }
func assistant(s string) store.Entry { return store.NewAssistantEntry(s) }
func tool(id string) store.Entry     { return store.NewToolEntry("search_product", id, "result "+id) }
func calls(ids ...string) store.Entry {
	var tc []store.ToolCall
	for _, id := range ids {
		tc = append(tc, store.ToolCall{ID: id, Name: "search_product"})
	}
	return store.NewAssistantEntry("", tc...)
}

func TestMaybeCompact_ShortHistoryUnchanged(t *testing.T) {
	s := &fakeSummarizer{}
	entries := []store.Entry{user("a"), assistant("b"), user("c"), assistant("d"), user("e")}

	out, compacted, err := MaybeCompact(context.Background(), s, entries, DefaultKeepRecent)
	require.NoError(t, err)
	assert.False(t, compacted)
	assert.Equal(t, entries, out)
	assert.Zero(t, s.calls)
}

func TestMaybeCompact_PlainConversation(t *testing.T) {
	s := &fakeSummarizer{}
	entries := []store.Entry{user("a"), assistant("b"), user("c"), assistant("d"), user("e"), assistant("f"), user("g")}

	out, compacted, err := MaybeCompact(context.Background(), s, entries, DefaultKeepRecent)
	require.NoError(t, err)
	require.True(t, compacted)

	assert.Equal(t, 1, s.calls)
	assert.Equal(t, SummaryInstruction, s.instruction)
	assert.Len(t, s.got, 5)

	require.Len(t, out, 3)
	assert.Equal(t, store.KindSystem, out[0].Kind)
	assert.True(t, strings.HasPrefix(out[0].Content, "Summary of earlier conversation:\n"))
	assert.Contains(t, out[0].Content, "headphones")
	assert.Equal(t, "f", out[1].Content)
	assert.Equal(t, "g", out[2].Content)
}

func TestMaybeCompact_DoesNotModifyInput(t *testing.T) {
	entries := []store.Entry{user("a"), assistant("b"), user("c"), assistant("d"), user("e"), assistant("f"), user("g")}
	before := make([]store.Entry, len(entries))
	copy(before, entries)

	_, _, err := MaybeCompact(context.Background(), &fakeSummarizer{}, entries, DefaultKeepRecent)
	require.NoError(t, err)
	assert.Equal(t, before, entries)
}

func TestSplitIndex(t *testing.T) {
	tests := []struct {
		name    string
		entries []store.Entry
		want    int
	}{
		{
			name:    "candidate is tool result",
			entries: []store.Entry{user("a"), assistant("b"), user("c"), calls("1"), tool("1"), assistant("done")},
			// len-2 = 4 is a tool result, step to 3 (assistant with calls); entry 2 is user
			want: 3,
		},
		{
			name:    "entry before candidate has tool calls",
			entries: []store.Entry{user("a"), assistant("b"), user("c"), calls("1"), user("x"), assistant("y")},
			want:    3,
		},
		{
			name:    "multiple results of one invocation",
			entries: []store.Entry{user("a"), assistant("b"), user("c"), calls("1", "2"), tool("1"), tool("2"), assistant("z")},
			want:    3,
		},
		{
			name:    "back to back invocations",
			entries: []store.Entry{user("a"), calls("1"), tool("1"), calls("2"), tool("2"), calls("3"), tool("3"), assistant("z")},
			// 6 tool -> 5 calls; entry 4 is a tool result, not calls, so stop at 5
			want: 5,
		},
		{
			name:    "everything is tool traffic",
			entries: []store.Entry{calls("1"), tool("1"), tool("1"), tool("1"), tool("1"), tool("1"), tool("1")},
			want:    0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitIndex(tt.entries))
		})
	}
}

func TestMaybeCompact_NoSafeSplit(t *testing.T) {
	s := &fakeSummarizer{}
	entries := []store.Entry{calls("1"), tool("1"), tool("1"), tool("1"), tool("1"), tool("1"), tool("1")}

	out, compacted, err := MaybeCompact(context.Background(), s, entries, DefaultKeepRecent)
	require.NoError(t, err)
	assert.False(t, compacted)
	assert.Equal(t, entries, out)
	assert.Zero(t, s.calls)
}

func TestMaybeCompact_SummarizerError(t *testing.T) {
	s := &fakeSummarizer{err: errors.New("model unavailable")}
	entries := []store.Entry{user("a"), assistant("b"), user("c"), assistant("d"), user("e"), assistant("f"), user("g")}

	_, _, err := MaybeCompact(context.Background(), s, entries, DefaultKeepRecent)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model unavailable")
}

// owner returns the index of the entry a tool result belongs to: the nearest
// preceding entry that is not itself a tool result.
func owner(entries []store.Entry, i int) int {
	for j := i - 1; j >= 0; j-- {
		if !entries[j].IsToolResult() {
			return j
		}
	}
	return -1
}

func randomConversation(r *rand.Rand) []store.Entry {
	n := 6 + r.IntN(30)
	var out []store.Entry
	for len(out) < n {
		switch r.IntN(3) {
		case 0:
			out = append(out, user("u"))
		case 1:
			out = append(out, assistant("a"))
		default:
			k := 1 + r.IntN(3)
			ids := make([]string, k)
			for i := range ids {
				ids[i] = string(rune('a' + i))
			}
			out = append(out, calls(ids...))
			for _, id := range ids {
				out = append(out, tool(id))
			}
		}
	}
	return out
}

func TestMaybeCompact_NeverSplitsInvocationFromResults(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 11))

	for i := 0; i < 500; i++ {
		entries := randomConversation(r)
		s := &fakeSummarizer{}

		out, compacted, err := MaybeCompact(context.Background(), s, entries, DefaultKeepRecent)
		require.NoError(t, err)
		if !compacted {
			continue
		}

		split := len(entries) - (len(out) - 1)
		require.Greater(t, split, 0)

		for j := split; j < len(entries); j++ {
			if entries[j].IsToolResult() {
				o := owner(entries, j)
				assert.GreaterOrEqual(t, o, split, "tool result %d kept but its invocation %d summarized", j, o)
				assert.True(t, entries[o].HasToolCalls())
			}
		}
		for j := 0; j < split; j++ {
			if entries[j].HasToolCalls() {
				for k := j + 1; k < len(entries) && entries[k].IsToolResult(); k++ {
					assert.Less(t, k, split, "invocation %d summarized but its result %d kept", j, k)
				}
			}
		}
		assert.Len(t, s.got, split)
	}
}
