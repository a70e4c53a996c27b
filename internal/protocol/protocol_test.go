// ABOUTME: Tests for stream event construction and SSE framing
// ABOUTME: Covers truncation by characters, payload shapes and header setup

package protocol

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	frame, err := Format(Token("hello"))
	require.NoError(t, err)
	assert.Equal(t, "event: token\ndata: {\"content\":\"hello\"}\n\n", string(frame))

	frame, err = Format(Done())
	require.NoError(t, err)
	assert.Equal(t, "event: done\ndata: {}\n\n", string(frame))
}

func TestFormat_ApprovalRequired(t *testing.T) {
	e := ApprovalRequired([]ToolCallData{{Name: "search_product", Args: map[string]any{"query": "kindle"}}}, nil)
	frame, err := Format(e)
	require.NoError(t, err)

	data := strings.TrimSuffix(strings.TrimPrefix(string(frame), "event: approval_required\ndata: "), "\n\n")
	assert.JSONEq(t, `{"tool_calls":[{"name":"search_product","args":{"query":"kindle"}}],"interrupt_ids":[]}`, data)
}

func TestToolResult_Truncates(t *testing.T) {
	long := strings.Repeat("a", 5000)
	e := ToolResult("search_product", long)
	data := e.Data.(ToolResultData)
	assert.Len(t, data.Result, MaxToolResultLen)

	short := ToolResult("search_product", "ok").Data.(ToolResultData)
	assert.Equal(t, "ok", short.Result)
}

func TestTruncate_CountsCharacters(t *testing.T) {
	s := strings.Repeat("é", 10)
	assert.Equal(t, strings.Repeat("é", 4), Truncate(s, 4))
	assert.Equal(t, s, Truncate(s, 10))
	assert.Equal(t, "", Truncate("", 3))
}

func TestToolCall_NilArgs(t *testing.T) {
	data := ToolCall("view_wishlist", nil).Data.(ToolCallData)
	assert.NotNil(t, data.Args)
}

func TestSSEWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewSSEWriter(rec)
	require.NoError(t, err)

	require.NoError(t, w.Write(Token("a")))
	require.NoError(t, w.Write(Error("boom")))
	require.NoError(t, w.Write(Done()))

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "keep-alive", rec.Header().Get("Connection"))
	assert.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))
	assert.True(t, rec.Flushed)

	body := rec.Body.String()
	assert.Equal(t,
		"event: token\ndata: {\"content\":\"a\"}\n\n"+
			"event: error\ndata: {\"message\":\"boom\"}\n\n"+
			"event: done\ndata: {}\n\n",
		body)
}
