// ABOUTME: Tests for Collect and the provider-backed summarizer
// ABOUTME: Uses the scripted provider from llmtest

package llm_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kimyungju/pricewise/internal/llm"
	"github.com/kimyungju/pricewise/internal/llm/llmtest"
	"github.com/kimyungju/pricewise/internal/store"
)

func TestCollect_StopsOnError(t *testing.T) {
	ch := make(chan *llm.Chunk, 3)
	ch <- &llm.Chunk{Text: "partial"}
	ch <- &llm.Chunk{Err: errors.New("stream broke"), Done: true}
	close(ch)

	_, err := llm.Collect(context.Background(), ch, nil)
	assert.EqualError(t, err, "stream broke")
}

func TestCollect_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := llm.Collect(ctx, make(chan *llm.Chunk), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSummarizer(t *testing.T) {
	p := llmtest.New()
	p.Summary = "User wants headphones under $100."

	s := llm.NewSummarizer(p, "gpt-4o-mini")
	entries := []store.Entry{store.NewUserEntry("headphones under $100"), store.NewAssistantEntry("Sure")}
	got, err := s.Summarize(context.Background(), "Summarize.", entries)
	require.NoError(t, err)
	assert.Equal(t, "User wants headphones under $100.", got)

	reqs := p.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "Summarize.", reqs[0].System)
	assert.Equal(t, entries, reqs[0].Messages)
	assert.Empty(t, reqs[0].Tools)
}

func TestSummarizer_EmptyResponse(t *testing.T) {
	p := llmtest.New()
	p.Summary = "  "
	_, err := llm.NewSummarizer(p, "m").Summarize(context.Background(), "x", nil)
	assert.ErrorIs(t, err, llm.ErrEmptyResponse)
}
